package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/fileops/internal/pipeline"
	"github.com/JakeFAU/fileops/internal/progress"
	"github.com/JakeFAU/fileops/internal/store"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	if len(headers) == 0 || len(rows) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, len(headers))
		for i := range headers {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, len(headers))
	for i := range headers {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

func matchTable(matches []pipeline.FileMatch) string {
	rows := make([][]string, 0, len(matches))
	for _, m := range matches {
		kind := "file"
		if m.IsDirectory {
			kind = "dir"
		}
		rows = append(rows, []string{m.Path, kind, strconv.FormatInt(m.Size, 10)})
	}
	return renderTable([]string{"Path", "Type", "Size"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight})
}

func deleteTable(res pipeline.DeleteResult) string {
	rows := make([][]string, 0, len(res.Successful)+len(res.Failed)+len(res.DeletedDirs))
	for _, p := range res.Successful {
		rows = append(rows, []string{p, "deleted", ""})
	}
	for _, f := range res.Failed {
		rows = append(rows, []string{f.Path, "failed", f.Error})
	}
	for _, d := range res.DeletedDirs {
		rows = append(rows, []string{d, "empty dir removed", ""})
	}
	return renderTable([]string{"Path", "Status", "Error"}, rows, nil)
}

func listTable(files []string) string {
	rows := make([][]string, 0, len(files))
	for _, f := range files {
		rows = append(rows, []string{f})
	}
	return renderTable([]string{"Path"}, rows, nil)
}

func renameTable(res pipeline.RenameResult) string {
	rows := make([][]string, 0, len(res.Renamed)+len(res.Failed))
	for _, p := range res.Renamed {
		rows = append(rows, []string{p, "renamed", ""})
	}
	for _, f := range res.Failed {
		rows = append(rows, []string{f.Path, "failed", f.Error})
	}
	return renderTable([]string{"Path", "Status", "Error"}, rows, nil)
}

func summaryLine(id string, kind progress.Kind, status store.Status, counters store.Counters, reportURI string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s: %d items, %d succeeded, %d failed", kind, id, status, counters.Items, counters.Succeeded, counters.Failed)
	if reportURI != "" {
		fmt.Fprintf(&b, " (report %s)", reportURI)
	}
	return b.String()
}

// writeJSON encodes v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// progressSink draws one self-overwriting status line on stderr. Nothing is
// drawn for JSON output or when stderr is not a terminal.
func (c *cli) progressSink(cmd *cobra.Command) progress.Sink {
	w := cmd.ErrOrStderr()
	if c.jsonOutput || !isTerminal(w) {
		return progress.Discard
	}
	return progress.SinkFunc(func(evt progress.Event) error {
		fmt.Fprintf(w, "\r\x1b[K%s", describeEvent(evt))
		if evt.Terminal() {
			fmt.Fprintln(w)
		}
		return nil
	})
}

func describeEvent(evt progress.Event) string {
	switch evt.Type {
	case progress.TypeStarted:
		if evt.BasePath != "" {
			return fmt.Sprintf("%s: started in %s", evt.Kind, evt.BasePath)
		}
		return fmt.Sprintf("%s: started, %d targets", evt.Kind, evt.TotalFiles)
	case progress.TypeScanning:
		return fmt.Sprintf("%s: scanning %s (%d entries)", evt.Kind, evt.CurrentDir, evt.FilesFound)
	case progress.TypeMatching:
		return fmt.Sprintf("%s: matching %d entries", evt.Kind, evt.TotalFiles)
	case progress.TypeProgress:
		return fmt.Sprintf("%s: [%d/%d] %s", evt.Kind, evt.Current, evt.Total, evt.CurrentPath)
	case progress.TypeCompleted:
		switch evt.Kind {
		case progress.KindSearch:
			return fmt.Sprintf("search: %d matches", evt.MatchesFound)
		case progress.KindList:
			return fmt.Sprintf("list: %d files", evt.TotalFiles)
		default:
			return fmt.Sprintf("%s: %d succeeded, %d failed", evt.Kind, evt.Successful, evt.Failed)
		}
	case progress.TypeCancelled:
		return fmt.Sprintf("%s: cancelled", evt.Kind)
	default:
		return string(evt.Kind)
	}
}
