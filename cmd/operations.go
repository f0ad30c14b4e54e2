package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/fileops/internal/matcher"
	"github.com/JakeFAU/fileops/internal/pipeline"
	"github.com/JakeFAU/fileops/internal/store"
	"github.com/JakeFAU/fileops/internal/worker"
)

func addOperationFlags(cmd *cobra.Command, opts *worker.Options) {
	cmd.Flags().StringVar(&opts.ID, "id", "", "Operation id (generated when empty)")
	cmd.Flags().BoolVar(&opts.Report, "report", false, "Export the result to the configured report backend")
}

func (c *cli) searchCommand() *cobra.Command {
	var (
		opts        worker.Options
		req         pipeline.SearchRequest
		patternType string
	)
	cmd := &cobra.Command{
		Use:   "search <base-path> <pattern>",
		Short: "Find files and directories whose names match a pattern",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pt, err := matcher.ParsePatternType(patternType)
			if err != nil {
				return err
			}
			req.BasePath, req.Pattern, req.PatternType = args[0], args[1], pt
			res, err := c.app.Worker().Search(cmd.Context(), opts, req, c.progressSink(cmd))
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			return finish(c, cmd, res, matchTable)
		},
	}
	cmd.Flags().StringVarP(&patternType, "type", "t", string(matcher.Simple), "Pattern type: simple, extension, regex or glob")
	cmd.Flags().BoolVarP(&req.IncludeSubdirs, "recursive", "r", false, "Descend into subdirectories")
	cmd.Flags().BoolVar(&req.CaseSensitive, "case-sensitive", false, "Match case exactly")
	addOperationFlags(cmd, &opts)
	return cmd
}

func (c *cli) deleteCommand() *cobra.Command {
	var (
		opts worker.Options
		req  pipeline.DeleteRequest
	)
	cmd := &cobra.Command{
		Use:   "delete <path>...",
		Short: "Delete files and directories, continuing past failures",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Files = args
			res, err := c.app.Worker().Delete(cmd.Context(), opts, req, c.progressSink(cmd))
			if err != nil {
				return fmt.Errorf("delete: %w", err)
			}
			if err := finish(c, cmd, res, deleteTable); err != nil {
				return err
			}
			if n := len(res.Value.Failed); n > 0 {
				return fmt.Errorf("%d of %d deletes failed", n, len(req.Files))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&req.DeleteEmptyDirs, "empty-dirs", false, "Remove parent directories left empty")
	addOperationFlags(cmd, &opts)
	return cmd
}

func (c *cli) listCommand() *cobra.Command {
	var opts worker.Options
	cmd := &cobra.Command{
		Use:   "list <dir>",
		Short: "List every file below a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := c.app.Worker().List(cmd.Context(), opts, pipeline.ListRequest{DirPath: args[0]}, c.progressSink(cmd))
			if err != nil {
				return fmt.Errorf("list: %w", err)
			}
			return finish(c, cmd, res, listTable)
		},
	}
	addOperationFlags(cmd, &opts)
	return cmd
}

func (c *cli) renameCommand() *cobra.Command {
	var opts worker.Options
	cmd := &cobra.Command{
		Use:   "rename <old> <new> [<old> <new>]...",
		Short: "Rename files in order, continuing past failures",
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) == 0 || len(args)%2 != 0 {
				return errors.New("rename takes pairs of <old> <new> paths")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			req := pipeline.RenameRequest{Files: make([]pipeline.RenamePair, 0, len(args)/2)}
			for i := 0; i < len(args); i += 2 {
				req.Files = append(req.Files, pipeline.RenamePair{OldPath: args[i], NewPath: args[i+1]})
			}
			res, err := c.app.Worker().Rename(cmd.Context(), opts, req, c.progressSink(cmd))
			if err != nil {
				return fmt.Errorf("rename: %w", err)
			}
			if err := finish(c, cmd, res, renameTable); err != nil {
				return err
			}
			return res.Value.Err()
		},
	}
	addOperationFlags(cmd, &opts)
	return cmd
}

// finish prints res and turns a cancelled run into context.Canceled so the
// process exits non-zero without repeating the output.
func finish[T any](c *cli, cmd *cobra.Command, res worker.Result[T], table func(T) string) error {
	out := cmd.OutOrStdout()
	if c.jsonOutput {
		if err := writeJSON(out, res); err != nil {
			return err
		}
	} else {
		if rendered := table(res.Value); rendered != "" {
			fmt.Fprintln(out, rendered)
		}
		fmt.Fprintln(out, summaryLine(res.OperationID, res.Kind, res.Status, res.Counters, res.ReportURI))
	}
	if res.Status == store.StatusCancelled {
		return fmt.Errorf("operation %s cancelled: %w", res.OperationID, context.Canceled)
	}
	return nil
}
