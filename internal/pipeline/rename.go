package pipeline

import (
	"os"

	"github.com/JakeFAU/fileops/internal/progress"
)

// Rename applies req.Files in order. Each pair produces one progress event
// carrying the new path, whether or not the rename succeeded. Rename cannot
// be cancelled and ignores send failures.
func (r *Runner) Rename(req RenameRequest, sink progress.Sink) RenameResult {
	total := len(req.Files)
	res := RenameResult{Renamed: []string{}, Failed: []Failure{}}
	_ = sink.Send(progress.RenameStarted(total))

	for i, pair := range req.Files {
		if err := os.Rename(pair.OldPath, pair.NewPath); err != nil {
			res.Failed = append(res.Failed, Failure{Path: pair.OldPath, Error: err.Error()})
		} else {
			res.Renamed = append(res.Renamed, pair.NewPath)
		}
		_ = sink.Send(progress.RenameProgress(i+1, total, pair.NewPath))
	}

	_ = sink.Send(progress.RenameCompleted(len(res.Renamed), len(res.Failed)))
	return res
}
