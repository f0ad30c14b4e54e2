package pipeline

import "github.com/JakeFAU/fileops/internal/progress"

// SearchSync runs Search without progress or cancellation.
func (r *Runner) SearchSync(req SearchRequest) ([]FileMatch, error) {
	return r.Search(req, Never, progress.Discard)
}

// DeleteSync runs Delete without progress or cancellation.
func (r *Runner) DeleteSync(req DeleteRequest) DeleteResult {
	return r.Delete(req, Never, progress.Discard)
}

// ListSync runs List without progress.
func (r *Runner) ListSync(req ListRequest) ([]string, error) {
	return r.List(req, progress.Discard)
}

// RenameSync runs Rename without progress and folds failures into the error.
func (r *Runner) RenameSync(req RenameRequest) ([]string, error) {
	res := r.Rename(req, progress.Discard)
	return res.Renamed, res.Err()
}
