package pipeline

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/fileops/internal/progress"
)

// Delete removes req.Files one after another. Directories are removed
// recursively. Per-path failures are collected and never stop the batch.
//
// Cancellation is checked before each target and before each cleanup step;
// when set, Cancelled is sent and the partial result is returned. A failed
// send returns the partial result without a further event.
func (r *Runner) Delete(req DeleteRequest, flag Canceller, sink progress.Sink) DeleteResult {
	res := newDeleteResult()
	total := len(req.Files)
	if err := sink.Send(progress.DeleteStarted(total)); err != nil {
		return res
	}

	parents := make(map[string]struct{})
	for i, target := range req.Files {
		if flag.IsCancelled() {
			_ = sink.Send(progress.DeleteCancelled())
			r.logger.Debug("delete cancelled", zap.Int("processed", i), zap.Int("total", total))
			return res
		}
		if req.DeleteEmptyDirs {
			parents[filepath.Dir(filepath.Clean(target))] = struct{}{}
		}
		if err := removeTarget(target); err != nil {
			res.Failed = append(res.Failed, Failure{Path: target, Error: err.Error()})
		} else {
			res.Successful = append(res.Successful, target)
		}
		if err := sink.Send(progress.DeleteProgress(i+1, total, target)); err != nil {
			r.logger.Debug("observer gone during delete", zap.Int("processed", i+1), zap.Int("total", total))
			return res
		}
	}

	if req.DeleteEmptyDirs {
		for _, dir := range deepestFirst(parents) {
			if flag.IsCancelled() {
				_ = sink.Send(progress.DeleteCancelled())
				return res
			}
			if removeIfEmpty(dir) {
				res.DeletedDirs = append(res.DeletedDirs, dir)
			}
		}
	}

	_ = sink.Send(progress.DeleteCompleted(len(res.Successful), len(res.Failed)))
	return res
}

func removeTarget(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return os.RemoveAll(path)
	}
	return os.Remove(path)
}

// deepestFirst orders dirs by descending separator count, then by path.
func deepestFirst(dirs map[string]struct{}) []string {
	out := make([]string, 0, len(dirs))
	for d := range dirs {
		// The root and the working directory are never cleanup candidates.
		if d == "." || d == filepath.Dir(d) {
			continue
		}
		out = append(out, d)
	}
	sep := string(filepath.Separator)
	sort.Slice(out, func(i, j int) bool {
		di, dj := strings.Count(out[i], sep), strings.Count(out[j], sep)
		if di != dj {
			return di > dj
		}
		return out[i] < out[j]
	})
	return out
}

// removeIfEmpty removes dir when it still exists, is a directory and has no
// entries.
func removeIfEmpty(dir string) bool {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return false
	}
	f, err := os.Open(dir)
	if err != nil {
		return false
	}
	_, err = f.Readdirnames(1)
	_ = f.Close()
	if !errors.Is(err, io.EOF) {
		return false
	}
	return os.Remove(dir) == nil
}
