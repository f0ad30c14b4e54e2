package pipeline

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/JakeFAU/fileops/internal/progress"
)

// List returns every regular file below req.DirPath. Every ScanBatch files
// it reports progress, but only when the containing directory changed since
// the last report. List cannot be cancelled and ignores send failures.
func (r *Runner) List(req ListRequest, sink progress.Sink) ([]string, error) {
	root, err := walkRoot(req.DirPath)
	if err != nil {
		return nil, err
	}
	_ = sink.Send(progress.ListStarted(req.DirPath))

	files := []string{}
	lastDir := ""
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !isFile(path, d) {
			return nil
		}
		path = reportedPath(req.DirPath, root, path)
		files = append(files, path)
		if len(files)%r.cfg.ScanBatch == 0 {
			if dir := filepath.Dir(path); dir != lastDir {
				lastDir = dir
				_ = sink.Send(progress.ListScanning(dir, len(files)))
			}
		}
		return nil
	})

	_ = sink.Send(progress.ListCompleted(len(files)))
	return files, nil
}

// isFile reports regular files, following symlinks.
func isFile(path string, d fs.DirEntry) bool {
	if d.Type().IsRegular() {
		return true
	}
	if d.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
