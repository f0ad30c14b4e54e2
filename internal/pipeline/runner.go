package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"go.uber.org/zap"
)

// Config tunes the pipelines.
type Config struct {
	// ScanBatch is the number of entries between scanning events (default 50).
	ScanBatch int
	// MatchWorkers bounds the parallel match phase (default GOMAXPROCS).
	MatchWorkers int
}

// DefaultScanBatch is the scanning event interval used when Config leaves it unset.
const DefaultScanBatch = 50

// Runner executes pipelines. It holds no per-operation state and is safe for
// concurrent use.
type Runner struct {
	cfg    Config
	logger *zap.Logger
}

// New returns a Runner with cfg defaults applied.
func New(cfg Config, logger *zap.Logger) *Runner {
	if cfg.ScanBatch <= 0 {
		cfg.ScanBatch = DefaultScanBatch
	}
	if cfg.MatchWorkers <= 0 {
		cfg.MatchWorkers = runtime.GOMAXPROCS(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{cfg: cfg, logger: logger.Named("pipeline")}
}

// Config returns the effective configuration.
func (r *Runner) Config() Config {
	return r.cfg
}

// walkRoot runs the pre-flight check for search and list and returns the
// directory to walk, with a symlinked root resolved to its target.
func walkRoot(path string) (string, error) {
	if err := checkDir(path); err != nil {
		return "", err
	}
	root, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidPath, err)
	}
	return root, nil
}

// reportedPath maps path, found while walking root, back onto base so that
// callers see paths under the directory they asked for.
func reportedPath(base, root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return filepath.Join(base, rel)
}

func checkDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: path does not exist: %s", ErrInvalidPath, path)
		}
		return fmt.Errorf("%w: %w", ErrInvalidPath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: path is not a directory: %s", ErrInvalidPath, path)
	}
	return nil
}
