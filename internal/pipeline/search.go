package pipeline

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/fileops/internal/matcher"
	"github.com/JakeFAU/fileops/internal/progress"
)

// errStopped ends the match phase early once the flag is set.
var errStopped = errors.New("match phase stopped")

type candidate struct {
	path string
	name string
}

// Search scans req.BasePath, then matches every scanned name in parallel.
//
// Invalid patterns and bad base paths fail before anything is sent. Once
// started, the stream ends with Completed and the matches, or Cancelled and
// an empty slice. A failed send ends the search silently with an empty slice.
func (r *Runner) Search(req SearchRequest, flag Canceller, sink progress.Sink) ([]FileMatch, error) {
	m, err := matcher.Compile(req.Pattern, req.PatternType, req.CaseSensitive)
	if err != nil {
		return nil, err
	}
	root, err := walkRoot(req.BasePath)
	if err != nil {
		return nil, err
	}
	log := r.logger.With(zap.String("base_path", req.BasePath), zap.String("pattern_type", string(req.PatternType)))

	if err := sink.Send(progress.SearchStarted(req.BasePath)); err != nil {
		log.Debug("observer gone before scan", zap.Error(err))
		return []FileMatch{}, nil
	}

	entries, outcome := r.scan(req, root, flag, sink)
	switch outcome {
	case scanCancelled:
		_ = sink.Send(progress.SearchCancelled())
		log.Debug("search cancelled during scan", zap.Int("scanned", len(entries)))
		return []FileMatch{}, nil
	case scanDisconnected:
		log.Debug("observer gone during scan", zap.Int("scanned", len(entries)))
		return []FileMatch{}, nil
	}
	if flag.IsCancelled() {
		_ = sink.Send(progress.SearchCancelled())
		return []FileMatch{}, nil
	}
	if err := sink.Send(progress.SearchMatching(len(entries))); err != nil {
		return []FileMatch{}, nil
	}

	matches := r.match(entries, m, flag)
	if flag.IsCancelled() {
		_ = sink.Send(progress.SearchCancelled())
		log.Debug("search cancelled during match", zap.Int("scanned", len(entries)))
		return []FileMatch{}, nil
	}
	_ = sink.Send(progress.SearchCompleted(len(matches)))
	log.Debug("search completed", zap.Int("scanned", len(entries)), zap.Int("matches", len(matches)))
	return matches, nil
}

type scanOutcome int

const (
	scanDone scanOutcome = iota
	scanCancelled
	scanDisconnected
)

// scan walks root (one level deep unless subdirectories are included) and
// collects every entry below it, reported under req.BasePath.
func (r *Runner) scan(req SearchRequest, root string, flag Canceller, sink progress.Sink) ([]candidate, scanOutcome) {
	var (
		entries []candidate
		outcome = scanDone
	)
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped, not reported.
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}
		if flag.IsCancelled() {
			outcome = scanCancelled
			return filepath.SkipAll
		}
		reported := reportedPath(req.BasePath, root, path)
		entries = append(entries, candidate{path: reported, name: d.Name()})
		if len(entries)%r.cfg.ScanBatch == 0 {
			if err := sink.Send(progress.SearchScanning(filepath.Dir(reported), len(entries))); err != nil {
				outcome = scanDisconnected
				return filepath.SkipAll
			}
		}
		if d.IsDir() && !req.IncludeSubdirs {
			return filepath.SkipDir
		}
		return nil
	})
	return entries, outcome
}

// match evaluates m over entries on up to MatchWorkers goroutines. Result
// order is not defined.
func (r *Runner) match(entries []candidate, m matcher.Matcher, flag Canceller) []FileMatch {
	if len(entries) == 0 {
		return []FileMatch{}
	}
	workers := min(r.cfg.MatchWorkers, len(entries))
	size := (len(entries) + workers - 1) / workers
	parts := make([][]FileMatch, workers)

	g, ctx := errgroup.WithContext(context.Background())
	for w := 0; w < workers; w++ {
		lo := w * size
		if lo >= len(entries) {
			break
		}
		hi := min(lo+size, len(entries))
		g.Go(func() error {
			var found []FileMatch
			for _, c := range entries[lo:hi] {
				if flag.IsCancelled() {
					return errStopped
				}
				if ctx.Err() != nil {
					return nil
				}
				ranges := m.Match(c.name)
				if len(ranges) == 0 {
					continue
				}
				info, err := os.Stat(c.path)
				if err != nil {
					continue
				}
				found = append(found, FileMatch{
					Path:        c.path,
					Name:        c.name,
					MatchRanges: ranges,
					Size:        info.Size(),
					IsDirectory: info.IsDir(),
				})
			}
			parts[w] = found
			return nil
		})
	}
	_ = g.Wait()

	out := make([]FileMatch, 0)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
