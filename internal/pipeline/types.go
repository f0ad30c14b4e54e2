package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/JakeFAU/fileops/internal/matcher"
)

// ErrInvalidPath is returned by pre-flight checks when the base path is
// missing or not a directory.
var ErrInvalidPath = errors.New("invalid path")

// Canceller is polled at every checkpoint. registry.Flag satisfies it.
type Canceller interface {
	IsCancelled() bool
}

// Never is a Canceller that is never cancelled.
var Never Canceller = never{}

type never struct{}

func (never) IsCancelled() bool { return false }

// SearchRequest describes one pattern search.
type SearchRequest struct {
	BasePath       string              `json:"base_path"`
	Pattern        string              `json:"pattern"`
	PatternType    matcher.PatternType `json:"pattern_type"`
	IncludeSubdirs bool                `json:"include_subdirs"`
	CaseSensitive  bool                `json:"case_sensitive"`
}

// FileMatch is one search hit.
type FileMatch struct {
	Path        string          `json:"path"`
	Name        string          `json:"name"`
	MatchRanges []matcher.Range `json:"match_ranges"`
	Size        int64           `json:"size"`
	IsDirectory bool            `json:"is_directory"`
}

// DeleteRequest lists the paths to remove.
type DeleteRequest struct {
	Files           []string `json:"files"`
	DeleteEmptyDirs bool     `json:"delete_empty_dirs"`
}

// Failure pairs a path with the reason it could not be processed. It is
// encoded as a two-element JSON array.
type Failure struct {
	Path  string
	Error string
}

// MarshalJSON encodes f as [path, error].
func (f Failure) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{f.Path, f.Error})
}

// UnmarshalJSON decodes [path, error].
func (f *Failure) UnmarshalJSON(data []byte) error {
	var pair [2]string
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("decode failure: %w", err)
	}
	f.Path, f.Error = pair[0], pair[1]
	return nil
}

// DeleteResult aggregates a delete run. It is returned whole on completion
// and partially on cancellation or disconnect.
type DeleteResult struct {
	Successful  []string  `json:"successful"`
	Failed      []Failure `json:"failed"`
	DeletedDirs []string  `json:"deleted_dirs"`
}

func newDeleteResult() DeleteResult {
	return DeleteResult{Successful: []string{}, Failed: []Failure{}, DeletedDirs: []string{}}
}

// ListRequest names the directory to list.
type ListRequest struct {
	DirPath string `json:"dir_path"`
}

// RenamePair is one rename, encoded as [old, new].
type RenamePair struct {
	OldPath string
	NewPath string
}

// MarshalJSON encodes p as [old, new].
func (p RenamePair) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{p.OldPath, p.NewPath})
}

// UnmarshalJSON decodes [old, new].
func (p *RenamePair) UnmarshalJSON(data []byte) error {
	var pair [2]string
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("decode rename pair: %w", err)
	}
	p.OldPath, p.NewPath = pair[0], pair[1]
	return nil
}

// RenameRequest lists the renames to apply, in order.
type RenameRequest struct {
	Files []RenamePair `json:"files"`
}

// RenameResult holds the new paths of successful renames and the failures.
type RenameResult struct {
	Renamed []string  `json:"renamed"`
	Failed  []Failure `json:"failed"`
}

// Err folds the failures into one error, one line per failed rename, or
// returns nil when everything was renamed.
func (r RenameResult) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	lines := make([]string, 0, len(r.Failed))
	for _, f := range r.Failed {
		lines = append(lines, fmt.Sprintf("Failed to rename %s: %s", f.Path, f.Error))
	}
	return errors.New(strings.Join(lines, "\n"))
}
