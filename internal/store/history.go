package store

import (
	"context"
	"errors"
	"time"

	"github.com/JakeFAU/fileops/internal/progress"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("operation record not found")

// Status is the lifecycle state of a recorded operation.
type Status string

// Operation statuses.
const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
	StatusRejected  Status = "rejected"
)

// Terminal reports whether s is a final status.
func (s Status) Terminal() bool {
	return s != StatusRunning && s != ""
}

// ParseStatus validates user supplied status filters.
func ParseStatus(raw string) (Status, error) {
	switch s := Status(raw); s {
	case StatusRunning, StatusCompleted, StatusCancelled, StatusFailed, StatusRejected:
		return s, nil
	default:
		return "", errors.New("unknown status " + raw)
	}
}

// Counters summarise an operation's outcome. Items is the number of entries
// the operation looked at (files scanned, targets, pairs). For searches
// Succeeded holds the match count.
type Counters struct {
	Items     int `json:"items"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// OperationRecord is one entry of the process-local operation history.
type OperationRecord struct {
	ID         string
	Kind       progress.Kind
	Status     Status
	StartedAt  time.Time
	FinishedAt *time.Time
	Counters   Counters
	// Error holds the failure reason for failed operations.
	Error string
	// ReportURI points at the exported result, when one was written.
	ReportURI string
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Status Status
	Kind   progress.Kind
}

// HistoryRepository records operation lifecycles.
type HistoryRepository interface {
	// RecordStart inserts a running record, replacing any earlier run with the same id.
	RecordStart(ctx context.Context, id string, kind progress.Kind, startedAt time.Time) error
	// RecordFinish marks the record terminal, creating it when no start was seen.
	RecordFinish(ctx context.Context, rec OperationRecord) error
	// Get loads one record or returns ErrNotFound.
	Get(ctx context.Context, id string) (OperationRecord, error)
	// List returns records newest first.
	List(ctx context.Context, filter Filter, limit, offset int) ([]OperationRecord, error)
}
