package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/fileops/internal/progress"
	"github.com/JakeFAU/fileops/internal/store"
)

// DefaultHistoryCapacity bounds the history kept by NewHistoryStore.
const DefaultHistoryCapacity = 1000

// HistoryStore keeps operation records for the lifetime of the process.
// Once capacity is reached the oldest finished record is evicted.
type HistoryStore struct {
	mu       sync.RWMutex
	records  map[string]store.OperationRecord
	capacity int
}

var _ store.HistoryRepository = (*HistoryStore)(nil)

// NewHistoryStore constructs a HistoryStore. capacity <= 0 selects
// DefaultHistoryCapacity.
func NewHistoryStore(capacity int) *HistoryStore {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &HistoryStore{
		records:  make(map[string]store.OperationRecord),
		capacity: capacity,
	}
}

// RecordStart inserts a running record, replacing an earlier run of id.
func (s *HistoryStore) RecordStart(_ context.Context, id string, kind progress.Kind, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[id]; !exists {
		s.evictLocked()
	}
	s.records[id] = store.OperationRecord{
		ID:        id,
		Kind:      kind,
		Status:    store.StatusRunning,
		StartedAt: startedAt.UTC(),
	}
	return nil
}

// RecordFinish stores the terminal state. The start time of a running record
// is kept; otherwise rec.StartedAt is used.
func (s *HistoryStore) RecordFinish(_ context.Context, rec store.OperationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, exists := s.records[rec.ID]
	if !exists {
		s.evictLocked()
	}
	if exists && prev.Status == store.StatusRunning && !prev.StartedAt.IsZero() {
		rec.StartedAt = prev.StartedAt
	}
	rec.StartedAt = rec.StartedAt.UTC()
	if rec.FinishedAt != nil {
		rec.FinishedAt = pointerTime(rec.FinishedAt.UTC())
	}
	s.records[rec.ID] = rec
	return nil
}

// Get fetches a record by id.
func (s *HistoryStore) Get(_ context.Context, id string) (store.OperationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return store.OperationRecord{}, store.ErrNotFound
	}
	return cloneRecord(rec), nil
}

// List returns matching records, newest start first.
func (s *HistoryStore) List(_ context.Context, filter store.Filter, limit, offset int) ([]store.OperationRecord, error) {
	s.mu.RLock()
	out := make([]store.OperationRecord, 0, len(s.records))
	for _, rec := range s.records {
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		if filter.Kind != "" && rec.Kind != filter.Kind {
			continue
		}
		out = append(out, cloneRecord(rec))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if offset >= len(out) {
		return []store.OperationRecord{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// Len reports how many records are held.
func (s *HistoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// evictLocked drops the oldest finished record when the store is full.
// Running records are never evicted.
func (s *HistoryStore) evictLocked() {
	if len(s.records) < s.capacity {
		return
	}
	var (
		victim string
		oldest time.Time
	)
	for id, rec := range s.records {
		if !rec.Status.Terminal() {
			continue
		}
		if victim == "" || rec.StartedAt.Before(oldest) {
			victim, oldest = id, rec.StartedAt
		}
	}
	if victim != "" {
		delete(s.records, victim)
	}
}

func cloneRecord(rec store.OperationRecord) store.OperationRecord {
	if rec.FinishedAt != nil {
		rec.FinishedAt = pointerTime(*rec.FinishedAt)
	}
	return rec
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
