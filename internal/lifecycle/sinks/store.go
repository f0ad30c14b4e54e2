package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/fileops/internal/lifecycle"
	"github.com/JakeFAU/fileops/internal/store"
)

// StoreSink records lifecycle events in the operation history.
type StoreSink struct {
	repo   store.HistoryRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.HistoryRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume applies the batch in order and stops at the first repository error.
func (s *StoreSink) Consume(ctx context.Context, batch []lifecycle.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	for _, evt := range batch {
		if evt.Stage == lifecycle.StageStart {
			if err := s.repo.RecordStart(ctx, evt.OperationID, evt.Kind, evt.TS); err != nil {
				return fmt.Errorf("record start %s: %w", evt.OperationID, err)
			}
			continue
		}
		if err := s.repo.RecordFinish(ctx, finishedRecord(evt)); err != nil {
			return fmt.Errorf("record finish %s: %w", evt.OperationID, err)
		}
	}
	return nil
}

func finishedRecord(evt lifecycle.Event) store.OperationRecord {
	finished := evt.TS
	rec := store.OperationRecord{
		ID:         evt.OperationID,
		Kind:       evt.Kind,
		Status:     statusFor(evt.Stage),
		StartedAt:  evt.TS.Add(-evt.Dur),
		FinishedAt: &finished,
		Counters: store.Counters{
			Items:     evt.Items,
			Succeeded: evt.Succeeded,
			Failed:    evt.Failed,
		},
		ReportURI: evt.ReportURI,
	}
	if evt.Stage == lifecycle.StageError {
		rec.Error = evt.Note
	}
	return rec
}

func statusFor(stage lifecycle.Stage) store.Status {
	switch stage {
	case lifecycle.StageDone:
		return store.StatusCompleted
	case lifecycle.StageCancelled:
		return store.StatusCancelled
	case lifecycle.StageRejected:
		return store.StatusRejected
	default:
		return store.StatusFailed
	}
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
