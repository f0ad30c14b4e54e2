package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/fileops/internal/lifecycle"
)

// LogSink writes one structured line per lifecycle event.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []lifecycle.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("operation_id", evt.OperationID),
			zap.String("kind", string(evt.Kind)),
			zap.String("stage", string(evt.Stage)),
		}
		if evt.Stage.Terminal() {
			fields = append(fields,
				zap.Int("items", evt.Items),
				zap.Int("succeeded", evt.Succeeded),
				zap.Int("failed", evt.Failed),
				zap.Duration("dur", evt.Dur),
			)
		}
		if evt.ReportURI != "" {
			fields = append(fields, zap.String("report_uri", evt.ReportURI))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		if evt.Stage == lifecycle.StageError {
			s.logger.Warn("operation event", fields...)
			continue
		}
		s.logger.Info("operation event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
