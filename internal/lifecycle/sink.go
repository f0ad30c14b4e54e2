package lifecycle

import (
	"context"

	"go.uber.org/zap"
)

// Sink consumes batches of lifecycle events. Implementations must be safe for
// repeated calls and honor ctx deadlines.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events; Hub satisfies this interface so workers
// stay agnostic about how events are buffered or persisted.
type Emitter interface {
	Emit(evt Event)
}

// Nop is an Emitter that drops every event.
var Nop Emitter = nopEmitter{}

type nopEmitter struct{}

func (nopEmitter) Emit(Event) {}

// Direct returns an Emitter that hands each valid event straight to sink on
// the caller's goroutine. Sink errors are logged and dropped.
func Direct(ctx context.Context, sink Sink, logger *zap.Logger) Emitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return directEmitter{ctx: ctx, sink: sink, logger: logger}
}

type directEmitter struct {
	ctx    context.Context
	sink   Sink
	logger *zap.Logger
}

func (d directEmitter) Emit(evt Event) {
	if err := evt.Validate(); err != nil {
		d.logger.Debug("discarding invalid lifecycle event", zap.Error(err))
		return
	}
	if err := d.sink.Consume(d.ctx, []Event{evt}); err != nil {
		d.logger.Warn("lifecycle sink failed",
			zap.String("operation_id", evt.OperationID),
			zap.Error(err),
		)
	}
}
