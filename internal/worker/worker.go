// Package worker runs file operations on their own goroutine and records what
// happened to them: registry membership, lifecycle events, reports, and
// completion notices.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/fileops/internal/fileops"
	"github.com/JakeFAU/fileops/internal/hash/sha256"
	"github.com/JakeFAU/fileops/internal/lifecycle"
	"github.com/JakeFAU/fileops/internal/pipeline"
	"github.com/JakeFAU/fileops/internal/progress"
	"github.com/JakeFAU/fileops/internal/registry"
	"github.com/JakeFAU/fileops/internal/store"
)

// ErrPanic wraps a panic recovered from a pipeline goroutine.
var ErrPanic = errors.New("operation panicked")

// Config controls Worker behavior.
type Config struct {
	// ReportPrefix is prepended to report object paths.
	ReportPrefix string
	// Topic receives completion notices; empty disables publishing.
	Topic string
}

// Options are the per-call settings shared by every operation.
type Options struct {
	// ID names the operation; one is generated when empty.
	ID string
	// Report exports the final result as JSON to the blob store.
	Report bool
}

// Result is the outcome of one operation together with its pipeline value.
type Result[T any] struct {
	OperationID string         `json:"operation_id"`
	Kind        progress.Kind  `json:"kind"`
	Status      store.Status   `json:"status"`
	Value       T              `json:"result"`
	Counters    store.Counters `json:"counters"`
	ReportURI   string         `json:"report_uri,omitempty"`
	Error       string         `json:"error,omitempty"`
	Duration    time.Duration  `json:"-"`
}

// Option customises a Worker.
type Option func(*Worker)

// WithBlobStore enables report export.
func WithBlobStore(bs fileops.BlobStore) Option {
	return func(w *Worker) { w.blobStore = bs }
}

// WithPublisher enables completion notices (with Config.Topic).
func WithPublisher(p fileops.Publisher) Option {
	return func(w *Worker) { w.publisher = p }
}

// WithEmitter sends lifecycle events to e.
func WithEmitter(e lifecycle.Emitter) Option {
	return func(w *Worker) {
		if e != nil {
			w.events = e
		}
	}
}

// WithClock overrides the wall clock.
func WithClock(c fileops.Clock) Option {
	return func(w *Worker) {
		if c != nil {
			w.clock = c
		}
	}
}

// WithHasher overrides the digest used to name reports.
func WithHasher(h fileops.Hasher) Option {
	return func(w *Worker) {
		if h != nil {
			w.hasher = h
		}
	}
}

// WithIDGenerator supplies ids for operations submitted without one.
func WithIDGenerator(g fileops.IDGenerator) Option {
	return func(w *Worker) { w.ids = g }
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(w *Worker) {
		if tp != nil {
			w.tracer = tp.Tracer(tracerName)
		}
	}
}

const tracerName = "github.com/JakeFAU/fileops/internal/worker"

// Worker executes pipeline operations.
type Worker struct {
	registry  *registry.Registry
	runner    *pipeline.Runner
	blobStore fileops.BlobStore
	publisher fileops.Publisher
	events    lifecycle.Emitter
	clock     fileops.Clock
	hasher    fileops.Hasher
	ids       fileops.IDGenerator
	tracer    trace.Tracer
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker. reg and runner are required.
func New(reg *registry.Registry, runner *pipeline.Runner, cfg Config, logger *zap.Logger, opts ...Option) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Worker{
		registry: reg,
		runner:   runner,
		events:   lifecycle.Nop,
		clock:    fileops.ClockFunc(time.Now),
		hasher:   sha256.New(),
		tracer:   otel.Tracer(tracerName),
		cfg:      cfg,
		logger:   logger.Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Cancel requests cancellation of id. Unknown ids are remembered so a later
// submission under the same id is rejected.
func (w *Worker) Cancel(id string) {
	w.logger.Info("cancel requested", zap.String("operation_id", id))
	w.registry.Cancel(id)
}

// Search runs a cancellable search.
func (w *Worker) Search(
	ctx context.Context,
	opts Options,
	req pipeline.SearchRequest,
	sink progress.Sink,
) (Result[[]pipeline.FileMatch], error) {
	return execute(ctx, w, operation[[]pipeline.FileMatch]{
		opts:        opts,
		kind:        progress.KindSearch,
		cancellable: true,
		sink:        sink,
		run: func(flag pipeline.Canceller, sink progress.Sink) ([]pipeline.FileMatch, error) {
			return w.runner.Search(req, flag, sink)
		},
		counters: func(matches []pipeline.FileMatch) store.Counters {
			return store.Counters{Items: len(matches), Succeeded: len(matches)}
		},
	})
}

// Delete runs a cancellable batch delete.
func (w *Worker) Delete(
	ctx context.Context,
	opts Options,
	req pipeline.DeleteRequest,
	sink progress.Sink,
) (Result[pipeline.DeleteResult], error) {
	return execute(ctx, w, operation[pipeline.DeleteResult]{
		opts:        opts,
		kind:        progress.KindDelete,
		cancellable: true,
		sink:        sink,
		run: func(flag pipeline.Canceller, sink progress.Sink) (pipeline.DeleteResult, error) {
			return w.runner.Delete(req, flag, sink), nil
		},
		counters: func(res pipeline.DeleteResult) store.Counters {
			return store.Counters{Items: len(req.Files), Succeeded: len(res.Successful), Failed: len(res.Failed)}
		},
	})
}

// List enumerates files. It cannot be cancelled.
func (w *Worker) List(
	ctx context.Context,
	opts Options,
	req pipeline.ListRequest,
	sink progress.Sink,
) (Result[[]string], error) {
	return execute(ctx, w, operation[[]string]{
		opts: opts,
		kind: progress.KindList,
		sink: sink,
		run: func(_ pipeline.Canceller, sink progress.Sink) ([]string, error) {
			return w.runner.List(req, sink)
		},
		counters: func(files []string) store.Counters {
			return store.Counters{Items: len(files), Succeeded: len(files)}
		},
	})
}

// Rename applies rename pairs. It cannot be cancelled.
func (w *Worker) Rename(
	ctx context.Context,
	opts Options,
	req pipeline.RenameRequest,
	sink progress.Sink,
) (Result[pipeline.RenameResult], error) {
	return execute(ctx, w, operation[pipeline.RenameResult]{
		opts: opts,
		kind: progress.KindRename,
		sink: sink,
		run: func(_ pipeline.Canceller, sink progress.Sink) (pipeline.RenameResult, error) {
			return w.runner.Rename(req, sink), nil
		},
		counters: func(res pipeline.RenameResult) store.Counters {
			return store.Counters{Items: len(req.Files), Succeeded: len(res.Renamed), Failed: len(res.Failed)}
		},
	})
}

type operation[T any] struct {
	opts        Options
	kind        progress.Kind
	cancellable bool
	sink        progress.Sink
	run         func(pipeline.Canceller, progress.Sink) (T, error)
	counters    func(T) store.Counters
}

type finished[T any] struct {
	value T
	err   error
}

func execute[T any](ctx context.Context, w *Worker, op operation[T]) (Result[T], error) {
	id, err := w.operationID(op.opts.ID)
	if err != nil {
		return Result[T]{Kind: op.kind, Status: store.StatusFailed, Error: err.Error()}, err
	}
	if op.sink == nil {
		op.sink = progress.Discard
	}
	logger := w.logger.With(
		zap.String("operation_id", id),
		zap.String("kind", string(op.kind)),
		zap.Uint64("correlation_id", registry.NextCorrelationID()),
	)
	ctx, span := w.tracer.Start(ctx, "fileops."+string(op.kind), trace.WithAttributes(
		attribute.String("fileops.operation_id", id),
		attribute.String("fileops.kind", string(op.kind)),
	))
	defer span.End()

	res := Result[T]{OperationID: id, Kind: op.kind}
	start := w.clock.Now()

	var flag pipeline.Canceller = pipeline.Never
	var stop func()
	if op.cancellable {
		guard, f, regErr := w.registry.TryRegister(id)
		if regErr != nil {
			logger.Info("operation rejected", zap.Error(regErr))
			res.Status = store.StatusRejected
			res.Error = regErr.Error()
			w.emit(lifecycle.Event{OperationID: id, Kind: op.kind, Stage: lifecycle.StageRejected, Note: regErr.Error()})
			span.SetAttributes(attribute.String("fileops.status", string(res.Status)))
			return res, regErr
		}
		defer guard.Release()
		flag, stop = f, f.Cancel
	}

	w.emit(lifecycle.Event{OperationID: id, Kind: op.kind, Stage: lifecycle.StageStart})
	logger.Debug("operation started")

	tap := &tapSink{next: op.sink}
	done := make(chan finished[T], 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- finished[T]{err: fmt.Errorf("%w: %v", ErrPanic, rec)}
			}
		}()
		value, runErr := op.run(flag, tap)
		done <- finished[T]{value: value, err: runErr}
	}()

	var out finished[T]
	select {
	case out = <-done:
	case <-ctx.Done():
		if stop != nil {
			stop()
		}
		logger.Debug("context done, waiting for pipeline to stop", zap.Error(ctx.Err()))
		out = <-done
	}

	res.Value = out.value
	res.Counters = op.counters(out.value)
	res.Duration = w.clock.Now().Sub(start)
	switch {
	case out.err != nil:
		res.Status = store.StatusFailed
		res.Error = out.err.Error()
	case tap.cancelled() || tap.disconnected():
		res.Status = store.StatusCancelled
	default:
		res.Status = store.StatusCompleted
	}

	// Side effects outlive a caller that has gone away.
	sideCtx := context.WithoutCancel(ctx)
	if op.opts.Report && res.Status != store.StatusFailed {
		uri, reportErr := exportReport(sideCtx, w, res)
		if reportErr != nil {
			logger.Warn("report export failed", zap.Error(reportErr))
			span.RecordError(reportErr)
		}
		res.ReportURI = uri
	}

	w.emit(terminalEvent(res))
	publishNotice(sideCtx, w, res, logger)

	span.SetAttributes(
		attribute.String("fileops.status", string(res.Status)),
		attribute.Int("fileops.items", res.Counters.Items),
	)
	if out.err != nil {
		span.RecordError(out.err)
		span.SetStatus(codes.Error, out.err.Error())
		logger.Warn("operation failed", zap.Error(out.err), zap.Duration("dur", res.Duration))
		return res, out.err
	}
	logger.Info("operation finished",
		zap.String("status", string(res.Status)),
		zap.Int("items", res.Counters.Items),
		zap.Int("failed", res.Counters.Failed),
		zap.Duration("dur", res.Duration),
	)
	return res, nil
}

func (w *Worker) operationID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id != "" {
		return id, nil
	}
	if w.ids == nil {
		return "", errors.New("operation id required")
	}
	id, err := w.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("generate operation id: %w", err)
	}
	return id, nil
}

func (w *Worker) emit(evt lifecycle.Event) {
	evt.TS = w.clock.Now().UTC()
	w.events.Emit(evt)
}

func terminalEvent[T any](res Result[T]) lifecycle.Event {
	evt := lifecycle.Event{
		OperationID: res.OperationID,
		Kind:        res.Kind,
		Items:       res.Counters.Items,
		Succeeded:   res.Counters.Succeeded,
		Failed:      res.Counters.Failed,
		Dur:         res.Duration,
		ReportURI:   res.ReportURI,
	}
	switch res.Status {
	case store.StatusCompleted:
		evt.Stage = lifecycle.StageDone
	case store.StatusCancelled:
		evt.Stage = lifecycle.StageCancelled
	default:
		evt.Stage = lifecycle.StageError
		evt.Note = res.Error
	}
	return evt
}
