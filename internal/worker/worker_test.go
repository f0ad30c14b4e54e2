package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"

	"github.com/JakeFAU/fileops/internal/fileops"
	"github.com/JakeFAU/fileops/internal/lifecycle"
	"github.com/JakeFAU/fileops/internal/pipeline"
	"github.com/JakeFAU/fileops/internal/progress"
	pubmemory "github.com/JakeFAU/fileops/internal/publisher/memory"
	"github.com/JakeFAU/fileops/internal/registry"
	storagememory "github.com/JakeFAU/fileops/internal/storage/memory"
	"github.com/JakeFAU/fileops/internal/store"
)

type captureEmitter struct {
	mu     sync.Mutex
	events []lifecycle.Event
}

func (c *captureEmitter) Emit(evt lifecycle.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
}

func (c *captureEmitter) stages() []lifecycle.Stage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]lifecycle.Stage, 0, len(c.events))
	for _, evt := range c.events {
		out = append(out, evt.Stage)
	}
	return out
}

func (c *captureEmitter) last() lifecycle.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events[len(c.events)-1]
}

type fixedIDs struct{ id string }

func (f fixedIDs) NewID() (string, error) { return f.id, nil }

type fixture struct {
	worker   *Worker
	registry *registry.Registry
	events   *captureEmitter
	blobs    *storagememory.BlobStore
	pub      *pubmemory.Publisher
	spans    *tracetest.SpanRecorder
}

func newFixture(t *testing.T, cfg Config) fixture {
	t.Helper()
	reg := registry.New()
	events := &captureEmitter{}
	blobs := storagememory.NewBlobStore()
	pub := pubmemory.New()
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	w := New(reg, pipeline.New(pipeline.Config{ScanBatch: 10}, nil), cfg, zap.NewNop(),
		WithEmitter(events),
		WithBlobStore(blobs),
		WithPublisher(pub),
		WithClock(fileops.ClockFunc(func() time.Time { return now })),
		WithIDGenerator(fixedIDs{id: "generated-id"}),
		WithTracerProvider(tp),
	)
	return fixture{worker: w, registry: reg, events: events, blobs: blobs, pub: pub, spans: spans}
}

func writeFiles(t *testing.T, root string, names ...string) []string {
	t.Helper()
	var paths []string
	for _, name := range names {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
		require.NoError(t, os.WriteFile(path, []byte(name), 0o600))
		paths = append(paths, path)
	}
	return paths
}

func TestWorker_SearchCompletes(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, Config{})
	root := t.TempDir()
	writeFiles(t, root, "file1.txt", "file2.txt", "other.doc")

	res, err := fx.worker.Search(context.Background(), Options{ID: "op-search"}, pipeline.SearchRequest{
		BasePath: root,
		Pattern:  "file",
	}, nil)
	require.NoError(t, err)
	require.Equal(t, store.StatusCompleted, res.Status)
	require.Len(t, res.Value, 2)
	require.Equal(t, store.Counters{Items: 2, Succeeded: 2}, res.Counters)
	require.Equal(t, []lifecycle.Stage{lifecycle.StageStart, lifecycle.StageDone}, fx.events.stages())
	require.Zero(t, fx.registry.Len(), "guard released")

	spans := fx.spans.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, "fileops.search", spans[0].Name())
}

func TestWorker_GeneratesMissingID(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, Config{})
	res, err := fx.worker.List(context.Background(), Options{}, pipeline.ListRequest{DirPath: t.TempDir()}, nil)
	require.NoError(t, err)
	require.Equal(t, "generated-id", res.OperationID)
	require.Equal(t, store.StatusCompleted, res.Status)
}

func TestWorker_RejectsPreCancelledOperation(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, Config{})
	root := t.TempDir()
	paths := writeFiles(t, root, "keep.txt")

	fx.worker.Cancel("op-early")
	res, err := fx.worker.Delete(context.Background(), Options{ID: "op-early"}, pipeline.DeleteRequest{Files: paths}, nil)
	require.ErrorIs(t, err, registry.ErrCancelled)
	require.Equal(t, store.StatusRejected, res.Status)
	require.FileExists(t, paths[0])
	require.Equal(t, []lifecycle.Stage{lifecycle.StageRejected}, fx.events.stages())
	require.Zero(t, fx.registry.Len(), "tombstone consumed")

	// The tombstone is one-shot; a retry runs normally.
	res, err = fx.worker.Delete(context.Background(), Options{ID: "op-early"}, pipeline.DeleteRequest{Files: paths}, nil)
	require.NoError(t, err)
	require.Equal(t, store.StatusCompleted, res.Status)
	require.NoFileExists(t, paths[0])
}

func TestWorker_CancelDuringDelete(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, Config{})
	root := t.TempDir()
	paths := writeFiles(t, root, "a.txt", "b.txt", "c.txt")
	sink := progress.SinkFunc(func(evt progress.Event) error {
		if evt.Type == progress.TypeProgress && evt.Current == 1 {
			fx.worker.Cancel("op-del")
		}
		return nil
	})

	res, err := fx.worker.Delete(context.Background(), Options{ID: "op-del"}, pipeline.DeleteRequest{Files: paths}, sink)
	require.NoError(t, err)
	require.Equal(t, store.StatusCancelled, res.Status)
	require.Equal(t, paths[:1], res.Value.Successful)
	require.Equal(t, store.Counters{Items: 3, Succeeded: 1}, res.Counters)
	require.Equal(t, lifecycle.StageCancelled, fx.events.last().Stage)
	require.FileExists(t, paths[1])
	require.Zero(t, fx.registry.Len())
}

func TestWorker_DisconnectedSinkCancels(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, Config{})
	root := t.TempDir()
	writeFiles(t, root, "a.txt")
	sink := progress.SinkFunc(func(progress.Event) error { return progress.ErrDisconnected })

	res, err := fx.worker.Search(context.Background(), Options{ID: "op-gone"}, pipeline.SearchRequest{
		BasePath: root,
		Pattern:  "a",
	}, sink)
	require.NoError(t, err)
	require.Equal(t, store.StatusCancelled, res.Status)
	require.Empty(t, res.Value)
}

func TestWorker_ContextCancellationSetsFlag(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, Config{})
	root := t.TempDir()
	var names []string
	for i := 0; i < 40; i++ {
		names = append(names, filepath.Join("d", strings.Repeat("x", i+1)+".txt"))
	}
	writeFiles(t, root, names...)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink := progress.SinkFunc(func(evt progress.Event) error {
		if evt.Type == progress.TypeStarted {
			// Hold the pipeline so the worker observes ctx first.
			time.Sleep(50 * time.Millisecond)
		}
		return nil
	})

	res, err := fx.worker.Search(ctx, Options{ID: "op-ctx"}, pipeline.SearchRequest{
		BasePath:       root,
		Pattern:        "x",
		IncludeSubdirs: true,
	}, sink)
	require.NoError(t, err)
	require.Equal(t, store.StatusCancelled, res.Status)
	require.Empty(t, res.Value)
}

func TestWorker_PreflightFailure(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, Config{Topic: "ops"})
	res, err := fx.worker.Search(context.Background(), Options{ID: "op-bad"}, pipeline.SearchRequest{
		BasePath: filepath.Join(t.TempDir(), "missing"),
		Pattern:  "x",
	}, nil)
	require.ErrorIs(t, err, pipeline.ErrInvalidPath)
	require.Equal(t, store.StatusFailed, res.Status)
	require.NotEmpty(t, res.Error)

	last := fx.events.last()
	require.Equal(t, lifecycle.StageError, last.Stage)
	require.NoError(t, last.Validate())

	msgs := fx.pub.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "failed", msgs[0].Payload.(Notice).Status)
}

func TestWorker_RecoversPanics(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, Config{})
	sink := progress.SinkFunc(func(progress.Event) error { panic("boom") })

	res, err := fx.worker.Rename(context.Background(), Options{ID: "op-panic"}, pipeline.RenameRequest{}, sink)
	require.ErrorIs(t, err, ErrPanic)
	require.Equal(t, store.StatusFailed, res.Status)
	require.Contains(t, res.Error, "boom")
}

func TestWorker_ExportsReportAndPublishes(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, Config{ReportPrefix: "/reports/", Topic: "ops-done"})
	root := t.TempDir()
	writeFiles(t, root, "old.txt")

	res, err := fx.worker.Rename(context.Background(), Options{ID: "op-ren", Report: true}, pipeline.RenameRequest{
		Files: []pipeline.RenamePair{{OldPath: filepath.Join(root, "old.txt"), NewPath: filepath.Join(root, "new.txt")}},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, store.StatusCompleted, res.Status)

	paths := fx.blobs.Paths()
	require.Len(t, paths, 1)
	require.True(t, strings.HasPrefix(paths[0], "reports/rename/op-ren/"), paths[0])
	require.True(t, strings.HasSuffix(paths[0], ".json"))
	require.Equal(t, "memory://"+paths[0], res.ReportURI)

	data, contentType, ok := fx.blobs.Object(paths[0])
	require.True(t, ok)
	require.Equal(t, "application/json", contentType)
	var report struct {
		OperationID string `json:"operation_id"`
		Status      string `json:"status"`
		Result      struct {
			Renamed []string `json:"renamed"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(data, &report))
	require.Equal(t, "op-ren", report.OperationID)
	require.Equal(t, []string{filepath.Join(root, "new.txt")}, report.Result.Renamed)

	require.Equal(t, res.ReportURI, fx.events.last().ReportURI)
	msgs := fx.pub.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "ops-done", msgs[0].Topic)
	notice, ok := msgs[0].Payload.(Notice)
	require.True(t, ok)
	require.Equal(t, "completed", notice.Status)
	require.Equal(t, res.ReportURI, notice.ReportURI)
	require.Equal(t, "2024-05-01T12:00:00Z", notice.Timestamp)
}

type failingBlobStore struct{}

func (failingBlobStore) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("bucket gone")
}

func TestWorker_ReportFailureKeepsOutcome(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, Config{})
	fx.worker.blobStore = failingBlobStore{}

	res, err := fx.worker.List(context.Background(), Options{ID: "op-list", Report: true}, pipeline.ListRequest{DirPath: t.TempDir()}, nil)
	require.NoError(t, err)
	require.Equal(t, store.StatusCompleted, res.Status)
	require.Empty(t, res.ReportURI)
}

func TestReportPath(t *testing.T) {
	t.Parallel()

	w := New(registry.New(), pipeline.New(pipeline.Config{}, nil), Config{}, nil)
	require.Equal(t, "search/id/abc.json", w.reportPath("search", "id", "abc"))
	w.cfg.ReportPrefix = "out/"
	require.Equal(t, "out/search/id/abc.json", w.reportPath("search", "id", "abc"))
}
