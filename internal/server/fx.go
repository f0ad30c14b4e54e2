// Package server builds the fileops dependency graph and runs the HTTP service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/fileops/internal/api"
	"github.com/JakeFAU/fileops/internal/clock/system"
	"github.com/JakeFAU/fileops/internal/config"
	"github.com/JakeFAU/fileops/internal/fileops"
	"github.com/JakeFAU/fileops/internal/hash/sha256"
	"github.com/JakeFAU/fileops/internal/id/uuid"
	"github.com/JakeFAU/fileops/internal/lifecycle"
	lifecyclesinks "github.com/JakeFAU/fileops/internal/lifecycle/sinks"
	"github.com/JakeFAU/fileops/internal/logging"
	"github.com/JakeFAU/fileops/internal/metrics"
	"github.com/JakeFAU/fileops/internal/pipeline"
	memorypublisher "github.com/JakeFAU/fileops/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/fileops/internal/publisher/pubsub"
	"github.com/JakeFAU/fileops/internal/registry"
	gcsstorage "github.com/JakeFAU/fileops/internal/storage/gcs"
	localstorage "github.com/JakeFAU/fileops/internal/storage/local"
	memorystorage "github.com/JakeFAU/fileops/internal/storage/memory"
	"github.com/JakeFAU/fileops/internal/telemetry"
	"github.com/JakeFAU/fileops/internal/worker"
)

// App contains the application's dependencies.
type App struct {
	cfg             config.Config
	logger          *zap.Logger
	ownsLogger      bool
	registerer      prometheus.Registerer
	version         string
	apiServer       *api.Server
	worker          *worker.Worker
	history         *memorystorage.HistoryStore
	lifecycleHub    *lifecycle.Hub
	pubsubClient    *pubsub.Client
	pubsubPublisher *gcppublisher.Publisher
	storage         *storage.Client
	tracerProvider  *sdktrace.TracerProvider
}

// Option customises Build.
type Option func(*App)

// WithLogger replaces the logger Build would create from cfg.Logging. The
// caller keeps ownership and syncs it.
func WithLogger(logger *zap.Logger) Option {
	return func(a *App) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithRegisterer registers the lifecycle collectors somewhere other than the
// default Prometheus registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(a *App) {
		if reg != nil {
			a.registerer = reg
		}
	}
}

// WithVersion tags traces with the build version.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// Worker returns the operation worker.
func (a *App) Worker() *worker.Worker {
	return a.worker
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Handler returns the HTTP handler of the API server.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run serves HTTP and blocks until ctx is cancelled or SIGINT/SIGTERM arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	closeErr := a.Close(shutdownCtx)

	select {
	case err := <-serveErr:
		return fmt.Errorf("serve http: %w", err)
	default:
		return closeErr
	}
}

// Close drains the lifecycle hub and releases cloud clients.
func (a *App) Close(ctx context.Context) error {
	a.closeInfrastructure(ctx)
	a.closeObservability(ctx)
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.lifecycleHub != nil {
		if err := a.lifecycleHub.Close(ctx); err != nil {
			a.logger.Warn("lifecycle hub close failed", zap.Error(err))
		}
	}
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	a.logger.Info("shutdown complete")
	if a.ownsLogger {
		_ = logging.Sync(a.logger)
	}
}

// Build creates the application's dependencies from cfg.
func Build(ctx context.Context, cfg config.Config, opts ...Option) (built *App, err error) {
	app := &App{
		cfg:        cfg,
		registerer: prometheus.DefaultRegisterer,
		version:    "dev",
	}
	for _, opt := range opts {
		opt(app)
	}
	if app.logger == nil {
		logger, err := logging.New(cfg.Logging.Development)
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
		app.logger = logger
		app.ownsLogger = true
		zap.ReplaceGlobals(logger)
	}
	app.logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("report_backend", cfg.Reports.Backend),
		zap.Bool("reports_enabled", cfg.Reports.Enabled),
	)

	defer func() {
		if err != nil {
			app.closeInfrastructure(context.Background())
		}
	}()

	if cfg.Tracing.Enabled {
		tp, err := telemetry.InitTracerProvider(ctx, cfg.Tracing.ServiceName, app.version)
		if err != nil {
			return nil, fmt.Errorf("tracer init failed: %w", err)
		}
		app.tracerProvider = tp
	}

	metrics.Init()
	clock := system.New()
	reg := registry.New(
		registry.WithClock(clock),
		registry.WithLogger(app.logger),
		registry.WithSweepObserver(metrics.ObserveSweep),
	)
	metrics.RegisterRegistrySize(reg.Len)

	runner := pipeline.New(pipeline.Config{
		ScanBatch:    cfg.Operations.ScanBatch,
		MatchWorkers: cfg.Operations.MatchWorkers,
	}, app.logger)

	app.history = memorystorage.NewHistoryStore(cfg.History.Capacity)

	emitter, err := setupLifecycle(ctx, app)
	if err != nil {
		return nil, err
	}

	idGen := uuid.NewUUIDGenerator()
	workerOpts := []worker.Option{
		worker.WithEmitter(emitter),
		worker.WithClock(clock),
		worker.WithHasher(sha256.New()),
		worker.WithIDGenerator(idGen),
	}
	if app.tracerProvider != nil {
		workerOpts = append(workerOpts, worker.WithTracerProvider(app.tracerProvider))
	}
	if cfg.Reports.Enabled {
		blobStore, err := setupStorage(ctx, app)
		if err != nil {
			return nil, err
		}
		workerOpts = append(workerOpts, worker.WithBlobStore(blobStore))
	}
	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		return nil, err
	}
	workerOpts = append(workerOpts, worker.WithPublisher(publisher))

	workerCfg := worker.Config{
		ReportPrefix: cfg.Reports.Prefix,
		Topic:        cfg.PubSub.TopicName,
	}
	app.logger.Info("worker config",
		zap.String("report_prefix", workerCfg.ReportPrefix),
		zap.String("topic", workerCfg.Topic),
		zap.Int("scan_batch", runner.Config().ScanBatch),
		zap.Int("match_workers", runner.Config().MatchWorkers),
	)
	app.worker = worker.New(reg, runner, workerCfg, app.logger, workerOpts...)

	app.apiServer = api.NewServer(
		app.worker,
		app.history,
		memorystorage.NewSessionStore(),
		idGen,
		cfg,
		app.logger.Named("api"),
	)

	return app, nil
}

func setupStorage(ctx context.Context, app *App) (fileops.BlobStore, error) {
	var blobStore fileops.BlobStore
	var err error
	switch app.cfg.Reports.Backend {
	case config.BackendGCS:
		app.logger.Info("using GCS report backend")
		app.storage, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		blobStore, err = gcsstorage.New(app.storage, gcsstorage.Config{
			Bucket: app.cfg.Reports.Bucket,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.logger.Debug("GCS report backend", zap.String("bucket", app.cfg.Reports.Bucket))
	case config.BackendLocal:
		app.logger.Info("using local report backend")
		blobStore, err = localstorage.New(localstorage.Config{BaseDir: app.cfg.Reports.Local.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		app.logger.Debug("local report backend", zap.String("path", app.cfg.Reports.Local.BaseDir))
	default:
		app.logger.Info("using in-memory report backend")
		blobStore = memorystorage.NewBlobStore()
	}
	return blobStore, nil
}

func setupPublisher(ctx context.Context, app *App) (fileops.Publisher, error) {
	if app.cfg.PubSub.TopicName == "" || app.cfg.PubSub.ProjectID == "" {
		app.logger.Debug("no Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.NewBounded(app.cfg.History.Capacity), nil
	}
	var err error
	app.pubsubClient, err = pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.pubsubPublisher = gcppublisher.New(app.pubsubClient, app.cfg.PubSub.TopicName)
	app.logger.Info(
		"Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.TopicName),
	)
	return app.pubsubPublisher, nil
}

// setupLifecycle builds the hub feeding history, logs and metrics. History is
// recorded even when the hub is disabled, synchronously through a direct
// emitter.
func setupLifecycle(ctx context.Context, app *App) (lifecycle.Emitter, error) {
	storeSink := lifecyclesinks.NewStoreSink(app.history, app.logger.Named("lifecycle_store"))
	if !app.cfg.Lifecycle.Enabled {
		app.logger.Info("lifecycle hub disabled; recording history inline")
		return lifecycle.Direct(ctx, storeSink, app.logger.Named("lifecycle")), nil
	}

	sinkList := []lifecycle.Sink{storeSink}
	if app.cfg.Lifecycle.LogEnabled {
		sinkList = append(sinkList, lifecyclesinks.NewLogSink(app.logger.Named("lifecycle_log")))
		app.logger.Debug("added lifecycle log sink")
	}
	promSink, err := lifecyclesinks.NewPrometheusSink(app.registerer)
	if err != nil {
		return nil, fmt.Errorf("lifecycle metrics init failed: %w", err)
	}
	sinkList = append(sinkList, promSink)

	hubCfg := lifecycle.Config{
		BufferSize:     app.cfg.Lifecycle.BufferSize,
		MaxBatchEvents: app.cfg.Lifecycle.Batch.MaxEvents,
		MaxBatchWait:   app.cfg.Lifecycle.Batch.MaxWait(),
		SinkTimeout:    app.cfg.Lifecycle.SinkTimeout(),
		BaseContext:    context.WithoutCancel(ctx),
		Logger:         app.logger.Named("lifecycle_hub"),
	}
	app.lifecycleHub = lifecycle.NewHub(hubCfg, sinkList...)
	app.logger.Info("lifecycle hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
		zap.Duration("sink_timeout", hubCfg.SinkTimeout),
	)
	return app.lifecycleHub, nil
}
