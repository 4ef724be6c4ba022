// Package server provides the core application server and dependency injection.
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
	"go.uber.org/zap"

	"github.com/JakeFAU/novel-crawler/internal/api"
	"github.com/JakeFAU/novel-crawler/internal/clock/system"
	"github.com/JakeFAU/novel-crawler/internal/config"
	"github.com/JakeFAU/novel-crawler/internal/dispatcher"
	autofetcher "github.com/JakeFAU/novel-crawler/internal/fetcher/auto"
	collyfetcher "github.com/JakeFAU/novel-crawler/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/novel-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/novel-crawler/internal/hash/sha256"
	"github.com/JakeFAU/novel-crawler/internal/headless/detector"
	"github.com/JakeFAU/novel-crawler/internal/logging"
	"github.com/JakeFAU/novel-crawler/internal/metrics"
	"github.com/JakeFAU/novel-crawler/internal/novel"
	"github.com/JakeFAU/novel-crawler/internal/pipeline"
	"github.com/JakeFAU/novel-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/novel-crawler/internal/policy/simple"
	"github.com/JakeFAU/novel-crawler/internal/progress"
	progresssinks "github.com/JakeFAU/novel-crawler/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/novel-crawler/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/novel-crawler/internal/publisher/pubsub"
	queuememory "github.com/JakeFAU/novel-crawler/internal/queue/memory"
	"github.com/JakeFAU/novel-crawler/internal/registry"
	"github.com/JakeFAU/novel-crawler/internal/site"
	badgerstore "github.com/JakeFAU/novel-crawler/internal/storage/badger"
	gcsstore "github.com/JakeFAU/novel-crawler/internal/storage/gcs"
	localstore "github.com/JakeFAU/novel-crawler/internal/storage/local"
	memorystore "github.com/JakeFAU/novel-crawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/novel-crawler/internal/storage/postgres"
	"github.com/JakeFAU/novel-crawler/internal/telemetry"
	"github.com/JakeFAU/novel-crawler/internal/tracker"
)

// App contains the application's dependencies.
type App struct {
	cfg            config.Config
	logger         *zap.Logger
	apiServer      *api.Server
	dispatch       *dispatcher.Dispatcher
	runner         *pipeline.Runner
	tracker        *tracker.Tracker
	progressHub    *progress.Hub
	queue          *queuememory.Queue
	store          novel.ResultStore
	publisher      novel.Publisher
	pubsubClient   *pubsub.Client
	pubsubPub      *gcppublisher.Publisher
	headless       *headlessfetcher.Fetcher
	pingers        map[string]api.Pinger
	runStore       *pgstore.RunStore
	tracerShutdown telemetry.ShutdownFunc
	// registerer receives the progress Prometheus sink collectors.
	registerer prometheus.Registerer
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg config.Config, logger *zap.Logger) *App {
	logger.Info("creating application",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.String("fetcher_mode", cfg.Fetcher.Mode),
	)
	return &App{
		cfg:        cfg,
		logger:     logger,
		pingers:    make(map[string]api.Pinger),
		registerer: prometheus.DefaultRegisterer,
	}
}

// Run starts the dispatcher and HTTP server and blocks until the context is
// canceled or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		a.dispatch.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       config.Seconds(a.cfg.Server.ReadTimeoutSeconds),
		WriteTimeout:      config.Seconds(a.cfg.Server.WriteTimeoutSeconds),
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Seconds(a.cfg.Server.ShutdownTimeoutSeconds))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.queue.Close()
	select {
	case <-dispatchDone:
	case <-shutdownCtx.Done():
		a.logger.Warn("workers did not stop before the shutdown deadline")
	}

	return a.Close(shutdownCtx)
}

// Fetch runs one job synchronously, bypassing admission. It backs the fetch
// command.
func (a *App) Fetch(ctx context.Context, ref string) (novel.Document, error) {
	src, err := site.Resolve(ref)
	if err != nil {
		return novel.Document{}, err
	}
	job := novel.Job{ID: src.ID, Source: src, Status: novel.JobStatusPending, Submitted: system.New().Now()}
	doc, err := a.runner.Run(ctx, job)
	if err != nil {
		return novel.Document{}, fmt.Errorf("fetch %s: %w", src.ID, err)
	}
	return doc, nil
}

// Store exposes the configured result store.
func (a *App) Store() novel.ResultStore {
	return a.store
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Close gracefully shuts down the application.
func (a *App) Close(ctx context.Context) error {
	if a.queue != nil {
		a.queue.Close()
	}
	a.closeInfrastructure(ctx)
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.headless != nil {
		a.headless.Close()
	}
	if a.pubsubPub != nil {
		a.pubsubPub.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.runStore != nil {
		a.runStore.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("result store close failed", zap.Error(err))
		}
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	// Sync fails on stderr for some terminals; nothing useful can be done.
	_ = a.logger.Sync()
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app := NewApp(cfg, logger)
	app.tracerShutdown, err = telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	if err := app.build(ctx); err != nil {
		_ = app.Close(ctx)
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context) error {
	a.logger.Info("building application dependencies")
	var err error
	if a.store, err = setupStorage(ctx, a); err != nil {
		return err
	}
	if a.publisher, err = setupPublisher(ctx, a); err != nil {
		return err
	}
	events, err := setupProgress(ctx, a)
	if err != nil {
		return err
	}
	pages, err := setupFetcher(a)
	if err != nil {
		return err
	}

	clock := system.New()
	a.tracker = tracker.New(
		tracker.WithRetention(config.Millis(a.cfg.Progress.TrackerRetentionMs)),
		tracker.WithClock(clock),
	)
	chapters := pipeline.NewChapterFetcher(pages, setupLimiter(a), clock, pipeline.FetchConfig{
		MaxAttempts:    a.cfg.Crawler.MaxAttempts,
		BackoffInitial: config.Millis(a.cfg.HTTP.BackoffInitialMs),
		BackoffMax:     config.Millis(a.cfg.HTTP.BackoffMaxMs),
		DelayMin:       config.Millis(a.cfg.Crawler.DelayMinMs),
		DelayMax:       config.Millis(a.cfg.Crawler.DelayMaxMs),
	}, a.logger.Named("chapters"))

	a.runner, err = pipeline.NewRunner(pipeline.Deps{
		Extractors: site.DefaultRegistry(),
		Chapters:   chapters,
		Pool:       pipeline.NewPool(a.cfg.Crawler.Workers),
		Assembler:  pipeline.NewAssembler(sha256.New(), clock),
		Store:      a.store,
		Progress:   a.tracker,
		Events:     events,
		Publisher:  a.publisher,
		Topic:      a.cfg.PubSub.TopicName,
		Clock:      clock,
		Logger:     a.logger.Named("pipeline"),
	})
	if err != nil {
		return fmt.Errorf("pipeline init failed: %w", err)
	}

	a.queue = queuememory.NewQueue(a.cfg.Crawler.QueueDepth)
	a.dispatch = dispatcher.New(
		a.store,
		registry.New(a.cfg.Crawler.FailureRecordSize),
		a.queue,
		a.runner,
		clock,
		dispatcher.Config{
			JobConcurrency: a.cfg.Crawler.JobConcurrency,
			EnqueueTimeout: config.Millis(a.cfg.Crawler.EnqueueTimeoutMs),
		},
		a.logger.Named("dispatcher"),
	)

	a.apiServer = api.NewServer(a.dispatch, a.tracker, a.store, api.Options{
		Auth:           a.cfg.Auth,
		RequestTimeout: config.Seconds(a.cfg.Server.RequestTimeoutSeconds),
		Pingers:        a.pingers,
		Logger:         a.logger.Named("api"),
	})
	return nil
}

func setupStorage(ctx context.Context, app *App) (novel.ResultStore, error) {
	cfg := app.cfg.Storage
	switch cfg.Backend {
	case config.BackendGCS:
		app.logger.Info("using GCS storage backend", zap.String("bucket", cfg.GCSBucket))
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		store, err := gcsstore.New(client, gcsstore.Config{Bucket: cfg.GCSBucket, Prefix: cfg.Prefix})
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("gcs result store init failed: %w", err)
		}
		return store, nil
	case config.BackendLocal:
		app.logger.Info("using local storage backend", zap.String("path", cfg.LocalDir))
		store, err := localstore.New(localstore.Config{BaseDir: cfg.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local result store init failed: %w", err)
		}
		return store, nil
	case config.BackendPostgres:
		db := app.cfg.Database
		app.logger.Info("using postgres storage backend", zap.String("table", db.Table))
		store, err := pgstore.New(ctx, pgstore.Config{
			DSN:             db.DSN,
			Table:           db.Table,
			MaxConns:        db.MaxConns,
			MinConns:        db.MinConns,
			MaxConnLifetime: time.Duration(db.MaxConnLifetimeMinutes) * time.Minute,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres result store init failed: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("postgres schema init failed: %w", err)
		}
		app.pingers["postgres"] = store
		return store, nil
	case config.BackendBadger:
		app.logger.Info("using badger storage backend", zap.String("path", cfg.BadgerPath))
		store, err := badgerstore.Open(badgerstore.Config{Path: cfg.BadgerPath}, app.logger.Named("badger"))
		if err != nil {
			return nil, fmt.Errorf("badger result store init failed: %w", err)
		}
		return store, nil
	default:
		app.logger.Info("using in-memory storage backend")
		return memorystore.NewResultStore(), nil
	}
}

func setupPublisher(ctx context.Context, app *App) (novel.Publisher, error) {
	if app.cfg.PubSub.TopicName == "" || app.cfg.PubSub.ProjectID == "" {
		app.logger.Warn("no Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	var err error
	app.pubsubClient, err = pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.pubsubPub = gcppublisher.New(app.pubsubClient.Publisher(app.cfg.PubSub.TopicName))
	app.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.TopicName),
	)
	return app.pubsubPub, nil
}

func setupProgress(ctx context.Context, app *App) (progress.Emitter, error) {
	cfg := app.cfg.Progress
	if !cfg.Enabled {
		app.logger.Info("progress events disabled")
		return progress.Nop{}, nil
	}
	var sinkList []progress.Sink
	if cfg.LogSink {
		sinkList = append(sinkList, progresssinks.NewLogSink(app.logger.Named("progress_log")))
	}
	if cfg.PrometheusSink {
		promSink, err := progresssinks.NewPrometheusSink(app.registerer)
		if err != nil {
			return nil, fmt.Errorf("progress prometheus sink init failed: %w", err)
		}
		sinkList = append(sinkList, promSink)
	}
	if cfg.StoreSink && app.cfg.Database.DSN != "" {
		runSink, err := setupRunStore(ctx, app)
		if err != nil {
			return nil, err
		}
		sinkList = append(sinkList, runSink)
	}
	if len(sinkList) == 0 {
		app.logger.Warn("progress events enabled but no sinks configured")
		return progress.Nop{}, nil
	}
	hubCfg := progress.Config{
		BufferSize:     cfg.BufferSize,
		MaxBatchEvents: cfg.BatchMaxEvents,
		MaxBatchWait:   config.Millis(cfg.BatchMaxWaitMs),
		SinkTimeout:    config.Millis(cfg.SinkTimeoutMs),
		BaseContext:    ctx,
		Logger:         app.logger.Named("progress_hub"),
	}
	app.progressHub = progress.NewHub(hubCfg, sinkList...)
	app.logger.Info("progress hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
	)
	return app.progressHub, nil
}

func setupRunStore(ctx context.Context, app *App) (progress.Sink, error) {
	db := app.cfg.Database
	runs, err := pgstore.NewRunStore(ctx, pgstore.Config{
		DSN:             db.DSN,
		Table:           db.RunsTable,
		MaxConns:        db.MaxConns,
		MinConns:        db.MinConns,
		MaxConnLifetime: time.Duration(db.MaxConnLifetimeMinutes) * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("job run store init failed: %w", err)
	}
	if err := runs.EnsureSchema(ctx); err != nil {
		runs.Close()
		return nil, fmt.Errorf("job run schema init failed: %w", err)
	}
	app.runStore = runs
	app.pingers["postgres_runs"] = runs
	app.logger.Info("job run history enabled", zap.String("table", db.RunsTable))
	return progresssinks.NewStoreSink(runs, app.logger.Named("progress_store")), nil
}

func setupFetcher(app *App) (novel.PageFetcher, error) {
	probe := collyfetcher.New(collyfetcher.Config{
		UserAgents:     app.cfg.HTTP.UserAgents,
		AcceptLanguage: app.cfg.HTTP.AcceptLanguage,
		RespectRobots:  app.cfg.HTTP.RespectRobots,
		Timeout:        config.Seconds(app.cfg.HTTP.TimeoutSeconds),
	})
	if app.cfg.Fetcher.Mode == config.FetcherHTTP {
		app.logger.Info("using colly fetcher")
		return probe, nil
	}

	hcfg := app.cfg.Fetcher.Headless
	headless, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
		MaxParallel:       hcfg.MaxParallel,
		UserAgent:         firstOr(app.cfg.HTTP.UserAgents, collyfetcher.DefaultUserAgents[0]),
		NavigationTimeout: config.Seconds(hcfg.NavTimeoutSeconds),
		WaitSelector:      hcfg.WaitSelector,
		SettleDelay:       config.Millis(hcfg.SettleMs),
	})
	if err != nil {
		return nil, fmt.Errorf("headless fetcher init failed: %w", err)
	}
	app.headless = headless
	if app.cfg.Fetcher.Mode == config.FetcherHeadless {
		app.logger.Info("using headless fetcher", zap.Int("max_parallel", hcfg.MaxParallel))
		return headless, nil
	}
	app.logger.Info("using auto fetcher",
		zap.Int("promotion_threshold", hcfg.PromotionThreshold),
		zap.Strings("content_markers", hcfg.ContentMarkers),
	)
	detect := detector.NewHeuristic(hcfg.PromotionThreshold, hcfg.ContentMarkers...)
	return autofetcher.New(probe, headless, detect, app.logger.Named("fetcher")), nil
}

func setupLimiter(app *App) novel.Limiter {
	rl := app.cfg.RateLimit
	if rl.DefaultRPS <= 0 && len(rl.Hosts) == 0 {
		app.logger.Info("rate limiting disabled")
		return simple.New()
	}
	app.logger.Info("using per-host rate limiter",
		zap.Float64("default_rps", rl.DefaultRPS),
		zap.Int("default_burst", rl.DefaultBurst),
		zap.Int("host_overrides", len(rl.Hosts)),
	)
	return ratelimit.New(ratelimit.Config{
		DefaultRPS:   rl.DefaultRPS,
		DefaultBurst: rl.DefaultBurst,
		HostRPS:      app.cfg.HostRPS(),
	})
}

func firstOr(values []string, fallback string) string {
	if len(values) > 0 && values[0] != "" {
		return values[0]
	}
	return fallback
}
