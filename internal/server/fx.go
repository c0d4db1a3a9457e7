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
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-reconciler/internal/api"
	"github.com/JakeFAU/catalog-reconciler/internal/baseline"
	"github.com/JakeFAU/catalog-reconciler/internal/catalog"
	"github.com/JakeFAU/catalog-reconciler/internal/clock/system"
	"github.com/JakeFAU/catalog-reconciler/internal/config"
	"github.com/JakeFAU/catalog-reconciler/internal/extractor"
	collyfetcher "github.com/JakeFAU/catalog-reconciler/internal/fetcher/colly"
	"github.com/JakeFAU/catalog-reconciler/internal/hash/sha256"
	"github.com/JakeFAU/catalog-reconciler/internal/id/uuid"
	"github.com/JakeFAU/catalog-reconciler/internal/lock"
	lockredis "github.com/JakeFAU/catalog-reconciler/internal/lock/redis"
	"github.com/JakeFAU/catalog-reconciler/internal/logging"
	"github.com/JakeFAU/catalog-reconciler/internal/metrics"
	"github.com/JakeFAU/catalog-reconciler/internal/pagination"
	"github.com/JakeFAU/catalog-reconciler/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/catalog-reconciler/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/catalog-reconciler/internal/publisher/pubsub"
	"github.com/JakeFAU/catalog-reconciler/internal/reconcile"
	"github.com/JakeFAU/catalog-reconciler/internal/restriction"
	"github.com/JakeFAU/catalog-reconciler/internal/service"
	gcsstorage "github.com/JakeFAU/catalog-reconciler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/catalog-reconciler/internal/storage/local"
	memorystorage "github.com/JakeFAU/catalog-reconciler/internal/storage/memory"
	pgstore "github.com/JakeFAU/catalog-reconciler/internal/storage/postgres"
	"github.com/JakeFAU/catalog-reconciler/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	service   *service.Service
	apiServer *api.Server

	storage         *storage.Client
	pool            *pgxpool.Pool
	redis           *goredis.Client
	pubsubClient    *pubsub.Client
	pubsubPublisher *gcppublisher.Publisher
	tracerShutdown  telemetry.ShutdownFunc
}

// Build creates the application's dependencies. Call Close when done.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	return BuildWithLogger(ctx, cfg, logger)
}

// BuildWithLogger is Build with a caller-supplied logger.
func BuildWithLogger(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	metrics.Init()
	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.String("search_url", cfg.Catalog.SearchURL),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.String("restriction_backend", cfg.Storage.Restrictions),
	)

	if err := app.build(ctx); err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context) error {
	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     a.cfg.Tracing.Enabled,
		ServiceName: logging.ServiceName,
		ProjectID:   a.cfg.Tracing.ProjectID,
		SampleRatio: a.cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("tracer init failed: %w", err)
	}
	a.tracerShutdown = shutdown

	clock := system.New()
	ids := uuid.New()

	fetcher, err := collyfetcher.New(collyfetcher.Config{
		SearchURL:    a.cfg.Catalog.SearchURL,
		UserAgent:    a.cfg.Catalog.UserAgent,
		Timeout:      a.cfg.RequestTimeout(),
		PreviewBytes: a.cfg.HTTP.PreviewBytes,
	}, a.logger.Named("fetcher"))
	if err != nil {
		return fmt.Errorf("fetcher init failed: %w", err)
	}
	var pages catalog.PageFetcher = fetcher
	if a.cfg.HTTP.MaxRPS > 0 {
		limiter := ratelimit.New(ratelimit.Config{RPS: a.cfg.HTTP.MaxRPS, Burst: a.cfg.HTTP.Burst})
		pages = ratelimit.Wrap(fetcher, limiter, a.cfg.Catalog.SearchURL)
		a.logger.Info("rate limiting catalog requests", zap.Float64("max_rps", a.cfg.HTTP.MaxRPS))
	}
	extract := extractor.New(extractor.Config{ContainerSelector: a.cfg.Catalog.ContainerSelector})
	controller := pagination.New(pages, extract, clock, a.logger.Named("pagination"))

	baselineSource, err := a.setupBaseline(ctx)
	if err != nil {
		return err
	}
	blobStore, err := a.setupStorage(ctx)
	if err != nil {
		return err
	}
	restrictions, items, err := a.setupRestrictionStores(ctx)
	if err != nil {
		return err
	}
	publisher, err := a.setupPublisher(ctx)
	if err != nil {
		return err
	}
	locker, err := a.setupLocker(ctx, ids)
	if err != nil {
		return err
	}

	detector, err := restriction.New(restriction.Deps{
		Collector:    controller,
		Restrictions: restrictions,
		Items:        items,
		Publisher:    publisher,
		Locker:       locker,
		Clock:        clock,
		IDs:          ids,
		Logger:       a.logger.Named("restriction"),
	}, restriction.Config{
		SourceURL:      a.cfg.Catalog.SearchURL,
		MaxPages:       a.cfg.Detection.MaxPages,
		InterPageDelay: a.cfg.DetectionDelay(),
		BatchSize:      a.cfg.Detection.BatchSize,
		BatchPause:     a.cfg.BatchPause(),
		AllowPartial:   a.cfg.Detection.AllowPartial,
		ReportTopic:    a.cfg.PubSub.ReportTopic,
		LockTTL:        a.cfg.LockTTL(),
	})
	if err != nil {
		return fmt.Errorf("detector init failed: %w", err)
	}

	a.service = service.New(service.Deps{
		Collector: controller,
		Detector:  detector,
		Baseline:  baselineSource,
		Snapshots: baseline.NewSnapshotter(blobStore, sha256.New(), clock, a.cfg.Storage.Prefix),
		Locker:    locker,
		Logger:    a.logger.Named("service"),
	}, service.Options{
		SourceURL:       a.cfg.Catalog.SearchURL,
		LockTTL:         a.cfg.LockTTL(),
		MaxPages:        a.cfg.Collection.MaxPages,
		InterPageDelay:  a.cfg.CollectionDelay(),
		DetailedLogging: a.cfg.Collection.DetailedLogging,
		Tolerance: reconcile.Tolerance{
			MinCoveragePct: a.cfg.Validation.MinCoveragePct,
			MaxExtraPct:    a.cfg.Validation.MaxExtraPct,
		},
	})
	a.apiServer = api.NewServer(a.service, a.ready, a.logger)
	return nil
}

// Service exposes the collect and detect operations.
func (a *App) Service() *service.Service {
	return a.service
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Handler returns the HTTP handler served by Run.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run serves the HTTP API and the detection schedule until ctx is canceled
// or the process receives SIGINT/SIGTERM.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduler, err := newScheduler(ctx, a.cfg.Detection.Schedule, a.service.Detect, a.logger.Named("scheduler"))
	if err != nil {
		return err
	}
	if scheduler != nil {
		scheduler.Start()
		a.logger.Info("detection schedule started", zap.String("schedule", a.cfg.Detection.Schedule))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	if scheduler != nil {
		select {
		case <-scheduler.Stop().Done():
		case <-shutdownCtx.Done():
			a.logger.Warn("scheduled detection still running at shutdown")
		}
	}

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// Close releases clients and pools and flushes pending spans.
func (a *App) Close() error {
	a.closeInfrastructure()
	if a.tracerShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	return nil
}

func (a *App) closeInfrastructure() {
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
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("redis client close failed", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

func (a *App) ready(ctx context.Context) error {
	if a.pool != nil {
		if err := a.pool.Ping(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (a *App) gcsClient(ctx context.Context) (*storage.Client, error) {
	if a.storage != nil {
		return a.storage, nil
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs client init failed: %w", err)
	}
	a.storage = client
	return client, nil
}

func (a *App) setupBaseline(ctx context.Context) (*baseline.Source, error) {
	src := a.cfg.Baseline.Source
	logger := a.logger.Named("baseline")
	switch {
	case src == "":
		a.logger.Warn("no baseline source configured, validation and detection use an empty baseline")
		return baseline.NewSource(nil, "", logger), nil
	case gcsstorage.IsURI(src):
		bucket, object, err := gcsstorage.ParseURI(src)
		if err != nil {
			return nil, fmt.Errorf("baseline.source: %w", err)
		}
		client, err := a.gcsClient(ctx)
		if err != nil {
			return nil, err
		}
		reader, err := gcsstorage.New(client, gcsstorage.Config{Bucket: bucket})
		if err != nil {
			return nil, fmt.Errorf("baseline reader init failed: %w", err)
		}
		a.logger.Info("using GCS baseline", zap.String("bucket", bucket), zap.String("object", object))
		return baseline.NewSource(reader, object, logger), nil
	default:
		a.logger.Info("using local baseline", zap.String("path", src))
		return baseline.NewSource(baseline.FileReader{}, src, logger), nil
	}
}

func (a *App) setupStorage(ctx context.Context) (catalog.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case config.BackendGCS:
		a.logger.Info("using GCS snapshot backend", zap.String("bucket", a.cfg.Storage.GCSBucket))
		client, err := a.gcsClient(ctx)
		if err != nil {
			return nil, err
		}
		store, err := gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		return store, nil
	case config.BackendLocal:
		a.logger.Info("using local snapshot backend", zap.String("path", a.cfg.Storage.BaseDir))
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		return store, nil
	default:
		a.logger.Info("using in-memory snapshot backend")
		return memorystorage.NewBlobStore(), nil
	}
}

func (a *App) setupRestrictionStores(ctx context.Context) (catalog.RestrictionStore, catalog.ItemStore, error) {
	if a.cfg.Storage.Restrictions != config.BackendPostgres {
		a.logger.Warn("using in-memory restriction store, records will not survive a restart")
		return memorystorage.NewRestrictionStore(), memorystorage.NewItemStore(), nil
	}
	pool, err := pgstore.NewPool(ctx, pgstore.PoolConfig{
		DSN:             a.cfg.Database.DSN,
		MaxConns:        a.cfg.Database.MaxConns,
		MinConns:        a.cfg.Database.MinConns,
		MaxConnLifetime: time.Duration(a.cfg.Database.MaxConnLifetimeMinutes) * time.Minute,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("postgres init failed: %w", err)
	}
	a.pool = pool
	if a.cfg.Database.EnsureSchema {
		if err := pgstore.EnsureSchema(ctx, pool, a.cfg.Database.RestrictionTable, a.cfg.Database.ItemTable); err != nil {
			return nil, nil, err
		}
		a.logger.Info("postgres schema ensured")
	}
	restrictions, err := pgstore.NewRestrictionStore(pool, a.cfg.Database.RestrictionTable)
	if err != nil {
		return nil, nil, fmt.Errorf("restriction store init failed: %w", err)
	}
	items, err := pgstore.NewItemStore(pool, a.cfg.Database.ItemTable)
	if err != nil {
		return nil, nil, fmt.Errorf("item store init failed: %w", err)
	}
	a.logger.Info("postgres restriction store initialized",
		zap.String("restriction_table", a.cfg.Database.RestrictionTable),
		zap.String("item_table", a.cfg.Database.ItemTable),
	)
	return restrictions, items, nil
}

func (a *App) setupPublisher(ctx context.Context) (catalog.Publisher, error) {
	if a.cfg.PubSub.ReportTopic == "" || a.cfg.PubSub.ProjectID == "" {
		a.logger.Info("no Pub/Sub report topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.pubsubClient = client
	a.pubsubPublisher = gcppublisher.New(client)
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.ReportTopic),
	)
	return a.pubsubPublisher, nil
}

func (a *App) setupLocker(ctx context.Context, ids catalog.IDGenerator) (lock.Locker, error) {
	if a.cfg.Redis.URL == "" {
		return lock.Noop{}, nil
	}
	client, err := lockredis.Connect(ctx, lockredis.Config{
		URL:         a.cfg.Redis.URL,
		PoolSize:    a.cfg.Redis.PoolSize,
		DialTimeout: time.Duration(a.cfg.Redis.DialTimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("redis init failed: %w", err)
	}
	a.redis = client
	a.logger.Info("redis source lock enabled")
	return lockredis.New(client, ids.NewID), nil
}
