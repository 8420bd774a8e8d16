// Package app initializes and holds the long-lived services the crawler
// runs on, acting as a dependency injection container. It is initialized
// once at startup and handed to the command that needs it.
package app

import (
	"context"
	"fmt"

	gcsclient "cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/furniture-helper/furniture-crawler/internal/config"
	"github.com/furniture-helper/furniture-crawler/internal/crawler"
	"github.com/furniture-helper/furniture-crawler/internal/dedup"
	"github.com/furniture-helper/furniture-crawler/internal/logging"
	"github.com/furniture-helper/furniture-crawler/internal/policy/ratelimit"
	"github.com/furniture-helper/furniture-crawler/internal/progress/sinks"
	pubmemory "github.com/furniture-helper/furniture-crawler/internal/publisher/memory"
	pubpubsub "github.com/furniture-helper/furniture-crawler/internal/publisher/pubsub"
	"github.com/furniture-helper/furniture-crawler/internal/queue"
	queuememory "github.com/furniture-helper/furniture-crawler/internal/queue/memory"
	"github.com/furniture-helper/furniture-crawler/internal/render"
	"github.com/furniture-helper/furniture-crawler/internal/storage"
	"github.com/furniture-helper/furniture-crawler/internal/storage/gcs"
	"github.com/furniture-helper/furniture-crawler/internal/storage/local"
	storagememory "github.com/furniture-helper/furniture-crawler/internal/storage/memory"
	"github.com/furniture-helper/furniture-crawler/internal/storage/noop"
	"github.com/furniture-helper/furniture-crawler/internal/storage/postgres"
)

// announcer is the discovered-URL publisher slice the app manages.
type announcer interface {
	dedup.Announcer
	Close() error
}

// App holds the shared, long-lived services for the crawler: logger, blob
// storage, the relational stores, the work-queue consumer, the renderer,
// and the optional discovered-URL announcer.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	storage   storage.Provider
	pages     crawler.PageStore
	events    sinks.EventWriter
	consumer  *queue.Consumer
	renderer  crawler.Renderer
	announcer announcer

	gcsClient *gcsclient.Client
	pool      *pgxpool.Pool
	ready     func(ctx context.Context) error
}

// New builds every service named by cfg, failing fast on the first one that
// cannot be initialized.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	a := &App{
		cfg:    cfg,
		logger: logger,
		ready:  func(context.Context) error { return nil },
	}

	if err := a.initStorage(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	if err := a.initDatabase(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	if err := a.initQueue(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	if err := a.initAnnouncer(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	if err := a.initRenderer(); err != nil {
		a.Close(ctx)
		return nil, err
	}

	logger.Info("application services initialized",
		zap.String("storage", cfg.Storage.Provider),
		zap.String("database", cfg.Database.Provider),
		zap.String("queue", cfg.Queue.Provider),
		zap.String("announce", cfg.Announce.Provider),
		zap.String("render", cfg.Render.Provider),
	)
	return a, nil
}

func (a *App) initStorage(ctx context.Context) error {
	switch a.cfg.Storage.Provider {
	case config.StorageGCS:
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("create gcs client: %w", err)
		}
		a.gcsClient = client
		store, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Storage.GCS.Bucket})
		if err != nil {
			return fmt.Errorf("initialize gcs storage: %w", err)
		}
		a.storage = store
	case config.StorageLocal:
		store, err := local.New(local.Config{BaseDir: a.cfg.Storage.Local.BaseDir})
		if err != nil {
			return fmt.Errorf("initialize local storage: %w", err)
		}
		a.storage = store
	case config.StorageMemory:
		a.storage = storagememory.NewBlobStore()
	default:
		return fmt.Errorf("unknown storage provider %q", a.cfg.Storage.Provider)
	}
	return nil
}

func (a *App) initDatabase(ctx context.Context) error {
	switch a.cfg.Database.Provider {
	case config.DBPostgres:
		poolCfg, err := pgxpool.ParseConfig(a.cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("parse postgres dsn: %w", err)
		}
		if a.cfg.Database.MaxConns > 0 {
			poolCfg.MaxConns = int32(a.cfg.Database.MaxConns)
		}
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		a.pool = pool

		pages, err := postgres.NewPageStoreWithPool(pool, a.cfg.Database.Table)
		if err != nil {
			return fmt.Errorf("initialize page store: %w", err)
		}
		events, err := postgres.NewEventStore(pool, a.cfg.Database.EventsTable)
		if err != nil {
			return fmt.Errorf("initialize event store: %w", err)
		}
		a.pages = pages
		a.events = events
		a.ready = pool.Ping
	case config.DBNoop:
		a.pages = noop.NewPageStore()
		a.events = noop.NewEventStore()
	default:
		return fmt.Errorf("unknown database provider %q", a.cfg.Database.Provider)
	}
	return nil
}

func (a *App) initQueue(ctx context.Context) error {
	var source queue.Source
	switch a.cfg.Queue.Provider {
	case config.QueuePubSub:
		src, err := queue.NewPubSubSource(ctx, a.cfg.Queue.GCP.ProjectID, a.cfg.Queue.GCP.SubscriptionID)
		if err != nil {
			return fmt.Errorf("initialize pubsub queue: %w", err)
		}
		source = src
	case config.QueueMemory:
		source = queuememory.New(queuememory.Config{URLs: a.cfg.Queue.Memory.URLs})
	default:
		return fmt.Errorf("unknown queue provider %q", a.cfg.Queue.Provider)
	}

	consumer, err := queue.NewConsumer(source, queue.Config{
		MaxBatch:    a.cfg.Queue.MaxBatch,
		WaitTimeout: a.cfg.Queue.WaitTimeout,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("initialize queue consumer: %w", err)
	}
	a.consumer = consumer
	return nil
}

func (a *App) initAnnouncer(ctx context.Context) error {
	switch a.cfg.Announce.Provider {
	case config.AnnouncePubSub:
		pub, err := pubpubsub.New(ctx, a.cfg.Announce.GCP.ProjectID, a.cfg.Announce.GCP.TopicID)
		if err != nil {
			return fmt.Errorf("initialize pubsub announcer: %w", err)
		}
		a.announcer = pub
	case config.AnnounceMemory:
		a.announcer = pubmemory.New()
	case config.AnnounceNone:
	default:
		return fmt.Errorf("unknown announce provider %q", a.cfg.Announce.Provider)
	}
	return nil
}

func (a *App) initRenderer() error {
	var pacer render.Pacer
	if a.cfg.Render.DomainRPS > 0 {
		pacer = ratelimit.New(ratelimit.Config{
			DomainRPS:   a.cfg.Render.DomainRPS,
			DomainBurst: a.cfg.Render.DomainBurst,
		})
	}
	renderer, err := render.New(render.Config{
		Provider:    a.cfg.Render.Provider,
		Timeout:     a.cfg.Render.Timeout,
		IdleTimeout: a.cfg.Render.IdleTimeout,
		UserAgent:   a.cfg.Crawler.UserAgent,
	}, pacer, a.logger)
	if err != nil {
		return fmt.Errorf("initialize renderer: %w", err)
	}
	a.renderer = renderer
	return nil
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Storage returns the page artifact store.
func (a *App) Storage() storage.Provider { return a.storage }

// Pages returns the relational page store.
func (a *App) Pages() crawler.PageStore { return a.pages }

// Events returns the progress event writer.
func (a *App) Events() sinks.EventWriter { return a.events }

// Consumer returns the work-queue consumer.
func (a *App) Consumer() *queue.Consumer { return a.consumer }

// Renderer returns the configured page renderer.
func (a *App) Renderer() crawler.Renderer { return a.renderer }

// Announcer returns the discovered-URL publisher, or nil when announcing is
// disabled.
func (a *App) Announcer() dedup.Announcer {
	if a.announcer == nil {
		return nil
	}
	return a.announcer
}

// Ready verifies that the backing services are reachable.
func (a *App) Ready(ctx context.Context) error { return a.ready(ctx) }

// Close shuts the services down in reverse initialization order. It is safe
// to call on a partially initialized App.
func (a *App) Close(ctx context.Context) {
	if a.renderer != nil {
		if err := a.renderer.Close(ctx); err != nil {
			a.logger.Warn("close renderer", zap.Error(err))
		}
	}
	if a.announcer != nil {
		if err := a.announcer.Close(); err != nil {
			a.logger.Warn("close announcer", zap.Error(err))
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			a.logger.Warn("close queue consumer", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("close gcs client", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
