// Package app initializes and holds long-lived application services,
// acting as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"time"

	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	archivegcs "github.com/brandsignal/socialcrawler/internal/archive/gcs"
	archivelocal "github.com/brandsignal/socialcrawler/internal/archive/local"
	"github.com/brandsignal/socialcrawler/internal/api"
	"github.com/brandsignal/socialcrawler/internal/clock/system"
	"github.com/brandsignal/socialcrawler/internal/config"
	"github.com/brandsignal/socialcrawler/internal/hash/sha256"
	"github.com/brandsignal/socialcrawler/internal/id/uuid"
	"github.com/brandsignal/socialcrawler/internal/insight"
	"github.com/brandsignal/socialcrawler/internal/logging"
	"github.com/brandsignal/socialcrawler/internal/merge"
	"github.com/brandsignal/socialcrawler/internal/metrics"
	publishermemory "github.com/brandsignal/socialcrawler/internal/publisher/memory"
	publisherpubsub "github.com/brandsignal/socialcrawler/internal/publisher/pubsub"
	"github.com/brandsignal/socialcrawler/internal/scraper"
	"github.com/brandsignal/socialcrawler/internal/session"
	sessionchromedp "github.com/brandsignal/socialcrawler/internal/session/chromedp"
	storememory "github.com/brandsignal/socialcrawler/internal/store/memory"
	storemongo "github.com/brandsignal/socialcrawler/internal/store/mongo"
	storepostgres "github.com/brandsignal/socialcrawler/internal/store/postgres"
	"github.com/brandsignal/socialcrawler/internal/worker"
)

// DataStore is the combined persistence surface the service needs:
// aggregates plus captured session cookies.
type DataStore interface {
	scraper.AggregateStore
	scraper.SessionStore
}

// App holds the shared, long-lived services for the application. It is
// initialized once at startup and torn down by Close.
type App struct {
	Logger   *zap.Logger
	Config   config.Config
	Store    DataStore
	Sessions *sessionchromedp.Factory
	Worker   *worker.Worker
	Server   *api.Server

	closers []func(ctx context.Context) error
}

// New builds every service from configuration, failing fast when a
// critical dependency cannot be initialized.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	metrics.Init()

	a := &App{Logger: logger, Config: cfg}

	store, err := NewStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Store = store
	a.closers = append(a.closers, store.Close)

	publisher, err := a.newPublisher(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	archive, err := NewArchive(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	factory, err := sessionchromedp.NewFactory(sessionchromedp.Config{
		Headless:    cfg.Session.Headless,
		UserAgent:   cfg.Session.UserAgent,
		MaxParallel: cfg.Session.MaxParallel,
		NavTimeout:  cfg.NavTimeout(),
		DomainQPS:   cfg.Session.DomainQPS,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init browser: %w", err)
	}
	a.Sessions = factory
	a.closers = append(a.closers, factory.Close)

	a.Worker = worker.New(
		factory,
		session.NewVault(store, logger),
		merge.NewEngine(store, logger),
		publisher,
		archive,
		system.New(),
		uuid.New(),
		sha256.New(),
		worker.Config{
			MaxPostsDefault: cfg.Scraper.MaxPostsDefault,
			Frontier: scraper.FrontierConfig{
				MaxRounds:         cfg.Scraper.DiscoveryMaxRounds,
				StaleHeightRounds: cfg.Scraper.StaleHeightRounds,
				Settle:            cfg.Settle(),
			},
			Extractor: scraper.ExtractorConfig{
				MaxRounds:   cfg.Scraper.ExtractMaxRounds,
				StaleRounds: cfg.Scraper.ExtractStaleRounds,
				ClickLimit:  cfg.Scraper.ClickLimit,
				Settle:      cfg.Settle(),
			},
		},
		logger,
	)

	insights, err := NewInsights(cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Server = api.NewServer(a.Worker, store, insights, cfg, logger)

	logger.Info("application services initialized",
		zap.String("store", cfg.Store.Provider),
		zap.String("publisher", cfg.Publisher.Provider),
		zap.String("archive", cfg.Archive.Provider),
		zap.String("insight", cfg.Insight.Provider),
	)
	return a, nil
}

// NewStore builds the configured persistence backend.
func NewStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (DataStore, error) {
	switch cfg.Store.Provider {
	case "memory":
		logger.Info("using in-memory store; data is lost on restart")
		return storememory.New(), nil
	case "mongo":
		logger.Info("connecting to MongoDB", zap.String("database", cfg.Store.Mongo.Database))
		store, err := storemongo.New(ctx, storemongo.Config{
			URI:      cfg.Store.Mongo.URI,
			Database: cfg.Store.Mongo.Database,
		})
		if err != nil {
			return nil, fmt.Errorf("init mongo store: %w", err)
		}
		return store, nil
	case "postgres":
		logger.Info("connecting to PostgreSQL")
		store, err := storepostgres.New(ctx, storepostgres.Config{
			DSN:      cfg.Store.Postgres.DSN,
			MaxConns: int32(cfg.Store.Postgres.MaxConns),
		})
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store provider: %s", cfg.Store.Provider)
	}
}

func (a *App) newPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (scraper.Publisher, error) {
	switch cfg.Publisher.Provider {
	case "noop":
		return nil, nil
	case "memory":
		return publishermemory.New(), nil
	case "pubsub":
		logger.Info("connecting to Pub/Sub", zap.String("topic", cfg.Publisher.TopicID))
		pub, err := publisherpubsub.New(ctx, publisherpubsub.Config{
			ProjectID: cfg.Publisher.ProjectID,
			TopicID:   cfg.Publisher.TopicID,
		})
		if err != nil {
			return nil, fmt.Errorf("init pubsub publisher: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return pub.Close() })
		return pub, nil
	default:
		return nil, fmt.Errorf("unknown publisher provider: %s", cfg.Publisher.Provider)
	}
}

// NewArchive builds the configured capture archive, or nil when
// archival is disabled.
func NewArchive(ctx context.Context, cfg config.Config, logger *zap.Logger) (scraper.CaptureArchive, error) {
	switch cfg.Archive.Provider {
	case "none":
		return nil, nil
	case "local":
		archive, err := archivelocal.New(archivelocal.Config{BaseDir: cfg.Archive.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("init local archive: %w", err)
		}
		return archive, nil
	case "gcs":
		logger.Info("using GCS capture archive", zap.String("bucket", cfg.Archive.Bucket))
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		archive, err := archivegcs.New(client, archivegcs.Config{
			Bucket: cfg.Archive.Bucket,
			Prefix: cfg.Archive.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("init gcs archive: %w", err)
		}
		return archive, nil
	default:
		return nil, fmt.Errorf("unknown archive provider: %s", cfg.Archive.Provider)
	}
}

// NewInsights builds the comment summarization service.
func NewInsights(cfg config.Config, logger *zap.Logger) (*insight.Service, error) {
	switch cfg.Insight.Provider {
	case "fallback":
		return insight.NewService(nil, logger), nil
	case "openai":
		client, err := insight.NewOpenAIClient(insight.OpenAIConfig{
			APIKey:  cfg.Insight.APIKey,
			Model:   cfg.Insight.Model,
			BaseURL: cfg.Insight.BaseURL,
			Timeout: time.Duration(cfg.Insight.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("init openai summarizer: %w", err)
		}
		return insight.NewService(client, logger), nil
	default:
		return nil, fmt.Errorf("unknown insight provider: %s", cfg.Insight.Provider)
	}
}

// Close gracefully shuts down all services, last-initialized first.
func (a *App) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.Logger.Warn("service shutdown failed", zap.Error(err))
		}
	}
	_ = a.Logger.Sync()
}
