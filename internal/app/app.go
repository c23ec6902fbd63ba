// Package app assembles the service from configuration: logger, store,
// archiver, publisher, progress sinks, fetcher, and run coordinator.
// Commands build an App once and pull wired components from it.
package app

import (
	"context"
	"fmt"

	gcstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/shelfscan/shelfscan/internal/api"
	"github.com/shelfscan/shelfscan/internal/archive"
	"github.com/shelfscan/shelfscan/internal/clock/system"
	"github.com/shelfscan/shelfscan/internal/config"
	collyfetcher "github.com/shelfscan/shelfscan/internal/fetcher/colly"
	"github.com/shelfscan/shelfscan/internal/hash/sha256"
	"github.com/shelfscan/shelfscan/internal/id/uuid"
	"github.com/shelfscan/shelfscan/internal/logging"
	"github.com/shelfscan/shelfscan/internal/normalize"
	"github.com/shelfscan/shelfscan/internal/parser"
	"github.com/shelfscan/shelfscan/internal/pipeline"
	"github.com/shelfscan/shelfscan/internal/progress"
	"github.com/shelfscan/shelfscan/internal/progress/sinks"
	"github.com/shelfscan/shelfscan/internal/publisher"
	pubsubpub "github.com/shelfscan/shelfscan/internal/publisher/pubsub"
	"github.com/shelfscan/shelfscan/internal/runner"
	memorystore "github.com/shelfscan/shelfscan/internal/store/memory"
	"github.com/shelfscan/shelfscan/internal/store/postgres"
)

// App holds every wired component for the lifetime of a command.
type App struct {
	Config    config.Config
	Logger    *zap.Logger
	Store     pipeline.Store
	Archiver  archive.Archiver
	Publisher publisher.Publisher
	Registry  *prometheus.Registry
	Hub       *progress.Hub
	Runner    *runner.Runner
	Stats     *api.StatsHolder

	gcsClient *gcstorage.Client
}

// New loads configuration from path and wires the full component
// graph. Callers must Close the returned App.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
		Stats:    &api.StatsHolder{},
	}
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	clk := system.Clock{}

	if err := a.buildStore(ctx, clk); err != nil {
		a.shutdown(ctx)
		return nil, err
	}
	if err := a.buildArchiver(ctx); err != nil {
		a.shutdown(ctx)
		return nil, err
	}
	if err := a.buildPublisher(ctx); err != nil {
		a.shutdown(ctx)
		return nil, err
	}
	if err := a.buildHub(); err != nil {
		a.shutdown(ctx)
		return nil, err
	}

	fetch := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Fetch.UserAgent,
		Retry: collyfetcher.RetryConfig{
			Timeout:       cfg.FetchTimeout(),
			MaxRetries:    cfg.Fetch.MaxRetries,
			BackoffBase:   cfg.BackoffInitial(),
			BackoffFactor: float64(cfg.Fetch.BackoffFactor),
			BackoffMax:    cfg.BackoffMax(),
		},
	}, logger.Named("fetcher"))

	a.Runner = runner.New(
		fetch,
		normalize.New(sha256.New()),
		a.Store,
		parser.ForType,
		a.Archiver,
		a.Hub,
		clk,
		uuid.NewUUIDGenerator(),
		runner.Config{Workers: cfg.Runner.Workers},
		logger.Named("runner"),
	)

	return a, nil
}

func (a *App) buildStore(ctx context.Context, clk pipeline.Clock) error {
	switch a.Config.DB.Provider {
	case "postgres":
		store, err := postgres.New(ctx, postgres.Config{
			DSN:      a.Config.DB.DSN,
			Table:    a.Config.DB.Table,
			MaxConns: int32(a.Config.DB.MaxConns),
			MinConns: int32(a.Config.DB.MinConns),
		}, clk)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return fmt.Errorf("ensure schema: %w", err)
		}
		a.Store = store
	case "memory":
		a.Store = memorystore.New(clk)
	default:
		return fmt.Errorf("unknown db provider %q", a.Config.DB.Provider)
	}
	return nil
}

func (a *App) buildArchiver(ctx context.Context) error {
	switch a.Config.Archive.Provider {
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("create storage client: %w", err)
		}
		a.gcsClient = client
		gcs, err := archive.NewGCS(client, archive.GCSConfig{
			Bucket: a.Config.Archive.GCSBucket,
			Prefix: a.Config.Archive.Prefix,
		})
		if err != nil {
			return fmt.Errorf("build gcs archiver: %w", err)
		}
		a.Archiver = gcs
	case "local":
		local, err := archive.NewLocal(a.Config.Archive.Dir)
		if err != nil {
			return fmt.Errorf("build local archiver: %w", err)
		}
		a.Archiver = local
	case "none":
		a.Archiver = archive.NoOp{}
	default:
		return fmt.Errorf("unknown archive provider %q", a.Config.Archive.Provider)
	}
	return nil
}

func (a *App) buildPublisher(ctx context.Context) error {
	switch a.Config.Publisher.Provider {
	case "pubsub":
		pub, err := pubsubpub.New(ctx, a.Config.Publisher.ProjectID, a.Config.Publisher.TopicID)
		if err != nil {
			return fmt.Errorf("build pubsub publisher: %w", err)
		}
		a.Publisher = pub
	case "none":
		a.Publisher = publisher.NoOp{}
	default:
		return fmt.Errorf("unknown publisher provider %q", a.Config.Publisher.Provider)
	}
	return nil
}

func (a *App) buildHub() error {
	promSink, err := sinks.NewPrometheusSink(a.Registry)
	if err != nil {
		return fmt.Errorf("register progress metrics: %w", err)
	}
	a.Hub = progress.NewHub(
		progress.Config{Logger: a.Logger.Named("progress")},
		sinks.NewLogSink(a.Logger.Named("events")),
		promSink,
	)
	return nil
}

// Close releases every component in reverse dependency order.
func (a *App) Close(ctx context.Context) error {
	return a.shutdown(ctx)
}

func (a *App) shutdown(ctx context.Context) error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if a.Hub != nil {
		a.Hub.Close(ctx)
	}
	if a.Publisher != nil {
		record(a.Publisher.Close())
	}
	if a.gcsClient != nil {
		record(a.gcsClient.Close())
	}
	if a.Store != nil {
		a.Store.Close()
	}
	if a.Logger != nil {
		// Sync on stderr returns ENOTTY on some platforms; ignore.
		_ = a.Logger.Sync()
	}
	return firstErr
}
