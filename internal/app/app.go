// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/anime-catalog-crawler/internal/api"
	"github.com/JakeFAU/anime-catalog-crawler/internal/config"
	"github.com/JakeFAU/anime-catalog-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/anime-catalog-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/anime-catalog-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/anime-catalog-crawler/internal/storage/memory"
	"github.com/JakeFAU/anime-catalog-crawler/internal/storage/postgres"
	"github.com/JakeFAU/anime-catalog-crawler/internal/store"
)

// ErrMigrationsUnsupported is returned by Migrate when the configured
// backend has no schema to migrate.
var ErrMigrationsUnsupported = errors.New("configured database driver does not support migrations")

type migrator interface {
	Migrate(ctx context.Context) (int, error)
}

// App holds the shared, long-lived services for one process: the logger,
// the loaded configuration, and the catalog repository. Commands build the
// pipeline and the read API from it.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	repo   store.Repository
}

// NewApp opens the repository selected by cfg.Database.Driver and, for
// Postgres with migrate_on_start, applies pending migrations. It fails fast
// when the backend cannot be reached.
func NewApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("initializing application services", zap.String("driver", cfg.Database.Driver))

	var repo store.Repository
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		pg, err := postgres.New(ctx, cfg.PostgresConfig())
		if err != nil {
			return nil, fmt.Errorf("initialize postgres: %w", err)
		}
		if err := pg.Ping(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		repo = pg
	case config.DriverMemory:
		logger.Warn("using in-memory repository; data is discarded on exit")
		repo = memory.New(nil)
	default:
		return nil, fmt.Errorf("unknown database driver: %q", cfg.Database.Driver)
	}

	a := &App{cfg: cfg, logger: logger, repo: repo}
	if cfg.Database.MigrateOnStart {
		if _, err := a.Migrate(ctx); err != nil && !errors.Is(err, ErrMigrationsUnsupported) {
			repo.Close()
			return nil, err
		}
	}
	return a, nil
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the configuration the app was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Repository exposes the catalog repository.
func (a *App) Repository() store.Repository {
	return a.repo
}

// Migrate applies pending schema migrations and reports how many ran.
func (a *App) Migrate(ctx context.Context) (int, error) {
	m, ok := a.repo.(migrator)
	if !ok {
		return 0, ErrMigrationsUnsupported
	}
	applied, err := m.Migrate(ctx)
	if err != nil {
		return 0, fmt.Errorf("migrate: %w", err)
	}
	a.logger.Info("schema migrations applied", zap.Int("count", applied))
	return applied, nil
}

// NewPipeline wires the rate limiter, HTTP client, and repository into a
// scrape pipeline.
func (a *App) NewPipeline(opts ...crawler.Option) (*crawler.Pipeline, error) {
	limiter := ratelimit.New(a.cfg.RateLimitConfig())
	client := collyfetcher.New(a.cfg.ClientConfig(), limiter, a.logger.Named("http"))
	pipeline, err := crawler.New(a.cfg.PipelineConfig(), client, a.repo, a.logger.Named("crawler"), opts...)
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}
	return pipeline, nil
}

// NewServer builds the read API over the repository.
func (a *App) NewServer() *api.Server {
	return api.NewServer(a.repo, a.cfg.APIConfig(), a.logger)
}

// Close releases the repository and flushes the logger.
func (a *App) Close() {
	a.logger.Info("shutting down application services")
	a.repo.Close()
	// Sync fails on stderr/stdout for some platforms; nothing useful to do about it.
	_ = a.logger.Sync()
}
