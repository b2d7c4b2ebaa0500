// Package cmd defines and implements the CLI commands for the animedb executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/anime-catalog-crawler/internal/api"
	"github.com/JakeFAU/anime-catalog-crawler/internal/app"
	"github.com/JakeFAU/anime-catalog-crawler/internal/config"
	"github.com/JakeFAU/anime-catalog-crawler/internal/crawler"
	"github.com/JakeFAU/anime-catalog-crawler/internal/logging"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is what subcommands use. It lets tests inject a fake container.
type App interface {
	Close()
	Logger() *zap.Logger
	Config() config.Config
	Migrate(ctx context.Context) (int, error)
	NewPipeline(opts ...crawler.Option) (*crawler.Pipeline, error)
	NewServer() *api.Server
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	a, err := app.NewApp(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "animedb",
		Short: "Scrapes an anime catalog into a database and serves it over HTTP.",
		Long: `animedb walks the site's catalog listing, each series page and each
episode page, resolves streaming mirrors through the site's AJAX endpoint and
upserts everything into Postgres. The serve command exposes the stored catalog
as a read-only JSON API.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Runs after flag parsing and before the subcommand's RunE.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := applyFlagOverrides(cmd, &cfg); err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, JSON or TOML); ANIMEDB_* env vars override it")

	cmd.AddCommand(newScrapeCmd(), newServeCmd(), newMigrateCmd())
	return cmd
}

// applyFlagOverrides copies subcommand flags the user set onto cfg.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if f := flags.Lookup("max-items"); f != nil && f.Changed {
		n, err := flags.GetInt("max-items")
		if err != nil {
			return err
		}
		cfg.Scraper.MaxItems = n
	}
	if f := flags.Lookup("no-mirrors"); f != nil && f.Changed {
		skip, err := flags.GetBool("no-mirrors")
		if err != nil {
			return err
		}
		cfg.Scraper.FetchMirrors = !skip
	}
	if f := flags.Lookup("port"); f != nil && f.Changed {
		port, err := flags.GetInt("port")
		if err != nil {
			return err
		}
		cfg.Server.Port = port
	}
	return cfg.Validate()
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute runs the CLI until it finishes or the process receives SIGINT or
// SIGTERM, and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "animedb: %v\n", err)
		return 1
	}
	return 0
}
