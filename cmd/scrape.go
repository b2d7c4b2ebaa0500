package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/anime-catalog-crawler/internal/store"
)

// newScrapeCmd creates the 'scrape' subcommand, which runs one full pass
// over the catalog.
func newScrapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Scrapes the catalog, series, episodes and mirrors into the database",
		Long: `Fetches the catalog listing and processes every series concurrently.
Series, episodes and mirrors are upserted, so repeated runs refresh existing
rows instead of duplicating them. Per-series failures are logged and do not
stop the run; only an unreachable catalog makes the command fail.`,
		RunE: runScrapeCommand,
	}
	cmd.Flags().Int("max-items", 0, "process at most this many catalog entries (0 means all)")
	cmd.Flags().Bool("no-mirrors", false, "skip the nonce and embed exchange for episode mirrors")
	return cmd
}

func runScrapeCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	pipeline, err := appInstance.NewPipeline()
	if err != nil {
		return err
	}

	stats, err := pipeline.Run(cmd.Context())
	logger := appInstance.Logger()
	logger.Info("scrape summary",
		zap.String("run_id", stats.RunID),
		zap.Int("catalog_entries", stats.CatalogEntries),
		zap.Int("series_succeeded", stats.SeriesSucceeded),
		zap.Int("series_failed", stats.SeriesFailed),
		zap.Int("episodes", stats.Episodes),
		zap.Int("episodes_skipped", stats.EpisodesSkipped),
		zap.Int("mirrors_success", stats.Mirrors[store.FetchSuccess]),
		zap.Int("mirrors_partial", stats.Mirrors[store.FetchPartial]),
		zap.Int("mirrors_failed", stats.Mirrors[store.FetchFailed]),
	)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("scrape interrupted")
			return nil
		}
		return fmt.Errorf("run scrape: %w", err)
	}
	return nil
}
