package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/anime-catalog-crawler/internal/clock/system"
	"github.com/JakeFAU/anime-catalog-crawler/internal/extract"
	"github.com/JakeFAU/anime-catalog-crawler/internal/id/uuid"
	"github.com/JakeFAU/anime-catalog-crawler/internal/metrics"
	"github.com/JakeFAU/anime-catalog-crawler/internal/store"
)

// ErrCatalogFetch is returned by Run when the catalog page cannot be fetched.
var ErrCatalogFetch = errors.New("fetch catalog")

// Pipeline orchestrates a scrape run.
type Pipeline struct {
	cfg    Config
	client Client
	repo   store.Writer
	clock  Clock
	ids    IDGenerator
	logger *zap.Logger

	seriesGate  *semaphore.Weighted
	episodeGate *semaphore.Weighted
	ajaxGate    *semaphore.Weighted
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithClock overrides the clock used for scrape timestamps.
func WithClock(c Clock) Option {
	return func(p *Pipeline) {
		if c != nil {
			p.clock = c
		}
	}
}

// WithIDGenerator overrides the run ID source.
func WithIDGenerator(g IDGenerator) Option {
	return func(p *Pipeline) {
		if g != nil {
			p.ids = g
		}
	}
}

// New validates cfg and wires a Pipeline.
func New(cfg Config, client Client, repo store.Writer, logger *zap.Logger, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	if client == nil {
		return nil, errors.New("client is required")
	}
	if repo == nil {
		return nil, errors.New("repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()

	p := &Pipeline{
		cfg:         cfg,
		client:      client,
		repo:        repo,
		clock:       system.New(),
		ids:         uuid.NewUUIDGenerator(),
		logger:      logger.Named("pipeline"),
		seriesGate:  semaphore.NewWeighted(int64(cfg.SeriesConcurrency)),
		episodeGate: semaphore.NewWeighted(int64(cfg.EpisodeConcurrency)),
		ajaxGate:    semaphore.NewWeighted(int64(cfg.AjaxConcurrency)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run scrapes the catalog once and processes every entry. Only a catalog
// fetch failure or cancellation is returned as an error; per-series and
// per-episode failures are logged and reflected in the stats.
func (p *Pipeline) Run(ctx context.Context) (RunStats, error) {
	runID, err := p.ids.NewID()
	if err != nil {
		return RunStats{}, fmt.Errorf("generate run id: %w", err)
	}
	logger := p.logger.With(zap.String("run_id", runID))
	stats := newCollector(runID)
	started := p.clock.Now()

	catalogURL := p.cfg.catalogURL()
	logger.Info("fetching catalog", zap.String("url", catalogURL))
	body, err := p.client.Get(ctx, catalogURL)
	if err != nil {
		metrics.ObserveRun("failed", p.clock.Now().Sub(started))
		return stats.snapshot(), fmt.Errorf("%w: %w", ErrCatalogFetch, err)
	}

	entries := extract.ParseCatalog(string(body))
	if p.cfg.MaxItems > 0 && len(entries) > p.cfg.MaxItems {
		entries = entries[:p.cfg.MaxItems]
	}
	stats.catalog(len(entries))
	logger.Info("catalog parsed", zap.Int("entries", len(entries)))

	tasks := pool.New()
	for _, entry := range entries {
		tasks.Go(func() {
			seriesLog := logger.With(zap.String("series_url", entry.URL))
			if err := p.processSeries(ctx, entry, stats, seriesLog); err != nil {
				stats.series(false)
				metrics.ObserveSeries("failed")
				seriesLog.Error("series failed", zap.Error(err))
				return
			}
			stats.series(true)
			metrics.ObserveSeries("ok")
		})
	}
	tasks.Wait()

	result := stats.snapshot()
	outcome := "ok"
	if ctx.Err() != nil {
		outcome = "canceled"
	}
	metrics.ObserveRun(outcome, p.clock.Now().Sub(started))
	logger.Info("run finished",
		zap.Int("series_ok", result.SeriesSucceeded),
		zap.Int("series_failed", result.SeriesFailed),
		zap.Int("episodes", result.Episodes),
		zap.Int("episodes_skipped", result.EpisodesSkipped),
	)
	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("scrape interrupted: %w", err)
	}
	return result, nil
}

func (p *Pipeline) processSeries(ctx context.Context, entry extract.CatalogEntry, stats *collector, logger *zap.Logger) error {
	if err := p.seriesGate.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire series slot: %w", err)
	}
	defer p.seriesGate.Release(1)
	metrics.IncActiveSeries()
	defer metrics.DecActiveSeries()

	sourceURL := p.cfg.resolve(entry.URL)
	stub := store.SeriesDraft{
		SourceURL:     sourceURL,
		Title:         entry.Title,
		CatalogStatus: store.CatalogStatus(entry.Status),
		ScrapedAt:     p.clock.Now(),
	}
	if err := p.repo.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.UpsertSeries(ctx, stub)
		return err
	}); err != nil {
		return fmt.Errorf("persist catalog entry: %w", err)
	}

	body, err := p.client.Get(ctx, sourceURL)
	if err != nil {
		return fmt.Errorf("fetch series detail: %w", err)
	}
	page := string(body)
	detail, genres, synopsis := extract.ParseSeriesDetail(page)
	items := extract.ParseEpisodeList(page)

	draft := stub
	if detail.Title != nil && *detail.Title != "" {
		draft.Title = *detail.Title
	}
	draft.Detail = seriesDetail(detail, synopsis)
	draft.ScrapedAt = p.clock.Now()
	episodeDrafts := p.episodeDrafts(items)

	var episodes []store.Episode
	err = p.repo.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		series, err := tx.UpsertSeries(ctx, draft)
		if err != nil {
			return err
		}
		if err := tx.SyncGenres(ctx, series.ID, genres); err != nil {
			return err
		}
		episodes, err = tx.UpsertEpisodes(ctx, series.ID, episodeDrafts)
		return err
	})
	if err != nil {
		return fmt.Errorf("persist series: %w", err)
	}
	stats.episodes(len(episodes))
	metrics.ObserveEpisodes(len(episodes))
	logger.Info("series stored",
		zap.String("title", draft.Title),
		zap.Int("genres", len(genres)),
		zap.Int("episodes", len(episodes)),
	)

	if !p.cfg.FetchMirrors || len(episodes) == 0 {
		return nil
	}
	tasks := pool.New()
	for _, ep := range episodes {
		tasks.Go(func() {
			epLog := logger.With(zap.String("episode_url", ep.EpisodeURL))
			if err := p.processEpisode(ctx, ep, stats, epLog); err != nil {
				stats.episodeSkipped()
				epLog.Warn("skipping episode mirrors", zap.Error(err))
			}
		})
	}
	tasks.Wait()
	return nil
}

// episodeDrafts resolves links and drops repeated episode URLs, keeping the
// first occurrence.
func (p *Pipeline) episodeDrafts(items []extract.EpisodeItem) []store.EpisodeDraft {
	seen := make(map[string]struct{}, len(items))
	out := make([]store.EpisodeDraft, 0, len(items))
	for _, item := range items {
		link := p.cfg.resolve(item.URL)
		if _, dup := seen[link]; dup {
			continue
		}
		seen[link] = struct{}{}
		out = append(out, store.EpisodeDraft{
			EpisodeURL: link,
			Title:      item.Title,
			DateText:   item.DateText,
			Number:     item.Number,
		})
	}
	return out
}

func seriesDetail(d extract.SeriesDetail, synopsis string) *store.SeriesDetail {
	out := &store.SeriesDetail{
		TitleJapanese: d.TitleJapanese,
		Score:         d.Score,
		Producer:      d.Producer,
		Type:          d.Type,
		Status:        d.Status,
		TotalEpisodes: d.TotalEpisodes,
		Duration:      d.Duration,
		ReleaseDate:   d.ReleaseDate,
		Studio:        d.Studio,
		ImageURL:      d.ImageURL,
	}
	if s := strings.TrimSpace(synopsis); s != "" {
		out.Synopsis = &s
	}
	return out
}
