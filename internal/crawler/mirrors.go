package crawler

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/JakeFAU/anime-catalog-crawler/internal/extract"
	"github.com/JakeFAU/anime-catalog-crawler/internal/metrics"
	"github.com/JakeFAU/anime-catalog-crawler/internal/store"
)

var errNoNonce = errors.New("nonce response carried no data")

// embedOutcome is the result of one nonce plus embed attempt.
type embedOutcome struct {
	status   store.FetchStatus
	nonce    *string
	rawEmbed *string
	iframe   *string
	reason   string
}

func (p *Pipeline) processEpisode(ctx context.Context, ep store.Episode, stats *collector, logger *zap.Logger) error {
	if err := p.episodeGate.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire episode slot: %w", err)
	}
	defer p.episodeGate.Release(1)

	body, err := p.client.Get(ctx, ep.EpisodeURL)
	if err != nil {
		return fmt.Errorf("fetch episode page: %w", err)
	}
	options := extract.ParseMirrorOptions(string(body))
	if len(options) == 0 {
		logger.Debug("episode has no mirror options")
		return nil
	}

	nonce, err := p.fetchNonce(ctx, ep.EpisodeURL)
	if err != nil {
		logger.Warn("nonce request failed", zap.Error(err))
	}

	drafts := make([]store.MirrorDraft, len(options))
	resolvers := pool.New()
	for i, opt := range options {
		resolvers.Go(func() {
			drafts[i] = p.resolveMirror(ctx, ep.EpisodeURL, opt, nonce, logger)
		})
	}
	resolvers.Wait()

	err = p.repo.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		for _, d := range drafts {
			if err := p.upsertMirror(ctx, tx, ep.ID, d, logger); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("persist mirrors: %w", err)
	}
	stats.mirrors(drafts)
	for _, d := range drafts {
		metrics.ObserveMirror(string(d.Status))
	}
	return nil
}

// upsertMirror writes d, replacing any row that holds the same quality and
// provider under a different payload identity.
func (p *Pipeline) upsertMirror(ctx context.Context, tx store.Tx, episodeID int64, d store.MirrorDraft, logger *zap.Logger) error {
	_, err := tx.UpsertMirror(ctx, episodeID, d)
	if !errors.Is(err, store.ErrMirrorConflict) {
		return err
	}
	logger.Info("replacing mirror with changed payload identity",
		zap.String("quality", d.Quality),
		zap.String("provider", d.Provider),
	)
	if err := tx.DeleteMirrorByDisplay(ctx, episodeID, d.Quality, d.Provider); err != nil {
		return err
	}
	_, err = tx.UpsertMirror(ctx, episodeID, d)
	return err
}

// resolveMirror tries the embed with the shared nonce and, unless that
// succeeds, once more with a fresh nonce. The better of the two outcomes is
// kept; on a tie the later attempt wins.
func (p *Pipeline) resolveMirror(ctx context.Context, referer string, opt extract.MirrorItem, nonce string, logger *zap.Logger) store.MirrorDraft {
	best := p.attemptEmbed(ctx, referer, opt, nonce)
	if best.status != store.FetchSuccess {
		fresh, err := p.fetchNonce(ctx, referer)
		if err != nil {
			logger.Debug("fresh nonce request failed", zap.Error(err))
		}
		if retry := p.attemptEmbed(ctx, referer, opt, fresh); retry.status.Rank() >= best.status.Rank() {
			best = retry
		}
	}

	draft := store.MirrorDraft{
		Quality:    opt.Quality,
		Provider:   opt.Provider,
		RawPayload: opt.RawPayload,
		Key: store.MirrorKey{
			ID:      opt.PayloadID,
			Index:   opt.PayloadIndex,
			Quality: opt.PayloadQuality,
		},
		IframeSrc: best.iframe,
		Nonce:     best.nonce,
		RawEmbed:  best.rawEmbed,
		Status:    best.status,
		ScrapedAt: p.clock.Now(),
	}
	if best.status != store.FetchSuccess {
		msg := best.reason
		if best.status == store.FetchFailed {
			msg = "failed to fetch mirror: " + best.reason
		}
		draft.ErrorMessage = &msg
		logger.Debug("mirror unresolved",
			zap.String("quality", opt.Quality),
			zap.String("provider", opt.Provider),
			zap.String("status", string(best.status)),
			zap.String("reason", best.reason),
		)
	}
	return draft
}

func (p *Pipeline) attemptEmbed(ctx context.Context, referer string, opt extract.MirrorItem, nonce string) embedOutcome {
	if nonce == "" {
		return embedOutcome{status: store.FetchFailed, reason: "no nonce available"}
	}
	out := embedOutcome{status: store.FetchFailed, nonce: &nonce}
	body, err := p.postAjax(ctx, map[string]string{
		"id":     strconv.FormatInt(opt.PayloadID, 10),
		"i":      strconv.FormatInt(opt.PayloadIndex, 10),
		"q":      opt.PayloadQuality,
		"nonce":  nonce,
		"action": p.cfg.EmbedAction,
	}, referer)
	if err != nil {
		out.reason = err.Error()
		return out
	}
	data, ok := extract.DecodeAjaxData(body)
	if !ok {
		if len(body) > 0 {
			raw := string(body)
			out.rawEmbed = &raw
		}
		out.reason = "embed response carried no data"
		return out
	}
	out.rawEmbed = &data
	src, ok := extract.ResolveEmbedSrc(data)
	if !ok {
		out.status = store.FetchPartial
		out.reason = "embed response has no iframe source"
		return out
	}
	out.status = store.FetchSuccess
	out.iframe = &src
	out.reason = ""
	return out
}

func (p *Pipeline) fetchNonce(ctx context.Context, referer string) (string, error) {
	body, err := p.postAjax(ctx, map[string]string{"action": p.cfg.NonceAction}, referer)
	if err != nil {
		return "", fmt.Errorf("request nonce: %w", err)
	}
	nonce, ok := extract.DecodeAjaxData(body)
	if !ok {
		return "", errNoNonce
	}
	return nonce, nil
}

// postAjax holds the AJAX gate for the duration of one POST.
func (p *Pipeline) postAjax(ctx context.Context, fields map[string]string, referer string) ([]byte, error) {
	if err := p.ajaxGate.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire ajax slot: %w", err)
	}
	defer p.ajaxGate.Release(1)
	return p.client.PostForm(ctx, p.cfg.ajaxURL(), fields, referer)
}
