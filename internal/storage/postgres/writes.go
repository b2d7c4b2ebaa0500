package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/anime-catalog-crawler/internal/store"
)

const seriesColumns = `id, source_url, title, catalog_status,
	title_japanese, score, producer, type, status_detail, total_episodes,
	duration, release_date, studio, synopsis, image_url,
	last_scraped_at, created_at, updated_at`

const episodeColumns = `id, series_id, episode_url, title, date_text, episode_number, created_at, updated_at`

const mirrorColumns = `id, episode_id, quality, provider_name, iframe_src, raw_payload,
	payload_id, payload_index, payload_quality, nonce, raw_embed,
	fetch_status, error_message, last_scraped_at, created_at, updated_at`

const upsertSeriesStubSQL = `
INSERT INTO series (source_url, title, catalog_status, last_scraped_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (source_url) DO UPDATE SET
	title = EXCLUDED.title,
	catalog_status = EXCLUDED.catalog_status,
	last_scraped_at = EXCLUDED.last_scraped_at,
	updated_at = NOW()
RETURNING ` + seriesColumns

const upsertSeriesDetailSQL = `
INSERT INTO series (
	source_url, title, catalog_status,
	title_japanese, score, producer, type, status_detail, total_episodes,
	duration, release_date, studio, synopsis, image_url, last_scraped_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
ON CONFLICT (source_url) DO UPDATE SET
	title = EXCLUDED.title,
	catalog_status = EXCLUDED.catalog_status,
	title_japanese = EXCLUDED.title_japanese,
	score = EXCLUDED.score,
	producer = EXCLUDED.producer,
	type = EXCLUDED.type,
	status_detail = EXCLUDED.status_detail,
	total_episodes = EXCLUDED.total_episodes,
	duration = EXCLUDED.duration,
	release_date = EXCLUDED.release_date,
	studio = EXCLUDED.studio,
	synopsis = EXCLUDED.synopsis,
	image_url = EXCLUDED.image_url,
	last_scraped_at = EXCLUDED.last_scraped_at,
	updated_at = NOW()
RETURNING ` + seriesColumns

// insertGenresSQL expects sorted, distinct names so concurrent series
// transactions take index locks on new genres in the same order. Existing
// genres are left unlocked.
const insertGenresSQL = `
INSERT INTO genre (name)
SELECT UNNEST($1::TEXT[])
ON CONFLICT (name) DO NOTHING`

const genreIDsSQL = `SELECT id FROM genre WHERE name = ANY($1) ORDER BY name`

const pruneSeriesGenresSQL = `DELETE FROM series_genre WHERE series_id = $1 AND NOT (genre_id = ANY($2))`

const linkSeriesGenresSQL = `
INSERT INTO series_genre (series_id, genre_id)
SELECT $1, UNNEST($2::BIGINT[])
ON CONFLICT DO NOTHING`

const upsertEpisodeSQL = `
INSERT INTO episode (series_id, episode_url, title, date_text, episode_number)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (episode_url) DO UPDATE SET
	series_id = EXCLUDED.series_id,
	title = EXCLUDED.title,
	date_text = EXCLUDED.date_text,
	episode_number = EXCLUDED.episode_number,
	updated_at = NOW()
RETURNING ` + episodeColumns

const mirrorIdentitiesSQL = `
SELECT id, payload_id, payload_index, payload_quality, quality, provider_name
FROM episode_mirror
WHERE episode_id = $1
	AND ((payload_id = $2 AND payload_index = $3 AND payload_quality = $4)
		OR (quality = $5 AND provider_name = $6))
FOR UPDATE`

const insertMirrorSQL = `
INSERT INTO episode_mirror (
	episode_id, quality, provider_name, iframe_src, raw_payload,
	payload_id, payload_index, payload_quality, nonce, raw_embed,
	fetch_status, error_message, last_scraped_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING ` + mirrorColumns

const updateMirrorSQL = `
UPDATE episode_mirror SET
	quality = $2,
	provider_name = $3,
	iframe_src = $4,
	raw_payload = $5,
	payload_id = $6,
	payload_index = $7,
	payload_quality = $8,
	nonce = $9,
	raw_embed = $10,
	fetch_status = $11,
	error_message = $12,
	last_scraped_at = $13,
	updated_at = NOW()
WHERE id = $1
RETURNING ` + mirrorColumns

const deleteMirrorByDisplaySQL = `DELETE FROM episode_mirror WHERE episode_id = $1 AND quality = $2 AND provider_name = $3`

const deleteSeriesSQL = `DELETE FROM series WHERE id = $1`

func (t *txn) UpsertSeries(ctx context.Context, draft store.SeriesDraft) (store.Series, error) {
	var row pgx.Row
	if draft.Detail == nil {
		row = t.q.QueryRow(ctx, upsertSeriesStubSQL,
			draft.SourceURL, draft.Title, string(draft.CatalogStatus), draft.ScrapedAt)
	} else {
		d := draft.Detail
		row = t.q.QueryRow(ctx, upsertSeriesDetailSQL,
			draft.SourceURL, draft.Title, string(draft.CatalogStatus),
			d.TitleJapanese, d.Score, d.Producer, d.Type, d.Status, d.TotalEpisodes,
			d.Duration, d.ReleaseDate, d.Studio, d.Synopsis, d.ImageURL, draft.ScrapedAt)
	}
	series, err := scanSeries(row)
	if err != nil {
		return store.Series{}, fmt.Errorf("upsert series %s: %w", draft.SourceURL, err)
	}
	return series, nil
}

func (t *txn) SyncGenres(ctx context.Context, seriesID int64, names []string) error {
	names = normalizeGenres(names)
	ids := make([]int64, 0, len(names))
	if len(names) > 0 {
		if _, err := t.q.Exec(ctx, insertGenresSQL, names); err != nil {
			return fmt.Errorf("insert genres: %w", err)
		}
		rows, err := t.q.Query(ctx, genreIDsSQL, names)
		if err != nil {
			return fmt.Errorf("load genre ids: %w", err)
		}
		ids, err = pgx.CollectRows(rows, pgx.RowTo[int64])
		if err != nil {
			return fmt.Errorf("scan genre ids: %w", err)
		}
	}
	if _, err := t.q.Exec(ctx, pruneSeriesGenresSQL, seriesID, ids); err != nil {
		return fmt.Errorf("prune series genres: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}
	if _, err := t.q.Exec(ctx, linkSeriesGenresSQL, seriesID, ids); err != nil {
		return fmt.Errorf("link series genres: %w", err)
	}
	return nil
}

// normalizeGenres trims, drops blanks and duplicates, and sorts.
func normalizeGenres(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func (t *txn) UpsertEpisodes(ctx context.Context, seriesID int64, drafts []store.EpisodeDraft) ([]store.Episode, error) {
	out := make([]store.Episode, 0, len(drafts))
	for _, d := range drafts {
		ep, err := scanEpisode(t.q.QueryRow(ctx, upsertEpisodeSQL,
			seriesID, d.EpisodeURL, d.Title, d.DateText, d.Number))
		if err != nil {
			return nil, fmt.Errorf("upsert episode %s: %w", d.EpisodeURL, err)
		}
		out = append(out, ep)
	}
	return out, nil
}

func (t *txn) UpsertMirror(ctx context.Context, episodeID int64, d store.MirrorDraft) (store.MirrorOption, error) {
	ownID, displayID, err := t.mirrorIdentities(ctx, episodeID, d)
	if err != nil {
		return store.MirrorOption{}, err
	}
	if displayID != 0 && displayID != ownID {
		return store.MirrorOption{}, fmt.Errorf("mirror %s/%s on episode %d: %w",
			d.Quality, d.Provider, episodeID, store.ErrMirrorConflict)
	}
	status := d.Status
	if status == "" {
		status = store.FetchUnknown
	}
	args := []any{
		d.Quality, d.Provider, d.IframeSrc, d.RawPayload,
		d.Key.ID, d.Key.Index, d.Key.Quality, d.Nonce, d.RawEmbed,
		string(status), d.ErrorMessage, d.ScrapedAt,
	}
	var row pgx.Row
	if ownID != 0 {
		row = t.q.QueryRow(ctx, updateMirrorSQL, append([]any{ownID}, args...)...)
	} else {
		row = t.q.QueryRow(ctx, insertMirrorSQL, append([]any{episodeID}, args...)...)
	}
	m, err := scanMirror(row)
	if err != nil {
		return store.MirrorOption{}, fmt.Errorf("write mirror %s/%s: %w", d.Quality, d.Provider, err)
	}
	return m, nil
}

// mirrorIdentities returns the ids of the rows holding d's payload identity
// and display identity on the episode; zero means no such row.
func (t *txn) mirrorIdentities(ctx context.Context, episodeID int64, d store.MirrorDraft) (int64, int64, error) {
	rows, err := t.q.Query(ctx, mirrorIdentitiesSQL,
		episodeID, d.Key.ID, d.Key.Index, d.Key.Quality, d.Quality, d.Provider)
	if err != nil {
		return 0, 0, fmt.Errorf("lookup mirror identities: %w", err)
	}
	defer rows.Close()

	var ownID, displayID int64
	for rows.Next() {
		var (
			id                int64
			key               store.MirrorKey
			quality, provider string
		)
		if err := rows.Scan(&id, &key.ID, &key.Index, &key.Quality, &quality, &provider); err != nil {
			return 0, 0, fmt.Errorf("scan mirror identity: %w", err)
		}
		if key == d.Key {
			ownID = id
		}
		if quality == d.Quality && provider == d.Provider {
			displayID = id
		}
	}
	if err := rows.Err(); err != nil {
		return 0, 0, fmt.Errorf("iterate mirror identities: %w", err)
	}
	return ownID, displayID, nil
}

func (t *txn) DeleteMirrorByDisplay(ctx context.Context, episodeID int64, quality, provider string) error {
	if _, err := t.q.Exec(ctx, deleteMirrorByDisplaySQL, episodeID, quality, provider); err != nil {
		return fmt.Errorf("delete mirror %s/%s: %w", quality, provider, err)
	}
	return nil
}

func (t *txn) DeleteSeries(ctx context.Context, seriesID int64) error {
	tag, err := t.q.Exec(ctx, deleteSeriesSQL, seriesID)
	if err != nil {
		return fmt.Errorf("delete series %d: %w", seriesID, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanSeries(row pgx.Row) (store.Series, error) {
	var (
		s      store.Series
		status string
	)
	err := row.Scan(
		&s.ID, &s.SourceURL, &s.Title, &status,
		&s.Detail.TitleJapanese, &s.Detail.Score, &s.Detail.Producer, &s.Detail.Type,
		&s.Detail.Status, &s.Detail.TotalEpisodes, &s.Detail.Duration, &s.Detail.ReleaseDate,
		&s.Detail.Studio, &s.Detail.Synopsis, &s.Detail.ImageURL,
		&s.LastScrapedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Series{}, store.ErrNotFound
		}
		return store.Series{}, err
	}
	s.CatalogStatus = store.CatalogStatus(status)
	return s, nil
}

func scanEpisode(row pgx.Row) (store.Episode, error) {
	var e store.Episode
	err := row.Scan(&e.ID, &e.SeriesID, &e.EpisodeURL, &e.Title, &e.DateText, &e.Number, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Episode{}, store.ErrNotFound
		}
		return store.Episode{}, err
	}
	return e, nil
}

func scanMirror(row pgx.Row) (store.MirrorOption, error) {
	var (
		m      store.MirrorOption
		status string
	)
	err := row.Scan(
		&m.ID, &m.EpisodeID, &m.Quality, &m.Provider, &m.IframeSrc, &m.RawPayload,
		&m.Key.ID, &m.Key.Index, &m.Key.Quality, &m.Nonce, &m.RawEmbed,
		&status, &m.ErrorMessage, &m.LastScrapedAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return store.MirrorOption{}, err
	}
	m.Status = store.FetchStatus(status)
	return m, nil
}
