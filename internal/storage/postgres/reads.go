package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/anime-catalog-crawler/internal/store"
)

const seriesFilterSQL = `
FROM series
WHERE ($1 = '' OR catalog_status = $1)
	AND ($2 = '' OR title ILIKE '%' || $2 || '%')`

const countSeriesSQL = `SELECT COUNT(*) ` + seriesFilterSQL

const listSeriesSQL = `SELECT ` + seriesColumns + seriesFilterSQL + `
ORDER BY id
LIMIT NULLIF($3, 0) OFFSET $4`

const getSeriesSQL = `SELECT ` + seriesColumns + ` FROM series WHERE id = $1`

const seriesGenresSQL = `
SELECT g.name
FROM genre g
JOIN series_genre sg ON sg.genre_id = g.id
WHERE sg.series_id = $1
ORDER BY g.name`

const seriesExistsSQL = `SELECT EXISTS (SELECT 1 FROM series WHERE id = $1)`

const countEpisodesSQL = `SELECT COUNT(*) FROM episode WHERE series_id = $1`

const listEpisodesAscSQL = `SELECT ` + episodeColumns + ` FROM episode WHERE series_id = $1
ORDER BY episode_number ASC NULLS LAST, id ASC
LIMIT NULLIF($2, 0) OFFSET $3`

const listEpisodesDescSQL = `SELECT ` + episodeColumns + ` FROM episode WHERE series_id = $1
ORDER BY episode_number DESC NULLS FIRST, id ASC
LIMIT NULLIF($2, 0) OFFSET $3`

const getEpisodeSQL = `SELECT ` + episodeColumns + ` FROM episode WHERE id = $1`

const episodeExistsSQL = `SELECT EXISTS (SELECT 1 FROM episode WHERE id = $1)`

const mirrorFilterSQL = `
FROM episode_mirror
WHERE episode_id = $1
	AND ($2 = '' OR quality = $2)
	AND ($3 = '' OR provider_name = $3)`

const countMirrorsSQL = `SELECT COUNT(*) ` + mirrorFilterSQL

const listMirrorsSQL = `SELECT ` + mirrorColumns + mirrorFilterSQL + `
ORDER BY id
LIMIT NULLIF($4, 0) OFFSET $5`

// ListSeries returns one page of series ordered by id.
func (s *Store) ListSeries(ctx context.Context, f store.SeriesFilter) ([]store.Series, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, countSeriesSQL, string(f.Status), f.Query).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count series: %w", err)
	}
	rows, err := s.pool.Query(ctx, listSeriesSQL, string(f.Status), f.Query, f.Limit, f.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list series: %w", err)
	}
	defer rows.Close()

	out := make([]store.Series, 0)
	for rows.Next() {
		series, err := scanSeries(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan series: %w", err)
		}
		out = append(out, series)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate series: %w", err)
	}
	return out, total, nil
}

// GetSeries loads a series and its genre names.
func (s *Store) GetSeries(ctx context.Context, id int64) (store.Series, error) {
	series, err := scanSeries(s.pool.QueryRow(ctx, getSeriesSQL, id))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Series{}, err
		}
		return store.Series{}, fmt.Errorf("get series %d: %w", id, err)
	}
	rows, err := s.pool.Query(ctx, seriesGenresSQL, id)
	if err != nil {
		return store.Series{}, fmt.Errorf("list genres for series %d: %w", id, err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return store.Series{}, fmt.Errorf("scan genres for series %d: %w", id, err)
	}
	series.Genres = names
	return series, nil
}

// ListEpisodes pages a series' episodes by episode number.
func (s *Store) ListEpisodes(ctx context.Context, seriesID int64, f store.EpisodeFilter) ([]store.Episode, int, error) {
	if err := s.requireExists(ctx, seriesExistsSQL, seriesID); err != nil {
		return nil, 0, err
	}
	var total int
	if err := s.pool.QueryRow(ctx, countEpisodesSQL, seriesID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count episodes: %w", err)
	}
	query := listEpisodesAscSQL
	if f.Order == store.SortDesc {
		query = listEpisodesDescSQL
	}
	rows, err := s.pool.Query(ctx, query, seriesID, f.Limit, f.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list episodes: %w", err)
	}
	defer rows.Close()

	out := make([]store.Episode, 0)
	for rows.Next() {
		ep, err := scanEpisode(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan episode: %w", err)
		}
		out = append(out, ep)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate episodes: %w", err)
	}
	return out, total, nil
}

// GetEpisode loads one episode.
func (s *Store) GetEpisode(ctx context.Context, id int64) (store.Episode, error) {
	ep, err := scanEpisode(s.pool.QueryRow(ctx, getEpisodeSQL, id))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Episode{}, err
		}
		return store.Episode{}, fmt.Errorf("get episode %d: %w", id, err)
	}
	return ep, nil
}

// ListMirrors pages an episode's mirrors ordered by id.
func (s *Store) ListMirrors(ctx context.Context, episodeID int64, f store.MirrorFilter) ([]store.MirrorOption, int, error) {
	if err := s.requireExists(ctx, episodeExistsSQL, episodeID); err != nil {
		return nil, 0, err
	}
	var total int
	if err := s.pool.QueryRow(ctx, countMirrorsSQL, episodeID, f.Quality, f.Provider).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count mirrors: %w", err)
	}
	rows, err := s.pool.Query(ctx, listMirrorsSQL, episodeID, f.Quality, f.Provider, f.Limit, f.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list mirrors: %w", err)
	}
	defer rows.Close()

	out := make([]store.MirrorOption, 0)
	for rows.Next() {
		m, err := scanMirror(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan mirror: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate mirrors: %w", err)
	}
	return out, total, nil
}

func (s *Store) requireExists(ctx context.Context, query string, id int64) error {
	var exists bool
	if err := s.pool.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return fmt.Errorf("check existence of %d: %w", id, err)
	}
	if !exists {
		return store.ErrNotFound
	}
	return nil
}
