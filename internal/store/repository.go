package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound signals that the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrMirrorConflict signals that a mirror's display identity (quality,
	// provider) is already held by a row with a different payload identity.
	ErrMirrorConflict = errors.New("mirror display identity held by another payload")
)

// Tx is one unit of work. Nothing written through a Tx is visible to readers
// until the surrounding InTx call commits.
type Tx interface {
	// UpsertSeries inserts or updates a series keyed by SourceURL.
	UpsertSeries(ctx context.Context, draft SeriesDraft) (Series, error)
	// SyncGenres makes the series' genre set exactly names, creating genres as needed.
	SyncGenres(ctx context.Context, seriesID int64, names []string) error
	// UpsertEpisodes inserts or updates episodes keyed by EpisodeURL and
	// returns them in input order.
	UpsertEpisodes(ctx context.Context, seriesID int64, drafts []EpisodeDraft) ([]Episode, error)
	// UpsertMirror inserts or updates a mirror keyed by its payload identity.
	// It returns ErrMirrorConflict without writing when the display identity
	// belongs to another row.
	UpsertMirror(ctx context.Context, episodeID int64, draft MirrorDraft) (MirrorOption, error)
	// DeleteMirrorByDisplay removes the mirror holding (quality, provider), if any.
	DeleteMirrorByDisplay(ctx context.Context, episodeID int64, quality, provider string) error
	// DeleteSeries removes a series along with its episodes and mirrors.
	DeleteSeries(ctx context.Context, seriesID int64) error
}

// Writer runs units of work.
type Writer interface {
	// InTx commits when fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Reader serves the query API.
type Reader interface {
	// ListSeries returns one page of series and the total matching count.
	ListSeries(ctx context.Context, filter SeriesFilter) ([]Series, int, error)
	// GetSeries loads one series with its genres or returns ErrNotFound.
	GetSeries(ctx context.Context, id int64) (Series, error)
	// ListEpisodes pages a series' episodes; ErrNotFound when the series is missing.
	ListEpisodes(ctx context.Context, seriesID int64, filter EpisodeFilter) ([]Episode, int, error)
	// GetEpisode loads one episode or returns ErrNotFound.
	GetEpisode(ctx context.Context, id int64) (Episode, error)
	// ListMirrors pages an episode's mirrors; ErrNotFound when the episode is missing.
	ListMirrors(ctx context.Context, episodeID int64, filter MirrorFilter) ([]MirrorOption, int, error)
}

// Repository is a full storage backend.
type Repository interface {
	Writer
	Reader
	Ping(ctx context.Context) error
	Close()
}
