// Package memory provides an in-process catalog repository for development
// runs and tests. It enforces the same identities as the Postgres schema.
package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/anime-catalog-crawler/internal/clock/system"
	"github.com/JakeFAU/anime-catalog-crawler/internal/store"
)

// Clock supplies row timestamps.
type Clock interface {
	Now() time.Time
}

// Store implements store.Repository. Transactions are serialized and run
// against a private copy of the state which replaces the shared state on
// commit.
type Store struct {
	txMu  sync.Mutex
	mu    sync.RWMutex
	state *state
	clock Clock
}

type state struct {
	lastSeriesID  int64
	lastGenreID   int64
	lastEpisodeID int64
	lastMirrorID  int64

	series       map[int64]store.Series
	seriesByURL  map[string]int64
	genres       map[int64]store.Genre
	genreByName  map[string]int64
	seriesGenres map[int64]map[int64]struct{}
	episodes     map[int64]store.Episode
	episodeByURL map[string]int64
	mirrors      map[int64]store.MirrorOption
}

// New constructs an empty Store. A nil clock falls back to the system clock.
func New(clock Clock) *Store {
	if clock == nil {
		clock = system.New()
	}
	return &Store{
		state: newState(),
		clock: clock,
	}
}

func newState() *state {
	return &state{
		series:       make(map[int64]store.Series),
		seriesByURL:  make(map[string]int64),
		genres:       make(map[int64]store.Genre),
		genreByName:  make(map[string]int64),
		seriesGenres: make(map[int64]map[int64]struct{}),
		episodes:     make(map[int64]store.Episode),
		episodeByURL: make(map[string]int64),
		mirrors:      make(map[int64]store.MirrorOption),
	}
}

func (s *state) clone() *state {
	cp := *s
	cp.series = maps.Clone(s.series)
	cp.seriesByURL = maps.Clone(s.seriesByURL)
	cp.genres = maps.Clone(s.genres)
	cp.genreByName = maps.Clone(s.genreByName)
	cp.seriesGenres = make(map[int64]map[int64]struct{}, len(s.seriesGenres))
	for id, set := range s.seriesGenres {
		cp.seriesGenres[id] = maps.Clone(set)
	}
	cp.episodes = maps.Clone(s.episodes)
	cp.episodeByURL = maps.Clone(s.episodeByURL)
	cp.mirrors = maps.Clone(s.mirrors)
	return &cp
}

// InTx runs fn against a snapshot and publishes it when fn succeeds.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	working := s.state.clone()
	s.mu.RUnlock()

	if err := fn(ctx, &tx{state: working, now: s.clock.Now}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = working
	s.mu.Unlock()
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error {
	return nil
}

// Close is a no-op.
func (s *Store) Close() {}

type tx struct {
	state *state
	now   func() time.Time
}

func (t *tx) UpsertSeries(_ context.Context, draft store.SeriesDraft) (store.Series, error) {
	now := t.now()
	st := t.state
	if id, ok := st.seriesByURL[draft.SourceURL]; ok {
		row := st.series[id]
		store.ApplySeriesDraft(&row, draft)
		row.UpdatedAt = now
		st.series[id] = row
		return row, nil
	}
	st.lastSeriesID++
	row := store.Series{
		ID:        st.lastSeriesID,
		SourceURL: draft.SourceURL,
		CreatedAt: now,
		UpdatedAt: now,
	}
	store.ApplySeriesDraft(&row, draft)
	st.series[row.ID] = row
	st.seriesByURL[row.SourceURL] = row.ID
	return row, nil
}

func (t *tx) SyncGenres(_ context.Context, seriesID int64, names []string) error {
	st := t.state
	if _, ok := st.series[seriesID]; !ok {
		return store.ErrNotFound
	}
	set := make(map[int64]struct{}, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		id, ok := st.genreByName[name]
		if !ok {
			st.lastGenreID++
			id = st.lastGenreID
			st.genres[id] = store.Genre{ID: id, Name: name}
			st.genreByName[name] = id
		}
		set[id] = struct{}{}
	}
	st.seriesGenres[seriesID] = set
	return nil
}

func (t *tx) UpsertEpisodes(_ context.Context, seriesID int64, drafts []store.EpisodeDraft) ([]store.Episode, error) {
	st := t.state
	if _, ok := st.series[seriesID]; !ok {
		return nil, store.ErrNotFound
	}
	now := t.now()
	out := make([]store.Episode, 0, len(drafts))
	for _, draft := range drafts {
		id, ok := st.episodeByURL[draft.EpisodeURL]
		var row store.Episode
		if ok {
			row = st.episodes[id]
		} else {
			st.lastEpisodeID++
			row = store.Episode{ID: st.lastEpisodeID, EpisodeURL: draft.EpisodeURL, CreatedAt: now}
			st.episodeByURL[draft.EpisodeURL] = row.ID
		}
		store.ApplyEpisodeDraft(&row, seriesID, draft)
		row.UpdatedAt = now
		st.episodes[row.ID] = row
		out = append(out, row)
	}
	return out, nil
}

func (t *tx) UpsertMirror(_ context.Context, episodeID int64, draft store.MirrorDraft) (store.MirrorOption, error) {
	st := t.state
	if _, ok := st.episodes[episodeID]; !ok {
		return store.MirrorOption{}, store.ErrNotFound
	}
	var (
		own     *store.MirrorOption
		display *store.MirrorOption
	)
	for _, m := range st.mirrors {
		if m.EpisodeID != episodeID {
			continue
		}
		if m.Key == draft.Key {
			own = &m
		}
		if m.Quality == draft.Quality && m.Provider == draft.Provider {
			display = &m
		}
	}
	if display != nil && (own == nil || display.ID != own.ID) {
		return store.MirrorOption{}, store.ErrMirrorConflict
	}

	now := t.now()
	var row store.MirrorOption
	if own != nil {
		row = *own
	} else {
		st.lastMirrorID++
		row = store.MirrorOption{ID: st.lastMirrorID, EpisodeID: episodeID, CreatedAt: now}
	}
	store.ApplyMirrorDraft(&row, draft)
	row.UpdatedAt = now
	st.mirrors[row.ID] = row
	return row, nil
}

func (t *tx) DeleteMirrorByDisplay(_ context.Context, episodeID int64, quality, provider string) error {
	for id, m := range t.state.mirrors {
		if m.EpisodeID == episodeID && m.Quality == quality && m.Provider == provider {
			delete(t.state.mirrors, id)
		}
	}
	return nil
}

func (t *tx) DeleteSeries(_ context.Context, seriesID int64) error {
	st := t.state
	row, ok := st.series[seriesID]
	if !ok {
		return store.ErrNotFound
	}
	for id, ep := range st.episodes {
		if ep.SeriesID != seriesID {
			continue
		}
		for mid, m := range st.mirrors {
			if m.EpisodeID == id {
				delete(st.mirrors, mid)
			}
		}
		delete(st.episodeByURL, ep.EpisodeURL)
		delete(st.episodes, id)
	}
	delete(st.seriesGenres, seriesID)
	delete(st.seriesByURL, row.SourceURL)
	delete(st.series, seriesID)
	return nil
}

// ListSeries filters by status and case-insensitive title substring, ordered by id.
func (s *Store) ListSeries(_ context.Context, filter store.SeriesFilter) ([]store.Series, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := strings.ToLower(strings.TrimSpace(filter.Query))
	matched := make([]store.Series, 0)
	for _, row := range s.state.series {
		if filter.Status != "" && row.CatalogStatus != filter.Status {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(row.Title), query) {
			continue
		}
		matched = append(matched, row)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	return page(matched, filter.Limit, filter.Offset), len(matched), nil
}

// GetSeries returns the series with its genre names sorted alphabetically.
func (s *Store) GetSeries(_ context.Context, id int64) (store.Series, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.state.series[id]
	if !ok {
		return store.Series{}, store.ErrNotFound
	}
	names := make([]string, 0, len(s.state.seriesGenres[id]))
	for gid := range s.state.seriesGenres[id] {
		names = append(names, s.state.genres[gid].Name)
	}
	slices.Sort(names)
	row.Genres = names
	return row, nil
}

// ListEpisodes orders by episode number; unnumbered episodes sort last when
// ascending and first when descending.
func (s *Store) ListEpisodes(_ context.Context, seriesID int64, filter store.EpisodeFilter) ([]store.Episode, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.state.series[seriesID]; !ok {
		return nil, 0, store.ErrNotFound
	}
	matched := make([]store.Episode, 0)
	for _, ep := range s.state.episodes {
		if ep.SeriesID == seriesID {
			matched = append(matched, ep)
		}
	}
	desc := filter.Order == store.SortDesc
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		switch {
		case a.Number == nil && b.Number == nil:
			return a.ID < b.ID
		case a.Number == nil:
			return desc
		case b.Number == nil:
			return !desc
		case *a.Number == *b.Number:
			return a.ID < b.ID
		case desc:
			return *a.Number > *b.Number
		default:
			return *a.Number < *b.Number
		}
	})
	return page(matched, filter.Limit, filter.Offset), len(matched), nil
}

// GetEpisode returns a single episode.
func (s *Store) GetEpisode(_ context.Context, id int64) (store.Episode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ep, ok := s.state.episodes[id]
	if !ok {
		return store.Episode{}, store.ErrNotFound
	}
	return ep, nil
}

// ListMirrors filters an episode's mirrors by exact quality and provider.
func (s *Store) ListMirrors(_ context.Context, episodeID int64, filter store.MirrorFilter) ([]store.MirrorOption, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.state.episodes[episodeID]; !ok {
		return nil, 0, store.ErrNotFound
	}
	matched := make([]store.MirrorOption, 0)
	for _, m := range s.state.mirrors {
		if m.EpisodeID != episodeID {
			continue
		}
		if filter.Quality != "" && m.Quality != filter.Quality {
			continue
		}
		if filter.Provider != "" && m.Provider != filter.Provider {
			continue
		}
		matched = append(matched, m)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	return page(matched, filter.Limit, filter.Offset), len(matched), nil
}

func page[T any](rows []T, limit, offset int) []T {
	if offset >= len(rows) {
		return []T{}
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}
