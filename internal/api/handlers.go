package api

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/anime-catalog-crawler/internal/store"
)

// listSeries handles GET /anime?status=&q=&limit=&offset=.
func (s *Server) listSeries(w http.ResponseWriter, r *http.Request) {
	q, err := parseSeriesQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	items, total, err := s.repo.ListSeries(r.Context(), store.SeriesFilter{
		Status: store.CatalogStatus(q.Status),
		Query:  q.Query,
		Limit:  q.Limit,
		Offset: q.Offset,
	})
	if err != nil {
		s.storeError(w, r, err, "anime")
		return
	}
	writeJSON(w, http.StatusOK, listResponse[seriesSummaryDTO]{
		Items: mapSlice(items, toSeriesSummary),
		Total: total,
	})
}

// getSeries handles GET /anime/{id}.
func (s *Server) getSeries(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	series, err := s.repo.GetSeries(r.Context(), id)
	if err != nil {
		s.storeError(w, r, err, "anime")
		return
	}
	writeJSON(w, http.StatusOK, toSeriesDTO(series))
}

// listEpisodes handles GET /anime/{id}/episodes?limit=&offset=&order=.
func (s *Server) listEpisodes(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q, err := parseEpisodesQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	items, total, err := s.repo.ListEpisodes(r.Context(), id, store.EpisodeFilter{
		Order:  store.SortOrder(q.Order),
		Limit:  q.Limit,
		Offset: q.Offset,
	})
	if err != nil {
		s.storeError(w, r, err, "anime")
		return
	}
	writeJSON(w, http.StatusOK, listResponse[episodeDTO]{
		Items: mapSlice(items, toEpisodeDTO),
		Total: total,
	})
}

// listMirrors handles GET /anime/episodes/{id}/mirrors?quality=&provider=&limit=&offset=.
func (s *Server) listMirrors(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q, err := parseMirrorsQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	items, total, err := s.repo.ListMirrors(r.Context(), id, store.MirrorFilter{
		Quality:  q.Quality,
		Provider: q.Provider,
		Limit:    q.Limit,
		Offset:   q.Offset,
	})
	if err != nil {
		s.storeError(w, r, err, "episode")
		return
	}
	writeJSON(w, http.StatusOK, listResponse[mirrorDTO]{
		Items: mapSlice(items, toMirrorDTO),
		Total: total,
	})
}

func (s *Server) storeError(w http.ResponseWriter, r *http.Request, err error, entity string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, entity+" not found")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "request timed out")
	default:
		s.logger.Error("store query failed",
			zap.String("request_id", requestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
