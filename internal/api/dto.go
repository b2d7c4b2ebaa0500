package api

import (
	"time"

	"github.com/JakeFAU/anime-catalog-crawler/internal/store"
)

type listResponse[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

type seriesSummaryDTO struct {
	ID            int64      `json:"id"`
	SourceURL     string     `json:"source_url"`
	Title         string     `json:"title"`
	CatalogStatus string     `json:"catalog_status"`
	Type          *string    `json:"type"`
	Score         *string    `json:"score"`
	ImageURL      *string    `json:"image_url"`
	LastScrapedAt *time.Time `json:"last_scraped_at"`
}

type seriesDTO struct {
	seriesSummaryDTO
	TitleJapanese *string   `json:"title_japanese"`
	Producer      *string   `json:"producer"`
	Status        *string   `json:"status"`
	TotalEpisodes *string   `json:"total_episodes"`
	Duration      *string   `json:"duration"`
	ReleaseDate   *string   `json:"release_date"`
	Studio        *string   `json:"studio"`
	Synopsis      *string   `json:"synopsis"`
	Genres        []string  `json:"genres"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type episodeDTO struct {
	ID            int64     `json:"id"`
	SeriesID      int64     `json:"series_id"`
	EpisodeURL    string    `json:"episode_url"`
	Title         string    `json:"title"`
	DateText      *string   `json:"date_text"`
	EpisodeNumber *int      `json:"episode_number"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type mirrorDTO struct {
	ID             int64      `json:"id"`
	EpisodeID      int64      `json:"episode_id"`
	Quality        string     `json:"quality"`
	Provider       string     `json:"provider"`
	IframeSrc      *string    `json:"iframe_src"`
	PayloadID      int64      `json:"payload_id"`
	PayloadIndex   int64      `json:"payload_index"`
	PayloadQuality string     `json:"payload_quality"`
	Nonce          *string    `json:"nonce"`
	FetchStatus    string     `json:"fetch_status"`
	ErrorMessage   *string    `json:"error_message"`
	LastScrapedAt  *time.Time `json:"last_scraped_at"`
}

func toSeriesSummary(s store.Series) seriesSummaryDTO {
	return seriesSummaryDTO{
		ID:            s.ID,
		SourceURL:     s.SourceURL,
		Title:         s.Title,
		CatalogStatus: string(s.CatalogStatus),
		Type:          s.Detail.Type,
		Score:         s.Detail.Score,
		ImageURL:      s.Detail.ImageURL,
		LastScrapedAt: s.LastScrapedAt,
	}
}

func toSeriesDTO(s store.Series) seriesDTO {
	genres := s.Genres
	if genres == nil {
		genres = []string{}
	}
	return seriesDTO{
		seriesSummaryDTO: toSeriesSummary(s),
		TitleJapanese:    s.Detail.TitleJapanese,
		Producer:         s.Detail.Producer,
		Status:           s.Detail.Status,
		TotalEpisodes:    s.Detail.TotalEpisodes,
		Duration:         s.Detail.Duration,
		ReleaseDate:      s.Detail.ReleaseDate,
		Studio:           s.Detail.Studio,
		Synopsis:         s.Detail.Synopsis,
		Genres:           genres,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
}

func toEpisodeDTO(e store.Episode) episodeDTO {
	return episodeDTO{
		ID:            e.ID,
		SeriesID:      e.SeriesID,
		EpisodeURL:    e.EpisodeURL,
		Title:         e.Title,
		DateText:      e.DateText,
		EpisodeNumber: e.Number,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}

func toMirrorDTO(m store.MirrorOption) mirrorDTO {
	return mirrorDTO{
		ID:             m.ID,
		EpisodeID:      m.EpisodeID,
		Quality:        m.Quality,
		Provider:       m.Provider,
		IframeSrc:      m.IframeSrc,
		PayloadID:      m.Key.ID,
		PayloadIndex:   m.Key.Index,
		PayloadQuality: m.Key.Quality,
		Nonce:          m.Nonce,
		FetchStatus:    string(m.Status),
		ErrorMessage:   m.ErrorMessage,
		LastScrapedAt:  m.LastScrapedAt,
	}
}

func mapSlice[S, D any](in []S, fn func(S) D) []D {
	out := make([]D, 0, len(in))
	for _, v := range in {
		out = append(out, fn(v))
	}
	return out
}
