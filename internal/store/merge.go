package store

// ApplySeriesDraft copies the mutable fields of d onto s. Identity and
// creation time are left alone. Detail fields are only written when the
// draft carries a detail observation, and then all of them are written so a
// label that disappeared from the page is cleared.
func ApplySeriesDraft(s *Series, d SeriesDraft) {
	s.Title = d.Title
	s.CatalogStatus = d.CatalogStatus
	if d.Detail != nil {
		s.Detail = cloneDetail(*d.Detail)
	}
	scraped := d.ScrapedAt
	s.LastScrapedAt = &scraped
}

// ApplyEpisodeDraft copies the mutable fields of d onto e and re-parents it.
func ApplyEpisodeDraft(e *Episode, seriesID int64, d EpisodeDraft) {
	e.SeriesID = seriesID
	e.Title = d.Title
	e.DateText = cloneString(d.DateText)
	if d.Number != nil {
		n := *d.Number
		e.Number = &n
	} else {
		e.Number = nil
	}
}

// ApplyMirrorDraft copies the mutable fields of d onto m. The payload key is
// written too since an update can arrive through the display identity.
func ApplyMirrorDraft(m *MirrorOption, d MirrorDraft) {
	m.Quality = d.Quality
	m.Provider = d.Provider
	m.RawPayload = d.RawPayload
	m.Key = d.Key
	m.IframeSrc = cloneString(d.IframeSrc)
	m.Nonce = cloneString(d.Nonce)
	m.RawEmbed = cloneString(d.RawEmbed)
	m.Status = d.Status
	if m.Status == "" {
		m.Status = FetchUnknown
	}
	m.ErrorMessage = cloneString(d.ErrorMessage)
	scraped := d.ScrapedAt
	m.LastScrapedAt = &scraped
}

func cloneDetail(d SeriesDetail) SeriesDetail {
	return SeriesDetail{
		TitleJapanese: cloneString(d.TitleJapanese),
		Score:         cloneString(d.Score),
		Producer:      cloneString(d.Producer),
		Type:          cloneString(d.Type),
		Status:        cloneString(d.Status),
		TotalEpisodes: cloneString(d.TotalEpisodes),
		Duration:      cloneString(d.Duration),
		ReleaseDate:   cloneString(d.ReleaseDate),
		Studio:        cloneString(d.Studio),
		Synopsis:      cloneString(d.Synopsis),
		ImageURL:      cloneString(d.ImageURL),
	}
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
