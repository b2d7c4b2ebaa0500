package store

import "time"

// CatalogStatus is the airing state shown on the catalog listing.
type CatalogStatus string

// Catalog statuses as rendered by the listing page.
const (
	StatusOnGoing   CatalogStatus = "on-going"
	StatusCompleted CatalogStatus = "completed"
)

// Valid reports whether s is one of the known catalog statuses.
func (s CatalogStatus) Valid() bool {
	return s == StatusOnGoing || s == StatusCompleted
}

// FetchStatus records the outcome of the last embed resolution for a mirror.
type FetchStatus string

// Mirror fetch statuses persisted in episode_mirror.fetch_status.
const (
	FetchUnknown FetchStatus = "unknown"
	FetchSuccess FetchStatus = "success"
	FetchPartial FetchStatus = "partial"
	FetchFailed  FetchStatus = "failed"
)

// Rank orders statuses from worst to best so callers can keep the better of
// two resolution attempts.
func (s FetchStatus) Rank() int {
	switch s {
	case FetchSuccess:
		return 3
	case FetchPartial:
		return 2
	case FetchFailed:
		return 1
	default:
		return 0
	}
}

// SeriesDetail holds the free-text fields scraped from a series detail page.
// A nil field means the page did not carry the label.
type SeriesDetail struct {
	TitleJapanese *string
	Score         *string
	Producer      *string
	Type          *string
	Status        *string
	TotalEpisodes *string
	Duration      *string
	ReleaseDate   *string
	Studio        *string
	Synopsis      *string
	ImageURL      *string
}

// Series models the series table. Identity is SourceURL.
type Series struct {
	ID            int64
	SourceURL     string
	Title         string
	CatalogStatus CatalogStatus
	Detail        SeriesDetail
	// Genres is only populated by single-series reads.
	Genres        []string
	LastScrapedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Genre models the genre table. Identity is Name.
type Genre struct {
	ID   int64
	Name string
}

// Episode models the episode table. Identity is EpisodeURL.
type Episode struct {
	ID         int64
	SeriesID   int64
	EpisodeURL string
	Title      string
	DateText   *string
	Number     *int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// MirrorKey is the payload identity of a mirror: the (id, i, q) triple
// decoded from the option's data-content attribute.
type MirrorKey struct {
	ID      int64
	Index   int64
	Quality string
}

// MirrorOption models the episode_mirror table. Within one episode both
// Key and (Quality, Provider) are unique.
type MirrorOption struct {
	ID            int64
	EpisodeID     int64
	Quality       string
	Provider      string
	IframeSrc     *string
	RawPayload    string
	Key           MirrorKey
	Nonce         *string
	RawEmbed      *string
	Status        FetchStatus
	ErrorMessage  *string
	LastScrapedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SeriesDraft is what the crawler knows about a series at one stage. A nil
// Detail marks a catalog-only observation that must not touch detail fields.
type SeriesDraft struct {
	SourceURL     string
	Title         string
	CatalogStatus CatalogStatus
	Detail        *SeriesDetail
	ScrapedAt     time.Time
}

// EpisodeDraft is one row of a series episode list.
type EpisodeDraft struct {
	EpisodeURL string
	Title      string
	DateText   *string
	Number     *int
}

// MirrorDraft is the resolved state of one mirror option.
type MirrorDraft struct {
	Quality      string
	Provider     string
	RawPayload   string
	Key          MirrorKey
	IframeSrc    *string
	Nonce        *string
	RawEmbed     *string
	Status       FetchStatus
	ErrorMessage *string
	ScrapedAt    time.Time
}

// SortOrder orders episode listings by episode number.
type SortOrder string

// Supported episode orders.
const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// SeriesFilter narrows ListSeries. Zero values mean "no filter".
type SeriesFilter struct {
	Status CatalogStatus
	Query  string
	Limit  int
	Offset int
}

// EpisodeFilter pages ListEpisodes.
type EpisodeFilter struct {
	Order  SortOrder
	Limit  int
	Offset int
}

// MirrorFilter narrows ListMirrors. Empty strings mean "any".
type MirrorFilter struct {
	Quality  string
	Provider string
	Limit    int
	Offset   int
}
