package crawler

import (
	"maps"
	"sync"

	"github.com/JakeFAU/anime-catalog-crawler/internal/store"
)

// RunStats summarizes one pipeline run.
type RunStats struct {
	RunID           string
	CatalogEntries  int
	SeriesSucceeded int
	SeriesFailed    int
	Episodes        int
	Mirrors         map[store.FetchStatus]int
	// EpisodesSkipped counts episodes whose mirror set could not be fetched or stored.
	EpisodesSkipped int
}

// collector accumulates counts from concurrent tasks.
type collector struct {
	mu    sync.Mutex
	stats RunStats
}

func newCollector(runID string) *collector {
	return &collector{stats: RunStats{
		RunID:   runID,
		Mirrors: make(map[store.FetchStatus]int),
	}}
}

func (c *collector) catalog(n int) {
	c.mu.Lock()
	c.stats.CatalogEntries = n
	c.mu.Unlock()
}

func (c *collector) series(ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ok {
		c.stats.SeriesSucceeded++
		return
	}
	c.stats.SeriesFailed++
}

func (c *collector) episodes(n int) {
	c.mu.Lock()
	c.stats.Episodes += n
	c.mu.Unlock()
}

func (c *collector) mirrors(drafts []store.MirrorDraft) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range drafts {
		c.stats.Mirrors[d.Status]++
	}
}

func (c *collector) episodeSkipped() {
	c.mu.Lock()
	c.stats.EpisodesSkipped++
	c.mu.Unlock()
}

func (c *collector) snapshot() RunStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.stats
	out.Mirrors = maps.Clone(c.stats.Mirrors)
	return out
}
