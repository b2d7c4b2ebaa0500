// Package extract turns catalog, series, and episode pages plus AJAX
// payloads into typed records. Every function is pure and tolerant: markup
// that does not match yields empty results rather than errors.
package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Catalog statuses as reported by ParseCatalog.
const (
	StatusOnGoing   = "on-going"
	StatusCompleted = "completed"
)

// CatalogEntry is one series link on the catalog listing.
type CatalogEntry struct {
	Title  string
	URL    string
	Status string
}

// ParseCatalog extracts every `li a.hodebgst` link. A nested <color> marker
// containing "on-going" flags the series as on-going; anything else is
// completed. Entries without an href are skipped.
func ParseCatalog(html string) []CatalogEntry {
	doc, err := newDocument(html)
	if err != nil {
		return nil
	}
	var out []CatalogEntry
	doc.Find("li a.hodebgst").Each(func(_ int, link *goquery.Selection) {
		href := strings.TrimSpace(link.AttrOr("href", ""))
		if href == "" {
			return
		}
		status := StatusCompleted
		marker := link.Find("color")
		if marker.Length() > 0 && strings.Contains(strings.ToLower(marker.Text()), "on-going") {
			status = StatusOnGoing
		}
		title := link.Clone()
		title.Find("color").Remove()
		out = append(out, CatalogEntry{
			Title:  collapseSpace(title.Text()),
			URL:    href,
			Status: status,
		})
	})
	return out
}

func newDocument(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
