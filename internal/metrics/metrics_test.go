package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if scraperRequestsTotal == nil || scraperMirrorsTotal == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}

	before := testutil.ToFloat64(scraperMirrorsTotal.WithLabelValues("partial"))
	ObserveMirror("partial")
	if val := testutil.ToFloat64(scraperMirrorsTotal.WithLabelValues("partial")); val != before+1 {
		t.Errorf("Expected scraper_mirrors_total{status=partial} to be %f, got %f", before+1, val)
	}
}

func TestObserveScraperCounters(t *testing.T) {
	Init()

	ObserveFetch("page", "ok")
	ObserveFetch("page", "ok")
	ObserveRetry("ajax")
	ObserveEpisodes(0)
	ObserveEpisodes(3)
	ObserveSeries("failed")

	if val := testutil.ToFloat64(scraperRequestsTotal.WithLabelValues("page", "ok")); val != 2 {
		t.Errorf("Expected 2 page fetches, got %f", val)
	}
	if val := testutil.ToFloat64(scraperRetriesTotal.WithLabelValues("ajax")); val != 1 {
		t.Errorf("Expected 1 ajax retry, got %f", val)
	}
	if val := testutil.ToFloat64(scraperEpisodesTotal); val != 3 {
		t.Errorf("Expected 3 episodes, got %f", val)
	}
	if val := testutil.ToFloat64(scraperSeriesTotal.WithLabelValues("failed")); val != 1 {
		t.Errorf("Expected 1 failed series, got %f", val)
	}

	IncActiveSeries()
	IncActiveSeries()
	DecActiveSeries()
	if val := testutil.ToFloat64(scraperActiveSeries); val != 1 {
		t.Errorf("Expected 1 active series, got %f", val)
	}
	DecActiveSeries()
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
