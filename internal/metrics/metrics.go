// Package metrics exposes Prometheus collectors for the scraper and read API.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scraperRequestsTotal          *prometheus.CounterVec
	scraperRetriesTotal           *prometheus.CounterVec
	scraperSeriesTotal            *prometheus.CounterVec
	scraperEpisodesTotal          prometheus.Counter
	scraperMirrorsTotal           *prometheus.CounterVec
	scraperActiveSeries           prometheus.Gauge
	scraperRunDurationSeconds     *prometheus.HistogramVec
	scraperRateLimitDelaysSeconds *prometheus.HistogramVec
	httpRequestsTotal             *prometheus.CounterVec
	httpRequestDurationSeconds    *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scraperRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_requests_total",
				Help: "Outbound request attempts, labeled by kind (page, ajax) and outcome.",
			},
			[]string{"kind", "outcome"},
		)

		scraperRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_retries_total",
				Help: "Outbound requests retried after a failed attempt, labeled by kind.",
			},
			[]string{"kind"},
		)

		scraperSeriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_series_total",
				Help: "Series tasks finished, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		scraperEpisodesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "scraper_episodes_total",
				Help: "Episodes upserted.",
			},
		)

		scraperMirrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_mirrors_total",
				Help: "Mirror options persisted, labeled by fetch status.",
			},
			[]string{"status"},
		)

		scraperActiveSeries = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scraper_active_series",
				Help: "Number of series tasks currently holding the series gate.",
			},
		)

		scraperRunDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scraper_run_duration_seconds",
				Help:    "Histogram of full scrape run durations, labeled by outcome.",
				Buckets: []float64{10, 30, 60, 300, 900, 1800, 3600, 7200},
			},
			[]string{"outcome"},
		)

		scraperRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scraper_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch counts one outbound request attempt.
func ObserveFetch(kind, outcome string) {
	scraperRequestsTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveRetry counts a retried outbound request.
func ObserveRetry(kind string) {
	scraperRetriesTotal.WithLabelValues(kind).Inc()
}

// ObserveSeries counts a finished series task.
func ObserveSeries(outcome string) {
	scraperSeriesTotal.WithLabelValues(outcome).Inc()
}

// ObserveEpisodes adds n upserted episodes.
func ObserveEpisodes(n int) {
	if n > 0 {
		scraperEpisodesTotal.Add(float64(n))
	}
}

// ObserveMirror counts a persisted mirror option.
func ObserveMirror(status string) {
	scraperMirrorsTotal.WithLabelValues(status).Inc()
}

// IncActiveSeries increments the active series gauge.
func IncActiveSeries() {
	scraperActiveSeries.Inc()
}

// DecActiveSeries decrements the active series gauge.
func DecActiveSeries() {
	scraperActiveSeries.Dec()
}

// ObserveRun records a full scrape run.
func ObserveRun(outcome string, duration time.Duration) {
	scraperRunDurationSeconds.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	scraperRateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
