// Package api hosts the read-only HTTP server over the scraped catalog.
// Routes:
//   - GET /anime lists series, filtered by status and title substring.
//   - GET /anime/{id} returns one series with genres and detail fields.
//   - GET /anime/{id}/episodes pages a series' episodes.
//   - GET /anime/episodes/{id}/mirrors pages an episode's mirror options.
//   - GET /healthz, /readyz, and /metrics for probes and Prometheus.
//
// List responses have the shape {"items": [...], "total": n}.
package api
