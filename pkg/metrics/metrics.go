// Package metrics defines the Prometheus collectors for the archive service
// and exposes an HTTP listener for scraping alongside health endpoints.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the archive service.
type Metrics struct {
	ConnectionsTotal   prometheus.Counter
	RequestsTotal      *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	DocsPublishedTotal prometheus.Counter
	TermsIndexedTotal  prometheus.Counter
	SearchResultsCount prometheus.Histogram
	PoolQueueDepth     prometheus.Gauge
	CacheHitsTotal     prometheus.Counter
	CacheMissesTotal   prometheus.Counter
}

// New creates all collectors and registers them with reg. Production code
// passes prometheus.DefaultRegisterer; tests pass a private registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "archive_connections_total",
				Help: "Total number of accepted client connections.",
			},
		),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archive_requests_total",
				Help: "Total requests by kind (publish, search, retrieve, invalid) and status (ok, failure).",
			},
			[]string{"kind", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "archive_request_duration_seconds",
				Help:    "Request handling latency in seconds, decode to response write.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"kind"},
		),
		DocsPublishedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "archive_documents_published_total",
				Help: "Total documents published to the archive.",
			},
		),
		TermsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "archive_terms_indexed_total",
				Help: "Total terms inserted into the inverted index.",
			},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "archive_search_results_count",
				Help:    "Number of ids returned per search.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 500},
			},
		),
		PoolQueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "archive_pool_queue_depth",
				Help: "Tasks waiting in the worker pool queue.",
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "archive_cache_hits_total",
				Help: "Total search-cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "archive_cache_misses_total",
				Help: "Total search-cache misses.",
			},
		),
	}

	reg.MustRegister(
		m.ConnectionsTotal,
		m.RequestsTotal,
		m.RequestDuration,
		m.DocsPublishedTotal,
		m.TermsIndexedTotal,
		m.SearchResultsCount,
		m.PoolQueueDepth,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
	)

	return m
}

// Handler returns the Prometheus scrape handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
