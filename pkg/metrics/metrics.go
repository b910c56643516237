// Package metrics defines the Prometheus metric collectors used across the
// platform and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the platform.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	QueriesTotal        *prometheus.CounterVec
	QueryLatency        *prometheus.HistogramVec
	QueryResultsCount   *prometheus.HistogramVec
	QueryCacheHits      prometheus.Counter
	QueryCacheMisses    prometheus.Counter
	DocsIngestedTotal   *prometheus.CounterVec
	BatchCommitsTotal   *prometheus.CounterVec
	BatchCommitLatency  *prometheus.HistogramVec
	CollectionDocCount  *prometheus.GaugeVec
	ActiveBatches       prometheus.Gauge
	WriteQueueDepth     *prometheus.GaugeVec
	CircuitBreakerState *prometheus.GaugeVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queries_total",
				Help: "Total queries evaluated by result type (hit, miss, zero_result, error).",
			},
			[]string{"result_type"},
		),
		QueryLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "query_latency_seconds",
				Help:    "Query evaluation latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		QueryResultsCount: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "query_results_count",
				Help:    "Number of results returned per query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
			[]string{},
		),
		QueryCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "query_cache_hits_total",
				Help: "Total number of query-cache hits.",
			},
		),
		QueryCacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "query_cache_misses_total",
				Help: "Total number of query-cache misses.",
			},
		),
		DocsIngestedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docs_ingested_total",
				Help: "Total documents submitted to the ingest loader, by collection.",
			},
			[]string{"collection"},
		),
		BatchCommitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "batch_commits_total",
				Help: "Total write-session commits by collection and status.",
			},
			[]string{"collection", "status"},
		),
		BatchCommitLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "batch_commit_latency_seconds",
				Help:    "Write-session commit latency in seconds.",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"collection"},
		),
		CollectionDocCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "collection_document_count",
				Help: "Number of documents published across all batches, per collection.",
			},
			[]string{"collection"},
		),
		ActiveBatches: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "active_batches",
				Help: "Number of published batches currently resident across all collections.",
			},
		),
		WriteQueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "write_queue_depth",
				Help: "Pending documents in a collection's write-session queue.",
			},
			[]string{"collection"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.QueriesTotal,
		m.QueryLatency,
		m.QueryResultsCount,
		m.QueryCacheHits,
		m.QueryCacheMisses,
		m.DocsIngestedTotal,
		m.BatchCommitsTotal,
		m.BatchCommitLatency,
		m.CollectionDocCount,
		m.ActiveBatches,
		m.WriteQueueDepth,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
