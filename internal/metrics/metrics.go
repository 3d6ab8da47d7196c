// Package metrics provides Prometheus instrumentation for indexedsearch.
//
// Metrics are registered with the default registry through promauto and are
// prefixed with "indexedsearch_". Mount promhttp.Handler() to expose them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Reconciliation metrics
var (
	ReconcileRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexedsearch_reconcile_runs_total",
			Help: "Total number of reconciliation passes",
		},
		[]string{"status"},
	)

	ReconcileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "indexedsearch_reconcile_duration_seconds",
			Help:    "Reconciliation pass duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
	)

	// ReconcileDocuments counts documents by what a pass did with them:
	// orphan, stale, added, skipped.
	ReconcileDocuments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexedsearch_reconcile_documents_total",
			Help: "Documents handled by reconciliation, by action",
		},
		[]string{"action"},
	)

	ReconcileLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "indexedsearch_reconcile_last_run_timestamp_seconds",
			Help: "Unix timestamp of the last completed reconciliation",
		},
	)

	ReconcileIsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "indexedsearch_reconcile_running",
			Help: "1 while a reconciliation pass is in progress",
		},
	)
)

// Change event metrics
var (
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexedsearch_events_total",
			Help: "Change events applied to the index, by kind and status",
		},
		[]string{"kind", "status"},
	)

	EventQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "indexedsearch_event_queue_depth",
			Help: "Change events waiting in the asynchronous queue",
		},
	)
)

// Search metrics
var (
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexedsearch_searches_total",
			Help: "Search requests, by status",
		},
		[]string{"status"},
	)

	SearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "indexedsearch_search_duration_seconds",
			Help:    "Search duration in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	SearchCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "indexedsearch_search_cache_hits_total",
			Help: "Searches answered from the result cache",
		},
	)

	SearchCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "indexedsearch_search_cache_misses_total",
			Help: "Searches that reached the index",
		},
	)
)

// Index metrics
var (
	IndexDocuments = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "indexedsearch_index_documents",
			Help: "Documents in the search index",
		},
	)

	WriterWaitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "indexedsearch_writer_wait_seconds",
			Help:    "Time spent waiting for the index write slot",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 5, 30},
		},
	)
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexedsearch_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "indexedsearch_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// AppInfo exposes build information as labels.
var AppInfo = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "indexedsearch_app_info",
		Help: "Application build information",
	},
	[]string{"version", "commit", "backend"},
)

// SetAppInfo records build information.
func SetAppInfo(version, commit, backend string) {
	AppInfo.Reset()
	AppInfo.WithLabelValues(version, commit, backend).Set(1)
}
