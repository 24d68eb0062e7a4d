package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every collector registered by this service.
const Namespace = "swaptinsight"

// Stream labels for upstream page counters.
const (
	StreamMetrics     = "metrics"
	StreamSubmissions = "submissions"
	StreamPurchases   = "purchases"
)

var (
	PipelineRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "pipeline_runs_total",
			Help:      "Pipeline runs by outcome.",
		},
		[]string{"outcome"},
	)
	PipelineDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "pipeline_run_duration_seconds",
			Help:      "Wall time of a full pipeline run in seconds.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)
	UpstreamPages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "upstream_pages_total",
			Help:      "Pages fetched from the event API.",
		},
		[]string{"stream"},
	)
	UpstreamPageErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "upstream_page_errors_total",
			Help:      "Failed page requests against the event API.",
		},
		[]string{"stream"},
	)
	QualifyingPurchases = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "qualifying_purchases_total",
			Help:      "Purchases at or above the qualifying value counted by pipeline runs.",
		},
	)
	CacheWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "cache_writes_total",
			Help:      "Result cache writes by outcome.",
		},
		[]string{"outcome"},
	)
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by route, method and status.",
		},
		[]string{"route", "method", "status"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of HTTP request durations in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30, 120},
		},
		[]string{"route", "method"},
	)
)

var registerOnce sync.Once

// Register adds the service collectors to the default registry. Safe to call
// more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			PipelineRuns,
			PipelineDuration,
			UpstreamPages,
			UpstreamPageErrors,
			QualifyingPurchases,
			CacheWrites,
			HTTPRequests,
			HTTPDuration,
		)
	})
}
