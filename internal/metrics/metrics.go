package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tokenomics_indexer"

// HTTP surface.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"method", "path", "status_code"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	HTTPRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_in_flight",
		Help:      "Number of HTTP requests currently being processed.",
	})
)

// Upstream fetches.
var (
	FetchAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "fetch",
		Name:      "attempts_total",
		Help:      "Fetch attempts per source and result.",
	}, []string{"source", "result"})

	FetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "fetch",
		Name:      "duration_seconds",
		Help:      "Duration of a fetch including retries.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"source"})
)

// Daily runs.
var (
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "index",
		Name:      "runs_total",
		Help:      "Indexing runs per outcome status.",
	}, []string{"status", "trigger"})

	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "index",
		Name:      "run_duration_seconds",
		Help:      "Wall time of an indexing run.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	LastStoredTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "index",
		Name:      "last_stored_timestamp",
		Help:      "Unix timestamp of the last stored record.",
	})

	ValidationWarningsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "validation",
		Name:      "warnings_total",
		Help:      "Validation warnings raised across runs.",
	})
)

// Tracked values of the latest stored record.
var TokenomicsValue = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "record",
	Name:      "value",
	Help:      "Latest stored tokenomics field value.",
}, []string{"field"})

// Read path cache.
var HistoryCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "history",
	Name:      "cache_total",
	Help:      "History cache lookups by result.",
}, []string{"result"})

// BuildInfo is set to 1 with the running build's labels.
var BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "build_info",
	Help:      "Build metadata of the running binary.",
}, []string{"version", "commit"})
