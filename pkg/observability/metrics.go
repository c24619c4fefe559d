// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the schleuse worker.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets defines histogram buckets suited for LLM inference latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

// InitBuckets defines histogram buckets for engine construction, which can
// take several minutes while model weights load.
var InitBuckets = []float64{1, 5, 15, 30, 60, 120, 300, 600}

var (
	// RequestsTotal counts all HTTP requests by method and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schleuse_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status"},
	)

	// RequestDuration records HTTP request duration in seconds by method.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "schleuse_request_duration_seconds",
			Help:    "Request duration",
			Buckets: LLMBuckets,
		},
		[]string{"method"},
	)

	// JobsTotal counts handled jobs by route and outcome.
	JobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schleuse_jobs_total",
			Help: "Handled jobs",
		},
		[]string{"route", "status"},
	)

	// JobDuration records end-to-end job duration in seconds by route.
	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "schleuse_job_duration_seconds",
			Help:    "Job duration",
			Buckets: LLMBuckets,
		},
		[]string{"route"},
	)

	// StreamingConnections tracks the number of active streaming jobs.
	StreamingConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "schleuse_streaming_connections_active",
			Help: "Active streaming connections",
		},
	)

	// BatchesFiltered counts batches passed through the output filter,
	// by batch shape.
	BatchesFiltered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schleuse_batches_filtered_total",
			Help: "Filtered batches",
		},
		[]string{"shape"},
	)

	// ReasoningKeysRemoved counts reasoning entries stripped from payloads.
	ReasoningKeysRemoved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "schleuse_reasoning_keys_removed_total",
			Help: "Reasoning keys removed from payloads",
		},
	)

	// EngineInitAttempts counts backend construction attempts by engine
	// and outcome.
	EngineInitAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schleuse_engine_init_attempts_total",
			Help: "Engine construction attempts",
		},
		[]string{"engine", "status"},
	)

	// EngineInitDuration records engine construction duration in seconds.
	EngineInitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "schleuse_engine_init_duration_seconds",
			Help:    "Engine construction duration",
			Buckets: InitBuckets,
		},
		[]string{"engine"},
	)

	// AdmissionRejectedTotal counts jobs rejected by the concurrency limiter.
	AdmissionRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "schleuse_admission_rejected_total",
			Help: "Jobs rejected over capacity",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		JobsTotal,
		JobDuration,
		StreamingConnections,
		BatchesFiltered,
		ReasoningKeysRemoved,
		EngineInitAttempts,
		EngineInitDuration,
		AdmissionRejectedTotal,
	)
}
