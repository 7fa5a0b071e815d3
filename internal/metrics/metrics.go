package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_ingest_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_ingest_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_ingest_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Pipeline metrics
var (
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_ingest_jobs_total",
			Help: "Total number of upload jobs by terminal stage",
		},
		[]string{"outcome"}, // "completed", "failed"
	)

	JobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_ingest_jobs_in_flight",
			Help: "Number of upload jobs currently in a non-terminal stage",
		},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_ingest_stage_duration_seconds",
			Help:    "Duration of each pipeline stage in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)

	StageDegradations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_ingest_stage_degradations_total",
			Help: "Total number of best-effort stage failures that degraded a job",
		},
		[]string{"stage"},
	)

	JobFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_ingest_job_failures_total",
			Help: "Total number of fatal job failures by error kind",
		},
		[]string{"kind"},
	)

	BatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_ingest_batches_total",
			Help: "Total number of submitted batches",
		},
	)

	QuotaRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_ingest_quota_rejections_total",
			Help: "Total number of jobs rejected at admission because the owner quota was exhausted",
		},
	)

	CleanupRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_ingest_cleanup_runs_total",
			Help: "Total number of failure-cleanup invocations",
		},
		[]string{"status"}, // "success", "error"
	)
)

// Storage metrics
var (
	StorageBytesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_ingest_storage_bytes_written_total",
			Help: "Total bytes written to object storage",
		},
		[]string{"backend"},
	)

	StorageOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_ingest_storage_operations_total",
			Help: "Total object storage operations",
		},
		[]string{"backend", "operation", "status"},
	)
)

// Thumbnail metrics
var (
	ThumbnailsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_ingest_thumbnails_generated_total",
			Help: "Total thumbnails generated by size class and status",
		},
		[]string{"class", "status"},
	)

	ThumbnailDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_ingest_thumbnail_duration_seconds",
			Help:    "Thumbnail derivation duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"class"},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_ingest_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_ingest_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_ingest_db_connections_open",
			Help: "Number of open database connections",
		},
	)
)

// AI / background-removal adapter metrics
var (
	EnrichmentRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_ingest_enrichment_requests_total",
			Help: "Total AI enrichment requests by status",
		},
		[]string{"status"},
	)

	MattingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_ingest_matting_requests_total",
			Help: "Total background removal requests by status",
		},
		[]string{"status"},
	)
)

// Memory backpressure metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_ingest_memory_usage_ratio",
			Help: "Heap usage as a fraction of the configured memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_ingest_memory_paused",
			Help: "Whether job admission is paused for memory pressure (0 or 1)",
		},
	)

	MemoryGCPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_ingest_memory_gc_pauses_total",
			Help: "Total forced garbage collections triggered by memory pressure",
		},
	)
)
