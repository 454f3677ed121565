package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Store metrics
var (
	StoreRecords = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pattern_sync_store_records",
			Help: "Number of pattern records held by a store",
		},
		[]string{"store"},
	)

	StoreBuckets = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pattern_sync_store_hash_buckets",
			Help: "Number of non-empty content hash buckets in a store",
		},
		[]string{"store"},
	)

	StoreOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pattern_sync_store_operations_total",
			Help: "Store mutations by operation (add, reload, remove, clear)",
		},
		[]string{"store", "operation"},
	)

	StorePoisoned = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pattern_sync_store_poisoned",
			Help: "1 if the store detected an invariant violation and stopped serving",
		},
		[]string{"store"},
	)
)

// Sync engine metrics
var (
	SyncQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pattern_sync_queue_depth",
			Help: "Number of file tasks waiting to be applied",
		},
	)

	SyncTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pattern_sync_tasks_total",
			Help: "File tasks applied by kind and status",
		},
		[]string{"kind", "status"},
	)

	SyncTaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pattern_sync_task_duration_seconds",
			Help:    "Time to apply one file task",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"kind"},
	)

	SyncEngineState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pattern_sync_engine_state",
			Help: "Consumer state: 0 idle, 1 draining, 2 poisoned",
		},
	)
)

// Watcher metrics
var (
	WatcherEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pattern_sync_watcher_events_total",
			Help: "Filesystem notifications received by event type",
		},
		[]string{"event"},
	)

	WatcherErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pattern_sync_watcher_errors_total",
			Help: "Errors reported by the filesystem watcher",
		},
	)

	WatchedDirectories = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pattern_sync_watched_directories",
			Help: "Number of directories registered with the watcher",
		},
	)
)

// Loader and scan metrics
var (
	LoaderLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pattern_sync_loader_loads_total",
			Help: "Bitmap loads by status (success, transient_io, malformed_input)",
		},
		[]string{"status"},
	)

	ScanDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pattern_sync_scan_duration_seconds",
			Help:    "Duration of full directory scans",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
		[]string{"store"},
	)

	ScanFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pattern_sync_scan_files_total",
			Help: "Files visited by full scans by status",
		},
		[]string{"store", "status"},
	)
)

// Filesystem metrics
var (
	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pattern_sync_filesystem_retry_attempts_total",
			Help: "Retries of filesystem operations after a transient failure",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pattern_sync_filesystem_retry_success_total",
			Help: "Filesystem operations that succeeded after at least one retry",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pattern_sync_filesystem_retry_failures_total",
			Help: "Filesystem operations that failed after exhausting retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pattern_sync_filesystem_retry_duration_seconds",
			Help:    "Total time spent in a retried filesystem operation",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"operation", "volume"},
	)

	FilesystemWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pattern_sync_filesystem_writes_total",
			Help: "Atomic pattern writes by outcome (success, save_failed, conflict)",
		},
		[]string{"volume", "outcome"},
	)
)

// HTTP metrics for the status server
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pattern_sync_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pattern_sync_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pattern_sync_http_requests_in_flight",
			Help: "Number of HTTP requests currently being served",
		},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pattern_sync_memory_usage_ratio",
			Help: "Heap allocation as a fraction of the configured memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pattern_sync_memory_paused",
			Help: "1 while scan workers are held back by memory pressure",
		},
	)

	MemoryGCPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pattern_sync_memory_gc_pauses_total",
			Help: "Number of times memory pressure paused scanning and forced a GC",
		},
	)
)

// AppInfo exposes build information as labels
var AppInfo = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "pattern_sync_app_info",
		Help: "Application build information",
	},
	[]string{"version", "commit", "go_version"},
)
