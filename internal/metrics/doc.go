// Package metrics provides Prometheus instrumentation for the pattern
// synchronization service.
//
// All metrics are prefixed with "pattern_sync_" to avoid naming collisions
// with other applications.
//
// # Metric Categories
//
// ## Store Metrics
//
//   - StoreRecords: Gauge of records per store
//   - StoreBuckets: Gauge of non-empty hash buckets per store
//   - StoreOperationsTotal: Counter of add, reload, remove and clear calls
//   - StorePoisoned: Gauge set to 1 once a store stops serving
//
// ## Sync Engine Metrics
//
//   - SyncQueueDepth: Gauge of queued file tasks
//   - SyncTasksTotal: Counter of applied tasks by kind and status
//   - SyncTaskDuration: Histogram of per-task apply time
//   - SyncEngineState: Gauge of the consumer state
//
// ## Watcher Metrics
//
//   - WatcherEventsTotal, WatcherErrors, WatchedDirectories
//
// ## Loader, Scan and Filesystem Metrics
//
//   - LoaderLoadsTotal: Counter of bitmap loads by status
//   - ScanDuration, ScanFilesTotal: full directory scans
//   - FilesystemRetry*: retried opens of locked files, labeled by store volume
//   - FilesystemWritesTotal: atomic write outcomes
//
// # Usage
//
// Metrics are registered with the default registry through promauto. At
// startup call [InitializeMetrics] with the store names, install
// [NewFilesystemObserver] with filesystem.SetObserver, and start a
// [Collector] over the stores:
//
//	metrics.InitializeMetrics([]string{"patterns", "inputs"})
//	filesystem.SetObserver(metrics.NewFilesystemObserver())
//	c := metrics.NewCollector(15*time.Second, patterns, inputs)
//	c.Start()
//	defer c.Stop()
package metrics
