package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup with the names of the configured stores.
func InitializeMetrics(stores []string) {
	volumes := append(append([]string{}, stores...), "unknown")

	for _, store := range stores {
		StoreRecords.WithLabelValues(store)
		StoreBuckets.WithLabelValues(store)
		StorePoisoned.WithLabelValues(store)
		ScanDuration.WithLabelValues(store)
		for _, op := range []string{"add", "reload", "remove", "clear"} {
			StoreOperationsTotal.WithLabelValues(store, op)
		}
		for _, status := range []string{"loaded", "failed"} {
			ScanFilesTotal.WithLabelValues(store, status)
		}
	}

	for _, vol := range volumes {
		FilesystemRetryAttempts.WithLabelValues("open", vol)
		FilesystemRetrySuccess.WithLabelValues("open", vol)
		FilesystemRetryFailures.WithLabelValues("open", vol)
		FilesystemRetryDuration.WithLabelValues("open", vol)
		for _, outcome := range []string{"success", "save_failed", "conflict"} {
			FilesystemWritesTotal.WithLabelValues(vol, outcome)
		}
	}

	for _, kind := range []string{"created", "changed", "removed", "renamed", "cleared"} {
		SyncTaskDuration.WithLabelValues(kind)
		for _, status := range []string{"success", "error", "skipped"} {
			SyncTasksTotal.WithLabelValues(kind, status)
		}
	}

	for _, event := range []string{"create", "write", "remove", "rename", "chmod"} {
		WatcherEventsTotal.WithLabelValues(event)
	}

	for _, status := range []string{"success", "transient_io", "malformed_input"} {
		LoaderLoadsTotal.WithLabelValues(status)
	}
}
