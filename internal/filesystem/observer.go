package filesystem

// Observer records filesystem metrics. Implementations are provided by the
// metrics package to break the import cycle between filesystem and metrics.
type Observer interface {
	// retryOp is the retried operation, currently always "open".
	ObserveRetryAttempt(retryOp, volume string)
	ObserveRetrySuccess(retryOp, volume string)
	ObserveRetryFailure(retryOp, volume string)
	ObserveRetryDuration(retryOp, volume string, durationSeconds float64)

	// ObserveWrite records an atomic write outcome: "success", "save_failed"
	// or "conflict".
	ObserveWrite(volume, outcome string)
}

// defaultObserver is the package-level observer set at startup.
// If nil, metric recording is silently skipped (safe for tests).
var defaultObserver Observer

// SetObserver sets the package-level metrics observer.
func SetObserver(o Observer) {
	defaultObserver = o
}

func observe() Observer {
	return defaultObserver
}
