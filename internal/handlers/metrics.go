package handlers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pattern-sync/internal/metrics"
)

// MetricsHandler serves the default registry. The engine gauges are
// refreshed on every scrape so they are current even while the consumer
// sits idle.
func (h *Handlers) MetricsHandler() http.Handler {
	next := promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.SyncEngineState.Set(float64(h.engine.State()))
		metrics.SyncQueueDepth.Set(float64(h.engine.Pending()))
		next.ServeHTTP(w, r)
	})
}
