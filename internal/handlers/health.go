package handlers

import (
	"net/http"
	"runtime"
	"time"

	"pattern-sync/internal/indexer"
	"pattern-sync/internal/startup"
	"pattern-sync/internal/syncer"
)

const (
	statusHealthy  = "healthy"
	statusStarting = "starting"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status      string `json:"status"`
	Ready       bool   `json:"ready"`
	Version     string `json:"version"`
	Uptime      string `json:"uptime"`
	Scanning    bool   `json:"scanning"`
	LastScanned string `json:"lastScanned,omitempty"`
	ScanError   string `json:"scanError,omitempty"`

	EngineState  string   `json:"engineState"`
	QueueDepth   int      `json:"queueDepth"`
	Poisoned     []string `json:"poisonedStores,omitempty"`
	TotalRecords int      `json:"totalRecords"`

	GoVersion    string `json:"goVersion"`
	NumGoroutine int    `json:"numGoroutine"`

	Scans []indexer.ScanResult `json:"scans,omitempty"`
}

// HealthCheck returns the health status of the service. A poisoned store
// or a failed initial scan degrades the status without failing the probe.
func (h *Handlers) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	healthStatus := h.indexer.GetHealthStatus()

	response := HealthResponse{
		Ready:        healthStatus.Ready,
		Version:      startup.Version,
		Uptime:       healthStatus.Uptime,
		Scanning:     healthStatus.Scanning,
		ScanError:    healthStatus.ScanError,
		EngineState:  h.engine.State().String(),
		QueueDepth:   h.engine.Pending(),
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		Scans:        healthStatus.Results,
	}

	if !healthStatus.LastScanned.IsZero() {
		response.LastScanned = healthStatus.LastScanned.Format(time.RFC3339)
	}

	for _, s := range h.stores {
		stats, err := s.Stats()
		if err != nil {
			response.Poisoned = append(response.Poisoned, s.Name())
			continue
		}
		response.TotalRecords += stats.Records
	}

	switch {
	case !healthStatus.Ready:
		response.Status = statusStarting
	case response.ScanError != "" || len(response.Poisoned) > 0 || h.engine.State() == syncer.Poisoned:
		response.Status = statusDegraded
	default:
		response.Status = statusHealthy
	}

	w.Header().Set("Content-Type", "application/json")
	if !healthStatus.Ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	writeJSON(w, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{"status": "alive"})
	}
}

// ReadinessCheck returns 200 once the initial scan has finished
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if h.indexer.IsReady() {
		w.WriteHeader(http.StatusOK)
		writeJSON(w, map[string]string{"status": "ready"})
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	writeJSON(w, map[string]string{"status": "not_ready"})
}
