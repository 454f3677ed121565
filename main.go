package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pattern-sync/internal/bitmap"
	"pattern-sync/internal/filesystem"
	"pattern-sync/internal/handlers"
	"pattern-sync/internal/indexer"
	"pattern-sync/internal/logging"
	"pattern-sync/internal/memory"
	"pattern-sync/internal/metrics"
	"pattern-sync/internal/middleware"
	"pattern-sync/internal/pattern"
	"pattern-sync/internal/startup"
	"pattern-sync/internal/store"
	"pattern-sync/internal/syncer"

	"github.com/gorilla/mux"
)

func main() {
	startTime := time.Now()

	// Size the heap to the container before anything is loaded
	memory.ConfigureFromEnv()

	// Load configuration
	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	logging.SetLevel(logging.ParseLevel(config.LogLevel))
	var logFile io.Closer
	if config.LogFile != "" {
		logFile = logging.SetFile(logging.DefaultFileConfig(config.LogFile))
	}

	// Storage names label the filesystem metrics
	filesystem.SetObserver(metrics.NewFilesystemObserver())
	filesystem.SetDefaultVolumeResolver(filesystem.NewVolumeResolver(map[string]string{
		"patterns": config.PatternsDir,
		"inputs":   config.InputsDir,
	}))

	// Initialize stores
	policies := []store.Policy{config.PatternPolicy(), config.InputPolicy()}
	for _, p := range policies {
		if err := p.Validate(); err != nil {
			startup.LogFatal("Invalid store policy: %v", err)
		}
	}
	hasher := pattern.NewHasher(pattern.DefaultPolynomial)
	patterns := store.New(policies[0], hasher)
	inputs := store.New(policies[1], hasher)
	stores := []*store.Store{patterns, inputs}
	startup.LogStoreInit(policies...)
	metrics.InitializeMetrics([]string{patterns.Name(), inputs.Name()})
	metrics.AppInfo.WithLabelValues(startup.Version, startup.Commit, startup.GoVersion).Set(1)

	loader := bitmap.NewLoader(pattern.NewBMPCodec())
	loader.Retry = config.RetryConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start the engine before the initial scan so no event is lost. The
	// engine is paused while a store is scanned; tasks queued meanwhile are
	// applied on top of the scan.
	engine := syncer.NewEngine(loader)
	engine.Start(ctx)

	watcher, err := syncer.NewWatcher(engine, stores...)
	if err != nil {
		startup.LogFatal("Failed to create watcher: %v", err)
	}
	if err := watcher.Start(ctx); err != nil {
		startup.LogFatal("Failed to start watcher: %v", err)
	}
	startup.LogSyncStarted(len(stores))

	// Initial scan runs in the background; readiness flips when it finishes
	monitor := memory.NewMonitor(memory.DefaultConfig())
	monitor.Start()
	idx := indexer.New(loader, config.ScanWorkers, stores...)
	idx.SetGate(monitor)
	idx.SetSequencer(engine)
	go func() {
		results, err := idx.ScanAll(ctx)
		if err != nil {
			logging.Error("Initial scan finished with errors: %v", err)
		}
		for _, res := range results {
			startup.LogScanComplete(res.Store, res.Loaded, res.Failed, res.Duration)
		}
	}()

	collector := metrics.NewCollector(15*time.Second, patterns, inputs)
	collector.Start()

	// Initialize handlers
	h := handlers.New(ctx, idx, engine, stores...)

	// Setup router
	router := setupRouter(h, config.MetricsEnabled)
	startup.LogHTTPRoutes(router)

	handler := middleware.Logger(middleware.DefaultLoggingConfig())(router)

	// Create server
	srv := &http.Server{
		Addr:         ":" + config.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start graceful shutdown handler
	done := make(chan struct{})
	go func() {
		handleShutdown(srv, cancel, watcher, engine, collector, monitor)
		if logFile != nil {
			_ = logFile.Close()
		}
		close(done)
	}()

	// Start server
	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		startup.LogFatal("Server error: %v", err)
	}
	<-done
}

func setupRouter(h *handlers.Handlers, metricsEnabled bool) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))

	// Health check and version routes
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	if metricsEnabled {
		r.Handle("/metrics", h.MetricsHandler()).Methods("GET")
	}

	// Store status API
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/stores", h.ListStores).Methods("GET")
	api.HandleFunc("/stores/{name}", h.GetStore).Methods("GET")
	api.HandleFunc("/stores/{name}/elements", h.ListElements).Methods("GET")
	api.HandleFunc("/rescan", h.TriggerRescan).Methods("POST")

	return r
}

func handleShutdown(srv *http.Server, cancel context.CancelFunc, watcher *syncer.Watcher, engine *syncer.Engine, collector *metrics.Collector, monitor *memory.Monitor) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	startup.LogShutdownStep("Stopping watcher")
	if err := watcher.Close(); err != nil {
		logging.Warn("Watcher close error: %v", err)
	} else {
		startup.LogShutdownStepComplete("Watcher stopped")
	}

	startup.LogShutdownStep("Draining sync queue")
	if err := engine.Sync(ctx); err != nil {
		logging.Warn("Sync queue not drained: %v", err)
	}
	cancel()
	engine.Stop()
	startup.LogShutdownStepComplete("Sync engine stopped")

	startup.LogShutdownStep("Stopping memory monitor")
	monitor.Stop()
	startup.LogShutdownStepComplete("Memory monitor stopped")

	startup.LogShutdownStep("Stopping metrics collector")
	collector.Stop()
	startup.LogShutdownStepComplete("Metrics collector stopped")

	startup.LogShutdownComplete()
}
