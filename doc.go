// Package main provides the entry point for the pattern-sync daemon.
//
// pattern-sync keeps two in-memory pattern stores in step with their image
// directories: search patterns of one exact size, and recognition inputs of
// a fixed height and bounded width. Every store is indexed by path and by
// content fingerprint, and both indices are kept consistent or the store
// disables itself.
//
// # Application Lifecycle
//
//  1. Configuration Loading: viper defaults, optional YAML file, environment
//  2. Store Initialization: one store per policy, sharing one fingerprinter
//  3. Sync Engine: a single consumer applying queued file tasks in order
//  4. Watcher: fsnotify events under both roots, translated into tasks
//  5. Initial Scan: parallel load of every tracked file (in the background)
//  6. HTTP Server: health probes, store status API and Prometheus metrics
//  7. Graceful Shutdown: SIGINT/SIGTERM stop the server, then the watcher,
//     then drain and stop the engine
//
// # HTTP Endpoints
//
//   - /health, /healthz: Detailed health including engine and store state
//   - /livez, /readyz: Kubernetes probes; ready once the initial scan finished
//   - /version: Build information
//   - /metrics: Prometheus metrics (when METRICS_ENABLED)
//   - /api/stores, /api/stores/{name}, /api/stores/{name}/elements
//   - /api/rescan (POST): Re-run the scan of every store
//
// See [pattern-sync/internal/startup] for the configuration keys.
package main
