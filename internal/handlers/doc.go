// Package handlers provides the HTTP status API of the pattern sync daemon.
//
// It includes handlers for:
//   - Health, liveness and readiness probes
//   - Version information
//   - Store summaries and element snapshots
//   - Triggering a rescan of every store
//   - Prometheus metrics
package handlers
