// Package memory sizes the Go heap to the container and applies
// backpressure to the initial scan when memory runs short.
//
// [ConfigureFromEnv] derives GOMEMLIMIT from MEMORY_LIMIT (typically set
// through the Kubernetes Downward API) and MEMORY_RATIO. A [Monitor] samples
// heap usage against that limit; above the critical water mark it forces a
// GC and makes [Monitor.Wait] block until usage drops below the high water
// mark again. The indexer calls Wait before loading each file.
package memory
