/*
Package filesystem provides resilient file access for the pattern loader and
atomic file replacement for the pattern writer.

# Retry on lock

Pattern files are often still held by the program that produced them when the
change notification arrives. [OpenWithRetry] retries the open with a fixed
delay while the failure looks transient (sharing violation, busy, stale
handle). A missing file fails at once.

	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
	    // faults.TransientIO, wraps ErrUnavailable and the last cause
	}
	defer f.Close()

Defaults: 40 attempts, 100ms apart, about four seconds in total.

# Atomic replace

[WriteFileAtomic] writes to path+[TempSuffix], removes the existing target and
renames the temp file into place. The two failure classes are kept apart:

  - faults.Persistence: the temp file disappeared before the rename
  - faults.PersistenceConflict: the target could not be cleared or replaced

Neither is retried.

# Metrics

Retry and write outcomes are reported through an [Observer] installed with
[SetObserver]; the metrics package provides the Prometheus implementation.
Paths are labeled with the storage name resolved by [VolumeResolver].
*/
package filesystem
