/*
Package workers sizes worker pools in containerized environments.

runtime.NumCPU reports the host's CPUs even when a cgroup limit restricts the
process to fewer; runtime.GOMAXPROCS(0) follows the container limit. The
helpers here scale GOMAXPROCS by a workload multiplier:

	// Pattern loading is I/O-bound: 2 workers per CPU, at most 16
	n := workers.ForIO(16)

	// 3 workers per CPU, no maximum
	n := workers.Count(3.0, 0)

# Environment Variable Override

All functions respect SCAN_WORKERS, which pins the count (still capped by
the limit argument):

	env:
	- name: SCAN_WORKERS
	  value: "4"

All functions are safe for concurrent use.
*/
package workers
