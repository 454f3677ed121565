// Command patternctl inspects and fills pattern directories offline, using
// the same configuration as the daemon.
//
// Usage:
//
//	patternctl [flags] <command> [args]
//
// Commands:
//
//	scan     - Load a store root and report what it holds
//	tags     - List the tags of a store with their file counts
//	save     - Convert images to patterns and save them under fresh tags
//	version  - Show version information
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
