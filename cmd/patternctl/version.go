package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"pattern-sync/internal/startup"
)

var versionFormat string

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := startup.GetBuildInfo()
		if versionFormat == "json" {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "patternctl %s (%s, built %s)\n", info.Version, info.Commit, info.BuildTime)
		if verbose {
			fmt.Fprintf(cmd.OutOrStdout(), "  go: %s %s/%s\n", info.GoVersion, info.OS, info.Arch)
		}
		return nil
	},
}

func init() {
	versionCmd.Flags().StringVar(&versionFormat, "format", "text", "output format (text or json)")
	rootCmd.AddCommand(versionCmd)
}
