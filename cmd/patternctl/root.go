package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"pattern-sync/internal/bitmap"
	"pattern-sync/internal/logging"
	"pattern-sync/internal/pattern"
	"pattern-sync/internal/startup"
	"pattern-sync/internal/store"
)

var (
	// Global flags
	configFile string
	storeName  string
	rootDir    string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "patternctl",
	Short: "Offline tools for pattern-sync directories",
	Long: `patternctl - inspect and fill the directories watched by pattern-sync.

Configuration is read like the daemon does: defaults, then the YAML file
named by --config or PATTERN_SYNC_CONFIG, then environment variables.

Examples:
  # Show what the pattern store would load
  patternctl scan

  # Count tags of the input store under another root
  patternctl tags --store inputs --dir /data/inputs

  # Save two images as new "cat" patterns
  patternctl save cat a.png b.png --fit`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			logging.SetLevel(logging.LevelDebug)
		} else {
			logging.SetLevel(logging.LevelWarn)
		}
		if configFile != "" {
			return os.Setenv(startup.ConfigFileEnv, configFile)
		}
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVarP(&storeName, "store", "s", "patterns", "store to operate on (patterns or inputs)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "d", "", "override the store root directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// session is the store and I/O plumbing one command works with.
type session struct {
	config *startup.Config
	store  *store.Store
	loader *bitmap.Loader
}

func openSession() (*session, error) {
	cfg, err := startup.ReadConfig()
	if err != nil {
		return nil, err
	}

	var policy store.Policy
	switch storeName {
	case "patterns":
		policy = cfg.PatternPolicy()
	case "inputs":
		policy = cfg.InputPolicy()
	default:
		return nil, fmt.Errorf("unknown store %q (want patterns or inputs)", storeName)
	}
	if rootDir != "" {
		policy.Root = rootDir
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	loader := bitmap.NewLoader(pattern.NewBMPCodec())
	loader.Retry = cfg.RetryConfig()
	// Offline runs should not wait on files another process holds.
	loader.Retry.Delay = min(loader.Retry.Delay, 10*time.Millisecond)

	return &session{
		config: cfg,
		store:  store.New(policy, pattern.NewHasher(pattern.DefaultPolynomial)),
		loader: loader,
	}, nil
}
