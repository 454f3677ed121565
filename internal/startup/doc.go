// Package startup handles application initialization, configuration loading,
// and startup/shutdown logging.
//
// # Configuration
//
// Configuration is resolved by [ReadConfig] with spf13/viper: defaults, then
// an optional YAML file named by PATTERN_SYNC_CONFIG, then environment
// variables, which win. The following keys are supported (YAML keys are the
// lower-case form):
//
//   - PATTERNS_DIR: Root of the search pattern images (default: ./patterns)
//   - INPUTS_DIR: Root of the recognition input images (default: ./inputs)
//   - EXTENSION: Tracked image extension (default: .bmp)
//   - TAG_SEPARATOR: Separator between tag and numeric suffix (default: !)
//   - PATTERN_WIDTH, PATTERN_HEIGHT: Exact size of search patterns (default: 16x16)
//   - INPUT_MIN_WIDTH, INPUT_MAX_WIDTH, INPUT_HEIGHT: Accepted input sizes (default: [1, 1024]x16)
//   - SCAN_WORKERS: Initial scan parallelism (default: 2 per CPU, at most 16)
//   - LOAD_RETRIES, LOAD_RETRY_DELAY: Open retry policy for locked files (default: 40 x 100ms)
//   - LOG_FILE: Append log lines to this file as well as stdout
//   - LOG_LEVEL: debug, info, warn, error (default: info)
//   - PORT: Status and metrics HTTP port (default: 8080)
//   - METRICS_ENABLED: Expose /metrics (default: true)
//
// [LoadConfig] additionally prints the banner, logs every value and creates
// both store roots when missing.
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo].
//
// # Lifecycle Logging
//
// [LogStoreInit], [LogScanComplete], [LogSyncStarted], [LogHTTPRoutes] and
// [LogServerStarted] describe startup; the LogShutdown* functions describe
// graceful shutdown, one step at a time.
package startup
