package startup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/viper"

	"pattern-sync/internal/filesystem"
	"pattern-sync/internal/logging"
	"pattern-sync/internal/pattern"
	"pattern-sync/internal/store"
	"pattern-sync/internal/workers"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// ConfigFileEnv names the environment variable pointing at an optional YAML
// configuration file. Environment variables override values from the file.
const ConfigFileEnv = "PATTERN_SYNC_CONFIG"

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Config holds all application configuration
type Config struct {
	PatternsDir  string
	InputsDir    string
	Extension    string
	TagSeparator string

	PatternWidth  int
	PatternHeight int
	InputMinWidth int
	InputMaxWidth int
	InputHeight   int

	ScanWorkers    int
	LoadRetries    int
	LoadRetryDelay time.Duration

	LogFile        string
	LogLevel       string
	Port           string
	MetricsEnabled bool

	// ConfigFile is the YAML file values were read from, if any.
	ConfigFile string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("patterns_dir", "./patterns")
	v.SetDefault("inputs_dir", "./inputs")
	v.SetDefault("extension", ".bmp")
	v.SetDefault("tag_separator", "!")
	v.SetDefault("pattern_width", 16)
	v.SetDefault("pattern_height", 16)
	v.SetDefault("input_min_width", 1)
	v.SetDefault("input_max_width", 1024)
	v.SetDefault("input_height", 16)
	v.SetDefault("scan_workers", 0)
	v.SetDefault("load_retries", 40)
	v.SetDefault("load_retry_delay", "100ms")
	v.SetDefault("log_file", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("port", "8080")
	v.SetDefault("metrics_enabled", true)
}

// ReadConfig resolves the configuration from defaults, the optional YAML
// file named by PATTERN_SYNC_CONFIG and the environment, without logging.
func ReadConfig() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{}
	if path := os.Getenv(ConfigFileEnv); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		cfg.ConfigFile = v.ConfigFileUsed()
	}

	cfg.PatternsDir = v.GetString("patterns_dir")
	cfg.InputsDir = v.GetString("inputs_dir")
	cfg.Extension = v.GetString("extension")
	cfg.TagSeparator = v.GetString("tag_separator")
	cfg.PatternWidth = v.GetInt("pattern_width")
	cfg.PatternHeight = v.GetInt("pattern_height")
	cfg.InputMinWidth = v.GetInt("input_min_width")
	cfg.InputMaxWidth = v.GetInt("input_max_width")
	cfg.InputHeight = v.GetInt("input_height")
	cfg.ScanWorkers = v.GetInt("scan_workers")
	cfg.LoadRetries = v.GetInt("load_retries")
	cfg.LoadRetryDelay = v.GetDuration("load_retry_delay")
	cfg.LogFile = v.GetString("log_file")
	cfg.LogLevel = v.GetString("log_level")
	cfg.Port = v.GetString("port")
	cfg.MetricsEnabled = v.GetBool("metrics_enabled")

	if cfg.ScanWorkers <= 0 {
		cfg.ScanWorkers = workers.ForIO(16)
	}

	var err error
	if cfg.PatternsDir, err = filepath.Abs(cfg.PatternsDir); err != nil {
		return nil, fmt.Errorf("failed to resolve patterns directory path: %w", err)
	}
	if cfg.InputsDir, err = filepath.Abs(cfg.InputsDir); err != nil {
		return nil, fmt.Errorf("failed to resolve inputs directory path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks sizes, retry settings and that the two roots are disjoint.
func (c *Config) Validate() error {
	var errs []error
	if c.Extension == "" {
		errs = append(errs, errors.New("EXTENSION is empty"))
	}
	if c.PatternWidth <= 0 || c.PatternHeight <= 0 {
		errs = append(errs, fmt.Errorf("pattern size %dx%d must be positive", c.PatternWidth, c.PatternHeight))
	}
	if c.InputMinWidth <= 0 || c.InputMaxWidth < c.InputMinWidth || c.InputHeight <= 0 {
		errs = append(errs, fmt.Errorf("input bounds [%d, %d]x%d are invalid", c.InputMinWidth, c.InputMaxWidth, c.InputHeight))
	}
	if c.LoadRetries < 1 {
		errs = append(errs, fmt.Errorf("LOAD_RETRIES must be at least 1, got %d", c.LoadRetries))
	}
	if c.LoadRetryDelay < 0 {
		errs = append(errs, fmt.Errorf("LOAD_RETRY_DELAY must not be negative, got %v", c.LoadRetryDelay))
	}
	if overlaps(c.PatternsDir, c.InputsDir) {
		errs = append(errs, fmt.Errorf("PATTERNS_DIR %s and INPUTS_DIR %s overlap", c.PatternsDir, c.InputsDir))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func overlaps(a, b string) bool {
	a = strings.ToLower(filepath.Clean(a)) + string(filepath.Separator)
	b = strings.ToLower(filepath.Clean(b)) + string(filepath.Separator)
	return strings.HasPrefix(a, b) || strings.HasPrefix(b, a)
}

// PatternPolicy returns the policy of the search pattern store.
func (c *Config) PatternPolicy() store.Policy {
	return store.Policy{
		Name:      "patterns",
		Root:      c.PatternsDir,
		Extension: c.Extension,
		Separator: c.TagSeparator,
		Bounds:    pattern.Exact(c.PatternWidth, c.PatternHeight),
	}
}

// InputPolicy returns the policy of the recognition input store.
func (c *Config) InputPolicy() store.Policy {
	return store.Policy{
		Name:      "inputs",
		Root:      c.InputsDir,
		Extension: c.Extension,
		Separator: c.TagSeparator,
		Bounds: pattern.Bounds{
			MinWidth: c.InputMinWidth,
			MaxWidth: c.InputMaxWidth,
			Height:   c.InputHeight,
		},
	}
}

// RetryConfig returns the open-retry policy for the loader.
func (c *Config) RetryConfig() filesystem.RetryConfig {
	cfg := filesystem.DefaultRetryConfig()
	cfg.MaxAttempts = c.LoadRetries
	cfg.Delay = c.LoadRetryDelay
	return cfg
}

// LoadConfig loads the configuration and logs it together with the startup
// banner, then makes sure both store roots exist.
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	cfg, err := ReadConfig()
	if err != nil {
		return nil, err
	}

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")
	if cfg.ConfigFile != "" {
		logging.Info("  Config file:       %s", cfg.ConfigFile)
	}
	logging.Info("  PATTERNS_DIR:      %s", cfg.PatternsDir)
	logging.Info("  INPUTS_DIR:        %s", cfg.InputsDir)
	logging.Info("  EXTENSION:         %s", cfg.Extension)
	logging.Info("  TAG_SEPARATOR:     %s", cfg.TagSeparator)
	logging.Info("  PATTERN_SIZE:      %dx%d", cfg.PatternWidth, cfg.PatternHeight)
	logging.Info("  INPUT_BOUNDS:      [%d, %d]x%d", cfg.InputMinWidth, cfg.InputMaxWidth, cfg.InputHeight)
	logging.Info("  SCAN_WORKERS:      %d", cfg.ScanWorkers)
	logging.Info("  LOAD_RETRIES:      %d x %v", cfg.LoadRetries, cfg.LoadRetryDelay)
	logging.Info("  LOG_FILE:          %s", valueOrNone(cfg.LogFile))
	logging.Info("  LOG_LEVEL:         %s", cfg.LogLevel)
	logging.Info("  PORT:              %s", cfg.Port)
	logging.Info("  METRICS_ENABLED:   %v", cfg.MetricsEnabled)

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")
	for _, dir := range []struct{ path, name string }{
		{cfg.PatternsDir, "patterns"},
		{cfg.InputsDir, "inputs"},
	} {
		if err := ensureDirectory(dir.path, dir.name); err != nil {
			return nil, fmt.Errorf("%s directory error: %w", dir.name, err)
		}
		logging.Info("  [OK] %s directory: %s", dir.name, dir.path)
	}

	return cfg, nil
}

func valueOrNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

// LogStoreInit logs store creation
func LogStoreInit(policies ...store.Policy) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("STORE INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	for _, p := range policies {
		logging.Info("  %-9s root=%s ext=%s bounds=[%d, %d]x%d",
			p.Name, p.Root, p.Ext(), p.Bounds.MinWidth, p.Bounds.MaxWidth, p.Bounds.Height)
	}
}

// LogScanComplete logs the outcome of the initial scan of one store
func LogScanComplete(name string, loaded, failed int, duration time.Duration) {
	if failed > 0 {
		logging.Warn("  [OK] %s scanned: %d loaded, %d failed in %v", name, loaded, failed, duration)
		return
	}
	logging.Info("  [OK] %s scanned: %d loaded in %v", name, loaded, duration)
}

// LogSyncStarted logs the start of the engine and watcher
func LogSyncStarted(watchedStores int) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SYNC ENGINE")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] Watching %d store roots", watchedStores)
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}
		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes at debug level
func LogHTTPRoutes(router *mux.Router) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if !logging.IsDebugEnabled() {
		return
	}

	routes, err := GetRoutes(router)
	if err != nil {
		logging.Warn("error walking routes: %v", err)
	}
	logging.Debug("  Registered routes (%d total):", len(routes))

	groups := make(map[string][]RouteInfo)
	for _, route := range routes {
		prefix := getRouteGroup(route.Path)
		groups[prefix] = append(groups[prefix], route)
	}

	groupKeys := make([]string, 0, len(groups))
	for k := range groups {
		groupKeys = append(groupKeys, k)
	}
	sort.Strings(groupKeys)

	for _, group := range groupKeys {
		if group != "" {
			logging.Debug("  [%s]", group)
		} else {
			logging.Debug("  [root]")
		}
		for _, route := range groups[group] {
			logging.Debug("    %-6s %s", route.Method, route.Path)
		}
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")

	parts := strings.SplitN(path, "/", 2)
	first := parts[0]

	if first == "api" && len(parts) > 1 {
		subParts := strings.SplitN(parts[1], "/", 2)
		return "api/" + subParts[0]
	}

	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    Status API:    http://0.0.0.0:%s/api/stores", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://0.0.0.0:%s/metrics", config.Port)
	} else {
		logging.Info("    Metrics:       DISABLED")
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

func printBanner() {
	banner := `
------------------------------------------------------------
   pattern-sync
------------------------------------------------------------`
	fmt.Fprintln(logging.Writer(), banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	if logging.IsDebugEnabled() {
		entries, err := os.ReadDir(path)
		if err == nil {
			logging.Debug("    Contents: %d entries (top level)", len(entries))
		}
	}

	return nil
}
