package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mescon/motion/internal/clock"
	"github.com/mescon/motion/internal/easing"
)

// Version is set at build time via -ldflags
// Default "dev" is used for development builds
var Version = "dev"

// Restart policy names accepted by MOTION_RESTART_POLICY.
const (
	RestartIgnore = "ignore"
	RestartFrom   = "restart"
)

// Config holds all application configuration loaded from environment variables.
// All fields have sensible defaults if environment variables are not set.
type Config struct {
	// Port is the HTTP server listen port (default: 3095)
	Port string

	// BasePath is the URL base path for reverse proxy setups (default: "/")
	BasePath string

	// LogLevel controls logging verbosity: "debug", "info", "warn", "error" (default: "info")
	LogLevel string

	// TimeSource selects how drivers wait between ticks: "native" or "eventloop" (default: "native")
	TimeSource string

	// TickInterval is the pause between value updates (default: 16ms)
	TickInterval time.Duration

	// DefaultDuration is used for motions created without a duration (default: 300ms)
	DefaultDuration time.Duration

	// DefaultEasing is used for motions created without an easing name (default: "linear")
	DefaultEasing string

	// RestartPolicy decides what a start request does while a run is in progress:
	// "ignore" or "restart" (default: "ignore")
	RestartPolicy string

	// RetentionDays is the number of days to keep journal events (default: 30)
	// Set to 0 to disable automatic pruning
	RetentionDays int

	// MaintenanceSchedule is the cron expression for database maintenance (default: "0 3 * * *")
	MaintenanceSchedule string

	// NotifyURLs are shoutrrr URLs that receive a message when a run completes
	NotifyURLs []string

	// NotifyThrottle is the minimum gap between notifications for one motion (default: 0, no throttle)
	NotifyThrottle time.Duration

	// DBMaxRetries is how many times a busy journal or motion statement is tried (default: 5)
	DBMaxRetries int

	// DBRetryDelay is the first backoff after a busy statement; it doubles per attempt (default: 100ms)
	DBRetryDelay time.Duration

	// CORSOrigin is the allowed browser origin for the API and WebSocket (default: same origin only)
	CORSOrigin string

	// DataDir is the directory for persistent data (database, logs)
	DataDir string

	// DatabasePath is the SQLite database file path (default: <DataDir>/motion.db)
	DatabasePath string

	// LogDir is the directory for log files (default: <DataDir>/logs)
	LogDir string
}

// Global singleton
var cfg *Config

// Load reads configuration from environment variables with sensible defaults.
// Should be called once at application startup.
func Load() *Config {
	dataDir := getEnvOrDefault("MOTION_DATA_DIR", "")
	if dataDir == "" {
		if cwd, err := os.Getwd(); err == nil {
			dataDir = filepath.Join(cwd, "data")
		} else {
			dataDir = "./data"
		}
	}
	if absDataDir, err := filepath.Abs(dataDir); err == nil {
		dataDir = absDataDir
	}
	_ = os.MkdirAll(dataDir, 0755)

	dbPath := getEnvOrDefault("MOTION_DATABASE_PATH", "")
	if dbPath == "" {
		dbPath = filepath.Join(dataDir, "motion.db")
	}

	logDir := filepath.Join(dataDir, "logs")
	_ = os.MkdirAll(logDir, 0755)

	cfg = &Config{
		Port:                getEnvOrDefault("MOTION_PORT", "3095"),
		BasePath:            normalizeBasePath(getEnvOrDefault("MOTION_BASE_PATH", "/")),
		LogLevel:            strings.ToLower(getEnvOrDefault("MOTION_LOG_LEVEL", "info")),
		TimeSource:          strings.ToLower(getEnvOrDefault("MOTION_TIME_SOURCE", clock.SourceNative)),
		TickInterval:        getEnvDurationOrDefault("MOTION_TICK_INTERVAL", 16*time.Millisecond),
		DefaultDuration:     getEnvDurationOrDefault("MOTION_DEFAULT_DURATION", 300*time.Millisecond),
		DefaultEasing:       strings.ToLower(getEnvOrDefault("MOTION_DEFAULT_EASING", "linear")),
		RestartPolicy:       strings.ToLower(getEnvOrDefault("MOTION_RESTART_POLICY", RestartIgnore)),
		RetentionDays:       getEnvIntOrDefault("MOTION_RETENTION_DAYS", 30),
		MaintenanceSchedule: getEnvOrDefault("MOTION_MAINTENANCE_SCHEDULE", "0 3 * * *"),
		NotifyURLs:          getEnvListOrDefault("MOTION_NOTIFY_URLS", nil),
		NotifyThrottle:      getEnvDurationOrDefault("MOTION_NOTIFY_THROTTLE", 0),
		DBMaxRetries:        getEnvIntOrDefault("MOTION_DB_MAX_RETRIES", 5),
		DBRetryDelay:        getEnvDurationOrDefault("MOTION_DB_RETRY_DELAY", 100*time.Millisecond),
		CORSOrigin:          getEnvOrDefault("MOTION_CORS_ORIGIN", ""),
		DataDir:             dataDir,
		DatabasePath:        dbPath,
		LogDir:              logDir,
	}

	cfg.validate()
	return cfg
}

// validate replaces invalid values with their defaults.
func (c *Config) validate() {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		c.LogLevel = "info"
	}
	switch c.TimeSource {
	case clock.SourceNative, clock.SourceEventLoop:
	default:
		c.TimeSource = clock.SourceNative
	}
	switch c.RestartPolicy {
	case RestartIgnore, RestartFrom:
	default:
		c.RestartPolicy = RestartIgnore
	}
	if _, err := easing.Lookup(c.DefaultEasing); err != nil {
		c.DefaultEasing = "linear"
	}
	if c.TickInterval <= 0 {
		c.TickInterval = 16 * time.Millisecond
	}
	if c.DefaultDuration <= 0 {
		c.DefaultDuration = 300 * time.Millisecond
	}
	if c.RetentionDays < 0 {
		c.RetentionDays = 0
	}
	if c.NotifyThrottle < 0 {
		c.NotifyThrottle = 0
	}
	if c.DBMaxRetries < 1 {
		c.DBMaxRetries = 5
	}
	if c.DBRetryDelay <= 0 {
		c.DBRetryDelay = 100 * time.Millisecond
	}
}

func normalizeBasePath(basePath string) string {
	if basePath == "" || basePath == "/" {
		return "/"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	return strings.TrimSuffix(basePath, "/")
}

// Get returns the current configuration. Panics if Load() hasn't been called.
func Get() *Config {
	if cfg == nil {
		panic("config.Load() must be called before config.Get()")
	}
	return cfg
}

// SetForTesting allows tests to set the global config without calling Load().
// This should ONLY be used in test code.
func SetForTesting(c *Config) {
	cfg = c
}

// NewTestConfig returns a minimal Config suitable for unit tests.
func NewTestConfig() *Config {
	return &Config{
		Port:                "8080",
		BasePath:            "/",
		LogLevel:            "debug",
		TimeSource:          clock.SourceNative,
		TickInterval:        time.Millisecond,
		DefaultDuration:     300 * time.Millisecond,
		DefaultEasing:       "linear",
		RestartPolicy:       RestartIgnore,
		RetentionDays:       30,
		MaintenanceSchedule: "0 3 * * *",
		DBMaxRetries:        5,
		DBRetryDelay:        100 * time.Millisecond,
		DataDir:             "/tmp/motion-test",
		DatabasePath:        "/tmp/motion-test/motion.db",
		LogDir:              "/tmp/motion-test/logs",
	}
}

// getEnvOrDefault returns the environment variable value or the default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvIntOrDefault returns the environment variable as an int or the default if not set/invalid.
func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvDurationOrDefault returns the environment variable as a duration or the default if not set/invalid.
// Accepts Go duration strings like "16ms", "1s".
func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvListOrDefault splits a comma-separated environment variable,
// dropping empty items.
func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// FlagOverrides holds command-line flag values that can override environment variables
type FlagOverrides struct {
	Port          *string
	BasePath      *string
	LogLevel      *string
	TimeSource    *string
	TickInterval  *time.Duration
	RestartPolicy *string
	RetentionDays *int
	DataDir       *string
	DatabasePath  *string
}

// ApplyFlags applies command-line flag overrides to the configuration.
// Should be called after Load() and after flag parsing.
// Only non-nil values with non-default flag values will override.
func ApplyFlags(flags FlagOverrides) {
	if cfg == nil {
		return
	}

	if flags.Port != nil && *flags.Port != "" {
		cfg.Port = *flags.Port
	}
	if flags.BasePath != nil && *flags.BasePath != "" {
		cfg.BasePath = normalizeBasePath(*flags.BasePath)
	}
	if flags.LogLevel != nil && *flags.LogLevel != "" {
		cfg.LogLevel = strings.ToLower(*flags.LogLevel)
	}
	if flags.TimeSource != nil && *flags.TimeSource != "" {
		cfg.TimeSource = strings.ToLower(*flags.TimeSource)
	}
	if flags.TickInterval != nil && *flags.TickInterval != 0 {
		cfg.TickInterval = *flags.TickInterval
	}
	if flags.RestartPolicy != nil && *flags.RestartPolicy != "" {
		cfg.RestartPolicy = strings.ToLower(*flags.RestartPolicy)
	}
	if flags.RetentionDays != nil && *flags.RetentionDays >= 0 {
		cfg.RetentionDays = *flags.RetentionDays
	}
	if flags.DataDir != nil && *flags.DataDir != "" {
		cfg.DataDir = *flags.DataDir
	}
	if flags.DatabasePath != nil && *flags.DatabasePath != "" {
		cfg.DatabasePath = *flags.DatabasePath
	}
	cfg.validate()
}
