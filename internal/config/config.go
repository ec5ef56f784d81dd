package config

import (
	"encoding/json"
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the tidewatch application.
// Values are loaded from environment variables; see the serve command's
// usage text for the full list.
type Config struct {
	DatabaseURL string `json:"database_url"`
	RedisAddr   string `json:"redis_addr,omitempty"`
	HTTPAddr    string `json:"http_addr"`

	QueryTimeout    time.Duration `json:"-"`
	QueryTimeoutStr string        `json:"query_timeout"`

	PollRowLimit int `json:"poll_row_limit"`
	TestRowLimit int `json:"test_row_limit"`

	CacheMaxBytes int `json:"cache_max_bytes"`

	MaxStaggerBudget    time.Duration `json:"-"`
	MaxStaggerBudgetStr string        `json:"max_stagger_budget"`

	SleepEnabled  bool          `json:"sleep_enabled"`
	SleepDelay    time.Duration `json:"-"`
	SleepDelayStr string        `json:"sleep_delay"`

	WakeJitterMax    time.Duration `json:"-"`
	WakeJitterMaxStr string        `json:"wake_jitter_max"`

	DBMaxOpenConns       int           `json:"db_max_open_conns"`
	DBMaxIdleConns       int           `json:"db_max_idle_conns"`
	DBConnMaxLifetime    time.Duration `json:"-"`
	DBConnMaxLifetimeStr string        `json:"db_conn_max_lifetime"`
	DBConnMaxIdleTime    time.Duration `json:"-"`
	DBConnMaxIdleTimeStr string        `json:"db_conn_max_idle_time"`

	HTTPShutdownTimeout    time.Duration `json:"-"`
	HTTPShutdownTimeoutStr string        `json:"http_shutdown_timeout"`

	MetricsEnabled bool   `json:"metrics_enabled"`
	MetricsPath    string `json:"metrics_path"`
	MetricsPort    string `json:"metrics_port"`

	// BreakerThreshold: 0 disables the circuit breaker, in which case the
	// next scheduled tick is always the retry for a failing source.
	BreakerThreshold   int           `json:"breaker_threshold"`
	BreakerCooldown    time.Duration `json:"-"`
	BreakerCooldownStr string        `json:"breaker_cooldown"`

	WatchdogEnabled      bool          `json:"watchdog_enabled"`
	WatchdogInterval     time.Duration `json:"-"`
	WatchdogIntervalStr  string        `json:"watchdog_interval"`
	WatchdogThreshold    time.Duration `json:"-"`
	WatchdogThresholdStr string        `json:"watchdog_threshold"`

	RedisChannelPrefix string `json:"redis_channel_prefix"`
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	cfg := Config{
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		HTTPAddr:               os.Getenv("HTTP_ADDR"),
		QueryTimeoutStr:        os.Getenv("QUERY_TIMEOUT"),
		MaxStaggerBudgetStr:    os.Getenv("MAX_STAGGER_BUDGET"),
		SleepEnabled:           os.Getenv("SLEEP_ENABLED") != "false",
		SleepDelayStr:          os.Getenv("SLEEP_DELAY"),
		WakeJitterMaxStr:       os.Getenv("WAKE_JITTER_MAX"),
		DBConnMaxLifetimeStr:   os.Getenv("DB_CONN_MAX_LIFETIME"),
		DBConnMaxIdleTimeStr:   os.Getenv("DB_CONN_MAX_IDLE_TIME"),
		HTTPShutdownTimeoutStr: os.Getenv("HTTP_SHUTDOWN_TIMEOUT"),
		MetricsEnabled:         os.Getenv("METRICS_ENABLED") == "true",
		MetricsPath:            os.Getenv("METRICS_PATH"),
		MetricsPort:            os.Getenv("METRICS_PORT"),
		BreakerCooldownStr:     os.Getenv("BREAKER_COOLDOWN"),
		WatchdogEnabled:        os.Getenv("WATCHDOG_ENABLED") == "true",
		WatchdogIntervalStr:    os.Getenv("WATCHDOG_INTERVAL"),
		WatchdogThresholdStr:   os.Getenv("WATCHDOG_THRESHOLD"),
		RedisChannelPrefix:     os.Getenv("REDIS_CHANNEL_PREFIX"),
	}

	cfg.PollRowLimit = intFromEnv("POLL_ROW_LIMIT", 50)
	cfg.TestRowLimit = intFromEnv("TEST_ROW_LIMIT", 10000)
	cfg.CacheMaxBytes = intFromEnv("CACHE_MAX_BYTES", 10<<20)
	cfg.BreakerThreshold = intFromEnv("BREAKER_THRESHOLD", 0)
	cfg.DBMaxOpenConns = intFromEnv("DB_MAX_OPEN_CONNS", 25)
	cfg.DBMaxIdleConns = intFromEnv("DB_MAX_IDLE_CONNS", 5)

	// Support Railway's PORT variable as fallback for HTTP_ADDR.
	if cfg.HTTPAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			cfg.HTTPAddr = ":" + port
		} else {
			cfg.HTTPAddr = ":8080"
		}
	}
	if cfg.QueryTimeoutStr == "" {
		cfg.QueryTimeoutStr = "30s"
	}
	if cfg.MaxStaggerBudgetStr == "" {
		cfg.MaxStaggerBudgetStr = "10s"
	}
	if cfg.SleepDelayStr == "" {
		cfg.SleepDelayStr = "30s"
	}
	if cfg.WakeJitterMaxStr == "" {
		cfg.WakeJitterMaxStr = "2s"
	}
	if cfg.DBConnMaxLifetimeStr == "" {
		cfg.DBConnMaxLifetimeStr = "30m"
	}
	if cfg.DBConnMaxIdleTimeStr == "" {
		cfg.DBConnMaxIdleTimeStr = "5m"
	}
	if cfg.HTTPShutdownTimeoutStr == "" {
		cfg.HTTPShutdownTimeoutStr = "10s"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.MetricsPort == "" {
		cfg.MetricsPort = "9090"
	}
	if cfg.BreakerCooldownStr == "" {
		cfg.BreakerCooldownStr = "2m"
	}
	if cfg.WatchdogIntervalStr == "" {
		cfg.WatchdogIntervalStr = "1m"
	}
	if cfg.WatchdogThresholdStr == "" {
		cfg.WatchdogThresholdStr = "5m"
	}
	if cfg.RedisChannelPrefix == "" {
		cfg.RedisChannelPrefix = "tidewatch:"
	}

	// Parse durations; validation is handled separately by Validate().
	if d, err := time.ParseDuration(cfg.QueryTimeoutStr); err == nil {
		cfg.QueryTimeout = d
	}
	if d, err := time.ParseDuration(cfg.MaxStaggerBudgetStr); err == nil {
		cfg.MaxStaggerBudget = d
	}
	if d, err := time.ParseDuration(cfg.SleepDelayStr); err == nil {
		cfg.SleepDelay = d
	}
	if d, err := time.ParseDuration(cfg.WakeJitterMaxStr); err == nil {
		cfg.WakeJitterMax = d
	}
	if d, err := time.ParseDuration(cfg.DBConnMaxLifetimeStr); err == nil {
		cfg.DBConnMaxLifetime = d
	}
	if d, err := time.ParseDuration(cfg.DBConnMaxIdleTimeStr); err == nil {
		cfg.DBConnMaxIdleTime = d
	}
	if d, err := time.ParseDuration(cfg.HTTPShutdownTimeoutStr); err == nil {
		cfg.HTTPShutdownTimeout = d
	}
	if d, err := time.ParseDuration(cfg.BreakerCooldownStr); err == nil {
		cfg.BreakerCooldown = d
	}
	if d, err := time.ParseDuration(cfg.WatchdogIntervalStr); err == nil {
		cfg.WatchdogInterval = d
	}
	if d, err := time.ParseDuration(cfg.WatchdogThresholdStr); err == nil {
		cfg.WatchdogThreshold = d
	}

	return cfg
}

// intFromEnv parses a positive integer from the environment, logging and
// falling back to def on anything invalid.
func intFromEnv(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		log.Printf("config: invalid %s %q, using default %d", key, raw, def)
		return def
	}
	return n
}

// MaskedJSON returns the configuration as JSON with secrets masked.
func (c Config) MaskedJSON() ([]byte, error) {
	masked := c
	masked.DatabaseURL = maskSecret(c.DatabaseURL)
	return json.MarshalIndent(masked, "", "  ")
}

// maskSecret masks a secret value, preserving only the URI scheme if present.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if len(s) >= len(scheme) && s[:len(scheme)] == scheme {
			return scheme + "***"
		}
	}
	return "***"
}
