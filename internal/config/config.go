package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds service configuration loaded from YAML, .env and environment.
type Config struct {
	ServerPort string
	LogLevel   string

	DatabasePath      string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBBusyTimeout     time.Duration
	DBPingTimeout     time.Duration

	RequestTimeout time.Duration
	RateLimitRPS   int
	RateLimitBurst int

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration

	OverloadWindow         time.Duration
	OverloadThresholdPct   int
	IdleThresholdReqPerMin int
	IdleWindow             time.Duration
	MinimumLifespan        time.Duration
	DegradedWindow         time.Duration
	DegradedErrorPct       int
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`

	Database struct {
		Path            string `yaml:"path"`
		MaxOpenConns    *int   `yaml:"max_open_conns"`
		MaxIdleConns    *int   `yaml:"max_idle_conns"`
		ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		BusyTimeout     string `yaml:"busy_timeout"`
		PingTimeout     string `yaml:"ping_timeout"`
	} `yaml:"database"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Reliability struct {
		RateLimitRPS   *int `yaml:"rate_limit_rps"`
		RateLimitBurst int  `yaml:"rate_limit_burst"`

		CircuitBreaker struct {
			Enabled          *bool  `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Lifecycle struct {
		OverloadWindow         string `yaml:"overload_window"`
		OverloadThresholdPct   int    `yaml:"overload_threshold_pct"`
		IdleThresholdReqPerMin int    `yaml:"idle_threshold_req_per_min"`
		IdleWindow             string `yaml:"idle_window"`
		MinimumLifespan        string `yaml:"minimum_lifespan"`
		DegradedWindow         string `yaml:"degraded_window"`
		DegradedErrorPct       int    `yaml:"degraded_error_pct"`
	} `yaml:"lifecycle"`
}

// Load reads .env (when present) and config/{ENV_NAME}.yaml (default dev) from the working
// directory. DATABASE_PATH, SERVER_PORT and LOG_LEVEL override the file. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}

	// Variables already set in the process environment win over .env.
	if err := godotenv.Load(filepath.Join(cwd, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = firstNonEmpty(os.Getenv("SERVER_PORT"), fc.Server.Port, "8080")
	cfg.LogLevel = strings.ToUpper(firstNonEmpty(os.Getenv("LOG_LEVEL"), fc.Logging.Level, "INFO"))

	cfg.DatabasePath = firstNonEmpty(os.Getenv("DATABASE_PATH"), fc.Database.Path)
	if cfg.DatabasePath != "" && !filepath.IsAbs(cfg.DatabasePath) {
		cfg.DatabasePath = filepath.Join(cwd, cfg.DatabasePath)
	}
	cfg.DBMaxOpenConns = intOrDefault(fc.Database.MaxOpenConns, 4)
	cfg.DBMaxIdleConns = intOrDefault(fc.Database.MaxIdleConns, 4)
	cfg.DBConnMaxLifetime = parseDurationOrZero(fc.Database.ConnMaxLifetime, 0)
	cfg.DBBusyTimeout = parseDuration(fc.Database.BusyTimeout, 5*time.Second)
	cfg.DBPingTimeout = parseDuration(fc.Database.PingTimeout, time.Second)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 5*time.Second)

	cfg.RateLimitRPS = intOrDefault(fc.Reliability.RateLimitRPS, 100)
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 250
	}

	cfg.CircuitBreakerEnabled = true
	if fc.Reliability.CircuitBreaker.Enabled != nil {
		cfg.CircuitBreakerEnabled = *fc.Reliability.CircuitBreaker.Enabled
	}
	cfg.CircuitBreakerFailureThreshold = fc.Reliability.CircuitBreaker.FailureThreshold
	if cfg.CircuitBreakerFailureThreshold <= 0 {
		cfg.CircuitBreakerFailureThreshold = 5
	}
	cfg.CircuitBreakerSuccessThreshold = fc.Reliability.CircuitBreaker.SuccessThreshold
	if cfg.CircuitBreakerSuccessThreshold <= 0 {
		cfg.CircuitBreakerSuccessThreshold = 2
	}
	cfg.CircuitBreakerTimeout = parseDuration(fc.Reliability.CircuitBreaker.Timeout, 30*time.Second)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.OverloadWindow = parseDuration(fc.Lifecycle.OverloadWindow, 60*time.Second)
	cfg.OverloadThresholdPct = fc.Lifecycle.OverloadThresholdPct
	if cfg.OverloadThresholdPct <= 0 {
		cfg.OverloadThresholdPct = 80
	}
	cfg.IdleThresholdReqPerMin = fc.Lifecycle.IdleThresholdReqPerMin
	if cfg.IdleThresholdReqPerMin <= 0 {
		cfg.IdleThresholdReqPerMin = 5
	}
	cfg.IdleWindow = parseDuration(fc.Lifecycle.IdleWindow, 5*time.Minute)
	cfg.MinimumLifespan = parseDuration(fc.Lifecycle.MinimumLifespan, 5*time.Minute)
	cfg.DegradedWindow = parseDuration(fc.Lifecycle.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Lifecycle.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 5
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// intOrDefault distinguishes an explicit 0 (kept) from an omitted key.
func intOrDefault(v *int, defaultVal int) int {
	if v == nil {
		return defaultVal
	}
	return *v
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
func validate(cfg *Config) error {
	if cfg.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH required (set env or database.path)")
	}
	if cfg.DBMaxOpenConns < 0 || cfg.DBMaxIdleConns < 0 {
		return fmt.Errorf("database pool sizes must be non-negative, got open=%d idle=%d", cfg.DBMaxOpenConns, cfg.DBMaxIdleConns)
	}
	if cfg.DBConnMaxLifetime < 0 {
		return fmt.Errorf("database.conn_max_lifetime must be non-negative")
	}
	if cfg.RateLimitRPS < 0 {
		return fmt.Errorf("reliability.rate_limit_rps must be non-negative, got %d", cfg.RateLimitRPS)
	}
	switch cfg.LogLevel {
	case "DEBUG", "INFO", "WARN", "WARNING", "ERROR":
	default:
		return fmt.Errorf("log level must be DEBUG, INFO, WARN or ERROR, got %q", cfg.LogLevel)
	}
	return nil
}
