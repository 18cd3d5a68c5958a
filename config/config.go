// Package config handles bhakti-sync configuration file parsing.
//
// Configuration lives in a YAML file (default "bhakti.yaml"):
//
//	server_url: "https://bhakti.example.com"  - Remote tracker server base URL
//	db_path: "~/.bhakti/local.db"             - Local SQLite store path
//	request_timeout_seconds: 5                - Per-request remote timeout
//	sync_interval_seconds: 0                  - Auto-sync interval (0 disables)
//	retry:
//	  max_attempts: 6
//	  backoff_cap_seconds: 30
//	logging:
//	  level: info
//	  format: text
//
// Environment variables prefixed BHAKTI_ override file values. A .env file
// in the working directory is loaded first when present.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/bhaktidev/bhakti-sync/logging"
)

// FileName is the default name of the configuration file.
const FileName = "bhakti.yaml"

// RetryConfig bounds the push retry loop.
type RetryConfig struct {
	MaxAttempts       int `yaml:"max_attempts"`
	BackoffCapSeconds int `yaml:"backoff_cap_seconds"`
}

// Config represents the bhakti-sync configuration file.
type Config struct {
	ServerURL             string         `yaml:"server_url"`
	DBPath                string         `yaml:"db_path"`
	RequestTimeoutSeconds int            `yaml:"request_timeout_seconds"`
	SyncIntervalSeconds   int            `yaml:"sync_interval_seconds"`
	Retry                 RetryConfig    `yaml:"retry"`
	Logging               logging.Config `yaml:"logging"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		ServerURL:             "http://localhost:3000",
		DBPath:                "bhakti.db",
		RequestTimeoutSeconds: 5,
		Retry: RetryConfig{
			MaxAttempts:       6,
			BackoffCapSeconds: 30,
		},
		Logging: logging.DefaultConfig,
	}
}

// RequestTimeout returns the remote request timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// SyncInterval returns the auto-sync interval; zero disables auto sync.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalSeconds) * time.Second
}

// BackoffCap returns the maximum delay between retry attempts.
func (c *Config) BackoffCap() time.Duration {
	return time.Duration(c.Retry.BackoffCapSeconds) * time.Second
}

// Load reads configuration from path. A missing file is not an error: the
// defaults are returned, adjusted by any environment overrides.
func Load(path string) (*Config, error) {
	// Optional .env next to the config file keeps deployment-specific values
	// out of the YAML.
	_ = godotenv.Load(filepath.Join(filepath.Dir(path), ".env"))

	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// fall through to env overrides
	case err != nil:
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server_url must not be empty")
	}
	if !strings.HasPrefix(c.ServerURL, "http://") && !strings.HasPrefix(c.ServerURL, "https://") {
		return fmt.Errorf("server_url %q must be an http(s) URL", c.ServerURL)
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path must not be empty")
	}
	if c.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("request_timeout_seconds must be positive, got %d", c.RequestTimeoutSeconds)
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be positive, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.BackoffCapSeconds <= 0 {
		return fmt.Errorf("retry.backoff_cap_seconds must be positive, got %d", c.Retry.BackoffCapSeconds)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("BHAKTI_SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("BHAKTI_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("BHAKTI_REQUEST_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RequestTimeoutSeconds = n
		}
	}
	if v := os.Getenv("BHAKTI_SYNC_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SyncIntervalSeconds = n
		}
	}
	if v := os.Getenv("BHAKTI_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
