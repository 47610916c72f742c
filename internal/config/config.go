// Package config loads the loyalty server configuration: an optional YAML
// file followed by LOYALTY_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is read when LOYALTY_CONFIG is unset.
const DefaultConfigFile = "loyalty.yaml"

// Environment names
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Duration is a time.Duration written as "5m" in YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", node.Line, node.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// SyncConfig configures the background sync.
type SyncConfig struct {
	Enabled            bool     `yaml:"enabled"`
	Interval           Duration `yaml:"interval"`
	RunTimeout         Duration `yaml:"run_timeout"`
	RunOnStart         bool     `yaml:"run_on_start"`
	BrandConcurrency   int      `yaml:"brand_concurrency"`
	MaxVersionAttempts int      `yaml:"max_version_attempts"`
}

// AlertConfig configures operator emails for failed runs.
type AlertConfig struct {
	ResendKey  string   `yaml:"resend_key"`
	From       string   `yaml:"from"`
	Recipients []string `yaml:"recipients"`
}

// Config is the server configuration.
type Config struct {
	Env            string      `yaml:"env"`
	Addr           string      `yaml:"addr"`
	DBPath         string      `yaml:"db_path"`
	LogLevel       string      `yaml:"log_level"`
	AdminTokenHash string      `yaml:"admin_token_hash"` // bcrypt hash; empty disables the admin API
	Sync           SyncConfig  `yaml:"sync"`
	Alerts         AlertConfig `yaml:"alerts"`
}

// Default returns the configuration used when no file or env var says otherwise.
func Default() Config {
	return Config{
		Env:      EnvDevelopment,
		Addr:     ":8080",
		DBPath:   "loyalty.db",
		LogLevel: "info",
		Sync: SyncConfig{
			Enabled:            true,
			Interval:           Duration(5 * time.Minute),
			RunTimeout:         Duration(4 * time.Minute),
			BrandConcurrency:   4,
			MaxVersionAttempts: 5,
		},
		Alerts: AlertConfig{From: "Loyalty Sync <sync@localhost>"},
	}
}

// Load reads the file named by LOYALTY_CONFIG (or DefaultConfigFile), applies
// environment overrides and validates the result. A missing file is not an error.
// POST: returned config has passed Validate
func Load() (Config, error) {
	path := envOrDefault("LOYALTY_CONFIG", DefaultConfigFile)
	cfg, err := LoadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile reads path over the defaults. Returns the defaults if path doesn't exist.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// applyEnv overrides fields from LOYALTY_* variables.
func (c *Config) applyEnv() error {
	c.Env = envOrDefault("LOYALTY_ENV", c.Env)
	c.Addr = envOrDefault("LOYALTY_ADDR", c.Addr)
	c.DBPath = envOrDefault("LOYALTY_DB_PATH", c.DBPath)
	c.LogLevel = envOrDefault("LOYALTY_LOG_LEVEL", c.LogLevel)
	c.AdminTokenHash = envOrDefault("LOYALTY_ADMIN_TOKEN_HASH", c.AdminTokenHash)
	c.Alerts.ResendKey = envOrDefault("LOYALTY_RESEND_KEY", c.Alerts.ResendKey)
	c.Alerts.From = envOrDefault("LOYALTY_RESEND_FROM", c.Alerts.From)
	if v := os.Getenv("LOYALTY_ALERT_RECIPIENTS"); v != "" {
		c.Alerts.Recipients = splitList(v)
	}

	if v := os.Getenv("LOYALTY_SYNC_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("LOYALTY_SYNC_ENABLED: %w", err)
		}
		c.Sync.Enabled = enabled
	}
	if v := os.Getenv("LOYALTY_SYNC_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("LOYALTY_SYNC_INTERVAL: %w", err)
		}
		c.Sync.Interval = Duration(d)
	}
	if v := os.Getenv("LOYALTY_SYNC_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LOYALTY_SYNC_CONCURRENCY: %w", err)
		}
		c.Sync.BrandConcurrency = n
	}
	return nil
}

// Validate checks the configuration for values the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DBPath) == "" {
		errs = append(errs, errors.New("db_path is required"))
	}
	if strings.TrimSpace(c.Addr) == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.Sync.Enabled && c.Sync.Interval <= 0 {
		errs = append(errs, errors.New("sync.interval must be positive when sync is enabled"))
	}
	if c.Sync.RunTimeout < 0 {
		errs = append(errs, errors.New("sync.run_timeout cannot be negative"))
	}
	if c.Sync.BrandConcurrency <= 0 {
		errs = append(errs, errors.New("sync.brand_concurrency must be positive"))
	}
	if c.Alerts.ResendKey != "" && strings.TrimSpace(c.Alerts.From) == "" {
		errs = append(errs, errors.New("alerts.from is required with a resend key"))
	}
	return errors.Join(errs...)
}

// IsProduction reports whether the server runs in production.
func (c Config) IsProduction() bool {
	return c.Env == EnvProduction
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
