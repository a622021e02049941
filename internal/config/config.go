// Package config loads the service configuration from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mkoziy/numbers/syncer/internal/ratelimit"
)

// Config represents the root configuration structure.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Twilio   TwilioConfig   `yaml:"twilio"`
	Sync     SyncConfig     `yaml:"sync"`

	// RateLimits is filled from the rate_limits section by ratelimit.LoadSourceConfigs.
	RateLimits ratelimit.SourceConfigs `yaml:"-"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	// TriggerRatePerMinute limits POST /sync calls per client IP. Zero disables.
	TriggerRatePerMinute int           `yaml:"trigger_rate_per_minute"`
	ReadTimeout          time.Duration `yaml:"read_timeout"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	DSN   string `yaml:"dsn"`
	Debug bool   `yaml:"debug"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TwilioConfig struct {
	AccountSID     string        `yaml:"account_sid"`
	AuthToken      string        `yaml:"auth_token"`
	APIBaseURL     string        `yaml:"api_base_url"`
	NumbersBaseURL string        `yaml:"numbers_base_url"`
	Timeout        time.Duration `yaml:"timeout"`
}

// SyncConfig holds the engine tuning knobs.
type SyncConfig struct {
	Concurrency        int           `yaml:"concurrency"`
	MaxRetries         int           `yaml:"max_retries"`
	JobWorkers         int           `yaml:"job_workers"`
	QueueSize          int           `yaml:"queue_size"`
	JobTimeout         time.Duration `yaml:"job_timeout"`
	WatchdogInterval   time.Duration `yaml:"watchdog_interval"`
	ProgressFlushEvery int           `yaml:"progress_flush_every"`
	ShutdownGrace      time.Duration `yaml:"shutdown_grace"`
}

// DefaultConfig returns a config usable without any file.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr:           ":8080",
			TriggerRatePerMinute: 6,
			ReadTimeout:          15 * time.Second,
			WriteTimeout:         30 * time.Second,
		},
		Database: DatabaseConfig{
			DSN: "file:syncer.db?cache=shared",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Twilio: TwilioConfig{
			Timeout: 30 * time.Second,
		},
		Sync: SyncConfig{
			Concurrency:        10,
			MaxRetries:         2,
			JobWorkers:         2,
			QueueSize:          16,
			JobTimeout:         30 * time.Minute,
			WatchdogInterval:   15 * time.Second,
			ProgressFlushEvery: 25,
			ShutdownGrace:      30 * time.Second,
		},
	}
}

// Load reads path over the defaults and then applies environment overrides.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := Parse(data, &cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Parse decodes a YAML document into cfg, keeping values the document omits.
func Parse(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	limits, err := ratelimit.LoadSourceConfigs(data)
	if err != nil {
		return fmt.Errorf("failed to parse rate limits: %w", err)
	}
	cfg.RateLimits = limits
	return nil
}

func (c *Config) applyEnv() error {
	c.Twilio.AccountSID = getEnv("TWILIO_ACCOUNT_SID", c.Twilio.AccountSID)
	c.Twilio.AuthToken = getEnv("TWILIO_AUTH_TOKEN", c.Twilio.AuthToken)
	c.Database.DSN = getEnv("SYNCER_DATABASE_DSN", c.Database.DSN)
	c.Server.ListenAddr = getEnv("SYNCER_LISTEN_ADDR", c.Server.ListenAddr)
	c.Log.Level = getEnv("SYNCER_LOG_LEVEL", c.Log.Level)

	n, err := getEnvInt("SYNCER_SYNC_CONCURRENCY", c.Sync.Concurrency)
	if err != nil {
		return fmt.Errorf("SYNCER_SYNC_CONCURRENCY: %w", err)
	}
	c.Sync.Concurrency = n

	debug, err := getEnvBool("SYNCER_DEBUG", c.Database.Debug)
	if err != nil {
		return fmt.Errorf("SYNCER_DEBUG: %w", err)
	}
	c.Database.Debug = debug
	if debug && os.Getenv("SYNCER_LOG_LEVEL") == "" {
		c.Log.Level = "debug"
	}
	return nil
}

// Validate rejects settings the service cannot run with. Missing provider
// credentials are allowed; jobs fail on them instead.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	if c.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not json or console", c.Log.Format))
	}
	if c.Sync.Concurrency <= 0 {
		errs = append(errs, errors.New("sync.concurrency must be positive"))
	}
	if c.Sync.MaxRetries < 0 {
		errs = append(errs, errors.New("sync.max_retries must not be negative"))
	}
	if c.Sync.JobWorkers <= 0 {
		errs = append(errs, errors.New("sync.job_workers must be positive"))
	}
	if c.Sync.QueueSize <= 0 {
		errs = append(errs, errors.New("sync.queue_size must be positive"))
	}
	if c.Sync.ProgressFlushEvery <= 0 {
		errs = append(errs, errors.New("sync.progress_flush_every must be positive"))
	}
	if c.Server.TriggerRatePerMinute < 0 {
		errs = append(errs, errors.New("server.trigger_rate_per_minute must not be negative"))
	}
	return errors.Join(errs...)
}

// ProviderRateLimit returns the named provider's limiter and backoff settings
// with sync.max_retries applied.
func (c *Config) ProviderRateLimit(provider string) ratelimit.Config {
	rl, err := c.RateLimits.Get(provider)
	if err != nil {
		rl = ratelimit.DefaultConfig()
	}
	rl.MaxRetries = ratelimit.MaxRetries(c.Sync.MaxRetries)
	return rl
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", v)
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid boolean %q", v)
	}
	return b, nil
}
