package ratelimit

import (
	"fmt"
	"time"
)

// Config holds outbound pacing and retry settings for one upstream.
type Config struct {
	Strategy          Strategy      `yaml:"strategy" json:"strategy"`
	RequestsPerSec    float64       `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int           `yaml:"burst" json:"burst"`
	FixedDelay        time.Duration `yaml:"fixed_delay" json:"fixed_delay"`
	MaxRetries        *int          `yaml:"max_retries" json:"max_retries"`
	InitialBackoff    time.Duration `yaml:"initial_backoff" json:"initial_backoff"`
	MaxBackoff        time.Duration `yaml:"max_backoff" json:"max_backoff"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier" json:"backoff_multiplier"`
}

// DefaultConfig returns defaults tuned for the provider's REST API:
// two retries with a doubling delay.
func DefaultConfig() Config {
	return Config{
		Strategy:          StrategyTokenBucket,
		RequestsPerSec:    20,
		Burst:             10,
		FixedDelay:        100 * time.Millisecond,
		MaxRetries:        MaxRetries(2),
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// MaxRetries returns a pointer for Config.MaxRetries. Zero means a single
// attempt; a nil MaxRetries falls back to the default.
func MaxRetries(n int) *int {
	return &n
}

// Retries is the number of retries after the first attempt.
func (c Config) Retries() int {
	if c.MaxRetries == nil {
		return *DefaultConfig().MaxRetries
	}
	return *c.MaxRetries
}

// Validate rejects settings that cannot be applied.
func (c Config) Validate() error {
	switch c.Strategy {
	case "", StrategyTokenBucket, StrategyFixedWindow, StrategyFixedDelay, StrategyNone:
	default:
		return fmt.Errorf("unknown rate limit strategy %q", c.Strategy)
	}
	if c.MaxRetries != nil && *c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	if c.InitialBackoff > 0 && c.MaxBackoff > 0 && c.InitialBackoff > c.MaxBackoff {
		return fmt.Errorf("initial_backoff %s exceeds max_backoff %s", c.InitialBackoff, c.MaxBackoff)
	}
	return nil
}

func applyDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.Strategy == "" {
		cfg.Strategy = def.Strategy
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = def.RequestsPerSec
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.MaxRetries == nil {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.BackoffMultiplier <= 0 {
		cfg.BackoffMultiplier = def.BackoffMultiplier
	}
	if cfg.FixedDelay <= 0 {
		cfg.FixedDelay = def.FixedDelay
	}
	return cfg
}

// WithDefaults returns cfg with unset fields replaced by defaults. An explicit
// MaxRetries of zero is kept.
func WithDefaults(cfg Config) Config {
	return applyDefaults(cfg)
}
