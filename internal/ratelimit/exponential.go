package ratelimit

import (
	"math"
	"math/rand/v2"
	"time"
)

// CalculateBackoff computes exponential backoff with +/-25% jitter.
func CalculateBackoff(attempt int, cfg Config) time.Duration {
	if attempt <= 0 {
		return 0
	}
	if attempt > cfg.Retries() {
		return cfg.MaxBackoff
	}

	base := float64(cfg.InitialBackoff) * math.Pow(cfg.BackoffMultiplier, float64(attempt-1))
	if base > float64(cfg.MaxBackoff) {
		base = float64(cfg.MaxBackoff)
	}

	jitter := base * 0.25 * (2*rand.Float64() - 1) // +/-25%
	backoff := base + jitter

	if backoff < 0 {
		backoff = 0
	}
	if backoff > float64(cfg.MaxBackoff) {
		backoff = float64(cfg.MaxBackoff)
	}

	return time.Duration(backoff)
}

// Backoff is the retry schedule of a single call. It satisfies the BackOff
// interface of github.com/cenkalti/backoff/v5 and is not safe for concurrent use.
type Backoff struct {
	cfg     Config
	attempt int
	hint    time.Duration
}

// NewBackoff creates a schedule from cfg.
func NewBackoff(cfg Config) *Backoff {
	return &Backoff{cfg: applyDefaults(cfg)}
}

// Hint makes the next delay d, typically a server supplied Retry-After.
// Hints beyond MaxBackoff are ignored.
func (b *Backoff) Hint(d time.Duration) {
	if d > 0 && d <= b.cfg.MaxBackoff {
		b.hint = d
	}
}

// NextBackOff returns the delay before the next attempt.
func (b *Backoff) NextBackOff() time.Duration {
	b.attempt++
	if b.hint > 0 {
		d := b.hint
		b.hint = 0
		return d
	}
	return CalculateBackoff(b.attempt, b.cfg)
}

// Reset restarts the schedule.
func (b *Backoff) Reset() {
	b.attempt = 0
	b.hint = 0
}

// MaxTries is the number of attempts allowed, the first one included.
func (b *Backoff) MaxTries() uint {
	return uint(b.cfg.Retries()) + 1
}
