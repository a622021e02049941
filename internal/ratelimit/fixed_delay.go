package ratelimit

import (
	"golang.org/x/time/rate"
)

// FixedDelayLimiter spaces requests at least FixedDelay apart. It is a token
// bucket of size one refilled once per delay.
type FixedDelayLimiter struct {
	*bucket
}

// NewFixedDelayLimiter creates a fixed delay limiter.
func NewFixedDelayLimiter(cfg Config) *FixedDelayLimiter {
	cfg = applyDefaults(cfg)
	return &FixedDelayLimiter{bucket: newBucket(rate.Every(cfg.FixedDelay), 1)}
}
