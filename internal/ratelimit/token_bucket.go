package ratelimit

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// bucket adapts a rate.Limiter to Limiter. Reset swaps in a full bucket.
type bucket struct {
	l     atomic.Pointer[rate.Limiter]
	limit rate.Limit
	burst int
}

func newBucket(limit rate.Limit, burst int) *bucket {
	b := &bucket{limit: limit, burst: max(burst, 1)}
	b.Reset()
	return b
}

func (b *bucket) Wait(ctx context.Context) error {
	return b.l.Load().Wait(ctx)
}

func (b *bucket) Allow() bool {
	return b.l.Load().Allow()
}

// Reserve reports how long a request made now would wait, without taking a token.
func (b *bucket) Reserve() time.Duration {
	now := time.Now()
	r := b.l.Load().ReserveN(now, 1)
	if !r.OK() {
		return 0
	}
	d := r.DelayFrom(now)
	r.CancelAt(now)
	return d
}

func (b *bucket) Reset() {
	b.l.Store(rate.NewLimiter(b.limit, b.burst))
}

// TokenBucket allows RequestsPerSec on average with bursts up to Burst.
type TokenBucket struct {
	*bucket
}

// NewTokenBucket creates a token bucket limiter that starts full.
func NewTokenBucket(cfg Config) *TokenBucket {
	cfg = applyDefaults(cfg)
	return &TokenBucket{bucket: newBucket(rate.Limit(cfg.RequestsPerSec), cfg.Burst)}
}
