package ratelimit

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// FixedWindow admits at most RequestsPerSec calls in each one-second window.
// Unlike the token bucket, the whole quota comes back at once when a window
// closes, which matches upstreams that count requests per calendar second.
type FixedWindow struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	origin time.Time
	slot   int64 // windows elapsed since origin
	used   int
	now    func() time.Time
}

// NewFixedWindow creates a fixed window limiter.
func NewFixedWindow(cfg Config) *FixedWindow {
	cfg = applyDefaults(cfg)
	return &FixedWindow{
		limit:  max(1, int(cfg.RequestsPerSec)),
		window: time.Second,
		origin: time.Now(),
		now:    time.Now,
	}
}

// take reports whether the current window has room, consuming a call when
// claim is set. When it is full, it returns the time until the next window.
func (fw *FixedWindow) take(claim bool) (bool, time.Duration) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	elapsed := max(0, fw.now().Sub(fw.origin))
	if s := int64(elapsed / fw.window); s != fw.slot {
		fw.slot, fw.used = s, 0
	}
	if fw.used < fw.limit {
		if claim {
			fw.used++
		}
		return true, 0
	}
	return false, time.Duration(fw.slot+1)*fw.window - elapsed
}

// Wait blocks until a window has room or ctx is done.
func (fw *FixedWindow) Wait(ctx context.Context) error {
	for {
		ok, wait := fw.take(true)
		if ok {
			return nil
		}
		// Jitter spreads waiters released by the same window.
		wait += time.Duration(rand.Int64N(int64(wait)/4 + 1))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Allow consumes a call if the current window has room.
func (fw *FixedWindow) Allow() bool {
	ok, _ := fw.take(true)
	return ok
}

// Reserve returns the wait until a call would be admitted without consuming one.
func (fw *FixedWindow) Reserve() time.Duration {
	_, wait := fw.take(false)
	return wait
}

// Reset starts a fresh window now.
func (fw *FixedWindow) Reset() {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.origin = fw.now()
	fw.slot, fw.used = 0, 0
}
