// Package fetch performs provider detail calls behind a fixed-width
// concurrency gate and retries rate-limited and transient failures.
package fetch

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/mkoziy/numbers/syncer/internal/models"
	"github.com/mkoziy/numbers/syncer/internal/ratelimit"
	"github.com/mkoziy/numbers/syncer/internal/telemetry"
)

// DefaultConcurrency is the number of simultaneous detail calls per job.
const DefaultConcurrency = 10

// DetailFetcher is the single upstream call guarded by the Fetcher.
type DetailFetcher interface {
	FetchDetail(ctx context.Context, jobType models.JobType, key string) (any, error)
}

// Result is the terminal outcome of one item's fetch, retries included.
type Result struct {
	Outcome  Outcome
	Payload  any
	Err      error
	Attempts int
}

// OK reports whether the payload is usable.
func (r Result) OK() bool {
	return r.Outcome == OutcomeSuccess
}

// Options configures a Fetcher.
type Options struct {
	Concurrency int
	Retry       ratelimit.Config
	Metrics     *telemetry.Metrics
	Logger      *zap.Logger
}

// Fetcher bounds in-flight detail calls with a weighted semaphore.
type Fetcher struct {
	source  DetailFetcher
	sem     *semaphore.Weighted
	width   int
	retry   ratelimit.Config
	metrics *telemetry.Metrics
	logger  *zap.Logger

	active atomic.Int64
	peak   atomic.Int64
}

// New creates a Fetcher over source.
func New(source DetailFetcher, opts Options) *Fetcher {
	width := opts.Concurrency
	if width <= 0 {
		width = DefaultConcurrency
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		source:  source,
		sem:     semaphore.NewWeighted(int64(width)),
		width:   width,
		retry:   ratelimit.WithDefaults(opts.Retry),
		metrics: opts.Metrics,
		logger:  logger,
	}
}

// Width is the configured concurrency limit.
func (f *Fetcher) Width() int {
	return f.width
}

// InFlight is the number of calls currently holding a slot.
func (f *Fetcher) InFlight() int64 {
	return f.active.Load()
}

// Peak is the highest InFlight value observed.
func (f *Fetcher) Peak() int64 {
	return f.peak.Load()
}

// Fetch retrieves the detail payload for key. Rate-limited and transient
// failures are retried up to the configured count; the slot is released
// between attempts so backoff never holds capacity.
func (f *Fetcher) Fetch(ctx context.Context, jobType models.JobType, key string) Result {
	payload, res := retry(ctx, f, jobType, key, func() (any, error) {
		return f.attempt(ctx, jobType, key)
	})
	res.Payload = payload
	return res
}

// ListTargets runs the enumeration call under the same retry policy as Fetch.
// It does not take a concurrency slot.
func (f *Fetcher) ListTargets(ctx context.Context, jobType models.JobType, lister TargetLister) ([]string, Result) {
	return retry(ctx, f, jobType, "", func() ([]string, error) {
		return lister.ListTargets(ctx, jobType)
	})
}

// TargetLister enumerates the item keys of a job.
type TargetLister interface {
	ListTargets(ctx context.Context, jobType models.JobType) ([]string, error)
}

func retry[T any](ctx context.Context, f *Fetcher, jobType models.JobType, key string, op func() (T, error)) (T, Result) {
	policy := ratelimit.NewBackoff(f.retry)
	attempts := 0
	last := OutcomeSuccess

	v, err := backoff.Retry(ctx, func() (T, error) {
		attempts++
		v, err := op()
		last = Classify(err)
		f.metrics.RecordFetchAttempt(jobType, last.String())
		if err == nil {
			return v, nil
		}

		if !last.Retryable() {
			return v, backoff.Permanent(err)
		}
		var ra retryAfterer
		if errors.As(err, &ra) {
			policy.Hint(ra.RetryAfterHint())
		}
		return v, err
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(policy.MaxTries()),
		backoff.WithNotify(func(err error, next time.Duration) {
			f.logger.Debug("retrying provider call",
				zap.String("job_type", string(jobType)),
				zap.String("item", key),
				zap.Int("attempt", attempts),
				zap.Int64("in_flight", f.InFlight()),
				zap.Duration("backoff", next),
				zap.Error(err))
		}),
	)

	if err == nil {
		return v, Result{Outcome: OutcomeSuccess, Attempts: attempts}
	}

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Unwrap()
	}
	if ctxErr := context.Cause(ctx); ctxErr != nil && last == OutcomeSuccess {
		last = OutcomeTransient
		err = ctxErr
	}
	var zero T
	return zero, Result{Outcome: last, Err: err, Attempts: attempts}
}

func (f *Fetcher) attempt(ctx context.Context, jobType models.JobType, key string) (any, error) {
	if err := f.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer f.sem.Release(1)

	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	f.metrics.FetchStarted()
	defer f.metrics.FetchFinished()

	return f.source.FetchDetail(ctx, jobType, key)
}
