package orchestrator

import (
	"time"

	"go.uber.org/zap"

	"github.com/mkoziy/numbers/syncer/internal/fetch"
	"github.com/mkoziy/numbers/syncer/internal/ratelimit"
	"github.com/mkoziy/numbers/syncer/internal/telemetry"
)

const (
	DefaultWorkers          = 2
	DefaultQueueSize        = 16
	DefaultJobTimeout       = 30 * time.Minute
	DefaultWatchdogInterval = 15 * time.Second
	DefaultFlushEvery       = 25

	storeTimeout = 10 * time.Second
	cancelGrace  = 5 * time.Second
)

// Options tunes the orchestrator. Zero values fall back to the defaults above.
type Options struct {
	// Concurrency is the per-job fetch width.
	Concurrency int
	Retry       ratelimit.Config

	// Workers is the number of jobs that may run at once.
	Workers   int
	QueueSize int

	// JobTimeout of zero or less disables the watchdog.
	JobTimeout       time.Duration
	WatchdogInterval time.Duration

	// FlushEvery persists progress every N processed items.
	FlushEvery int

	Metrics *telemetry.Metrics
	Logger  *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = fetch.DefaultConcurrency
	}
	o.Retry = ratelimit.WithDefaults(o.Retry)
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.WatchdogInterval <= 0 {
		o.WatchdogInterval = DefaultWatchdogInterval
	}
	if o.FlushEvery <= 0 {
		o.FlushEvery = DefaultFlushEvery
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}
