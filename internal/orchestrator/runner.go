package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mkoziy/numbers/syncer/internal/fetch"
	"github.com/mkoziy/numbers/syncer/internal/jobs"
)

// execute drives one job from pending to a terminal state.
func (o *Orchestrator) execute(r *run) {
	defer o.finish(r)

	t := r.tracker
	logger := o.logger.With(zap.String("job_id", t.ID()), zap.String("job_type", string(t.JobType())))

	if err := t.Start(); err != nil {
		logger.Debug("job not started", zap.Error(err))
		return
	}
	o.metrics.JobStarted()
	defer o.metrics.JobFinished()
	o.persist(r)

	ctx := r.ctx
	if err := o.provider.Preflight(ctx); err != nil {
		o.failRun(r, fmt.Sprintf("preflight: %v", err))
		return
	}

	fetcher := fetch.New(o.provider, fetch.Options{
		Concurrency: o.opts.Concurrency,
		Retry:       o.opts.Retry,
		Metrics:     o.metrics,
		Logger:      logger,
	})

	keys, res := fetcher.ListTargets(ctx, t.JobType(), o.provider)
	if !res.OK() {
		o.failRun(r, fmt.Sprintf("enumerate targets: %v", res.Err))
		return
	}
	if err := t.SetTotal(len(keys)); err != nil {
		logger.Debug("job ended before enumeration finished", zap.Error(err))
		return
	}
	o.persist(r)
	logger.Info("dispatching items", zap.Int("items_total", len(keys)))

	var (
		g         errgroup.Group
		processed atomic.Int64
	)
	g.SetLimit(fetcher.Width())
	for _, key := range keys {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			o.processItem(ctx, r, fetcher, key, logger)
			if n := processed.Add(1); n%int64(o.opts.FlushEvery) == 0 {
				o.persist(r)
			}
			return nil
		})
	}
	_ = g.Wait()

	if cause := context.Cause(ctx); cause != nil {
		o.failRun(r, cause.Error())
		return
	}

	if err := t.Complete(); err != nil {
		if !errors.Is(err, jobs.ErrTerminal) {
			o.failRun(r, err.Error())
		}
		return
	}
	logger.Debug("job completed", zap.Int64("peak_in_flight", fetcher.Peak()))
}

// processItem fetches and reconciles one target and counts it either way.
func (o *Orchestrator) processItem(ctx context.Context, r *run, f *fetch.Fetcher, key string, logger *zap.Logger) {
	jobType := r.tracker.JobType()
	res := f.Fetch(ctx, jobType, key)

	succeeded := false
	records := 0
	if res.OK() {
		n, err := o.reconciler.Reconcile(ctx, jobType, key, res.Payload)
		if err != nil {
			logger.Warn("reconcile failed", zap.String("item", key), zap.Error(err))
		} else {
			succeeded = true
			records = n
		}
	} else {
		logger.Warn("fetch failed",
			zap.String("item", key),
			zap.String("outcome", res.Outcome.String()),
			zap.Int("attempts", res.Attempts),
			zap.Error(res.Err))
	}

	if !r.tracker.RecordItem(succeeded, records) {
		return
	}
	outcome := "succeeded"
	if !succeeded {
		outcome = "failed"
	}
	o.metrics.RecordItem(jobType, outcome)
}

// failRun records a job-level failure; a job that already ended is left alone.
func (o *Orchestrator) failRun(r *run, reason string) {
	if err := r.tracker.Fail(reason); err != nil && !errors.Is(err, jobs.ErrTerminal) {
		o.logger.Error("fail job", zap.String("job_id", r.tracker.ID()), zap.Error(err))
	}
}

func (o *Orchestrator) watchdog() {
	defer close(o.wdDone)
	if o.opts.JobTimeout <= 0 {
		<-o.baseCtx.Done()
		return
	}

	ticker := time.NewTicker(o.opts.WatchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-o.baseCtx.Done():
			return
		case <-ticker.C:
			o.checkTimeouts()
		}
	}
}

// checkTimeouts fails every running job older than the job timeout.
func (o *Orchestrator) checkTimeouts() {
	now := o.now()
	for _, r := range o.activeRuns() {
		snap := r.tracker.Snapshot()
		if snap.IsTerminal() || snap.StartedAt == nil {
			continue
		}
		if now.Sub(*snap.StartedAt) <= o.opts.JobTimeout {
			continue
		}
		o.logger.Warn("job exceeded timeout",
			zap.String("job_id", snap.ID),
			zap.Duration("timeout", o.opts.JobTimeout))
		o.interrupt(r, fmt.Sprintf("job timed out after %s", o.opts.JobTimeout), ErrJobTimeout)
	}
}
