// Package orchestrator drives sync jobs end to end: it enumerates targets,
// dispatches one fetch-then-reconcile task per target through the fetcher's
// concurrency gate, and records progress on the job tracker.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mkoziy/numbers/syncer/internal/fetch"
	"github.com/mkoziy/numbers/syncer/internal/jobs"
	"github.com/mkoziy/numbers/syncer/internal/models"
	"github.com/mkoziy/numbers/syncer/internal/telemetry"
)

var (
	ErrShuttingDown   = errors.New("orchestrator is shutting down")
	ErrQueueFull      = errors.New("job queue is full")
	ErrJobTimeout     = errors.New("job timed out")
	ErrUnknownJobType = errors.New("unknown job type")
)

const (
	reasonShutdown  = "interrupted by shutdown"
	reasonRestart   = "interrupted by restart"
	reasonQueueFull = "queue full"
)

// Provider is the upstream catalog.
type Provider interface {
	fetch.DetailFetcher
	// Preflight fails when the provider cannot be used at all, such as
	// when credentials are missing.
	Preflight(ctx context.Context) error
	// ListTargets is the single enumeration call of a job. It is retried
	// like a detail call.
	fetch.TargetLister
}

// Reconciler writes one fetched payload and returns the number of rows written.
type Reconciler interface {
	Reconcile(ctx context.Context, jobType models.JobType, key string, payload any) (int, error)
}

// Orchestrator owns a bounded pool of job runners fed by a bounded queue.
type Orchestrator struct {
	provider   Provider
	reconciler Reconciler
	store      jobs.Store
	opts       Options
	logger     *zap.Logger
	metrics    *telemetry.Metrics

	queue chan *run

	mu      sync.Mutex
	active  map[string]*run
	closing bool
	started bool

	baseCtx context.Context
	stop    context.CancelCauseFunc
	workers sync.WaitGroup
	wdDone  chan struct{}

	newID func() string
	now   func() time.Time
}

// run is one job in flight together with the means to cancel it.
type run struct {
	tracker *jobs.Tracker
	ctx     context.Context
	cancel  context.CancelCauseFunc

	// persistMu orders store writes so an older snapshot never lands
	// after a newer one.
	persistMu sync.Mutex
}

// New creates an orchestrator. Call Start before triggering jobs with CreateJob.
func New(provider Provider, reconciler Reconciler, store jobs.Store, opts Options) *Orchestrator {
	opts = opts.withDefaults()
	ctx, stop := context.WithCancelCause(context.Background())
	return &Orchestrator{
		provider:   provider,
		reconciler: reconciler,
		store:      store,
		opts:       opts,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		queue:      make(chan *run, opts.QueueSize),
		active:     make(map[string]*run),
		baseCtx:    ctx,
		stop:       stop,
		wdDone:     make(chan struct{}),
		newID:      uuid.NewString,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Start launches the runner pool and the watchdog. It is a no-op when called twice.
func (o *Orchestrator) Start() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started {
		return
	}
	o.started = true

	o.logger.Info("starting job runners",
		zap.Int("workers", o.opts.Workers),
		zap.Int("queue_size", o.opts.QueueSize),
		zap.Int("concurrency", o.opts.Concurrency))

	for i := 0; i < o.opts.Workers; i++ {
		o.workers.Add(1)
		go func() {
			defer o.workers.Done()
			for r := range o.queue {
				if o.isClosing() {
					o.abandon(r, reasonShutdown)
					continue
				}
				o.execute(r)
			}
		}()
	}

	go o.watchdog()
}

// Recover fails every job a previous process left unfinished.
func (o *Orchestrator) Recover(ctx context.Context) (int, error) {
	n, err := o.store.FailUnfinished(ctx, reasonRestart, o.now())
	if err != nil {
		return 0, fmt.Errorf("recover unfinished jobs: %w", err)
	}
	if n > 0 {
		o.logger.Warn("marked unfinished jobs failed", zap.Int("count", n))
	}
	return n, nil
}

// CreateJob registers a pending job and queues it. It returns as soon as the
// job is queued. When the queue is full the job is recorded as failed and its
// id is returned with ErrQueueFull.
func (o *Orchestrator) CreateJob(ctx context.Context, jobType models.JobType) (string, error) {
	if !jobType.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownJobType, jobType)
	}
	if o.isClosing() {
		return "", ErrShuttingDown
	}

	job := o.newJob(jobType)
	if err := o.store.Create(ctx, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}

	r := o.newRun(o.baseCtx, job)

	o.mu.Lock()
	if o.closing {
		o.mu.Unlock()
		o.abandon(r, reasonShutdown)
		return job.ID, ErrShuttingDown
	}
	o.active[job.ID] = r
	select {
	case o.queue <- r:
		o.mu.Unlock()
	default:
		o.mu.Unlock()
		o.abandon(r, reasonQueueFull)
		return job.ID, ErrQueueFull
	}

	o.logger.Info("job queued", zap.String("job_id", job.ID), zap.String("job_type", string(jobType)))
	return job.ID, nil
}

// RunOnce runs a job synchronously on the caller's goroutine and returns its
// final state. Cancelling ctx fails the job.
func (o *Orchestrator) RunOnce(ctx context.Context, jobType models.JobType) (*models.SyncJob, error) {
	if !jobType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownJobType, jobType)
	}
	if o.isClosing() {
		return nil, ErrShuttingDown
	}

	job := o.newJob(jobType)
	if err := o.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	r := o.newRun(ctx, job)
	o.mu.Lock()
	o.active[job.ID] = r
	o.mu.Unlock()

	o.execute(r)
	return r.tracker.Snapshot(), nil
}

// GetJob returns a snapshot of the job. Running jobs are served from memory.
func (o *Orchestrator) GetJob(ctx context.Context, id string) (*models.SyncJob, error) {
	if r := o.lookup(id); r != nil {
		return r.tracker.Snapshot(), nil
	}
	return o.store.Get(ctx, id)
}

// ListJobs returns recent jobs, most recent first, with live progress for
// running ones.
func (o *Orchestrator) ListJobs(ctx context.Context, limit int) ([]*models.SyncJob, error) {
	list, err := o.store.List(ctx, limit)
	if err != nil {
		return nil, err
	}
	for i, j := range list {
		if r := o.lookup(j.ID); r != nil {
			list[i] = r.tracker.Snapshot()
		}
	}
	return list, nil
}

// Shutdown stops accepting jobs and fails everything still queued. Running
// jobs may finish until ctx is done; after that they are cancelled and
// marked failed.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	if o.closing {
		o.mu.Unlock()
		return nil
	}
	o.closing = true
	close(o.queue)
	started := o.started
	o.mu.Unlock()

	o.logger.Info("shutting down orchestrator")

	for r := range o.queue {
		o.abandon(r, reasonShutdown)
	}

	done := make(chan struct{})
	go func() {
		o.workers.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
		for _, r := range o.activeRuns() {
			o.interrupt(r, reasonShutdown, ErrShuttingDown)
		}
		select {
		case <-done:
		case <-time.After(cancelGrace):
			o.logger.Warn("job runners did not exit after cancellation")
		}
	}

	o.stop(ErrShuttingDown)
	if started {
		<-o.wdDone
	}
	o.logger.Info("orchestrator stopped")
	return err
}

func (o *Orchestrator) newJob(jobType models.JobType) *models.SyncJob {
	return &models.SyncJob{
		ID:        o.newID(),
		JobType:   jobType,
		Status:    models.StatusPending,
		CreatedAt: o.now(),
	}
}

func (o *Orchestrator) newRun(parent context.Context, job *models.SyncJob) *run {
	ctx, cancel := context.WithCancelCause(parent)
	return &run{
		tracker: jobs.NewTracker(job),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (o *Orchestrator) isClosing() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closing
}

func (o *Orchestrator) lookup(id string) *run {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active[id]
}

func (o *Orchestrator) activeRuns() []*run {
	o.mu.Lock()
	defer o.mu.Unlock()
	runs := make([]*run, 0, len(o.active))
	for _, r := range o.active {
		runs = append(runs, r)
	}
	return runs
}

// abandon fails a job that never started.
func (o *Orchestrator) abandon(r *run, reason string) {
	if err := r.tracker.Fail(reason); err != nil && !errors.Is(err, jobs.ErrTerminal) {
		o.logger.Error("fail job", zap.String("job_id", r.tracker.ID()), zap.Error(err))
	}
	o.finish(r)
}

// interrupt fails a running job and cancels its in-flight work.
func (o *Orchestrator) interrupt(r *run, reason string, cause error) {
	if err := r.tracker.Fail(reason); err == nil {
		o.persist(r)
	}
	r.cancel(cause)
}

// persist writes the tracker's current state. Writes after the stored row
// went terminal are dropped by the store.
func (o *Orchestrator) persist(r *run) {
	r.persistMu.Lock()
	defer r.persistMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	snap := r.tracker.Snapshot()
	err := o.store.Update(ctx, snap)
	switch {
	case err == nil:
	case errors.Is(err, jobs.ErrTerminal):
		o.logger.Debug("skipped write to finished job", zap.String("job_id", snap.ID))
	default:
		o.logger.Error("persist job", zap.String("job_id", snap.ID), zap.Error(err))
	}
}

// finish persists the final state and drops the run from the live registry.
func (o *Orchestrator) finish(r *run) {
	o.persist(r)
	r.cancel(nil)

	o.mu.Lock()
	delete(o.active, r.tracker.ID())
	o.mu.Unlock()

	snap := r.tracker.Snapshot()
	o.metrics.RecordJob(snap.JobType, snap.Status, snap.Duration(o.now()))

	fields := []zap.Field{
		zap.String("job_id", snap.ID),
		zap.String("job_type", string(snap.JobType)),
		zap.String("status", string(snap.Status)),
		zap.Int("items_processed", snap.ItemsProcessed),
		zap.Int("items_failed", snap.ItemsFailed),
		zap.Int("records_written", snap.RecordsWritten),
	}
	if snap.Error != nil {
		o.logger.Warn("job failed", append(fields, zap.String("error", *snap.Error))...)
		return
	}
	o.logger.Info("job finished", fields...)
}
