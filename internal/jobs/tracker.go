// Package jobs owns the sync job state machine and its persistence.
package jobs

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mkoziy/numbers/syncer/internal/models"
)

var (
	// ErrTerminal is returned for any change to a completed or failed job.
	ErrTerminal = errors.New("job is in a terminal state")
	// ErrInvalidTransition is returned for transitions the state machine forbids.
	ErrInvalidTransition = errors.New("invalid job state transition")
	// ErrNotFound is returned when no job has the given id.
	ErrNotFound = errors.New("job not found")
)

// Tracker holds the live state of one job. All mutations and reads are
// serialized by a mutex, so counters never race and readers always see a
// consistent snapshot.
type Tracker struct {
	mu  sync.RWMutex
	job models.SyncJob
	now func() time.Time
}

// NewTracker starts tracking job, which is copied.
func NewTracker(job *models.SyncJob) *Tracker {
	return &Tracker{
		job: *job.Clone(),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// ID returns the job id.
func (t *Tracker) ID() string {
	return t.job.ID
}

// JobType returns the job type.
func (t *Tracker) JobType() models.JobType {
	return t.job.JobType
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() *models.SyncJob {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.job.Clone()
}

// Start moves a pending job to in_progress.
func (t *Tracker) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.job.Status.IsTerminal() {
		return ErrTerminal
	}
	if t.job.Status != models.StatusPending {
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, t.job.Status)
	}

	now := t.now()
	t.job.Status = models.StatusInProgress
	t.job.StartedAt = &now
	return nil
}

// SetTotal fixes items_total once enumeration finished.
func (t *Tracker) SetTotal(n int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.job.Status.IsTerminal() {
		return ErrTerminal
	}
	if t.job.Status != models.StatusInProgress {
		return fmt.Errorf("%w: set total while %s", ErrInvalidTransition, t.job.Status)
	}
	if t.job.ItemsTotal != nil {
		return fmt.Errorf("%w: total already set", ErrInvalidTransition)
	}
	if n < 0 {
		return fmt.Errorf("%w: negative total %d", ErrInvalidTransition, n)
	}

	t.job.ItemsTotal = &n
	return nil
}

// RecordItem counts one finished item. It reports false when the event was
// dropped because the job is terminal or every item is already counted.
func (t *Tracker) RecordItem(succeeded bool, records int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.job.Status != models.StatusInProgress || t.job.ItemsTotal == nil {
		return false
	}
	if t.job.ItemsProcessed >= *t.job.ItemsTotal {
		return false
	}

	t.job.ItemsProcessed++
	if succeeded {
		t.job.ItemsSucceeded++
		t.job.RecordsWritten += records
	} else {
		t.job.ItemsFailed++
	}
	return true
}

// Complete moves an in_progress job whose items are all counted to completed.
func (t *Tracker) Complete() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.job.Status.IsTerminal() {
		return ErrTerminal
	}
	if t.job.Status != models.StatusInProgress || t.job.ItemsTotal == nil {
		return fmt.Errorf("%w: complete while %s", ErrInvalidTransition, t.job.Status)
	}
	if t.job.ItemsProcessed != *t.job.ItemsTotal {
		return fmt.Errorf("%w: %d of %d items processed", ErrInvalidTransition, t.job.ItemsProcessed, *t.job.ItemsTotal)
	}

	now := t.now()
	t.job.Status = models.StatusCompleted
	t.job.CompletedAt = &now
	return nil
}

// Fail moves a non-terminal job to failed with a human-readable cause.
func (t *Tracker) Fail(cause string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.job.Status.IsTerminal() {
		return ErrTerminal
	}
	if cause == "" {
		cause = "unknown error"
	}

	now := t.now()
	t.job.Status = models.StatusFailed
	t.job.Error = &cause
	t.job.CompletedAt = &now
	return nil
}
