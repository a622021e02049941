package jobs

import (
	"context"
	"time"

	"github.com/mkoziy/numbers/syncer/internal/models"
)

const (
	DefaultListLimit = 10
	MaxListLimit     = 100
)

// Store persists sync jobs for history and polling.
type Store interface {
	// Create inserts a new job.
	Create(ctx context.Context, job *models.SyncJob) error
	// Update overwrites a job. A stored job that is already terminal is
	// left untouched and ErrTerminal is returned.
	Update(ctx context.Context, job *models.SyncJob) error
	// Get returns ErrNotFound for unknown ids.
	Get(ctx context.Context, id string) (*models.SyncJob, error)
	// List returns jobs most recent first.
	List(ctx context.Context, limit int) ([]*models.SyncJob, error)
	// FailUnfinished marks every pending or in_progress job failed and
	// returns how many were changed.
	FailUnfinished(ctx context.Context, reason string, at time.Time) (int, error)
}

func clampListLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
