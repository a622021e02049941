package jobs

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"github.com/mkoziy/numbers/syncer/internal/models"
)

var (
	terminalStatuses   = []string{string(models.StatusCompleted), string(models.StatusFailed)}
	unfinishedStatuses = []string{string(models.StatusPending), string(models.StatusInProgress)}
)

// BunStore keeps jobs in the sync_jobs table.
type BunStore struct {
	db bun.IDB
}

// NewBunStore creates a store over db. The sync_jobs table must exist.
func NewBunStore(db bun.IDB) *BunStore {
	return &BunStore{db: db}
}

func (s *BunStore) Create(ctx context.Context, job *models.SyncJob) error {
	_, err := s.db.NewInsert().Model(job).Exec(ctx)
	return err
}

func (s *BunStore) Update(ctx context.Context, job *models.SyncJob) error {
	res, err := s.db.NewUpdate().
		Model(job).
		ExcludeColumn("created_at").
		WherePK().
		Where("status NOT IN (?)", bun.In(terminalStatuses)).
		Exec(ctx)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	if _, err := s.Get(ctx, job.ID); err != nil {
		return err
	}
	return ErrTerminal
}

func (s *BunStore) Get(ctx context.Context, id string) (*models.SyncJob, error) {
	job := new(models.SyncJob)
	err := s.db.NewSelect().Model(job).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (s *BunStore) List(ctx context.Context, limit int) ([]*models.SyncJob, error) {
	jobs := make([]*models.SyncJob, 0)
	err := s.db.NewSelect().
		Model(&jobs).
		OrderExpr("created_at DESC, rowid DESC").
		Limit(clampListLimit(limit)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (s *BunStore) FailUnfinished(ctx context.Context, reason string, at time.Time) (int, error) {
	res, err := s.db.NewUpdate().
		Model((*models.SyncJob)(nil)).
		Set("status = ?", models.StatusFailed).
		Set("error = ?", reason).
		Set("completed_at = ?", at).
		Where("status IN (?)", bun.In(unfinishedStatuses)).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
