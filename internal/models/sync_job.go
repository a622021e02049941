package models

import (
	"time"

	"github.com/uptrace/bun"
)

// SyncJob tracks one sync run from trigger to a terminal state.
type SyncJob struct {
	bun.BaseModel `bun:"table:sync_jobs,alias:sj"`

	ID             string     `bun:"id,pk,type:varchar(36)" json:"job_id"`
	JobType        JobType    `bun:"job_type,notnull" json:"job_type"`
	Status         JobStatus  `bun:"status,notnull" json:"status"`
	ItemsTotal     *int       `bun:"items_total" json:"items_total"`
	ItemsProcessed int        `bun:"items_processed,notnull,default:0" json:"items_processed"`
	ItemsSucceeded int        `bun:"items_succeeded,notnull,default:0" json:"items_succeeded"`
	ItemsFailed    int        `bun:"items_failed,notnull,default:0" json:"items_failed"`
	RecordsWritten int        `bun:"records_written,notnull,default:0" json:"records_written"`
	Error          *string    `bun:"error" json:"error"`
	CreatedAt      time.Time  `bun:"created_at,notnull" json:"created_at"`
	StartedAt      *time.Time `bun:"started_at" json:"started_at"`
	CompletedAt    *time.Time `bun:"completed_at" json:"completed_at"`
}

// IsTerminal reports whether the job reached completed or failed.
func (j *SyncJob) IsTerminal() bool {
	return j.Status.IsTerminal()
}

// Duration returns the run time so far, or the total run time once terminal.
func (j *SyncJob) Duration(now time.Time) time.Duration {
	if j.StartedAt == nil {
		return 0
	}
	if j.CompletedAt != nil {
		return j.CompletedAt.Sub(*j.StartedAt)
	}
	return now.Sub(*j.StartedAt)
}

// Clone returns a deep copy safe to hand to readers.
func (j *SyncJob) Clone() *SyncJob {
	if j == nil {
		return nil
	}
	c := *j
	if j.ItemsTotal != nil {
		v := *j.ItemsTotal
		c.ItemsTotal = &v
	}
	if j.Error != nil {
		v := *j.Error
		c.Error = &v
	}
	if j.StartedAt != nil {
		v := *j.StartedAt
		c.StartedAt = &v
	}
	if j.CompletedAt != nil {
		v := *j.CompletedAt
		c.CompletedAt = &v
	}
	return &c
}
