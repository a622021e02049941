package jobs

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mkoziy/numbers/syncer/internal/database"
	"github.com/mkoziy/numbers/syncer/internal/migrations"
	"github.com/mkoziy/numbers/syncer/internal/models"
)

func storesUnderTest(t *testing.T) map[string]Store {
	t.Helper()

	db, err := database.NewDB(database.MemoryDSN(t.Name()), false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.RunMigrations(context.Background(), db, zap.NewNop()))

	return map[string]Store{
		"memory": NewMemoryStore(),
		"bun":    NewBunStore(db),
	}
}

func TestStoreCreateGet(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			job := newPendingJob("job-1")
			require.NoError(t, store.Create(ctx, job))

			got, err := store.Get(ctx, "job-1")
			require.NoError(t, err)
			assert.Equal(t, job.ID, got.ID)
			assert.Equal(t, models.StatusPending, got.Status)
			assert.Nil(t, got.ItemsTotal)

			_, err = store.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreUpdateRefusesTerminalRows(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			tr := NewTracker(newPendingJob("job-1"))
			require.NoError(t, store.Create(ctx, tr.Snapshot()))

			require.NoError(t, tr.Start())
			require.NoError(t, tr.SetTotal(1))
			require.True(t, tr.RecordItem(true, 2))
			require.NoError(t, store.Update(ctx, tr.Snapshot()))

			require.NoError(t, tr.Complete())
			require.NoError(t, store.Update(ctx, tr.Snapshot()))

			got, err := store.Get(ctx, "job-1")
			require.NoError(t, err)
			assert.Equal(t, models.StatusCompleted, got.Status)
			assert.Equal(t, 2, got.RecordsWritten)

			tampered := got.Clone()
			tampered.Status = models.StatusFailed
			assert.ErrorIs(t, store.Update(ctx, tampered), ErrTerminal)

			got, err = store.Get(ctx, "job-1")
			require.NoError(t, err)
			assert.Equal(t, models.StatusCompleted, got.Status)

			assert.ErrorIs(t, store.Update(ctx, newPendingJob("missing")), ErrNotFound)
		})
	}
}

func TestStoreListMostRecentFirst(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
			for i := 0; i < 15; i++ {
				job := newPendingJob(fmt.Sprintf("job-%02d", i))
				job.CreatedAt = base.Add(time.Duration(i) * time.Minute)
				require.NoError(t, store.Create(ctx, job))
			}

			list, err := store.List(ctx, 0)
			require.NoError(t, err)
			require.Len(t, list, DefaultListLimit)
			assert.Equal(t, "job-14", list[0].ID)
			assert.Equal(t, "job-05", list[9].ID)

			list, err = store.List(ctx, 3)
			require.NoError(t, err)
			assert.Len(t, list, 3)

			list, err = store.List(ctx, 1000)
			require.NoError(t, err)
			assert.Len(t, list, 15)
		})
	}
}

func TestStoreFailUnfinished(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			pending := newPendingJob("pending")
			running := newPendingJob("running")
			running.Status = models.StatusInProgress
			done := newPendingJob("done")
			done.Status = models.StatusCompleted

			for _, j := range []*models.SyncJob{pending, running, done} {
				require.NoError(t, store.Create(ctx, j))
			}

			at := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
			n, err := store.FailUnfinished(ctx, "interrupted by restart", at)
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			for _, id := range []string{"pending", "running"} {
				got, err := store.Get(ctx, id)
				require.NoError(t, err)
				assert.Equal(t, models.StatusFailed, got.Status)
				require.NotNil(t, got.Error)
				assert.Equal(t, "interrupted by restart", *got.Error)
				require.NotNil(t, got.CompletedAt)
			}

			got, err := store.Get(ctx, "done")
			require.NoError(t, err)
			assert.Equal(t, models.StatusCompleted, got.Status)
		})
	}
}
