package migrations

import (
	"context"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		indexes := []string{
			"CREATE INDEX IF NOT EXISTS idx_regulations_iso_country ON regulations(iso_country)",
			"CREATE INDEX IF NOT EXISTS idx_regulations_country_type ON regulations(iso_country, number_type)",
			"CREATE INDEX IF NOT EXISTS idx_sync_jobs_created_at ON sync_jobs(created_at DESC)",
			"CREATE INDEX IF NOT EXISTS idx_sync_jobs_status ON sync_jobs(status)",
		}

		for _, idx := range indexes {
			if _, err := db.ExecContext(ctx, idx); err != nil {
				return err
			}
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		indexes := []string{
			"DROP INDEX IF EXISTS idx_regulations_iso_country",
			"DROP INDEX IF EXISTS idx_regulations_country_type",
			"DROP INDEX IF EXISTS idx_sync_jobs_created_at",
			"DROP INDEX IF EXISTS idx_sync_jobs_status",
		}

		for _, idx := range indexes {
			if _, err := db.ExecContext(ctx, idx); err != nil {
				return err
			}
		}

		return nil
	})
}
