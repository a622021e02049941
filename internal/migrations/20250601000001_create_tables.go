package migrations

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/mkoziy/numbers/syncer/internal/models"
)

func init() {
	tables := []interface{}{
		(*models.CountryNumberTypes)(nil),
		(*models.Regulation)(nil),
		(*models.SyncJob)(nil),
	}

	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		for _, model := range tables {
			if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		for i := len(tables) - 1; i >= 0; i-- {
			if _, err := db.NewDropTable().Model(tables[i]).IfExists().Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}
