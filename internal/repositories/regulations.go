package repositories

import (
	"context"
	"strings"

	"github.com/uptrace/bun"

	"github.com/mkoziy/numbers/syncer/internal/models"
)

// RegulationFilter narrows ListRegulations.
type RegulationFilter struct {
	Country    string
	NumberType string
	// OnlyAvailableTypes keeps regulations whose number type the country offers,
	// plus general ones without a number type. Ignored when the country has no
	// availability row.
	OnlyAvailableTypes bool
}

// UpsertRegulations writes one country's regulations in a single statement
// inside a transaction, keyed by sid.
func UpsertRegulations(ctx context.Context, db *bun.DB, regs []*models.Regulation) (int, error) {
	if len(regs) == 0 {
		return 0, nil
	}

	err := db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().
			Model(&regs).
			On("CONFLICT (sid) DO UPDATE").
			Set("friendly_name = EXCLUDED.friendly_name").
			Set("iso_country = EXCLUDED.iso_country").
			Set("number_type = EXCLUDED.number_type").
			Set("end_user_type = EXCLUDED.end_user_type").
			Set("requirements = EXCLUDED.requirements").
			Set("url = EXCLUDED.url").
			Set("last_updated = EXCLUDED.last_updated").
			Exec(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	return len(regs), nil
}

// GetRegulation fetches one regulation by sid.
func GetRegulation(ctx context.Context, db bun.IDB, sid string) (*models.Regulation, error) {
	reg := new(models.Regulation)
	err := db.NewSelect().Model(reg).Where("sid = ?", sid).Limit(1).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return reg, nil
}

// ListRegulations returns the business regulations of a country.
func ListRegulations(ctx context.Context, db bun.IDB, f RegulationFilter) ([]*models.Regulation, error) {
	country := strings.ToUpper(f.Country)

	regs := make([]*models.Regulation, 0)
	q := db.NewSelect().
		Model(&regs).
		Where("r.iso_country = ?", country).
		Where("r.end_user_type = ?", models.EndUserBusiness).
		OrderExpr("r.number_type ASC, r.sid ASC")

	if f.NumberType != "" {
		q = q.Where("r.number_type = ?", f.NumberType)
	}

	if f.OnlyAvailableTypes {
		c, err := GetCountry(ctx, db, country)
		switch {
		case err == nil:
			available := make([]string, 0, len(models.NumberTypes))
			for _, nt := range c.AvailableTypes() {
				available = append(available, string(nt))
			}
			if len(available) > 0 {
				q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
					return q.Where("r.number_type IN (?)", bun.In(available)).
						WhereOr("r.number_type IS NULL")
				})
			} else {
				q = q.Where("r.number_type IS NULL")
			}
		case err != ErrNotFound:
			return nil, err
		}
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return regs, nil
}

// CountRegulations returns the number of stored regulations.
func CountRegulations(ctx context.Context, db bun.IDB) (int, error) {
	return db.NewSelect().Model((*models.Regulation)(nil)).Count(ctx)
}
