package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/uptrace/bun"

	"github.com/mkoziy/numbers/syncer/internal/models"
)

// ErrNotFound is returned when no row matches the natural key.
var ErrNotFound = errors.New("record not found")

const (
	defaultCountryLimit = 100
	maxCountryLimit     = 1000
)

// CountryFilter narrows ListCountries.
type CountryFilter struct {
	NumberType models.NumberType
	Offset     int
	Limit      int
}

// UpsertCountry inserts a country or updates every mapped column when the
// country code already exists.
func UpsertCountry(ctx context.Context, db bun.IDB, c *models.CountryNumberTypes) error {
	_, err := db.NewInsert().
		Model(c).
		On("CONFLICT (country_code) DO UPDATE").
		Set("country = EXCLUDED.country").
		Set("beta = EXCLUDED.beta").
		Set("local = EXCLUDED.local").
		Set("toll_free = EXCLUDED.toll_free").
		Set("mobile = EXCLUDED.mobile").
		Set("national = EXCLUDED.national").
		Set("voip = EXCLUDED.voip").
		Set("shared_cost = EXCLUDED.shared_cost").
		Set("machine_to_machine = EXCLUDED.machine_to_machine").
		Set("last_updated = EXCLUDED.last_updated").
		Exec(ctx)

	return err
}

// GetCountry fetches one country by code.
func GetCountry(ctx context.Context, db bun.IDB, code string) (*models.CountryNumberTypes, error) {
	c := new(models.CountryNumberTypes)
	err := db.NewSelect().
		Model(c).
		Where("country_code = ?", strings.ToUpper(code)).
		Scan(ctx)
	if isNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListCountries returns countries ordered by name, optionally only those
// offering a number type.
func ListCountries(ctx context.Context, db bun.IDB, f CountryFilter) ([]*models.CountryNumberTypes, error) {
	countries := make([]*models.CountryNumberTypes, 0)
	q := db.NewSelect().
		Model(&countries).
		OrderExpr("country ASC, country_code ASC").
		Offset(max(f.Offset, 0)).
		Limit(ClampLimit(f.Limit, defaultCountryLimit, maxCountryLimit))

	if f.NumberType != "" {
		q = q.Where("? = ?", bun.Ident(string(f.NumberType)), true)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return countries, nil
}

// CountCountries returns the number of stored countries.
func CountCountries(ctx context.Context, db bun.IDB) (int, error) {
	return db.NewSelect().Model((*models.CountryNumberTypes)(nil)).Count(ctx)
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// ClampLimit bounds a caller supplied page size.
func ClampLimit(limit, def, maxLimit int) int {
	if limit <= 0 {
		return def
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
