// Package reconcile merges fetched provider payloads into catalog storage.
package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/mkoziy/numbers/syncer/internal/models"
	"github.com/mkoziy/numbers/syncer/internal/repositories"
	"github.com/mkoziy/numbers/syncer/internal/sources/twilio"
)

// Reconciler upserts one item per call. Calls for different keys may run
// concurrently; nothing is retried here.
type Reconciler struct {
	db     *bun.DB
	logger *zap.Logger
	now    func() time.Time
}

// New creates a Reconciler writing to db.
func New(db *bun.DB, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		db:     db,
		logger: logger.With(zap.String("component", "reconciler")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Reconcile maps payload onto the job type's table and upserts it, stamping
// last_updated with the write time. It returns the number of rows written.
func (r *Reconciler) Reconcile(ctx context.Context, jobType models.JobType, key string, payload any) (int, error) {
	switch jobType {
	case models.JobTypeNumberTypes:
		country, ok := payload.(*twilio.Country)
		if !ok {
			return 0, fmt.Errorf("reconcile %s: unexpected payload %T", key, payload)
		}
		return r.reconcileCountry(ctx, key, country)
	case models.JobTypeRegulations:
		set, ok := payload.(*twilio.RegulationSet)
		if !ok {
			return 0, fmt.Errorf("reconcile %s: unexpected payload %T", key, payload)
		}
		return r.reconcileRegulations(ctx, key, set)
	default:
		return 0, fmt.Errorf("reconcile %s: unknown job type %q", key, jobType)
	}
}

func (r *Reconciler) reconcileCountry(ctx context.Context, key string, payload *twilio.Country) (int, error) {
	c := *payload
	if c.CountryCode == "" {
		c.CountryCode = key
	}
	row, err := twilio.MapToCountryNumberTypes(&c)
	if err != nil {
		return 0, err
	}
	if !strings.EqualFold(row.CountryCode, key) {
		return 0, fmt.Errorf("reconcile %s: payload is for country %s", key, row.CountryCode)
	}

	row.LastUpdated = r.now()
	if err := repositories.UpsertCountry(ctx, r.db, row); err != nil {
		return 0, fmt.Errorf("upsert country %s: %w", key, err)
	}
	return 1, nil
}

func (r *Reconciler) reconcileRegulations(ctx context.Context, key string, payload *twilio.RegulationSet) (int, error) {
	set := *payload
	if set.CountryCode == "" {
		set.CountryCode = key
	}
	rows := twilio.MapToRegulations(&set)

	now := r.now()
	for _, row := range rows {
		if err := row.Validate(); err != nil {
			return 0, fmt.Errorf("regulation %s: %w", row.SID, err)
		}
		row.LastUpdated = now
	}

	n, err := repositories.UpsertRegulations(ctx, r.db, rows)
	if err != nil {
		return 0, fmt.Errorf("upsert regulations %s: %w", key, err)
	}
	if n == 0 {
		r.logger.Debug("no regulations published", zap.String("country", key))
	}
	return n, nil
}
