package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/mkoziy/numbers/syncer/internal/config"
	"github.com/mkoziy/numbers/syncer/internal/database"
	"github.com/mkoziy/numbers/syncer/internal/jobs"
	"github.com/mkoziy/numbers/syncer/internal/logging"
	"github.com/mkoziy/numbers/syncer/internal/migrations"
	"github.com/mkoziy/numbers/syncer/internal/orchestrator"
	"github.com/mkoziy/numbers/syncer/internal/ratelimit"
	"github.com/mkoziy/numbers/syncer/internal/reconcile"
	"github.com/mkoziy/numbers/syncer/internal/sources/twilio"
	"github.com/mkoziy/numbers/syncer/internal/telemetry"
)

// components holds everything a command needs, built from one config.
type components struct {
	cfg      *config.Config
	logger   *zap.Logger
	db       *bun.DB
	registry *prometheus.Registry
	metrics  *telemetry.Metrics
	store    *jobs.BunStore
}

func loadComponents(ctx context.Context, cmd *cobra.Command) (*components, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	db, err := database.NewDB(cfg.Database.DSN, cfg.Database.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := migrations.RunMigrations(ctx, db, logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := telemetry.NewMetrics(registry)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &components{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		registry: registry,
		metrics:  metrics,
		store:    jobs.NewBunStore(db),
	}, nil
}

func (c *components) newOrchestrator() *orchestrator.Orchestrator {
	rl := c.cfg.ProviderRateLimit(twilio.ProviderName)
	client := twilio.NewClient(
		ratelimit.NewLimiter(rl),
		c.cfg.Twilio.AccountSID,
		c.cfg.Twilio.AuthToken,
		twilio.WithBaseURLs(c.cfg.Twilio.APIBaseURL, c.cfg.Twilio.NumbersBaseURL),
		twilio.WithTimeout(c.cfg.Twilio.Timeout),
	)

	return orchestrator.New(
		twilio.NewSource(client),
		reconcile.New(c.db, c.logger),
		c.store,
		orchestrator.Options{
			Concurrency:      c.cfg.Sync.Concurrency,
			Retry:            rl,
			Workers:          c.cfg.Sync.JobWorkers,
			QueueSize:        c.cfg.Sync.QueueSize,
			JobTimeout:       c.cfg.Sync.JobTimeout,
			WatchdogInterval: c.cfg.Sync.WatchdogInterval,
			FlushEvery:       c.cfg.Sync.ProgressFlushEvery,
			Metrics:          c.metrics,
			Logger:           c.logger.With(zap.String("component", "orchestrator")),
		},
	)
}

func (c *components) Close() {
	if err := c.db.Close(); err != nil {
		c.logger.Warn("close database", zap.Error(err))
	}
	_ = c.logger.Sync()
}
