// Package api serves the sync trigger, job polling and catalog query endpoints.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/mkoziy/numbers/syncer/internal/models"
)

// JobService triggers and reports sync jobs.
type JobService interface {
	CreateJob(ctx context.Context, jobType models.JobType) (string, error)
	GetJob(ctx context.Context, id string) (*models.SyncJob, error)
	ListJobs(ctx context.Context, limit int) ([]*models.SyncJob, error)
}

// Option configures the router.
type Option func(*serverConfig)

type serverConfig struct {
	logger         *zap.Logger
	metrics        http.Handler
	triggerPerMin  int
	requestTimeout time.Duration
}

// WithLogger sets the access and error logger.
func WithLogger(l *zap.Logger) Option {
	return func(cfg *serverConfig) {
		cfg.logger = l
	}
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(cfg *serverConfig) {
		cfg.metrics = h
	}
}

// WithTriggerRate limits sync triggers per client IP per minute. Zero disables.
func WithTriggerRate(perMinute int) Option {
	return func(cfg *serverConfig) {
		cfg.triggerPerMin = perMinute
	}
}

// WithRequestTimeout bounds each request's context.
func WithRequestTimeout(d time.Duration) Option {
	return func(cfg *serverConfig) {
		cfg.requestTimeout = d
	}
}

type server struct {
	jobs   JobService
	db     bun.IDB
	pinger Pinger
	logger *zap.Logger
}

// Pinger checks storage liveness.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// NewRouter wires the HTTP surface over the job service and the catalog database.
func NewRouter(jobs JobService, db *bun.DB, opts ...Option) *chi.Mux {
	return newRouter(jobs, db, db, opts...)
}

func newRouter(jobs JobService, db bun.IDB, pinger Pinger, opts ...Option) *chi.Mux {
	cfg := &serverConfig{requestTimeout: 30 * time.Second}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	s := &server{jobs: jobs, db: db, pinger: pinger, logger: cfg.logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(cfg.logger))
	r.Use(middleware.Recoverer)
	if cfg.requestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.requestTimeout))
	}

	r.Get("/health", s.health)
	if cfg.metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.metrics)
	}

	triggerLimit := RateLimit(cfg.triggerPerMin)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.health)

		r.Route("/sync", func(r chi.Router) {
			r.With(triggerLimit).Post("/", s.triggerSync)
			r.With(triggerLimit).Post("/regulations", s.triggerRegulations)
			r.Get("/", s.listJobs)
			r.Get("/{jobID}", s.getJob)
		})

		r.Get("/countries", s.listCountries)
		r.Get("/countries/{code}", s.getCountry)
		r.Get("/regulations/{code}", s.getRegulations)
	})

	return r
}

// LoggingMiddleware writes one access log line per request.
func LoggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.pinger.PingContext(r.Context()); err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "unhealthy",
			"database": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
