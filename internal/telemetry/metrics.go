// Package telemetry exposes Prometheus metrics for sync runs. A nil *Metrics
// is valid and records nothing.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mkoziy/numbers/syncer/internal/models"
)

const namespace = "syncer"

// Metrics holds the sync engine's collectors.
type Metrics struct {
	jobs          *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	items         *prometheus.CounterVec
	fetchAttempts *prometheus.CounterVec
	fetchInFlight prometheus.Gauge
	activeJobs    prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Sync jobs that reached a terminal status.",
		}, []string{"job_type", "status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall-clock time from start to terminal status.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"job_type", "status"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_total",
			Help:      "Per-item results of sync jobs.",
		}, []string{"job_type", "outcome"}),
		fetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_attempts_total",
			Help:      "Upstream detail calls by classified outcome.",
		}, []string{"job_type", "outcome"}),
		fetchInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fetch_in_flight",
			Help:      "Upstream detail calls currently holding a concurrency slot.",
		}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_jobs",
			Help:      "Jobs currently running.",
		}),
	}

	for _, c := range []prometheus.Collector{m.jobs, m.jobDuration, m.items, m.fetchAttempts, m.fetchInFlight, m.activeJobs} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordJob records a terminal transition.
func (m *Metrics) RecordJob(jobType models.JobType, status models.JobStatus, d time.Duration) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(string(jobType), string(status)).Inc()
	m.jobDuration.WithLabelValues(string(jobType), string(status)).Observe(d.Seconds())
}

// RecordItem records one finished item, outcome is "succeeded" or "failed".
func (m *Metrics) RecordItem(jobType models.JobType, outcome string) {
	if m == nil {
		return
	}
	m.items.WithLabelValues(string(jobType), outcome).Inc()
}

// RecordFetchAttempt records one upstream call.
func (m *Metrics) RecordFetchAttempt(jobType models.JobType, outcome string) {
	if m == nil {
		return
	}
	m.fetchAttempts.WithLabelValues(string(jobType), outcome).Inc()
}

// FetchStarted marks a slot as taken.
func (m *Metrics) FetchStarted() {
	if m == nil {
		return
	}
	m.fetchInFlight.Inc()
}

// FetchFinished marks a slot as released.
func (m *Metrics) FetchFinished() {
	if m == nil {
		return
	}
	m.fetchInFlight.Dec()
}

// JobStarted and JobFinished track running jobs.
func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.activeJobs.Inc()
}

func (m *Metrics) JobFinished() {
	if m == nil {
		return
	}
	m.activeJobs.Dec()
}
