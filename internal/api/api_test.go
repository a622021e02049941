package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/mkoziy/numbers/syncer/internal/database"
	"github.com/mkoziy/numbers/syncer/internal/jobs"
	"github.com/mkoziy/numbers/syncer/internal/migrations"
	"github.com/mkoziy/numbers/syncer/internal/models"
	"github.com/mkoziy/numbers/syncer/internal/orchestrator"
	"github.com/mkoziy/numbers/syncer/internal/repositories"
)

type fakeJobs struct {
	createErr error
	created   []models.JobType
	store     *jobs.MemoryStore
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{store: jobs.NewMemoryStore()}
}

func (f *fakeJobs) CreateJob(ctx context.Context, jobType models.JobType) (string, error) {
	if !jobType.Valid() {
		return "", orchestrator.ErrUnknownJobType
	}
	if f.createErr != nil {
		if errors.Is(f.createErr, orchestrator.ErrQueueFull) {
			return "job-full", f.createErr
		}
		return "", f.createErr
	}
	f.created = append(f.created, jobType)
	return "job-1", nil
}

func (f *fakeJobs) GetJob(ctx context.Context, id string) (*models.SyncJob, error) {
	return f.store.Get(ctx, id)
}

func (f *fakeJobs) ListJobs(ctx context.Context, limit int) ([]*models.SyncJob, error) {
	return f.store.List(ctx, limit)
}

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	db, err := database.NewDB(database.MemoryDSN(t.Name()), false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.RunMigrations(context.Background(), db, zap.NewNop()))
	return db
}

func seedCatalog(t *testing.T, db *bun.DB) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	for _, c := range []*models.CountryNumberTypes{
		{CountryCode: "US", Country: "United States", Local: true, TollFree: true, LastUpdated: now},
		{CountryCode: "GB", Country: "United Kingdom", Mobile: true, LastUpdated: now},
	} {
		require.NoError(t, repositories.UpsertCountry(ctx, db, c))
	}

	_, err := repositories.UpsertRegulations(ctx, db, []*models.Regulation{
		{SID: "RN1", IsoCountry: "US", NumberType: "local", EndUserType: models.EndUserBusiness, LastUpdated: now},
		{SID: "RN2", IsoCountry: "US", NumberType: "mobile", EndUserType: models.EndUserBusiness, LastUpdated: now},
		{SID: "RN3", IsoCountry: "US", EndUserType: models.EndUserBusiness, LastUpdated: now},
	})
	require.NoError(t, err)
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestTriggerSync(t *testing.T) {
	svc := newFakeJobs()
	h := NewRouter(svc, newTestDB(t))

	rec := do(t, h, http.MethodPost, "/api/v1/sync", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "job-1", body["job_id"])
	assert.Equal(t, "accepted", body["status"])

	rec = do(t, h, http.MethodPost, "/api/v1/sync", `{"job_type":"regulations"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/sync/regulations", "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	assert.Equal(t, []models.JobType{
		models.JobTypeNumberTypes,
		models.JobTypeRegulations,
		models.JobTypeRegulations,
	}, svc.created)
}

func TestTriggerSyncErrors(t *testing.T) {
	db := newTestDB(t)

	rec := do(t, NewRouter(newFakeJobs(), db), http.MethodPost, "/api/v1/sync", `{"job_type":"bogus"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, NewRouter(newFakeJobs(), db), http.MethodPost, "/api/v1/sync", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc := newFakeJobs()
	svc.createErr = orchestrator.ErrShuttingDown
	rec = do(t, NewRouter(svc, db), http.MethodPost, "/api/v1/sync", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	svc.createErr = orchestrator.ErrQueueFull
	rec = do(t, NewRouter(svc, db), http.MethodPost, "/api/v1/sync/regulations", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "job-full", decode[map[string]string](t, rec)["job_id"])

	svc.createErr = errors.New("boom")
	rec = do(t, NewRouter(svc, db), http.MethodPost, "/api/v1/sync", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetAndListJobs(t *testing.T) {
	svc := newFakeJobs()
	ctx := context.Background()
	total := 3
	require.NoError(t, svc.store.Create(ctx, &models.SyncJob{
		ID:             "abc",
		JobType:        models.JobTypeNumberTypes,
		Status:         models.StatusInProgress,
		ItemsTotal:     &total,
		ItemsProcessed: 1,
		CreatedAt:      time.Now().UTC(),
	}))
	h := NewRouter(svc, newTestDB(t))

	rec := do(t, h, http.MethodGet, "/api/v1/sync/abc", "")
	require.Equal(t, http.StatusOK, rec.Code)
	job := decode[map[string]any](t, rec)
	assert.Equal(t, "abc", job["job_id"])
	assert.Equal(t, "in_progress", job["status"])
	assert.EqualValues(t, 3, job["items_total"])
	assert.EqualValues(t, 1, job["items_processed"])
	assert.Nil(t, job["error"])

	rec = do(t, h, http.MethodGet, "/api/v1/sync/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/sync?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Jobs []models.SyncJob `json:"jobs"`
	}](t, rec)
	require.Len(t, list.Jobs, 1)
	assert.Equal(t, "abc", list.Jobs[0].ID)

	rec = do(t, h, http.MethodGet, "/api/v1/sync?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCountries(t *testing.T) {
	db := newTestDB(t)
	seedCatalog(t, db)
	h := NewRouter(newFakeJobs(), db)

	rec := do(t, h, http.MethodGet, "/api/v1/countries", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.CountryNumberTypes](t, rec), 2)

	rec = do(t, h, http.MethodGet, "/api/v1/countries?number_type=toll_free", "")
	require.Equal(t, http.StatusOK, rec.Code)
	tollFree := decode[[]models.CountryNumberTypes](t, rec)
	require.Len(t, tollFree, 1)
	assert.Equal(t, "US", tollFree[0].CountryCode)

	rec = do(t, h, http.MethodGet, "/api/v1/countries?number_type=pager", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/countries?skip=1&limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.CountryNumberTypes](t, rec), 1)

	rec = do(t, h, http.MethodGet, "/api/v1/countries/gb", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[models.CountryNumberTypes](t, rec).Mobile)

	rec = do(t, h, http.MethodGet, "/api/v1/countries/ZZ", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRegulations(t *testing.T) {
	db := newTestDB(t)
	seedCatalog(t, db)
	h := NewRouter(newFakeJobs(), db)

	rec := do(t, h, http.MethodGet, "/api/v1/regulations/us", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Regulation](t, rec), 3)

	rec = do(t, h, http.MethodGet, "/api/v1/regulations/US?only_available_types=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	sids := []string{}
	for _, r := range decode[[]models.Regulation](t, rec) {
		sids = append(sids, r.SID)
	}
	assert.ElementsMatch(t, []string{"RN1", "RN3"}, sids)

	rec = do(t, h, http.MethodGet, "/api/v1/regulations/US?number_type=mobile", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Regulation](t, rec), 1)

	rec = do(t, h, http.MethodGet, "/api/v1/regulations/FR", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/regulations/US?only_available_types=maybe", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	db := newTestDB(t)
	h := NewRouter(newFakeJobs(), db)

	for _, path := range []string{"/health", "/api/v1/health"} {
		rec := do(t, h, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "healthy", decode[map[string]string](t, rec)["status"])
	}

	require.NoError(t, db.Close())
	rec := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsMounted(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("syncer_jobs_total 0\n"))
	})
	h := NewRouter(newFakeJobs(), newTestDB(t), WithMetricsHandler(metrics))

	rec := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "syncer_jobs_total")
}

func TestTriggerRateLimit(t *testing.T) {
	svc := newFakeJobs()
	h := NewRouter(svc, newTestDB(t), WithTriggerRate(2))

	assert.Equal(t, http.StatusAccepted, do(t, h, http.MethodPost, "/api/v1/sync", "").Code)
	assert.Equal(t, http.StatusAccepted, do(t, h, http.MethodPost, "/api/v1/sync/regulations", "").Code)

	rec := do(t, h, http.MethodPost, "/api/v1/sync", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// Reads are never limited.
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/v1/sync", "").Code)
}

func TestRateLimiterSweepsIdleClients(t *testing.T) {
	rl := NewRateLimiter(1)
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"))

	now = now.Add(10 * time.Minute)
	assert.True(t, rl.Allow("10.0.0.3"))
	rl.mu.Lock()
	_, stale := rl.ips["10.0.0.2"]
	rl.mu.Unlock()
	assert.False(t, stale)
}
