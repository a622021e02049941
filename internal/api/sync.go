package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mkoziy/numbers/syncer/internal/jobs"
	"github.com/mkoziy/numbers/syncer/internal/models"
	"github.com/mkoziy/numbers/syncer/internal/orchestrator"
)

type syncRequest struct {
	JobType string `json:"job_type"`
}

type syncAccepted struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type jobList struct {
	Jobs []*models.SyncJob `json:"jobs"`
}

// triggerSync accepts an empty body or {"job_type": "..."}; the default is
// a number-types sync.
func (s *server) triggerSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	jobType := models.JobTypeNumberTypes
	if req.JobType != "" {
		jt, err := models.ParseJobType(req.JobType)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		jobType = jt
	}
	s.trigger(w, r, jobType)
}

func (s *server) triggerRegulations(w http.ResponseWriter, r *http.Request) {
	s.trigger(w, r, models.JobTypeRegulations)
}

func (s *server) trigger(w http.ResponseWriter, r *http.Request, jobType models.JobType) {
	id, err := s.jobs.CreateJob(r.Context(), jobType)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, syncAccepted{JobID: id, Status: "accepted"})
	case errors.Is(err, orchestrator.ErrUnknownJobType):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, orchestrator.ErrQueueFull):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error":  err.Error(),
			"job_id": id,
		})
	case errors.Is(err, orchestrator.ErrShuttingDown):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("create job", zap.String("job_type", string(jobType)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create job")
	}
}

func (s *server) getJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	job, err := s.jobs.GetJob(r.Context(), id)
	if errors.Is(err, jobs.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		s.logger.Error("get job", zap.String("job_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *server) listJobs(w http.ResponseWriter, r *http.Request) {
	limit, ok := intParam(r, "limit", jobs.DefaultListLimit)
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}

	list, err := s.jobs.ListJobs(r.Context(), limit)
	if err != nil {
		s.logger.Error("list jobs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	writeJSON(w, http.StatusOK, jobList{Jobs: list})
}
