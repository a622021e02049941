package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mkoziy/numbers/syncer/internal/models"
)

// MemoryStore keeps jobs in a map. Jobs are lost on restart.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*entry
	seq  int64
}

type entry struct {
	job *models.SyncJob
	seq int64
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*entry)}
}

func (s *MemoryStore) Create(_ context.Context, job *models.SyncJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	s.seq++
	s.jobs[job.ID] = &entry{job: job.Clone(), seq: s.seq}
	return nil
}

func (s *MemoryStore) Update(_ context.Context, job *models.SyncJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[job.ID]
	if !ok {
		return ErrNotFound
	}
	if e.job.IsTerminal() {
		return ErrTerminal
	}
	e.job = job.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.SyncJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e.job.Clone(), nil
}

func (s *MemoryStore) List(_ context.Context, limit int) ([]*models.SyncJob, error) {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.jobs))
	for _, e := range s.jobs {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.job.CreatedAt.Equal(b.job.CreatedAt) {
			return a.job.CreatedAt.After(b.job.CreatedAt)
		}
		return a.seq > b.seq
	})

	limit = clampListLimit(limit)
	if len(entries) > limit {
		entries = entries[:limit]
	}

	out := make([]*models.SyncJob, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.job.Clone())
	}
	return out, nil
}

func (s *MemoryStore) FailUnfinished(_ context.Context, reason string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, e := range s.jobs {
		if e.job.IsTerminal() {
			continue
		}
		j := e.job.Clone()
		j.Status = models.StatusFailed
		msg := reason
		j.Error = &msg
		completed := at
		j.CompletedAt = &completed
		e.job = j
		n++
	}
	return n, nil
}
