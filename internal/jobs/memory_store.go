package jobs

import (
	"context"
	"sync"
	"time"

	"knitkart/internal/models"
)

// MemoryStore keeps jobs in process. It suits single-instance deployments;
// records disappear ttl after their last update.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]Job
	ttl  time.Duration
	now  func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]Job),
		ttl:  ttl,
		now:  time.Now,
	}
}

func (s *MemoryStore) expired(job Job, now time.Time) bool {
	return s.ttl > 0 && now.Sub(job.UpdatedAt) >= s.ttl
}

func (s *MemoryStore) Create(_ context.Context, job Job) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.jobs[job.ID]; ok && !s.expired(existing, s.now()) {
		return false, nil
	}
	s.jobs[job.ID] = job
	return true, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok || s.expired(job, s.now()) {
		return Job{}, ErrUnknownJob
	}
	return job, nil
}

func (s *MemoryStore) Complete(_ context.Context, id string, result models.ProductAnalysis, at time.Time) error {
	return s.finish(id, func(job *Job) {
		job.Status = StatusCompleted
		job.Result = &result
		job.UpdatedAt = at
	})
}

func (s *MemoryStore) Fail(_ context.Context, id string, message string, at time.Time) error {
	return s.finish(id, func(job *Job) {
		job.Status = StatusError
		job.Error = message
		job.UpdatedAt = at
	})
}

func (s *MemoryStore) finish(id string, apply func(job *Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || s.expired(job, s.now()) {
		return ErrUnknownJob
	}
	if job.Status.Terminal() {
		return ErrJobFinished
	}
	apply(&job)
	s.jobs[id] = job
	return nil
}

// Sweep drops expired records and reports how many were removed.
func (s *MemoryStore) Sweep(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, job := range s.jobs {
		if s.expired(job, now) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed, nil
}
