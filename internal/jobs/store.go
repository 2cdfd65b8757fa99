package jobs

import (
	"sort"
	"sync"
	"time"
)

// Store keeps jobs in memory. Jobs do not survive a restart; a pass that
// was interrupted is simply re-run.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewStore creates an empty job store.
func NewStore() *Store {
	return &Store{jobs: make(map[string]*Job)}
}

// Put inserts or replaces a job.
func (s *Store) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *job
	s.jobs[job.ID] = &copied
}

// Get retrieves a job by ID. Returns nil when the job is unknown.
func (s *Store) Get(id string) *Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil
	}
	copied := *job
	return &copied
}

// ListOptions filters List results.
type ListOptions struct {
	Status []Status
	Type   []Type
	Limit  int
}

// List returns jobs matching the options, newest first.
func (s *Store) List(opts ListOptions) []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Job
	for _, job := range s.jobs {
		if len(opts.Status) > 0 && !containsStatus(opts.Status, job.Status) {
			continue
		}
		if len(opts.Type) > 0 && !containsType(opts.Type, job.Type) {
			continue
		}
		copied := *job
		out = append(out, &copied)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Cleanup removes terminal jobs older than the retention window and
// returns how many were removed.
func (s *Store) Cleanup(retention time.Duration) int {
	cutoff := time.Now().UTC().Add(-retention)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, job := range s.jobs {
		if job.IsTerminal() && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}

func containsStatus(set []Status, v Status) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func containsType(set []Type, v Type) bool {
	for _, t := range set {
		if t == v {
			return true
		}
	}
	return false
}
