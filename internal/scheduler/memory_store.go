package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests and single-process runs.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*Job // by name + "\x00" + key

	// ClaimErr, when set, fails every ClaimDue call.
	ClaimErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

func storeKey(name, key string) string { return name + "\x00" + key }

func (s *MemoryStore) Upsert(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := storeKey(job.Name, job.Key)
	if existing, ok := s.jobs[k]; ok {
		existing.Payload = copyPayload(job.Payload)
		existing.FireAt = job.FireAt
		existing.LockedBy = ""
		existing.LockedUntil = nil
		return nil
	}
	clone := *job
	clone.Payload = copyPayload(job.Payload)
	clone.LockedBy = ""
	clone.LockedUntil = nil
	s.jobs[k] = &clone
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, name, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := storeKey(name, key)
	if _, ok := s.jobs[k]; !ok {
		return 0, nil
	}
	delete(s.jobs, k)
	return 1, nil
}

func (s *MemoryStore) ClaimDue(_ context.Context, token string, now time.Time, lease time.Duration, limit int) ([]*Job, error) {
	if s.ClaimErr != nil {
		return nil, s.ClaimErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*Job
	for _, j := range s.jobs {
		if j.FireAt.After(now) {
			continue
		}
		if j.LockedUntil != nil && !j.LockedUntil.Before(now) {
			continue
		}
		due = append(due, j)
	}
	sort.Slice(due, func(i, k int) bool { return due[i].FireAt.Before(due[k].FireAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	until := now.Add(lease)
	claimed := make([]*Job, len(due))
	for i, j := range due {
		j.LockedBy = token
		j.LockedUntil = &until
		claimed[i] = cloneJob(j)
	}
	return claimed, nil
}

func (s *MemoryStore) Complete(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := storeKey(job.Name, job.Key)
	if cur, ok := s.jobs[k]; ok && cur.ID == job.ID && cur.LockedBy == job.LockedBy {
		delete(s.jobs, k)
	}
	return nil
}

func (s *MemoryStore) Release(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.jobs[storeKey(job.Name, job.Key)]; ok && cur.ID == job.ID && cur.LockedBy == job.LockedBy {
		cur.LockedBy = ""
		cur.LockedUntil = nil
	}
	return nil
}

func (s *MemoryStore) List(_ context.Context, name string) ([]*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Job
	for _, j := range s.jobs {
		if j.Name == name {
			out = append(out, cloneJob(j))
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].FireAt.Before(out[k].FireAt) })
	return out, nil
}

// Get returns the live job for (name, key), if any.
func (s *MemoryStore) Get(name, key string) (*Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[storeKey(name, key)]
	if !ok {
		return nil, false
	}
	return cloneJob(j), true
}

// Len returns the number of stored jobs.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func cloneJob(j *Job) *Job {
	c := *j
	c.Payload = copyPayload(j.Payload)
	if j.LockedUntil != nil {
		t := *j.LockedUntil
		c.LockedUntil = &t
	}
	return &c
}

func copyPayload(p map[string]string) map[string]string {
	if p == nil {
		return nil
	}
	out := make(map[string]string, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

var _ Store = (*MemoryStore)(nil)
