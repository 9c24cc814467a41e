package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Scheduler is the request-side API: it records and cancels jobs but never
// runs them. Dispatcher does that.
type Scheduler struct {
	store Store
	now   func() time.Time
}

func New(store Store) *Scheduler {
	return &Scheduler{store: store, now: time.Now}
}

// Schedule arranges for the handler registered under name to run at or after
// fireAt. An existing job for (name, key) is replaced, so a key has at most
// one live job.
func (s *Scheduler) Schedule(ctx context.Context, fireAt time.Time, name, key string, payload map[string]string) error {
	if name == "" || key == "" {
		return fmt.Errorf("schedule: name and key are required")
	}
	return s.store.Upsert(ctx, &Job{
		ID:        uuid.New().String(),
		Name:      name,
		Key:       key,
		Payload:   payload,
		FireAt:    fireAt.UTC(),
		CreatedAt: s.now().UTC(),
	})
}

// Cancel removes the un-fired job for (name, key). A missing job is not an
// error.
func (s *Scheduler) Cancel(ctx context.Context, name, key string) error {
	if _, err := s.store.Delete(ctx, name, key); err != nil {
		return err
	}
	return nil
}

// Jobs lists the live jobs registered under name.
func (s *Scheduler) Jobs(ctx context.Context, name string) ([]*Job, error) {
	return s.store.List(ctx, name)
}
