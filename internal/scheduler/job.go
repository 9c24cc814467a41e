// Package scheduler runs durable, named, one-shot jobs at or after a fire time.
//
// Jobs live in a Store keyed by (Name, Key), so scheduling the same key twice
// replaces the first job instead of adding a second. A Dispatcher claims due
// jobs under a short lease, runs the Handler registered for the job name and
// then completes the job. Completion is conditioned on the lease token, which
// means a job rescheduled while its previous run was in flight survives that
// run.
package scheduler

import (
	"context"
	"errors"
	"time"
)

// ErrNoHandler is reported when a due job has a name nothing registered for.
var ErrNoHandler = errors.New("scheduler: no handler registered")

// Job is one scheduled unit of work.
type Job struct {
	ID      string
	Name    string
	Key     string
	Payload map[string]string
	FireAt  time.Time

	// LockedBy is the lease token of the run that claimed the job, empty when
	// unclaimed. LockedUntil is when that lease lapses.
	LockedBy    string
	LockedUntil *time.Time
	CreatedAt   time.Time
}

// Handler executes a job. A nil return completes (deletes) the job. An error
// releases the lease so the job is retried on a later poll.
type Handler func(ctx context.Context, job *Job) error

// Store persists jobs. Every method is a single atomic statement so request
// handlers may schedule and cancel concurrently with a running Dispatcher.
type Store interface {
	// Upsert inserts job, or replaces payload and fire time of the existing
	// job with the same (Name, Key) and drops its lease.
	Upsert(ctx context.Context, job *Job) error
	// Delete removes un-fired jobs matching (name, key) and reports how many.
	Delete(ctx context.Context, name, key string) (int64, error)
	// ClaimDue leases up to limit jobs with FireAt <= now whose lease is
	// absent or lapsed, stamping them with token until now+lease.
	ClaimDue(ctx context.Context, token string, now time.Time, lease time.Duration, limit int) ([]*Job, error)
	// Complete deletes job only while job.LockedBy still holds the lease.
	Complete(ctx context.Context, job *Job) error
	// Release clears the lease on job if job.LockedBy still holds it.
	Release(ctx context.Context, job *Job) error
	// List returns every job with the given name, earliest first.
	List(ctx context.Context, name string) ([]*Job, error)
}
