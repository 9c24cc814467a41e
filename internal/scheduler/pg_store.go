package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const jobColumns = `id, name, job_key, payload, fire_at, locked_by, locked_until, created_at`

// PgStore is the PostgreSQL Store. Claims use FOR UPDATE SKIP LOCKED so
// several dispatchers can poll the same table without blocking each other.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) Upsert(ctx context.Context, job *Job) error {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("marshal job payload: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO scheduled_jobs (id, name, job_key, payload, fire_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (name, job_key) DO UPDATE
		SET payload = EXCLUDED.payload,
		    fire_at = EXCLUDED.fire_at,
		    locked_by = NULL,
		    locked_until = NULL`,
		job.ID, job.Name, job.Key, payload, job.FireAt, job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert job %s/%s: %w", job.Name, job.Key, err)
	}
	return nil
}

func (s *PgStore) Delete(ctx context.Context, name, key string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM scheduled_jobs WHERE name = $1 AND job_key = $2`, name, key)
	if err != nil {
		return 0, fmt.Errorf("delete job %s/%s: %w", name, key, err)
	}
	return tag.RowsAffected(), nil
}

func (s *PgStore) ClaimDue(ctx context.Context, token string, now time.Time, lease time.Duration, limit int) ([]*Job, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE scheduled_jobs
		SET locked_by = $1, locked_until = $2
		WHERE id IN (
			SELECT id FROM scheduled_jobs
			WHERE fire_at <= $3
			  AND (locked_until IS NULL OR locked_until < $3)
			ORDER BY fire_at
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns,
		token, now.Add(lease), now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim due jobs: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (s *PgStore) Complete(ctx context.Context, job *Job) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM scheduled_jobs WHERE id = $1 AND locked_by = $2`, job.ID, job.LockedBy)
	if err != nil {
		return fmt.Errorf("complete job %s: %w", job.ID, err)
	}
	return nil
}

func (s *PgStore) Release(ctx context.Context, job *Job) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE scheduled_jobs SET locked_by = NULL, locked_until = NULL
		WHERE id = $1 AND locked_by = $2`, job.ID, job.LockedBy)
	if err != nil {
		return fmt.Errorf("release job %s: %w", job.ID, err)
	}
	return nil
}

func (s *PgStore) List(ctx context.Context, name string) ([]*Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM scheduled_jobs WHERE name = $1 ORDER BY fire_at`, name)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

func scanJobs(rows pgx.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		var (
			j        Job
			payload  []byte
			lockedBy *string
		)
		if err := rows.Scan(&j.ID, &j.Name, &j.Key, &payload, &j.FireAt,
			&lockedBy, &j.LockedUntil, &j.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		if lockedBy != nil {
			j.LockedBy = *lockedBy
		}
		if err := json.Unmarshal(payload, &j.Payload); err != nil {
			return nil, fmt.Errorf("decode job payload %s: %w", j.ID, err)
		}
		jobs = append(jobs, &j)
	}
	return jobs, rows.Err()
}

var _ Store = (*PgStore)(nil)
