package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notifyhub/pantry-pipeline/internal/domain"
)

const reminderColumns = `id, user_id, item_id, item_name, reminder_date, message,
	status, created_at, updated_at`

type pgReminderRepository struct {
	pool *pgxpool.Pool
}

// NewPgReminderRepository returns a ReminderRepository backed by PostgreSQL.
func NewPgReminderRepository(pool *pgxpool.Pool) ReminderRepository {
	return &pgReminderRepository{pool: pool}
}

func (r *pgReminderRepository) Create(ctx context.Context, rem *domain.Reminder) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO reminders (`+reminderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		rem.ID, rem.OwnerID, rem.ItemID, rem.ItemName, rem.ReminderDate, rem.Message,
		rem.Status, rem.CreatedAt, rem.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert reminder: %w", err)
	}
	return nil
}

func (r *pgReminderRepository) GetByID(ctx context.Context, id string) (*domain.Reminder, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE id = $1`, id)
	rem, err := scanReminder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return rem, err
}

func (r *pgReminderRepository) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Reminder, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+reminderColumns+` FROM reminders
		WHERE user_id = $1
		ORDER BY reminder_date ASC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

func (r *pgReminderRepository) ListPending(ctx context.Context) ([]*domain.Reminder, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+reminderColumns+` FROM reminders WHERE status = 'pending'`)
	if err != nil {
		return nil, fmt.Errorf("list pending reminders: %w", err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

func (r *pgReminderRepository) Update(ctx context.Context, rem *domain.Reminder) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE reminders
		SET item_name = $1, reminder_date = $2, message = $3, status = $4, updated_at = $5
		WHERE id = $6`,
		rem.ItemName, rem.ReminderDate, rem.Message, rem.Status, rem.UpdatedAt, rem.ID,
	)
	if err != nil {
		return fmt.Errorf("update reminder: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *pgReminderRepository) UpdateStatus(ctx context.Context, id string, status domain.ReminderStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE reminders SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("update reminder status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *pgReminderRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM reminders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete reminder: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanReminder(row pgx.Row) (*domain.Reminder, error) {
	var rem domain.Reminder
	err := row.Scan(
		&rem.ID, &rem.OwnerID, &rem.ItemID, &rem.ItemName, &rem.ReminderDate,
		&rem.Message, &rem.Status, &rem.CreatedAt, &rem.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rem, nil
}

func scanReminders(rows pgx.Rows) ([]*domain.Reminder, error) {
	var result []*domain.Reminder
	for rows.Next() {
		rem, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rem)
	}
	return result, rows.Err()
}
