package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notifyhub/pantry-pipeline/internal/domain"
)

const itemColumns = `id, user_id, name, quantity, price, category, purchase_date,
	expiry_date, reminder_date, status, expired_at, created_at, updated_at`

// PgItemRepository implements ItemRepository and OutboxRepository.
type PgItemRepository struct {
	pool *pgxpool.Pool
}

// NewPgItemRepository returns an ItemRepository and OutboxRepository backed by
// PostgreSQL. Both share the pool because Expire writes to both tables in one
// transaction.
func NewPgItemRepository(pool *pgxpool.Pool) *PgItemRepository {
	return &PgItemRepository{pool: pool}
}

func (r *PgItemRepository) Create(ctx context.Context, it *domain.Item) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO items (`+itemColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		it.ID, it.OwnerID, it.Name, it.Quantity, it.Price, it.Category, it.PurchaseDate,
		it.ExpiryDate, it.ReminderDate, it.Status, it.ExpiredAt, it.CreatedAt, it.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

func (r *PgItemRepository) GetByID(ctx context.Context, id string) (*domain.Item, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id)
	it, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return it, err
}

func (r *PgItemRepository) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Item, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+itemColumns+` FROM items
		WHERE user_id = $1
		ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

func (r *PgItemRepository) ListActiveWithExpiry(ctx context.Context) ([]*domain.Item, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+itemColumns+` FROM items
		WHERE status = 'Active' AND expiry_date IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("list active items with expiry: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

func (r *PgItemRepository) Update(ctx context.Context, it *domain.Item) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE items
		SET name = $1, quantity = $2, price = $3, category = $4, purchase_date = $5,
		    expiry_date = $6, reminder_date = $7, updated_at = $8
		WHERE id = $9`,
		it.Name, it.Quantity, it.Price, it.Category, it.PurchaseDate,
		it.ExpiryDate, it.ReminderDate, it.UpdatedAt, it.ID,
	)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PgItemRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PgItemRepository) UpdateStatus(ctx context.Context, id string, from, to domain.ItemStatus) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE items
		SET status = $1,
		    expired_at = CASE WHEN $1 = 'Expired' THEN NOW() ELSE NULL END,
		    updated_at = NOW()
		WHERE id = $2 AND status = $3`, to, id, from)
	if err != nil {
		return false, fmt.Errorf("update item status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgItemRepository) Expire(ctx context.Context, id string, at time.Time) (ExpireResult, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return ExpireResult{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	row := tx.QueryRow(ctx, `
		UPDATE items
		SET status = 'Expired', expired_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'Active'
		RETURNING `+itemColumns, id, at)

	it, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ExpireResult{}, nil
	}
	if err != nil {
		return ExpireResult{}, fmt.Errorf("expire item: %w", err)
	}

	ev := domain.NewItemExpiredEvent(it, at)
	payload, err := json.Marshal(ev)
	if err != nil {
		return ExpireResult{}, fmt.Errorf("marshal outbox event: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO event_outbox (event_id, event_type, payload, created_at)
		VALUES ($1,$2,$3,$4)`, ev.ID, ev.Type, payload, at)
	if err != nil {
		return ExpireResult{}, fmt.Errorf("insert outbox event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return ExpireResult{}, fmt.Errorf("commit expire: %w", err)
	}

	return ExpireResult{Matched: true, Item: it, Event: ev}, nil
}

func (r *PgItemRepository) ListUnpublished(ctx context.Context, createdBefore time.Time, limit int) ([]domain.OutboxEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT payload, created_at FROM event_outbox
		WHERE published_at IS NULL AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2`, createdBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list unpublished outbox events: %w", err)
	}
	defer rows.Close()

	var result []domain.OutboxEvent
	for rows.Next() {
		var (
			payload []byte
			oe      domain.OutboxEvent
		)
		if err := rows.Scan(&payload, &oe.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &oe.Event); err != nil {
			return nil, fmt.Errorf("decode outbox payload: %w", err)
		}
		result = append(result, oe)
	}
	return result, rows.Err()
}

func (r *PgItemRepository) MarkPublished(ctx context.Context, eventID string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE event_outbox SET published_at = $1
		WHERE event_id = $2 AND published_at IS NULL`, at, eventID)
	if err != nil {
		return fmt.Errorf("mark outbox event published: %w", err)
	}
	return nil
}

func (r *PgItemRepository) DeletePublished(ctx context.Context, publishedBefore time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM event_outbox
		WHERE published_at IS NOT NULL AND published_at < $1`, publishedBefore)
	if err != nil {
		return 0, fmt.Errorf("prune outbox: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanItem(row pgx.Row) (*domain.Item, error) {
	var it domain.Item
	err := row.Scan(
		&it.ID, &it.OwnerID, &it.Name, &it.Quantity, &it.Price, &it.Category,
		&it.PurchaseDate, &it.ExpiryDate, &it.ReminderDate, &it.Status,
		&it.ExpiredAt, &it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func scanItems(rows pgx.Rows) ([]*domain.Item, error) {
	var result []*domain.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, it)
	}
	return result, rows.Err()
}

var (
	_ ItemRepository   = (*PgItemRepository)(nil)
	_ OutboxRepository = (*PgItemRepository)(nil)
)
