package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/notifyhub/pantry-pipeline/internal/domain"
	"github.com/notifyhub/pantry-pipeline/internal/eventbus"
	"github.com/notifyhub/pantry-pipeline/internal/expiry"
	"github.com/notifyhub/pantry-pipeline/internal/repository"
)

// ItemService owns item CRUD and keeps the expiration index in step with it.
// The index is derived state, so index write failures are logged rather than
// failing a request whose record is already committed; `pipelinectl
// reconcile index` repairs any drift.
type ItemService struct {
	repo    repository.ItemRepository
	index   expiry.Index
	expirer *Expirer
	pub     *eventbus.Publisher
	logger  *zap.Logger
}

func NewItemService(
	repo repository.ItemRepository,
	index expiry.Index,
	expirer *Expirer,
	pub *eventbus.Publisher,
	logger *zap.Logger,
) *ItemService {
	return &ItemService{repo: repo, index: index, expirer: expirer, pub: pub, logger: logger}
}

// Create stores a new Active item.
//
// An expiry date already in the past expires the item immediately: it gets
// no index entry and announces item.expired instead of item.created. If that
// transition fails the item is indexed for the expiration worker.
// Otherwise the item is indexed (when it has an expiry) and item.created is
// published.
func (s *ItemService) Create(ctx context.Context, ownerID string, req domain.CreateItemRequest) (*domain.Item, error) {
	if ownerID == "" {
		return nil, domain.ErrMissingOwner
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	it := &domain.Item{
		ID:           uuid.New().String(),
		OwnerID:      ownerID,
		Name:         req.Name,
		Quantity:     req.Quantity,
		Price:        req.Price,
		Category:     req.Category,
		PurchaseDate: req.PurchaseDate,
		ExpiryDate:   req.ExpiryDate,
		ReminderDate: req.ReminderDate,
		Status:       domain.ItemActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, it); err != nil {
		return nil, fmt.Errorf("persist item: %w", err)
	}

	if it.IsDue(now) {
		return s.expireNow(ctx, it)
	}

	if it.ExpiryDate != nil {
		s.indexUpsert(ctx, it)
	}
	if err := s.pub.ItemCreated(ctx, it); err != nil {
		s.logger.Error("failed to publish item.created", zap.String("item_id", it.ID), zap.Error(err))
	}
	return it, nil
}

func (s *ItemService) Get(ctx context.Context, ownerID, id string) (*domain.Item, error) {
	if ownerID == "" {
		return nil, domain.ErrMissingOwner
	}
	it, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if it.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	return it, nil
}

func (s *ItemService) List(ctx context.Context, ownerID string) ([]*domain.Item, error) {
	if ownerID == "" {
		return nil, domain.ErrMissingOwner
	}
	return s.repo.ListByOwner(ctx, ownerID)
}

// Update applies a partial update and re-derives the expiration state:
//
//	no expiry            -> index entry removed
//	expiry in the past   -> expired now (if Active), index entry removed
//	expiry in the future -> reactivated (if Expired), index entry replaced
func (s *ItemService) Update(ctx context.Context, ownerID, id string, req domain.UpdateItemRequest) (*domain.Item, error) {
	if req.IsEmpty() {
		return nil, domain.ErrEmptyUpdate
	}
	cur, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	next, err := req.Apply(*cur)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	next.UpdatedAt = now
	if err := s.repo.Update(ctx, &next); err != nil {
		return nil, fmt.Errorf("update item: %w", err)
	}

	switch {
	case next.ExpiryDate == nil:
		s.indexRemove(ctx, next.ID)

	case next.IsDue(now):
		if next.Status == domain.ItemExpired {
			return &next, nil
		}
		return s.expireNow(ctx, &next)

	default:
		if next.Status == domain.ItemExpired {
			matched, err := s.repo.UpdateStatus(ctx, next.ID, domain.ItemExpired, domain.ItemActive)
			if err != nil {
				return nil, fmt.Errorf("reactivate item: %w", err)
			}
			if matched {
				next.Status = domain.ItemActive
				next.ExpiredAt = nil
			}
		}
		s.indexUpsert(ctx, &next)
	}
	return &next, nil
}

func (s *ItemService) Delete(ctx context.Context, ownerID, id string) error {
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.indexRemove(ctx, id)
	return nil
}

// expireNow runs the immediate-expiry path and drops the item's index entry.
// A publish failure after the committed transition still returns the expired
// item; the outbox relay delivers the event later. When the transition itself
// fails the item is stored Active, so it is indexed instead and the
// expiration worker retries it on its next cycle.
func (s *ItemService) expireNow(ctx context.Context, it *domain.Item) (*domain.Item, error) {
	res, err := s.expirer.Expire(ctx, it.ID)
	if err != nil && !res.Matched {
		s.logger.Error("immediate expiry failed, leaving it to the expiration worker",
			zap.String("item_id", it.ID), zap.Error(err))
		s.indexUpsert(ctx, it)
		return it, nil
	}
	if err != nil {
		s.logger.Warn("item expired but item.expired not yet published",
			zap.String("item_id", it.ID), zap.Error(err))
	}
	s.indexRemove(ctx, it.ID)
	if res.Matched {
		return res.Item, nil
	}
	return it, nil
}

func (s *ItemService) indexUpsert(ctx context.Context, it *domain.Item) {
	if err := s.index.Upsert(ctx, it.ID, *it.ExpiryDate); err != nil {
		s.logger.Error("failed to index item expiry", zap.String("item_id", it.ID), zap.Error(err))
	}
}

func (s *ItemService) indexRemove(ctx context.Context, id string) {
	if err := s.index.Remove(ctx, id); err != nil {
		s.logger.Error("failed to remove item from expiration index", zap.String("item_id", id), zap.Error(err))
	}
}
