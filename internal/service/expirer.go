package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/pantry-pipeline/internal/eventbus"
	"github.com/notifyhub/pantry-pipeline/internal/repository"
)

// Expirer applies the Active->Expired transition and announces it. It is
// shared by the item service (expiry already in the past on create/update)
// and the expiration worker.
type Expirer struct {
	items  repository.ItemRepository
	outbox repository.OutboxRepository
	pub    *eventbus.Publisher
	logger *zap.Logger
	now    func() time.Time
}

func NewExpirer(
	items repository.ItemRepository,
	outbox repository.OutboxRepository,
	pub *eventbus.Publisher,
	logger *zap.Logger,
) *Expirer {
	return &Expirer{items: items, outbox: outbox, pub: pub, logger: logger, now: time.Now}
}

// Expire moves item id to Expired and publishes item.expired strictly after
// the store write. When the item was not Active nothing is written or
// published and res.Matched is false.
//
// A publish failure is returned with res.Matched set: the transition is
// committed and its outbox row stays unpublished for the relay to pick up.
func (e *Expirer) Expire(ctx context.Context, id string) (repository.ExpireResult, error) {
	res, err := e.items.Expire(ctx, id, e.now().UTC())
	if err != nil {
		return repository.ExpireResult{}, fmt.Errorf("expire item %s: %w", id, err)
	}
	if !res.Matched {
		return res, nil
	}

	if _, err := e.pub.Publish(ctx, res.Event); err != nil {
		return res, err
	}

	if err := e.outbox.MarkPublished(ctx, res.Event.ID, e.now().UTC()); err != nil {
		// The relay republishes it later; the consumer dedupes on event id.
		e.logger.Warn("failed to mark outbox event published",
			zap.String("event_id", res.Event.ID), zap.Error(err))
	}
	return res, nil
}
