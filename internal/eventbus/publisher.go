package eventbus

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/notifyhub/pantry-pipeline/internal/domain"
)

// Publisher is the single place domain code emits events from. It stamps a
// log line per event and reports each successful publish to onPublished.
type Publisher struct {
	bus         Bus
	logger      *zap.Logger
	onPublished func(domain.EventType)
}

// NewPublisher wraps bus. onPublished is optional (nil = no-op).
func NewPublisher(bus Bus, logger *zap.Logger, onPublished func(domain.EventType)) *Publisher {
	if onPublished == nil {
		onPublished = func(domain.EventType) {}
	}
	return &Publisher{bus: bus, logger: logger, onPublished: onPublished}
}

// Publish appends ev to the stream and returns the message id.
func (p *Publisher) Publish(ctx context.Context, ev domain.Event) (string, error) {
	id, err := p.bus.Publish(ctx, ev)
	if err != nil {
		return "", fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	p.onPublished(ev.Type)
	p.logger.Debug("event published",
		zap.String("type", string(ev.Type)),
		zap.String("event_id", ev.ID),
		zap.String("message_id", id),
		zap.String("user_id", ev.OwnerID),
	)
	return id, nil
}

func (p *Publisher) ItemCreated(ctx context.Context, item *domain.Item) error {
	_, err := p.Publish(ctx, domain.NewItemCreatedEvent(item))
	return err
}

func (p *Publisher) ReminderSet(ctx context.Context, r *domain.Reminder) error {
	_, err := p.Publish(ctx, domain.NewReminderSetEvent(r))
	return err
}

func (p *Publisher) ReminderDue(ctx context.Context, r *domain.Reminder) error {
	_, err := p.Publish(ctx, domain.NewReminderDueEvent(r))
	return err
}
