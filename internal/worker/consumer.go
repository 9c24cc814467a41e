package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/pantry-pipeline/internal/domain"
	"github.com/notifyhub/pantry-pipeline/internal/eventbus"
	"github.com/notifyhub/pantry-pipeline/internal/service"
)

// Consumed outcomes reported to MetricHooks.OnConsumed.
const (
	OutcomeCreated   = "created"
	OutcomeDuplicate = "duplicate"
	OutcomeDropped   = "dropped"
	OutcomeFailed    = "failed"
)

const readErrorBackoff = time.Second

// ConsumerConfig identifies a consumer within its group and tunes its reads.
type ConsumerConfig struct {
	Group     string
	Name      string
	BatchSize int64
	Block     time.Duration
	// ClaimIdle is how long a message may sit un-acked on any member before
	// this consumer takes it over. Zero disables claiming.
	ClaimIdle time.Duration
}

// Consumer turns stream events into notification records, one group member.
//
// A message is acked once its notification is stored, once it proves to be a
// duplicate, or once it is found unusable (malformed or unknown type). A
// failed write leaves it un-acked so it is delivered again.
type Consumer struct {
	bus           eventbus.Bus
	notifications *service.NotificationService
	cfg           ConsumerConfig
	logger        *zap.Logger
	hooks         MetricHooks
}

func NewConsumer(
	bus eventbus.Bus,
	notifications *service.NotificationService,
	cfg ConsumerConfig,
	logger *zap.Logger,
	hooks MetricHooks,
) *Consumer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	return &Consumer{
		bus:           bus,
		notifications: notifications,
		cfg:           cfg,
		logger:        logger,
		hooks:         hooks.withDefaults(),
	}
}

// Run drains this member's own pending backlog, then reads new messages
// until ctx is cancelled, claiming stale messages every ClaimIdle.
func (c *Consumer) Run(ctx context.Context) {
	c.logger.Info("notification consumer started",
		zap.String("group", c.cfg.Group), zap.String("name", c.cfg.Name))

	c.DrainPending(ctx)

	lastClaim := time.Now()
	for {
		if ctx.Err() != nil {
			c.logger.Info("notification consumer stopping")
			return
		}

		if c.cfg.ClaimIdle > 0 && time.Since(lastClaim) >= c.cfg.ClaimIdle {
			c.ClaimStale(ctx)
			lastClaim = time.Now()
		}

		msgs, err := c.bus.ReadGroup(ctx, c.cfg.Group, c.cfg.Name, c.cfg.BatchSize, c.cfg.Block)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			c.logger.Error("stream read error", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(readErrorBackoff):
			}
			continue
		}
		c.handleBatch(ctx, msgs)
	}
}

// DrainPending reprocesses messages this member received but never acked,
// batch by batch, until a batch makes no progress.
func (c *Consumer) DrainPending(ctx context.Context) {
	for ctx.Err() == nil {
		msgs, err := c.bus.ReadPending(ctx, c.cfg.Group, c.cfg.Name, c.cfg.BatchSize)
		if err != nil {
			c.logger.Error("pending read error", zap.Error(err))
			return
		}
		if len(msgs) == 0 {
			return
		}
		c.logger.Info("reprocessing pending backlog", zap.Int("count", len(msgs)))
		if acked := c.handleBatch(ctx, msgs); acked == 0 {
			return
		}
	}
}

// ClaimStale takes over and processes messages left un-acked for longer than
// ClaimIdle, typically by a member that died.
func (c *Consumer) ClaimStale(ctx context.Context) {
	msgs, err := c.bus.ClaimStale(ctx, c.cfg.Group, c.cfg.Name, c.cfg.ClaimIdle, c.cfg.BatchSize)
	if err != nil {
		c.logger.Error("claim stale messages error", zap.Error(err))
		return
	}
	if len(msgs) > 0 {
		c.logger.Info("claimed stale messages", zap.Int("count", len(msgs)))
		c.handleBatch(ctx, msgs)
	}
}

// handleBatch processes msgs in order and returns how many were acked.
// In-flight messages finish even if ctx is cancelled meanwhile.
func (c *Consumer) handleBatch(ctx context.Context, msgs []eventbus.Message) int {
	work := context.WithoutCancel(ctx)
	acked := 0
	for _, m := range msgs {
		if c.Handle(work, m) {
			acked++
		}
	}
	return acked
}

// Handle processes one message and reports whether it was acked.
func (c *Consumer) Handle(ctx context.Context, m eventbus.Message) bool {
	log := c.logger.With(zap.String("message_id", m.ID))

	ev, err := domain.ParseEvent(m.Values)
	if err != nil {
		log.Warn("dropping malformed event", zap.Error(err))
		c.hooks.OnConsumed("", OutcomeDropped)
		return c.ack(ctx, m.ID, log)
	}
	if ev.ID == "" {
		// Producers outside this service may omit eventId. The stream
		// message id is stable across redelivery, so it serves as the key.
		ev.ID = MessageEventID(m.ID)
	}
	log = log.With(zap.String("type", string(ev.Type)), zap.String("event_id", ev.ID))

	n, created, err := c.notifications.Record(ctx, ev)
	switch {
	case errors.Is(err, domain.ErrUnknownEventType), errors.Is(err, domain.ErrMalformedEvent):
		log.Warn("dropping unusable event", zap.Error(err))
		c.hooks.OnConsumed(ev.Type, OutcomeDropped)
		return c.ack(ctx, m.ID, log)
	case err != nil:
		log.Error("failed to store notification, leaving message pending", zap.Error(err))
		c.hooks.OnConsumed(ev.Type, OutcomeFailed)
		return false
	case !created:
		log.Debug("notification already exists for event")
		c.hooks.OnConsumed(ev.Type, OutcomeDuplicate)
	default:
		log.Debug("notification created", zap.String("notification_id", n.ID))
		c.hooks.OnConsumed(ev.Type, OutcomeCreated)
	}
	return c.ack(ctx, m.ID, log)
}

// MessageEventID is the dedup key given to an event published without an
// eventId.
func MessageEventID(messageID string) string { return "msg:" + messageID }

func (c *Consumer) ack(ctx context.Context, id string, log *zap.Logger) bool {
	if err := c.bus.Ack(ctx, c.cfg.Group, id); err != nil {
		log.Error("ack failed", zap.Error(err))
		return false
	}
	return true
}
