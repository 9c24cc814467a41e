package eventbus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/notifyhub/pantry-pipeline/internal/domain"
)

// RedisStreamBus implements Bus on a single Redis stream.
type RedisStreamBus struct {
	client *redis.Client
	stream string
}

func NewRedisStreamBus(client *redis.Client, stream string) *RedisStreamBus {
	return &RedisStreamBus{client: client, stream: stream}
}

func (b *RedisStreamBus) Publish(ctx context.Context, ev domain.Event) (string, error) {
	id, err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: b.stream,
		Values: ev.Values(),
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", b.stream, err)
	}
	return id, nil
}

func (b *RedisStreamBus) CreateGroup(ctx context.Context, group, start string) error {
	err := b.client.XGroupCreateMkStream(ctx, b.stream, group, start).Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("xgroup create %s %s: %w", b.stream, group, err)
	}
	return nil
}

func (b *RedisStreamBus) ReadGroup(ctx context.Context, group, consumer string, count int64, block time.Duration) ([]Message, error) {
	if block <= 0 {
		// go-redis treats Block=0 as "block forever"; a negative value omits BLOCK.
		block = -1
	}
	return b.readGroup(ctx, group, consumer, ">", count, block)
}

func (b *RedisStreamBus) ReadPending(ctx context.Context, group, consumer string, count int64) ([]Message, error) {
	return b.readGroup(ctx, group, consumer, "0", count, -1)
}

func (b *RedisStreamBus) readGroup(ctx context.Context, group, consumer, id string, count int64, block time.Duration) ([]Message, error) {
	streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{b.stream, id},
		Count:    count,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup %s %s: %w", b.stream, group, err)
	}

	var msgs []Message
	for _, s := range streams {
		msgs = append(msgs, toMessages(s.Messages)...)
	}
	return msgs, nil
}

func (b *RedisStreamBus) ClaimStale(ctx context.Context, group, consumer string, minIdle time.Duration, count int64) ([]Message, error) {
	xmsgs, _, err := b.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   b.stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Start:    "0-0",
		Count:    count,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xautoclaim %s %s: %w", b.stream, group, err)
	}
	return toMessages(xmsgs), nil
}

func (b *RedisStreamBus) Ack(ctx context.Context, group string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := b.client.XAck(ctx, b.stream, group, ids...).Err(); err != nil {
		return fmt.Errorf("xack %s %s: %w", b.stream, group, err)
	}
	return nil
}

func toMessages(xmsgs []redis.XMessage) []Message {
	msgs := make([]Message, 0, len(xmsgs))
	for _, m := range xmsgs {
		msgs = append(msgs, Message{ID: m.ID, Values: m.Values})
	}
	return msgs
}

var _ Bus = (*RedisStreamBus)(nil)
