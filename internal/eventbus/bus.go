// Package eventbus is the durable, append-only notification event stream
// read by named consumer groups.
//
// Delivery is at-least-once. A message handed to one member of a group is not
// handed to another unless it stays unacknowledged: a member re-reads its own
// backlog with ReadPending after a restart, and ClaimStale moves messages
// abandoned by a dead member to a live one. Consumers ack only after their
// side effect is durable.
package eventbus

import (
	"context"
	"time"

	"github.com/notifyhub/pantry-pipeline/internal/domain"
)

// Message is one stream entry as delivered to a consumer. Values holds the raw
// wire fields; use domain.ParseEvent to decode them.
type Message struct {
	ID     string
	Values map[string]any
}

// Bus is the event stream contract shared by the Redis Streams and in-memory
// implementations.
type Bus interface {
	// Publish appends ev and returns its stream id once stored.
	// It never waits on consumers.
	Publish(ctx context.Context, ev domain.Event) (string, error)

	// CreateGroup creates group starting at start ("0" for the whole stream,
	// "$" for new entries only). An existing group is not an error.
	CreateGroup(ctx context.Context, group, start string) error

	// ReadGroup delivers up to count never-delivered messages to consumer,
	// waiting up to block for one to arrive. block <= 0 returns immediately.
	// An empty result with a nil error means nothing arrived in time.
	ReadGroup(ctx context.Context, group, consumer string, count int64, block time.Duration) ([]Message, error)

	// ReadPending returns messages already delivered to consumer that it has
	// not acknowledged.
	ReadPending(ctx context.Context, group, consumer string, count int64) ([]Message, error)

	// ClaimStale transfers to consumer up to count messages that have been
	// pending on any member of group for at least minIdle, and returns them.
	ClaimStale(ctx context.Context, group, consumer string, minIdle time.Duration, count int64) ([]Message, error)

	// Ack marks ids as processed for group.
	Ack(ctx context.Context, group string, ids ...string) error
}
