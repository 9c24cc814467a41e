package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/notifyhub/pantry-pipeline/internal/domain"
)

// ErrNoGroup is returned by MemoryBus when reading a group never created,
// matching Redis' NOGROUP reply.
var ErrNoGroup = errors.New("eventbus: consumer group does not exist")

// MemoryBus is an in-process Bus with the same group semantics as Redis
// Streams: a per-group delivery cursor plus a pending entries list per
// group. It is used by unit tests and by single-process runs.
type MemoryBus struct {
	mu     sync.Mutex
	log    []Message
	groups map[string]*memGroup
	wake   chan struct{}
	now    func() time.Time

	// PublishErr, when set, fails every Publish call.
	PublishErr error
	// FailPublishes fails the next n Publish calls, then succeeds.
	FailPublishes int
}

type memGroup struct {
	next    int // index into log of the first never-delivered message
	pending map[string]*pendingEntry
	order   []string // pending ids in delivery order
}

type pendingEntry struct {
	msg         Message
	consumer    string
	deliveredAt time.Time
	deliveries  int
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		groups: make(map[string]*memGroup),
		wake:   make(chan struct{}),
		now:    time.Now,
	}
}

func (b *MemoryBus) Publish(_ context.Context, ev domain.Event) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.PublishErr != nil {
		return "", b.PublishErr
	}
	if b.FailPublishes > 0 {
		b.FailPublishes--
		return "", errors.New("eventbus: simulated publish failure")
	}
	id := fmt.Sprintf("%d-0", len(b.log)+1)
	b.log = append(b.log, Message{ID: id, Values: ev.Values()})
	close(b.wake)
	b.wake = make(chan struct{})
	return id, nil
}

// PublishRaw appends arbitrary values, bypassing domain.Event. Tests use it to
// inject malformed payloads.
func (b *MemoryBus) PublishRaw(values map[string]any) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := fmt.Sprintf("%d-0", len(b.log)+1)
	b.log = append(b.log, Message{ID: id, Values: values})
	close(b.wake)
	b.wake = make(chan struct{})
	return id
}

func (b *MemoryBus) CreateGroup(_ context.Context, group, start string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.groups[group]; ok {
		return nil
	}
	g := &memGroup{pending: make(map[string]*pendingEntry)}
	if start == "$" {
		g.next = len(b.log)
	}
	b.groups[group] = g
	return nil
}

func (b *MemoryBus) ReadGroup(ctx context.Context, group, consumer string, count int64, block time.Duration) ([]Message, error) {
	var deadline <-chan time.Time
	if block > 0 {
		timer := time.NewTimer(block)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		b.mu.Lock()
		g, ok := b.groups[group]
		if !ok {
			b.mu.Unlock()
			return nil, ErrNoGroup
		}
		if msgs := b.deliverLocked(g, consumer, count); len(msgs) > 0 || block <= 0 {
			b.mu.Unlock()
			return msgs, nil
		}
		wake := b.wake
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return nil, nil
		case <-wake:
		}
	}
}

func (b *MemoryBus) deliverLocked(g *memGroup, consumer string, count int64) []Message {
	var msgs []Message
	for g.next < len(b.log) && (count <= 0 || int64(len(msgs)) < count) {
		m := b.log[g.next]
		g.next++
		g.pending[m.ID] = &pendingEntry{msg: m, consumer: consumer, deliveredAt: b.now(), deliveries: 1}
		g.order = append(g.order, m.ID)
		msgs = append(msgs, m)
	}
	return msgs
}

func (b *MemoryBus) ReadPending(_ context.Context, group, consumer string, count int64) ([]Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	g, ok := b.groups[group]
	if !ok {
		return nil, ErrNoGroup
	}
	var msgs []Message
	for _, id := range g.order {
		if count > 0 && int64(len(msgs)) >= count {
			break
		}
		if p, ok := g.pending[id]; ok && p.consumer == consumer {
			p.deliveries++
			msgs = append(msgs, p.msg)
		}
	}
	return msgs, nil
}

func (b *MemoryBus) ClaimStale(_ context.Context, group, consumer string, minIdle time.Duration, count int64) ([]Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	g, ok := b.groups[group]
	if !ok {
		return nil, ErrNoGroup
	}
	now := b.now()
	var msgs []Message
	for _, id := range g.order {
		if count > 0 && int64(len(msgs)) >= count {
			break
		}
		p, ok := g.pending[id]
		if !ok || now.Sub(p.deliveredAt) < minIdle {
			continue
		}
		p.consumer = consumer
		p.deliveredAt = now
		p.deliveries++
		msgs = append(msgs, p.msg)
	}
	return msgs, nil
}

func (b *MemoryBus) Ack(_ context.Context, group string, ids ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	g, ok := b.groups[group]
	if !ok {
		return ErrNoGroup
	}
	for _, id := range ids {
		delete(g.pending, id)
	}
	kept := g.order[:0]
	for _, id := range g.order {
		if _, ok := g.pending[id]; ok {
			kept = append(kept, id)
		}
	}
	g.order = kept
	return nil
}

// Events decodes every message ever published, in stream order.
func (b *MemoryBus) Events() []domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.Event
	for _, m := range b.log {
		if ev, err := domain.ParseEvent(m.Values); err == nil {
			out = append(out, ev)
		}
	}
	return out
}

// EventsOfType returns the published events of type t.
func (b *MemoryBus) EventsOfType(t domain.EventType) []domain.Event {
	var out []domain.Event
	for _, ev := range b.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// Len returns the number of messages in the stream.
func (b *MemoryBus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.log)
}

// PendingCount returns how many messages group has delivered but not acked.
func (b *MemoryBus) PendingCount(group string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if g, ok := b.groups[group]; ok {
		return len(g.pending)
	}
	return 0
}

var _ Bus = (*MemoryBus)(nil)
