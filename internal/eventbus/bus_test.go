package eventbus_test

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/pantry-pipeline/internal/domain"
	"github.com/notifyhub/pantry-pipeline/internal/eventbus"
)

const group = "notification-service"

func itemEvent(name string) domain.Event {
	return domain.NewItemCreatedEvent(&domain.Item{ID: "item-" + name, OwnerID: "user-1", Name: name})
}

func ids(msgs []eventbus.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

// runBusContract exercises the consumer-group semantics every Bus must share.
func runBusContract(t *testing.T, newBus func(t *testing.T) eventbus.Bus) {
	ctx := context.Background()

	t.Run("create group is idempotent", func(t *testing.T) {
		bus := newBus(t)
		if err := bus.CreateGroup(ctx, group, "0"); err != nil {
			t.Fatalf("first create: %v", err)
		}
		if err := bus.CreateGroup(ctx, group, "0"); err != nil {
			t.Fatalf("second create: %v", err)
		}
	})

	t.Run("competing consumers split the stream", func(t *testing.T) {
		bus := newBus(t)
		_ = bus.CreateGroup(ctx, group, "0")
		for _, name := range []string{"milk", "eggs", "bread"} {
			if _, err := bus.Publish(ctx, itemEvent(name)); err != nil {
				t.Fatalf("publish: %v", err)
			}
		}

		a, err := bus.ReadGroup(ctx, group, "a", 2, 0)
		if err != nil {
			t.Fatalf("read a: %v", err)
		}
		b, err := bus.ReadGroup(ctx, group, "b", 2, 0)
		if err != nil {
			t.Fatalf("read b: %v", err)
		}
		if len(a) != 2 || len(b) != 1 {
			t.Fatalf("expected 2+1 deliveries, got %d+%d", len(a), len(b))
		}
		seen := map[string]bool{}
		for _, id := range append(ids(a), ids(b)...) {
			if seen[id] {
				t.Fatalf("message %s delivered twice", id)
			}
			seen[id] = true
		}

		ev, err := domain.ParseEvent(a[0].Values)
		if err != nil {
			t.Fatalf("parse delivered values: %v", err)
		}
		if ev.ItemName != "milk" {
			t.Fatalf("expected insertion order, first was %q", ev.ItemName)
		}
	})

	t.Run("unacked messages stay pending for their consumer", func(t *testing.T) {
		bus := newBus(t)
		_ = bus.CreateGroup(ctx, group, "0")
		_, _ = bus.Publish(ctx, itemEvent("milk"))
		_, _ = bus.Publish(ctx, itemEvent("eggs"))

		got, _ := bus.ReadGroup(ctx, group, "a", 10, 0)
		if len(got) != 2 {
			t.Fatalf("expected 2 messages, got %d", len(got))
		}
		if err := bus.Ack(ctx, group, got[0].ID); err != nil {
			t.Fatalf("ack: %v", err)
		}

		pending, err := bus.ReadPending(ctx, group, "a", 10)
		if err != nil {
			t.Fatalf("read pending: %v", err)
		}
		if len(pending) != 1 || pending[0].ID != got[1].ID {
			t.Fatalf("expected only %s pending, got %v", got[1].ID, ids(pending))
		}

		other, _ := bus.ReadPending(ctx, group, "b", 10)
		if len(other) != 0 {
			t.Fatalf("consumer b must not see a's backlog, got %v", ids(other))
		}

		again, _ := bus.ReadGroup(ctx, group, "b", 10, 0)
		if len(again) != 0 {
			t.Fatalf("pending messages must not be redelivered as new, got %v", ids(again))
		}
	})

	t.Run("claim stale takes over a dead member's backlog", func(t *testing.T) {
		bus := newBus(t)
		_ = bus.CreateGroup(ctx, group, "0")
		_, _ = bus.Publish(ctx, itemEvent("milk"))
		dead, _ := bus.ReadGroup(ctx, group, "dead", 10, 0)
		if len(dead) != 1 {
			t.Fatalf("expected 1 message, got %d", len(dead))
		}

		claimed, err := bus.ClaimStale(ctx, group, "alive", 0, 10)
		if err != nil {
			t.Fatalf("claim: %v", err)
		}
		if len(claimed) != 1 || claimed[0].ID != dead[0].ID {
			t.Fatalf("expected to claim %s, got %v", dead[0].ID, ids(claimed))
		}

		mine, _ := bus.ReadPending(ctx, group, "alive", 10)
		if len(mine) != 1 {
			t.Fatalf("claimed message should be in alive's backlog, got %v", ids(mine))
		}
		_ = bus.Ack(ctx, group, claimed[0].ID)
		if left, _ := bus.ReadPending(ctx, group, "alive", 10); len(left) != 0 {
			t.Fatalf("expected empty backlog after ack, got %v", ids(left))
		}
	})

	t.Run("blocking read times out empty", func(t *testing.T) {
		bus := newBus(t)
		_ = bus.CreateGroup(ctx, group, "0")
		start := time.Now()
		got, err := bus.ReadGroup(ctx, group, "a", 10, 50*time.Millisecond)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if len(got) != 0 {
			t.Fatalf("expected no messages, got %d", len(got))
		}
		if time.Since(start) < 40*time.Millisecond {
			t.Fatal("read returned before the block duration")
		}
	})
}

func TestMemoryBus_Contract(t *testing.T) {
	runBusContract(t, func(t *testing.T) eventbus.Bus { return eventbus.NewMemoryBus() })
}

func TestMemoryBus_BlockingReadWakesOnPublish(t *testing.T) {
	bus := eventbus.NewMemoryBus()
	ctx := context.Background()
	_ = bus.CreateGroup(ctx, group, "0")

	done := make(chan []eventbus.Message, 1)
	go func() {
		msgs, _ := bus.ReadGroup(ctx, group, "a", 10, 5*time.Second)
		done <- msgs
	}()

	time.Sleep(20 * time.Millisecond)
	_, _ = bus.Publish(ctx, itemEvent("milk"))

	select {
	case msgs := <-done:
		if len(msgs) != 1 {
			t.Fatalf("expected 1 message, got %d", len(msgs))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked reader was not woken by publish")
	}
}

func TestMemoryBus_ReadHonoursContext(t *testing.T) {
	bus := eventbus.NewMemoryBus()
	_ = bus.CreateGroup(context.Background(), group, "0")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := bus.ReadGroup(ctx, group, "a", 10, time.Minute)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestMemoryBus_UnknownGroup(t *testing.T) {
	bus := eventbus.NewMemoryBus()
	_, err := bus.ReadGroup(context.Background(), "nope", "a", 1, 0)
	if !errors.Is(err, eventbus.ErrNoGroup) {
		t.Fatalf("expected ErrNoGroup, got %v", err)
	}
}

func TestMemoryBus_GroupFromTail(t *testing.T) {
	bus := eventbus.NewMemoryBus()
	ctx := context.Background()
	_, _ = bus.Publish(ctx, itemEvent("old"))
	_ = bus.CreateGroup(ctx, group, "$")
	_, _ = bus.Publish(ctx, itemEvent("new"))

	got, _ := bus.ReadGroup(ctx, group, "a", 10, 0)
	if len(got) != 1 {
		t.Fatalf("expected only the message published after the group, got %d", len(got))
	}
}

func TestPublisher_ReportsPublishedTypes(t *testing.T) {
	bus := eventbus.NewMemoryBus()
	var types []string
	pub := eventbus.NewPublisher(bus, zap.NewNop(), func(et domain.EventType) {
		types = append(types, string(et))
	})
	ctx := context.Background()

	item := &domain.Item{ID: "i1", OwnerID: "u1", Name: "Milk"}
	rem := &domain.Reminder{ID: "r1", OwnerID: "u1", ItemID: "i1", ItemName: "Milk", ReminderDate: time.Now()}

	if err := pub.ItemCreated(ctx, item); err != nil {
		t.Fatalf("item created: %v", err)
	}
	if err := pub.ReminderSet(ctx, rem); err != nil {
		t.Fatalf("reminder set: %v", err)
	}
	if err := pub.ReminderDue(ctx, rem); err != nil {
		t.Fatalf("reminder due: %v", err)
	}

	sort.Strings(types)
	want := []string{"item.created", "reminder.due", "reminder.set"}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, types)
		}
	}

	evs := bus.EventsOfType(domain.EventReminderSet)
	if len(evs) != 1 || evs[0].ReminderID != "r1" || evs[0].ReminderDate == nil {
		t.Fatalf("unexpected reminder.set event: %+v", evs)
	}
}

func TestPublisher_WrapsBusError(t *testing.T) {
	bus := eventbus.NewMemoryBus()
	boom := errors.New("redis down")
	bus.PublishErr = boom
	called := false
	pub := eventbus.NewPublisher(bus, zap.NewNop(), func(domain.EventType) { called = true })

	err := pub.ItemCreated(context.Background(), &domain.Item{ID: "i1", OwnerID: "u1", Name: "Milk"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped bus error, got %v", err)
	}
	if called {
		t.Fatal("hook fired for a failed publish")
	}
	if bus.Len() != 0 {
		t.Fatalf("expected empty stream, got %d", bus.Len())
	}
}
