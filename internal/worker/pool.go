package worker

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/pantry-pipeline/internal/config"
	"github.com/notifyhub/pantry-pipeline/internal/domain"
	"github.com/notifyhub/pantry-pipeline/internal/eventbus"
	"github.com/notifyhub/pantry-pipeline/internal/service"
)

// MetricHooks carries the metric callback functions injected by main.
// Any nil hook is a no-op, so the workers stay metrics-agnostic.
type MetricHooks struct {
	OnExpired    func()
	OnIndexDepth func(depth int64)
	OnCycle      func(worker string, d time.Duration)
	OnConsumed   func(t domain.EventType, outcome string)
}

func (h MetricHooks) withDefaults() MetricHooks {
	if h.OnExpired == nil {
		h.OnExpired = func() {}
	}
	if h.OnIndexDepth == nil {
		h.OnIndexDepth = func(int64) {}
	}
	if h.OnCycle == nil {
		h.OnCycle = func(string, time.Duration) {}
	}
	if h.OnConsumed == nil {
		h.OnConsumed = func(domain.EventType, string) {}
	}
	return h
}

// ConsumerPool runs the members of one consumer group. Members compete for
// messages; each has a stable identity so a restarted process picks its own
// backlog back up.
type ConsumerPool struct {
	bus       eventbus.Bus
	group     string
	consumers []*Consumer
	wg        sync.WaitGroup
}

// NewConsumerPool creates cfg.ConsumerCount consumers named <hostname>-<n>.
func NewConsumerPool(
	cfg *config.Config,
	bus eventbus.Bus,
	notifications *service.NotificationService,
	logger *zap.Logger,
	hooks MetricHooks,
) *ConsumerPool {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "notification-worker"
	}

	count := cfg.ConsumerCount
	if count < 1 {
		count = 1
	}
	consumers := make([]*Consumer, count)
	for i := range consumers {
		name := fmt.Sprintf("%s-%d", host, i+1)
		consumers[i] = NewConsumer(bus, notifications, ConsumerConfig{
			Group:     cfg.ConsumerGroup,
			Name:      name,
			BatchSize: int64(cfg.ConsumerBatchSize),
			Block:     cfg.ConsumerBlock,
			ClaimIdle: cfg.ConsumerClaimIdle,
		}, logger.With(zap.String("consumer", name)), hooks)
	}

	return &ConsumerPool{bus: bus, group: cfg.ConsumerGroup, consumers: consumers}
}

// EnsureGroup creates the consumer group over the whole stream if it does not
// exist yet. Callers treat an error as fatal at start-up.
func (p *ConsumerPool) EnsureGroup(ctx context.Context) error {
	return p.bus.CreateGroup(ctx, p.group, "0")
}

// Start launches all consumers as goroutines.
// Cancelling ctx triggers a graceful shutdown of the entire pool.
func (p *ConsumerPool) Start(ctx context.Context) {
	for _, c := range p.consumers {
		p.wg.Add(1)
		go func(c *Consumer) {
			defer p.wg.Done()
			c.Run(ctx)
		}(c)
	}
}

// Wait blocks until every consumer has returned after ctx is cancelled.
// In-flight messages finish and are acked first.
func (p *ConsumerPool) Wait() {
	p.wg.Wait()
}
