package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DispatcherConfig tunes a Dispatcher. Zero values fall back to defaults.
type DispatcherConfig struct {
	Interval  time.Duration
	Lease     time.Duration
	BatchSize int

	// Now overrides the clock. Tests use it to move time forward.
	Now func() time.Time
	// OnFired is called after every handler run with its result. Optional.
	OnFired func(name string, err error)
}

// Dispatcher polls a Store for due jobs and runs their handlers.
type Dispatcher struct {
	store    Store
	cfg      DispatcherConfig
	logger   *zap.Logger
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewDispatcher(store Store, cfg DispatcherConfig, logger *zap.Logger) *Dispatcher {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.Lease <= 0 {
		cfg.Lease = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.OnFired == nil {
		cfg.OnFired = func(string, error) {}
	}
	return &Dispatcher{
		store:    store,
		cfg:      cfg,
		logger:   logger,
		handlers: make(map[string]Handler),
	}
}

// Register binds name to h. It must be called before Run.
func (d *Dispatcher) Register(name string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[name] = h
}

// Run ticks every interval and fires any due jobs.
// Stops cleanly when ctx is cancelled; a job already claimed finishes first.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	d.logger.Info("job dispatcher started", zap.Duration("interval", d.cfg.Interval))

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("job dispatcher stopping")
			return
		case <-ticker.C:
			if _, err := d.RunOnce(ctx); err != nil {
				d.logger.Error("job poll error", zap.Error(err))
			}
		}
	}
}

// RunOnce claims one batch of due jobs and runs them in fire-time order.
// It returns how many handlers completed successfully.
func (d *Dispatcher) RunOnce(ctx context.Context) (int, error) {
	token := uuid.New().String()
	jobs, err := d.store.ClaimDue(ctx, token, d.cfg.Now().UTC(), d.cfg.Lease, d.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	done := 0
	for i, job := range jobs {
		if ctx.Err() != nil {
			// Hand the rest back rather than let their leases run out.
			d.releaseAll(context.WithoutCancel(ctx), jobs[i:])
			break
		}
		if d.fire(ctx, job) {
			done++
		}
	}

	if len(jobs) > 0 {
		d.logger.Info("fired due jobs", zap.Int("claimed", len(jobs)), zap.Int("completed", done))
	}
	return done, nil
}

func (d *Dispatcher) fire(ctx context.Context, job *Job) bool {
	log := d.logger.With(
		zap.String("job_id", job.ID),
		zap.String("job", job.Name),
		zap.String("key", job.Key),
	)

	d.mu.RLock()
	h, ok := d.handlers[job.Name]
	d.mu.RUnlock()

	var err error
	if !ok {
		err = fmt.Errorf("%w: %q", ErrNoHandler, job.Name)
	} else {
		err = h(ctx, job)
	}
	d.cfg.OnFired(job.Name, err)

	if err != nil {
		log.Warn("job failed, releasing lease", zap.Error(err))
		if rerr := d.store.Release(context.WithoutCancel(ctx), job); rerr != nil {
			log.Error("failed to release job", zap.Error(rerr))
		}
		return false
	}

	if err := d.store.Complete(context.WithoutCancel(ctx), job); err != nil {
		// The lease lapses and the job runs again. Handlers re-check
		// their own preconditions.
		log.Error("failed to complete job", zap.Error(err))
		return false
	}
	log.Debug("job completed")
	return true
}

func (d *Dispatcher) releaseAll(ctx context.Context, jobs []*Job) {
	for _, job := range jobs {
		if err := d.store.Release(ctx, job); err != nil {
			d.logger.Error("failed to release job", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
}
