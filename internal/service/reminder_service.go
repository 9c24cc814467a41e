package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/notifyhub/pantry-pipeline/internal/domain"
	"github.com/notifyhub/pantry-pipeline/internal/eventbus"
	"github.com/notifyhub/pantry-pipeline/internal/repository"
	"github.com/notifyhub/pantry-pipeline/internal/scheduler"
)

// SendReminderJob is the scheduler job name for firing a reminder. The job
// key is the reminder id.
const SendReminderJob = "send reminder"

// ReminderService owns reminder CRUD and keeps exactly one scheduled job per
// pending reminder.
type ReminderService struct {
	repo   repository.ReminderRepository
	items  repository.ItemRepository
	sched  *scheduler.Scheduler
	pub    *eventbus.Publisher
	logger *zap.Logger
}

func NewReminderService(
	repo repository.ReminderRepository,
	items repository.ItemRepository,
	sched *scheduler.Scheduler,
	pub *eventbus.Publisher,
	logger *zap.Logger,
) *ReminderService {
	return &ReminderService{repo: repo, items: items, sched: sched, pub: pub, logger: logger}
}

// Create stores a pending reminder, schedules its job and announces
// reminder.set. When the request omits the item name it is copied from the
// owner's item.
func (s *ReminderService) Create(ctx context.Context, ownerID string, req domain.CreateReminderRequest) (*domain.Reminder, error) {
	if ownerID == "" {
		return nil, domain.ErrMissingOwner
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	itemName := req.ItemName
	if itemName == "" {
		it, err := s.items.GetByID(ctx, req.ItemID)
		if errors.Is(err, domain.ErrNotFound) || (err == nil && it.OwnerID != ownerID) {
			return nil, domain.ErrInvalidItemID
		}
		if err != nil {
			return nil, fmt.Errorf("look up item: %w", err)
		}
		itemName = it.Name
	}

	now := time.Now().UTC()
	r := &domain.Reminder{
		ID:           uuid.New().String(),
		OwnerID:      ownerID,
		ItemID:       req.ItemID,
		ItemName:     itemName,
		ReminderDate: req.ReminderDate.UTC(),
		Message:      req.Message,
		Status:       domain.ReminderPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("persist reminder: %w", err)
	}

	if err := s.schedule(ctx, r); err != nil {
		// Without a job the reminder would never fire; undo the insert.
		if derr := s.repo.Delete(ctx, r.ID); derr != nil {
			s.logger.Error("failed to roll back unscheduled reminder",
				zap.String("reminder_id", r.ID), zap.Error(derr))
		}
		return nil, err
	}

	if err := s.pub.ReminderSet(ctx, r); err != nil {
		s.logger.Error("failed to publish reminder.set", zap.String("reminder_id", r.ID), zap.Error(err))
	}
	return r, nil
}

func (s *ReminderService) Get(ctx context.Context, ownerID, id string) (*domain.Reminder, error) {
	if ownerID == "" {
		return nil, domain.ErrMissingOwner
	}
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	return r, nil
}

func (s *ReminderService) List(ctx context.Context, ownerID string) ([]*domain.Reminder, error) {
	if ownerID == "" {
		return nil, domain.ErrMissingOwner
	}
	return s.repo.ListByOwner(ctx, ownerID)
}

// Update applies a partial update, then either fires the reminder on the
// spot (date now in the past) or moves its job to the new date and
// re-announces reminder.set (date in the future).
//
// The record is written before the job is touched, and the job is replaced
// in place under its key, so a failed step never leaves a pending reminder
// without a job.
func (s *ReminderService) Update(ctx context.Context, ownerID, id string, req domain.UpdateReminderRequest) (*domain.Reminder, error) {
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
	next.ReminderDate = next.ReminderDate.UTC()
	next.UpdatedAt = time.Now().UTC()

	if !next.ReminderDate.After(time.Now()) {
		return s.fireNow(ctx, cur, &next)
	}

	next.Status = domain.ReminderPending
	if err := s.repo.Update(ctx, &next); err != nil {
		return nil, fmt.Errorf("update reminder: %w", err)
	}
	if err := s.schedule(ctx, &next); err != nil {
		s.restore(ctx, cur)
		return nil, err
	}
	if err := s.pub.ReminderSet(ctx, &next); err != nil {
		s.logger.Error("failed to publish reminder.set", zap.String("reminder_id", id), zap.Error(err))
	}
	return &next, nil
}

// fireNow stores the edit, publishes reminder.due and marks the reminder
// sent, then cancels its job. Whenever the reminder ends up still pending,
// its job is moved to the new date so the dispatcher fires it instead; the
// event id depends only on reminder id and date, so a retry is deduped.
func (s *ReminderService) fireNow(ctx context.Context, cur, r *domain.Reminder) (*domain.Reminder, error) {
	r.Status = domain.ReminderPending
	if err := s.repo.Update(ctx, r); err != nil {
		return nil, fmt.Errorf("update reminder: %w", err)
	}

	if err := s.pub.ReminderDue(ctx, r); err != nil {
		s.logger.Warn("immediate reminder.due failed, handing over to scheduler",
			zap.String("reminder_id", r.ID), zap.Error(err))
		return s.handOver(ctx, cur, r)
	}
	if err := s.repo.UpdateStatus(ctx, r.ID, domain.ReminderSent); err != nil {
		s.logger.Warn("reminder.due published but reminder not marked sent, handing over to scheduler",
			zap.String("reminder_id", r.ID), zap.Error(err))
		return s.handOver(ctx, cur, r)
	}
	r.Status = domain.ReminderSent

	if err := s.sched.Cancel(ctx, SendReminderJob, r.ID); err != nil {
		// The executor discards jobs of reminders that are no longer pending.
		s.logger.Warn("failed to cancel job of fired reminder", zap.String("reminder_id", r.ID), zap.Error(err))
	}
	return r, nil
}

// handOver moves the job of a still pending reminder to its new date.
func (s *ReminderService) handOver(ctx context.Context, cur, r *domain.Reminder) (*domain.Reminder, error) {
	if err := s.schedule(ctx, r); err != nil {
		s.restore(ctx, cur)
		return nil, err
	}
	return r, nil
}

// restore writes back the reminder as it was before a failed edit, so it
// matches the job still queued for it.
func (s *ReminderService) restore(ctx context.Context, cur *domain.Reminder) {
	if err := s.repo.Update(ctx, cur); err != nil {
		s.logger.Error("failed to restore reminder after scheduling error",
			zap.String("reminder_id", cur.ID), zap.Error(err))
	}
}

// Delete removes the reminder and cancels its job. A sent reminder has no
// job left, which is fine.
func (s *ReminderService) Delete(ctx context.Context, ownerID, id string) error {
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.sched.Cancel(ctx, SendReminderJob, id); err != nil {
		// The executor discards jobs whose reminder is gone.
		s.logger.Warn("failed to cancel job of deleted reminder", zap.String("reminder_id", id), zap.Error(err))
	}
	return nil
}

// HandleSendReminder is the scheduler.Handler for SendReminderJob.
//
// It re-reads the reminder and discards the job without side effects when the
// reminder is gone, no longer pending, or dated in the future (it was moved
// while the job was queued). Otherwise it publishes reminder.due and marks the
// reminder sent. Errors are returned so the dispatcher retries the job.
func (s *ReminderService) HandleSendReminder(ctx context.Context, job *scheduler.Job) error {
	id := job.Payload["reminderId"]
	if id == "" {
		id = job.Key
	}
	log := s.logger.With(zap.String("reminder_id", id), zap.String("job_id", job.ID))

	r, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		log.Debug("reminder gone, discarding job")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load reminder: %w", err)
	}
	if r.Status != domain.ReminderPending {
		log.Debug("reminder not pending, discarding job", zap.String("status", string(r.Status)))
		return nil
	}
	if r.ReminderDate.After(time.Now()) {
		log.Debug("reminder moved to a later date, discarding job")
		return nil
	}

	if err := s.pub.ReminderDue(ctx, r); err != nil {
		return err
	}
	if err := s.repo.UpdateStatus(ctx, r.ID, domain.ReminderSent); err != nil {
		// A retry republishes the same event id, which the consumer dedupes.
		return fmt.Errorf("mark reminder sent: %w", err)
	}
	log.Info("reminder fired")
	return nil
}

func (s *ReminderService) schedule(ctx context.Context, r *domain.Reminder) error {
	err := s.sched.Schedule(ctx, r.ReminderDate, SendReminderJob, r.ID, map[string]string{"reminderId": r.ID})
	if err != nil {
		return fmt.Errorf("schedule reminder: %w", err)
	}
	return nil
}
