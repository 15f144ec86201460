package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"timeflow/internal/domain"
	"timeflow/internal/notify"
	"timeflow/internal/store"
	"timeflow/internal/validate"
)

// ReminderEngine owns reminder creation, status transitions, and the
// due-reminder poll tick.
type ReminderEngine struct {
	reminders store.ReminderStore
	schedules store.ScheduleStore
	tasks     store.TaskStore
	registry  *notify.Registry
	set       Settings
	clock     Clock
	log       zerolog.Logger
}

func NewReminderEngine(reminders store.ReminderStore, schedules store.ScheduleStore, tasks store.TaskStore,
	registry *notify.Registry, set Settings, clock Clock, log zerolog.Logger) *ReminderEngine {
	return &ReminderEngine{
		reminders: reminders,
		schedules: schedules,
		tasks:     tasks,
		registry:  registry,
		set:       set.withDefaults(),
		clock:     clock,
		log:       log,
	}
}

type CreateReminderRequest struct {
	ScheduleID   string
	ReminderTime time.Time
	Message      string
	Channels     []domain.NotificationChannel
}

// Create resolves the parent schedule and its task, validates the
// reminder against the full ordering chain, and persists it as PENDING.
func (e *ReminderEngine) Create(ctx context.Context, req CreateReminderRequest) (domain.Reminder, error) {
	if req.ScheduleID == "" {
		return domain.Reminder{}, domain.Invalid("scheduleId", "is required")
	}
	if req.Message == "" {
		return domain.Reminder{}, domain.Invalid("message", "is required")
	}
	if req.ReminderTime.IsZero() {
		return domain.Reminder{}, domain.Invalid("reminderTime", "is required")
	}

	schedule, err := e.schedules.FindByID(ctx, req.ScheduleID)
	if err != nil {
		return domain.Reminder{}, err
	}
	task, err := e.tasks.FindByID(ctx, schedule.TaskID)
	if err != nil {
		return domain.Reminder{}, err
	}

	if err := validate.Reminder(validate.ReminderTimes{
		Now:           e.clock.Now(),
		ReminderTime:  req.ReminderTime,
		ScheduledTime: schedule.ScheduledTime,
		TaskDueDate:   task.DueDate,
		MinLead:       e.set.MinReminderLead,
	}); err != nil {
		return domain.Reminder{}, err
	}

	channels := req.Channels
	if len(channels) == 0 {
		channels = []domain.NotificationChannel{domain.ChannelBroadcast}
	}

	id, err := e.reminders.Create(ctx, domain.Reminder{
		ScheduleID:   req.ScheduleID,
		TaskID:       schedule.TaskID,
		ReminderTime: req.ReminderTime,
		Message:      req.Message,
		Status:       domain.ReminderPending,
		Channels:     channels,
	})
	if err != nil {
		return domain.Reminder{}, err
	}
	e.log.Info().Str("reminder_id", id).Str("schedule_id", req.ScheduleID).Time("reminder_time", req.ReminderTime).Msg("reminder created")
	return e.reminders.FindByID(ctx, id)
}

func (e *ReminderEngine) Get(ctx context.Context, id string) (domain.Reminder, error) {
	return e.reminders.FindByID(ctx, id)
}

func (e *ReminderEngine) ListBySchedule(ctx context.Context, scheduleID string) ([]domain.Reminder, error) {
	return e.reminders.FindBySchedule(ctx, scheduleID)
}

func (e *ReminderEngine) Delete(ctx context.Context, id string) error {
	return e.reminders.Delete(ctx, id)
}

type UpdateReminderRequest struct {
	ReminderTime *time.Time
	Message      *string
	Channels     []domain.NotificationChannel
}

// Update overwrites the mutable fields; a changed time is revalidated
// against the parent schedule's chain.
func (e *ReminderEngine) Update(ctx context.Context, id string, req UpdateReminderRequest) (domain.Reminder, error) {
	r, err := e.reminders.FindByID(ctx, id)
	if err != nil {
		return domain.Reminder{}, err
	}
	if req.Message != nil {
		r.Message = *req.Message
	}
	if len(req.Channels) > 0 {
		r.Channels = req.Channels
	}
	if req.ReminderTime != nil {
		schedule, err := e.schedules.FindByID(ctx, r.ScheduleID)
		if err != nil {
			return domain.Reminder{}, err
		}
		task, err := e.tasks.FindByID(ctx, schedule.TaskID)
		if err != nil {
			return domain.Reminder{}, err
		}
		if err := validate.Reminder(validate.ReminderTimes{
			Now:           e.clock.Now(),
			ReminderTime:  *req.ReminderTime,
			ScheduledTime: schedule.ScheduledTime,
			TaskDueDate:   task.DueDate,
			MinLead:       e.set.MinReminderLead,
		}); err != nil {
			return domain.Reminder{}, err
		}
		r.ReminderTime = *req.ReminderTime
	}
	if err := e.reminders.Save(ctx, r); err != nil {
		return domain.Reminder{}, err
	}
	return e.reminders.FindByID(ctx, id)
}

// DueReminders returns PENDING reminders inside the look-ahead window.
func (e *ReminderEngine) DueReminders(ctx context.Context, lookAhead time.Duration) ([]domain.Reminder, error) {
	now := e.clock.Now()
	return e.reminders.FindDueBetween(ctx, domain.ReminderPending, now, now.Add(lookAhead))
}

// Process dispatches one PENDING reminder through its channel set.
// Success moves it to SENT. A dispatch failure moves it to FAILED —
// terminally, there is no automatic retry — and surfaces a
// DeliveryError so batch drivers keep the signal.
func (e *ReminderEngine) Process(ctx context.Context, id string) error {
	r, err := e.reminders.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if r.Status != domain.ReminderPending {
		return domain.Invalid("status", "reminder is %s; only PENDING reminders can be processed", r.Status)
	}

	if err := e.registry.Dispatch(ctx, r.Channels, r.Message); err != nil {
		if _, ferr := e.reminders.TransitionStatus(ctx, id, domain.ReminderPending, domain.ReminderFailed); ferr != nil {
			e.log.Error().Err(ferr).Str("reminder_id", id).Msg("failed to mark reminder FAILED")
		}
		return &domain.DeliveryError{Channel: channelList(r.Channels), Err: err}
	}

	if _, err := e.reminders.TransitionStatus(ctx, id, domain.ReminderPending, domain.ReminderSent); err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}
	e.log.Info().Str("reminder_id", id).Str("schedule_id", r.ScheduleID).Msg("reminder sent")
	return nil
}

// Tick processes every PENDING reminder due within the look-ahead
// window. The lower bound is open so reminders that came due between
// ticks are not stranded; the status predicate keeps re-runs from
// touching already-processed items. Per-item failures are logged and do
// not abort the batch.
func (e *ReminderEngine) Tick(ctx context.Context, now time.Time) (int, error) {
	due, err := e.reminders.FindDueBefore(ctx, domain.ReminderPending, now.Add(e.set.ReminderLookAhead))
	if err != nil {
		return 0, fmt.Errorf("query due reminders: %w", err)
	}

	processed := 0
	for _, r := range due {
		if err := e.Process(ctx, r.ID); err != nil {
			e.log.Error().Err(err).Str("reminder_id", r.ID).Msg("failed to process reminder")
		}
		processed++
	}
	return processed, nil
}

func channelList(chs []domain.NotificationChannel) string {
	parts := make([]string, len(chs))
	for i, c := range chs {
		parts[i] = string(c)
	}
	return strings.Join(parts, ",")
}
