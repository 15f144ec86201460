package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"timeflow/internal/domain"
	"timeflow/internal/recurrence"
	"timeflow/internal/store"
	"timeflow/internal/validate"
)

// ScheduleEngine owns schedule creation, status transitions, and the
// due-schedule poll tick.
type ScheduleEngine struct {
	schedules store.ScheduleStore
	tasks     store.TaskStore
	reminders *ReminderEngine
	set       Settings
	clock     Clock
	log       zerolog.Logger
}

func NewScheduleEngine(schedules store.ScheduleStore, tasks store.TaskStore, reminders *ReminderEngine,
	set Settings, clock Clock, log zerolog.Logger) *ScheduleEngine {
	return &ScheduleEngine{
		schedules: schedules,
		tasks:     tasks,
		reminders: reminders,
		set:       set.withDefaults(),
		clock:     clock,
		log:       log,
	}
}

type CreateScheduleRequest struct {
	TaskID                string
	Title                 string
	Description           string
	ScheduledTime         time.Time
	StartTime             *time.Time
	EndTime               *time.Time
	TimeZone              string
	Recurrence            *domain.RecurrencePattern
	CreateDefaultReminder bool
}

// Create resolves the task, applies defaults, validates the time chain,
// persists, and moves the task TODO -> SCHEDULED. When the caller asked
// for a default reminder it is created at scheduledTime minus the
// configured lead.
func (e *ScheduleEngine) Create(ctx context.Context, req CreateScheduleRequest) (domain.Schedule, error) {
	if req.TaskID == "" {
		return domain.Schedule{}, domain.Invalid("taskId", "is required")
	}
	if req.ScheduledTime.IsZero() {
		return domain.Schedule{}, domain.Invalid("scheduledTime", "is required")
	}

	task, err := e.tasks.FindByID(ctx, req.TaskID)
	if err != nil {
		return domain.Schedule{}, err
	}

	zone := req.TimeZone
	if zone == "" {
		zone = e.set.Zone.String()
	}
	if _, err := time.LoadLocation(zone); err != nil {
		return domain.Schedule{}, domain.Invalid("timeZone", "unknown time zone %q", zone)
	}

	start := req.ScheduledTime
	if req.StartTime != nil {
		start = *req.StartTime
	}
	end := req.ScheduledTime.Add(e.set.DefaultScheduleDuration)
	if req.EndTime != nil {
		end = *req.EndTime
	}

	if err := validate.Schedule(validate.ScheduleTimes{
		ScheduledTime: req.ScheduledTime,
		StartTime:     start,
		EndTime:       end,
		TaskDueDate:   task.DueDate,
	}); err != nil {
		return domain.Schedule{}, err
	}
	if req.Recurrence != nil {
		if err := recurrence.Validate(*req.Recurrence); err != nil {
			return domain.Schedule{}, err
		}
	}

	id, err := e.schedules.Create(ctx, domain.Schedule{
		TaskID:        req.TaskID,
		Title:         req.Title,
		Description:   req.Description,
		ScheduledTime: req.ScheduledTime,
		StartTime:     start,
		EndTime:       end,
		TimeZone:      zone,
		Status:        domain.SchedulePending,
		Recurrence:    req.Recurrence,
	})
	if err != nil {
		return domain.Schedule{}, err
	}

	if _, err := e.tasks.TransitionStatus(ctx, task.ID, []domain.TaskStatus{domain.TaskTodo}, domain.TaskScheduled); err != nil {
		return domain.Schedule{}, fmt.Errorf("mark task scheduled: %w", err)
	}

	if req.CreateDefaultReminder {
		title := req.Title
		if title == "" {
			title = "Scheduled task"
		}
		_, err := e.reminders.Create(ctx, CreateReminderRequest{
			ScheduleID:   id,
			ReminderTime: req.ScheduledTime.Add(-e.set.DefaultReminderLead),
			Message:      "Reminder for: " + title,
			Channels:     []domain.NotificationChannel{domain.ChannelBroadcast},
		})
		if err != nil {
			// The schedule itself is already durable; the caller can retry
			// reminder creation against it.
			return domain.Schedule{}, fmt.Errorf("create default reminder for schedule %s: %w", id, err)
		}
	}

	created, err := e.schedules.FindByID(ctx, id)
	if err != nil {
		return domain.Schedule{}, err
	}
	e.log.Info().Str("schedule_id", id).Str("task_id", task.ID).Time("scheduled_time", req.ScheduledTime).Msg("schedule created")
	return created, nil
}

func (e *ScheduleEngine) Get(ctx context.Context, id string) (domain.Schedule, error) {
	return e.schedules.FindByID(ctx, id)
}

func (e *ScheduleEngine) List(ctx context.Context, limit int) ([]domain.Schedule, error) {
	if limit <= 0 {
		limit = 50
	}
	return e.schedules.List(ctx, limit)
}

func (e *ScheduleEngine) ListByTask(ctx context.Context, taskID string) ([]domain.Schedule, error) {
	return e.schedules.FindByTask(ctx, taskID)
}

func (e *ScheduleEngine) Delete(ctx context.Context, id string) error {
	return e.schedules.Delete(ctx, id)
}

type UpdateScheduleRequest struct {
	Title         *string
	Description   *string
	ScheduledTime *time.Time
	TimeZone      *string
}

// Update overwrites the mutable fields. A changed scheduledTime is
// revalidated against the task's due date and the start/end window.
func (e *ScheduleEngine) Update(ctx context.Context, id string, req UpdateScheduleRequest) (domain.Schedule, error) {
	sc, err := e.schedules.FindByID(ctx, id)
	if err != nil {
		return domain.Schedule{}, err
	}
	if req.Title != nil {
		sc.Title = *req.Title
	}
	if req.Description != nil {
		sc.Description = *req.Description
	}
	if req.TimeZone != nil {
		if _, err := time.LoadLocation(*req.TimeZone); err != nil {
			return domain.Schedule{}, domain.Invalid("timeZone", "unknown time zone %q", *req.TimeZone)
		}
		sc.TimeZone = *req.TimeZone
	}
	if req.ScheduledTime != nil {
		sc.ScheduledTime = *req.ScheduledTime
		task, err := e.tasks.FindByID(ctx, sc.TaskID)
		if err != nil {
			return domain.Schedule{}, err
		}
		if err := validate.Schedule(validate.ScheduleTimes{
			ScheduledTime: sc.ScheduledTime,
			StartTime:     sc.StartTime,
			EndTime:       sc.EndTime,
			TaskDueDate:   task.DueDate,
		}); err != nil {
			return domain.Schedule{}, err
		}
	}
	if err := e.schedules.Save(ctx, sc); err != nil {
		return domain.Schedule{}, err
	}
	return e.schedules.FindByID(ctx, id)
}

// UpdateStatus is the API-driven direct overwrite; it bypasses the
// PENDING guard on purpose.
func (e *ScheduleEngine) UpdateStatus(ctx context.Context, id string, status domain.ScheduleStatus) (domain.Schedule, error) {
	switch status {
	case domain.SchedulePending, domain.ScheduleCompleted, domain.ScheduleCancelled:
	default:
		return domain.Schedule{}, domain.Invalid("status", "unknown schedule status %q", status)
	}
	sc, err := e.schedules.FindByID(ctx, id)
	if err != nil {
		return domain.Schedule{}, err
	}
	sc.Status = status
	if err := e.schedules.Save(ctx, sc); err != nil {
		return domain.Schedule{}, err
	}
	e.log.Info().Str("schedule_id", id).Str("status", string(status)).Msg("schedule status updated")
	return e.schedules.FindByID(ctx, id)
}

// Reschedule moves the occurrence to newTime, shifting the start/end
// window to preserve its duration, revalidates, and resets the schedule
// to PENDING so the poller will pick it up again.
func (e *ScheduleEngine) Reschedule(ctx context.Context, id string, newTime time.Time) (domain.Schedule, error) {
	if newTime.IsZero() {
		return domain.Schedule{}, domain.Invalid("scheduledTime", "is required")
	}
	sc, err := e.schedules.FindByID(ctx, id)
	if err != nil {
		return domain.Schedule{}, err
	}
	task, err := e.tasks.FindByID(ctx, sc.TaskID)
	if err != nil {
		return domain.Schedule{}, err
	}

	duration := sc.EndTime.Sub(sc.StartTime)
	sc.ScheduledTime = newTime
	sc.StartTime = newTime
	sc.EndTime = newTime.Add(duration)
	sc.Status = domain.SchedulePending

	if err := validate.Schedule(validate.ScheduleTimes{
		ScheduledTime: sc.ScheduledTime,
		StartTime:     sc.StartTime,
		EndTime:       sc.EndTime,
		TaskDueDate:   task.DueDate,
	}); err != nil {
		return domain.Schedule{}, err
	}
	if err := e.schedules.Save(ctx, sc); err != nil {
		return domain.Schedule{}, err
	}
	e.log.Info().Str("schedule_id", id).Time("new_time", newTime).Msg("schedule rescheduled")
	return e.schedules.FindByID(ctx, id)
}

// DueSchedules returns PENDING schedules inside the look-ahead window.
func (e *ScheduleEngine) DueSchedules(ctx context.Context, lookAhead time.Duration) ([]domain.Schedule, error) {
	now := e.clock.Now()
	return e.schedules.FindDueBetween(ctx, domain.SchedulePending, now, now.Add(lookAhead))
}

// PendingSchedules returns PENDING schedules whose time has passed.
func (e *ScheduleEngine) PendingSchedules(ctx context.Context) ([]domain.Schedule, error) {
	return e.schedules.FindDueBefore(ctx, domain.SchedulePending, e.clock.Now())
}

// NextOccurrence computes the next concrete occurrence of the schedule's
// recurrence pattern from now, in the schedule's declared zone.
func (e *ScheduleEngine) NextOccurrence(ctx context.Context, id string) (time.Time, error) {
	sc, err := e.schedules.FindByID(ctx, id)
	if err != nil {
		return time.Time{}, err
	}
	if sc.Recurrence == nil {
		return time.Time{}, domain.Invalid("recurrence", "schedule has no recurrence pattern")
	}
	loc, err := time.LoadLocation(sc.TimeZone)
	if err != nil {
		loc = e.set.Zone
	}
	return recurrence.Next(*sc.Recurrence, e.clock.Now().In(loc))
}

// Tick processes every PENDING schedule whose scheduledTime has passed.
// The PENDING -> COMPLETED compare-and-set is the idempotence claim: a
// schedule another tick already completed is skipped, and per-item
// failures are logged without aborting the batch.
func (e *ScheduleEngine) Tick(ctx context.Context, now time.Time) (int, error) {
	due, err := e.schedules.FindDueBefore(ctx, domain.SchedulePending, now)
	if err != nil {
		return 0, fmt.Errorf("query due schedules: %w", err)
	}

	processed := 0
	for _, sc := range due {
		claimed, err := e.schedules.TransitionStatus(ctx, sc.ID, domain.SchedulePending, domain.ScheduleCompleted)
		if err != nil {
			e.log.Error().Err(err).Str("schedule_id", sc.ID).Msg("failed to complete schedule")
			continue
		}
		if !claimed {
			continue
		}
		processed++

		if _, err := e.tasks.TransitionStatus(ctx, sc.TaskID,
			[]domain.TaskStatus{domain.TaskTodo, domain.TaskScheduled}, domain.TaskInProgress); err != nil {
			e.log.Error().Err(err).Str("schedule_id", sc.ID).Str("task_id", sc.TaskID).Msg("failed to start task")
			continue
		}
		e.log.Info().Str("schedule_id", sc.ID).Str("task_id", sc.TaskID).Msg("processed due schedule")
	}
	return processed, nil
}
