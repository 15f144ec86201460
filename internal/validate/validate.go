// Package validate enforces the time-ordering chain between a task's
// due date, its schedules, and their reminders:
//
//	now < reminderTime < scheduledTime <= taskDueDate (if set)
//
// All inputs are absolute instants; callers resolve zones before calling.
package validate

import (
	"time"

	"timeflow/internal/domain"
)

// ScheduleTimes carries the instants needed to validate a schedule.
// TaskDueDate is nil when the referenced task has no due date.
type ScheduleTimes struct {
	ScheduledTime time.Time
	StartTime     time.Time
	EndTime       time.Time
	TaskDueDate   *time.Time
}

// Schedule checks startTime <= scheduledTime <= endTime and that the
// occurrence does not fall after the task's due date.
func Schedule(t ScheduleTimes) error {
	if t.StartTime.After(t.ScheduledTime) {
		return domain.Invalid("startTime", "must not be after scheduledTime (%s > %s)",
			t.StartTime.Format(time.RFC3339), t.ScheduledTime.Format(time.RFC3339))
	}
	if t.EndTime.Before(t.ScheduledTime) {
		return domain.Invalid("endTime", "must not be before scheduledTime (%s < %s)",
			t.EndTime.Format(time.RFC3339), t.ScheduledTime.Format(time.RFC3339))
	}
	if t.TaskDueDate != nil && t.ScheduledTime.After(*t.TaskDueDate) {
		return domain.Invalid("scheduledTime", "must not be after task due date %s",
			t.TaskDueDate.Format(time.RFC3339))
	}
	return nil
}

// ReminderTimes carries the instants needed to validate a reminder
// against its parent schedule and task.
type ReminderTimes struct {
	Now           time.Time
	ReminderTime  time.Time
	ScheduledTime time.Time
	TaskDueDate   *time.Time
	MinLead       time.Duration
}

// Reminder checks that the reminder fires in the future, before the
// schedule with at least MinLead to spare, and never past the task's
// due date. The lead check is inclusive: a gap of exactly MinLead passes.
func Reminder(t ReminderTimes) error {
	if !t.ReminderTime.After(t.Now) {
		return domain.Invalid("reminderTime", "must be in the future")
	}
	if !t.ReminderTime.Before(t.ScheduledTime) {
		return domain.Invalid("reminderTime", "must be before scheduledTime %s",
			t.ScheduledTime.Format(time.RFC3339))
	}
	if lead := t.ScheduledTime.Sub(t.ReminderTime); lead < t.MinLead {
		return domain.Invalid("reminderTime", "must lead scheduledTime by at least %s, got %s", t.MinLead, lead)
	}
	if t.TaskDueDate != nil && t.ReminderTime.After(*t.TaskDueDate) {
		return domain.Invalid("reminderTime", "must not be after task due date %s",
			t.TaskDueDate.Format(time.RFC3339))
	}
	return nil
}
