package validate

import (
	"errors"
	"testing"
	"time"

	"timeflow/internal/domain"
)

var base = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

func field(t *testing.T, err error) string {
	t.Helper()
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	return verr.Field
}

func TestScheduleValid(t *testing.T) {
	due := base.Add(48 * time.Hour)
	err := Schedule(ScheduleTimes{
		ScheduledTime: base.Add(24 * time.Hour),
		StartTime:     base.Add(24 * time.Hour),
		EndTime:       base.Add(25 * time.Hour),
		TaskDueDate:   &due,
	})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
}

func TestScheduleStartAfterScheduled(t *testing.T) {
	err := Schedule(ScheduleTimes{
		ScheduledTime: base,
		StartTime:     base.Add(time.Minute),
		EndTime:       base.Add(time.Hour),
	})
	if got := field(t, err); got != "startTime" {
		t.Errorf("field = %q, want startTime", got)
	}
}

func TestScheduleEndBeforeScheduled(t *testing.T) {
	err := Schedule(ScheduleTimes{
		ScheduledTime: base,
		StartTime:     base.Add(-time.Hour),
		EndTime:       base.Add(-time.Minute),
	})
	if got := field(t, err); got != "endTime" {
		t.Errorf("field = %q, want endTime", got)
	}
}

func TestScheduleAfterTaskDueDate(t *testing.T) {
	due := base.Add(time.Hour)
	err := Schedule(ScheduleTimes{
		ScheduledTime: base.Add(2 * time.Hour),
		StartTime:     base.Add(2 * time.Hour),
		EndTime:       base.Add(3 * time.Hour),
		TaskDueDate:   &due,
	})
	if got := field(t, err); got != "scheduledTime" {
		t.Errorf("field = %q, want scheduledTime", got)
	}
}

func TestReminderValid(t *testing.T) {
	err := Reminder(ReminderTimes{
		Now:           base,
		ReminderTime:  base.Add(time.Hour),
		ScheduledTime: base.Add(2 * time.Hour),
		MinLead:       time.Minute,
	})
	if err != nil {
		t.Fatalf("Reminder: %v", err)
	}
}

func TestReminderInPast(t *testing.T) {
	err := Reminder(ReminderTimes{
		Now:           base,
		ReminderTime:  base.Add(-time.Second),
		ScheduledTime: base.Add(time.Hour),
		MinLead:       time.Minute,
	})
	if got := field(t, err); got != "reminderTime" {
		t.Errorf("field = %q, want reminderTime", got)
	}
}

func TestReminderAfterSchedule(t *testing.T) {
	err := Reminder(ReminderTimes{
		Now:           base,
		ReminderTime:  base.Add(3 * time.Hour),
		ScheduledTime: base.Add(2 * time.Hour),
		MinLead:       time.Minute,
	})
	if field(t, err) != "reminderTime" {
		t.Errorf("expected reminderTime violation, got %v", err)
	}
}

// Lead boundary: 59s before the schedule is rejected, exactly 60s passes.
func TestReminderLeadBoundary(t *testing.T) {
	scheduled := base.Add(time.Hour)

	err := Reminder(ReminderTimes{
		Now:           base,
		ReminderTime:  scheduled.Add(-59 * time.Second),
		ScheduledTime: scheduled,
		MinLead:       time.Minute,
	})
	if err == nil {
		t.Fatal("59s lead accepted, want rejection")
	}
	if field(t, err) != "reminderTime" {
		t.Errorf("expected reminderTime violation, got %v", err)
	}

	err = Reminder(ReminderTimes{
		Now:           base,
		ReminderTime:  scheduled.Add(-60 * time.Second),
		ScheduledTime: scheduled,
		MinLead:       time.Minute,
	})
	if err != nil {
		t.Errorf("60s lead rejected: %v", err)
	}
}

func TestReminderAfterTaskDueDate(t *testing.T) {
	due := base.Add(30 * time.Minute)
	err := Reminder(ReminderTimes{
		Now:           base,
		ReminderTime:  base.Add(time.Hour),
		ScheduledTime: base.Add(2 * time.Hour),
		TaskDueDate:   &due,
		MinLead:       time.Minute,
	})
	if field(t, err) != "reminderTime" {
		t.Errorf("expected reminderTime violation, got %v", err)
	}
}
