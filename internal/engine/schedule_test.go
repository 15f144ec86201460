package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"timeflow/internal/domain"
	"timeflow/internal/store"
)

// Creating a schedule inside the task's due date succeeds and moves the
// task TODO -> SCHEDULED.
func TestCreateScheduleTransitionsTask(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := h.clock.Now()

	due := now.Add(48 * time.Hour)
	task := h.createTask(t, &due)

	sc, err := h.schedEng.Create(ctx, CreateScheduleRequest{
		TaskID:        task.ID,
		Title:         "kickoff",
		ScheduledTime: now.Add(24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sc.Status != domain.SchedulePending {
		t.Errorf("status = %s, want PENDING", sc.Status)
	}

	got, err := h.tasks.FindByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("find task: %v", err)
	}
	if got.Status != domain.TaskScheduled {
		t.Errorf("task status = %s, want SCHEDULED", got.Status)
	}
}

// Omitted fields come back defaulted: start = scheduledTime, end =
// scheduledTime + 1h, zone = reference zone, status = PENDING.
func TestCreateScheduleDefaults(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	at := h.clock.Now().Add(2 * time.Hour)
	task := h.createTask(t, nil)

	sc, err := h.schedEng.Create(ctx, CreateScheduleRequest{TaskID: task.ID, ScheduledTime: at})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := h.schedEng.Get(ctx, sc.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.StartTime.Equal(at) {
		t.Errorf("start = %v, want %v", got.StartTime, at)
	}
	if !got.EndTime.Equal(at.Add(time.Hour)) {
		t.Errorf("end = %v, want %v", got.EndTime, at.Add(time.Hour))
	}
	if got.TimeZone != "UTC" {
		t.Errorf("zone = %q, want UTC", got.TimeZone)
	}
	if got.Status != domain.SchedulePending {
		t.Errorf("status = %s, want PENDING", got.Status)
	}
}

func TestCreateScheduleAfterDueDateRejected(t *testing.T) {
	h := newHarness(t)
	now := h.clock.Now()
	due := now.Add(24 * time.Hour)
	task := h.createTask(t, &due)

	_, err := h.schedEng.Create(context.Background(), CreateScheduleRequest{
		TaskID:        task.ID,
		ScheduledTime: now.Add(48 * time.Hour),
	})
	if !isValidation(err) {
		t.Errorf("err = %v, want ValidationError", err)
	}
}

func TestCreateScheduleUnknownTask(t *testing.T) {
	h := newHarness(t)
	_, err := h.schedEng.Create(context.Background(), CreateScheduleRequest{
		TaskID:        "tsk_missing",
		ScheduledTime: h.clock.Now().Add(time.Hour),
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

// A requested default reminder lands 30 minutes ahead on the broadcast
// channel.
func TestCreateScheduleDefaultReminder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	at := h.clock.Now().Add(2 * time.Hour)
	task := h.createTask(t, nil)

	sc, err := h.schedEng.Create(ctx, CreateScheduleRequest{
		TaskID:                task.ID,
		Title:                 "standup",
		ScheduledTime:         at,
		CreateDefaultReminder: true,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	list, err := h.remEng.ListBySchedule(ctx, sc.ID)
	if err != nil {
		t.Fatalf("ListBySchedule: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("got %d reminders, want 1", len(list))
	}
	rm := list[0]
	if !rm.ReminderTime.Equal(at.Add(-30 * time.Minute)) {
		t.Errorf("reminder time = %v, want %v", rm.ReminderTime, at.Add(-30*time.Minute))
	}
	if rm.Message != "Reminder for: standup" {
		t.Errorf("message = %q", rm.Message)
	}
	if len(rm.Channels) != 1 || rm.Channels[0] != domain.ChannelBroadcast {
		t.Errorf("channels = %v, want [BROADCAST]", rm.Channels)
	}
}

// Scenario: the clock passes scheduledTime, the tick completes the
// schedule and starts the task.
func TestTickCompletesDueSchedule(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	at := h.clock.Now().Add(time.Hour)
	task := h.createTask(t, nil)

	sc, err := h.schedEng.Create(ctx, CreateScheduleRequest{TaskID: task.ID, ScheduledTime: at})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	h.clock.Advance(2 * time.Hour)
	n, err := h.schedEng.Tick(ctx, h.clock.Now())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if n != 1 {
		t.Errorf("processed = %d, want 1", n)
	}

	gotSc, err := h.schedEng.Get(ctx, sc.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if gotSc.Status != domain.ScheduleCompleted {
		t.Errorf("schedule status = %s, want COMPLETED", gotSc.Status)
	}
	gotTask, err := h.tasks.FindByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("find task: %v", err)
	}
	if gotTask.Status != domain.TaskInProgress {
		t.Errorf("task status = %s, want IN_PROGRESS", gotTask.Status)
	}
}

// Two immediate ticks process each due schedule exactly once.
func TestTickIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	task := h.createTask(t, nil)

	if _, err := h.schedEng.Create(ctx, CreateScheduleRequest{TaskID: task.ID, ScheduledTime: h.clock.Now().Add(time.Minute)}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	h.clock.Advance(time.Hour)

	first, err := h.schedEng.Tick(ctx, h.clock.Now())
	if err != nil {
		t.Fatalf("first Tick: %v", err)
	}
	second, err := h.schedEng.Tick(ctx, h.clock.Now())
	if err != nil {
		t.Fatalf("second Tick: %v", err)
	}
	if first != 1 || second != 0 {
		t.Errorf("processed = %d then %d, want 1 then 0", first, second)
	}
}

func TestTickLeavesDoneTaskAlone(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	task := h.createTask(t, nil)

	sc, err := h.schedEng.Create(ctx, CreateScheduleRequest{TaskID: task.ID, ScheduledTime: h.clock.Now().Add(time.Minute)})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	done, err := h.tasks.FindByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("find task: %v", err)
	}
	done.Status = domain.TaskDone
	if err := h.tasks.Save(ctx, done); err != nil {
		t.Fatalf("save task: %v", err)
	}

	h.clock.Advance(time.Hour)
	if _, err := h.schedEng.Tick(ctx, h.clock.Now()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	gotTask, err := h.tasks.FindByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("find task: %v", err)
	}
	if gotTask.Status != domain.TaskDone {
		t.Errorf("task status = %s, want DONE untouched", gotTask.Status)
	}
	gotSc, err := h.schedEng.Get(ctx, sc.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if gotSc.Status != domain.ScheduleCompleted {
		t.Errorf("schedule status = %s, want COMPLETED", gotSc.Status)
	}
}

func TestRescheduleResetsStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	task := h.createTask(t, nil)

	sc, err := h.schedEng.Create(ctx, CreateScheduleRequest{TaskID: task.ID, ScheduledTime: h.clock.Now().Add(time.Hour)})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	h.clock.Advance(2 * time.Hour)
	if _, err := h.schedEng.Tick(ctx, h.clock.Now()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	newTime := h.clock.Now().Add(3 * time.Hour)
	got, err := h.schedEng.Reschedule(ctx, sc.ID, newTime)
	if err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	if got.Status != domain.SchedulePending {
		t.Errorf("status = %s, want PENDING", got.Status)
	}
	if !got.ScheduledTime.Equal(newTime) {
		t.Errorf("scheduled = %v, want %v", got.ScheduledTime, newTime)
	}
	if !got.EndTime.Equal(newTime.Add(time.Hour)) {
		t.Errorf("end = %v, want duration preserved (%v)", got.EndTime, newTime.Add(time.Hour))
	}
}

func TestRescheduleBeyondDueDateRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := h.clock.Now()
	due := now.Add(24 * time.Hour)
	task := h.createTask(t, &due)

	sc, err := h.schedEng.Create(ctx, CreateScheduleRequest{TaskID: task.ID, ScheduledTime: now.Add(time.Hour)})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err = h.schedEng.Reschedule(ctx, sc.ID, now.Add(48*time.Hour))
	if !isValidation(err) {
		t.Errorf("err = %v, want ValidationError", err)
	}
}

func TestDueSchedulesWindow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := h.clock.Now()
	task := h.createTask(t, nil)

	near, err := h.schedEng.Create(ctx, CreateScheduleRequest{TaskID: task.ID, ScheduledTime: now.Add(2 * time.Hour)})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := h.schedEng.Create(ctx, CreateScheduleRequest{TaskID: task.ID, ScheduledTime: now.Add(72 * time.Hour)}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	due, err := h.schedEng.DueSchedules(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("DueSchedules: %v", err)
	}
	if len(due) != 1 || due[0].ID != near.ID {
		t.Errorf("due = %d items, want only the near schedule", len(due))
	}
}

func TestNextOccurrenceFromSchedule(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	task := h.createTask(t, nil)

	sc, err := h.schedEng.Create(ctx, CreateScheduleRequest{
		TaskID:        task.ID,
		ScheduledTime: h.clock.Now().Add(time.Hour),
		Recurrence:    &domain.RecurrencePattern{Type: domain.RecurrenceDaily},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	next, err := h.schedEng.NextOccurrence(ctx, sc.ID)
	if err != nil {
		t.Fatalf("NextOccurrence: %v", err)
	}
	want := time.Date(2025, 5, 2, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}
}

func TestNextOccurrenceWithoutPattern(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	task := h.createTask(t, nil)

	sc, err := h.schedEng.Create(ctx, CreateScheduleRequest{TaskID: task.ID, ScheduledTime: h.clock.Now().Add(time.Hour)})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := h.schedEng.NextOccurrence(ctx, sc.ID); !isValidation(err) {
		t.Errorf("err = %v, want ValidationError", err)
	}
}

func TestCreateScheduleInvalidRecurrence(t *testing.T) {
	h := newHarness(t)
	task := h.createTask(t, nil)

	_, err := h.schedEng.Create(context.Background(), CreateScheduleRequest{
		TaskID:        task.ID,
		ScheduledTime: h.clock.Now().Add(time.Hour),
		Recurrence:    &domain.RecurrencePattern{Type: domain.RecurrenceWeekly},
	})
	if !isValidation(err) {
		t.Errorf("err = %v, want ValidationError", err)
	}
}
