package store

import (
	"context"
	"errors"
	"time"

	"timeflow/internal/domain"
)

// ErrNotFound is returned when a record id does not exist. Callers
// match it with errors.Is.
var ErrNotFound = errors.New("not found")

// TaskStore is the narrow slice of the task subsystem the scheduling
// engine needs: read the due date, flip the status.
type TaskStore interface {
	Create(ctx context.Context, t domain.Task) (string, error)
	FindByID(ctx context.Context, id string) (domain.Task, error)
	Save(ctx context.Context, t domain.Task) error
	// TransitionStatus moves the task to `to` only if its current status
	// is one of `from`. Returns false when the guard did not match, so
	// concurrent pollers cannot double-apply a transition.
	TransitionStatus(ctx context.Context, id string, from []domain.TaskStatus, to domain.TaskStatus) (bool, error)
}

type ScheduleStore interface {
	Create(ctx context.Context, s domain.Schedule) (string, error)
	FindByID(ctx context.Context, id string) (domain.Schedule, error)
	FindByTask(ctx context.Context, taskID string) ([]domain.Schedule, error)
	List(ctx context.Context, limit int) ([]domain.Schedule, error)
	Save(ctx context.Context, s domain.Schedule) error
	Delete(ctx context.Context, id string) error
	FindDueBefore(ctx context.Context, status domain.ScheduleStatus, instant time.Time) ([]domain.Schedule, error)
	FindDueBetween(ctx context.Context, status domain.ScheduleStatus, start, end time.Time) ([]domain.Schedule, error)
	TransitionStatus(ctx context.Context, id string, from, to domain.ScheduleStatus) (bool, error)
}

type ReminderStore interface {
	Create(ctx context.Context, r domain.Reminder) (string, error)
	FindByID(ctx context.Context, id string) (domain.Reminder, error)
	FindBySchedule(ctx context.Context, scheduleID string) ([]domain.Reminder, error)
	Save(ctx context.Context, r domain.Reminder) error
	Delete(ctx context.Context, id string) error
	FindDueBefore(ctx context.Context, status domain.ReminderStatus, instant time.Time) ([]domain.Reminder, error)
	FindDueBetween(ctx context.Context, status domain.ReminderStatus, start, end time.Time) ([]domain.Reminder, error)
	TransitionStatus(ctx context.Context, id string, from, to domain.ReminderStatus) (bool, error)
}
