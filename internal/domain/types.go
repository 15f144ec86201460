package domain

import "time"

type TaskStatus string

const (
	TaskTodo       TaskStatus = "TODO"
	TaskScheduled  TaskStatus = "SCHEDULED"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskDone       TaskStatus = "DONE"
)

type ScheduleStatus string

const (
	SchedulePending   ScheduleStatus = "PENDING"
	ScheduleCompleted ScheduleStatus = "COMPLETED"
	ScheduleCancelled ScheduleStatus = "CANCELLED"
)

type ReminderStatus string

const (
	ReminderPending ReminderStatus = "PENDING"
	ReminderSent    ReminderStatus = "SENT"
	ReminderFailed  ReminderStatus = "FAILED"
)

type NotificationChannel string

const (
	ChannelBroadcast NotificationChannel = "BROADCAST"
	ChannelRedis     NotificationChannel = "REDIS"
	ChannelLog       NotificationChannel = "LOG"
)

type RecurrenceType string

const (
	RecurrenceDaily   RecurrenceType = "DAILY"
	RecurrenceWeekly  RecurrenceType = "WEEKLY"
	RecurrenceMonthly RecurrenceType = "MONTHLY"
	RecurrenceYearly  RecurrenceType = "YEARLY"
)

// Task is the scheduling engine's view of a task: the engine reads the
// due date and moves the status along TODO -> SCHEDULED -> IN_PROGRESS.
// Everything else about tasks belongs to the CRUD subsystem.
type Task struct {
	ID          string
	Title       string
	Description string
	Status      TaskStatus
	DueDate     *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Schedule is one planned occurrence of a task. Many schedules may point
// at the same task. StartTime/EndTime default to ScheduledTime and
// ScheduledTime+1h when the caller omits them.
type Schedule struct {
	ID            string
	TaskID        string
	Title         string
	Description   string
	ScheduledTime time.Time
	StartTime     time.Time
	EndTime       time.Time
	TimeZone      string
	Status        ScheduleStatus
	Recurrence    *RecurrencePattern
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Reminder fires ahead of its parent schedule. TaskID is denormalized
// from the schedule so the notification path never needs a join.
type Reminder struct {
	ID           string
	ScheduleID   string
	TaskID       string
	ReminderTime time.Time
	Message      string
	Status       ReminderStatus
	Channels     []NotificationChannel
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RecurrencePattern is a stateless rule used only to compute the next
// occurrence; the engine never materializes a series. Interval and
// Occurrences are persisted but not applied to the computation.
type RecurrencePattern struct {
	Type        RecurrenceType
	Interval    int
	DaysOfWeek  []time.Weekday
	DayOfMonth  int
	EndDate     *time.Time
	Occurrences int
}
