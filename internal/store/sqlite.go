package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"timeflow/internal/domain"
)

// EnsureSchema creates tables if they don't exist.
func EnsureSchema(db *sql.DB) error {
	schema := `
PRAGMA journal_mode=WAL;
CREATE TABLE IF NOT EXISTS tasks (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL CHECK(status IN ('TODO','SCHEDULED','IN_PROGRESS','DONE')) DEFAULT 'TODO',
  due_date DATETIME,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS schedules (
  id TEXT PRIMARY KEY,
  task_id TEXT NOT NULL REFERENCES tasks(id),
  title TEXT NOT NULL DEFAULT '',
  description TEXT NOT NULL DEFAULT '',
  scheduled_time DATETIME NOT NULL,
  start_time DATETIME NOT NULL,
  end_time DATETIME NOT NULL,
  time_zone TEXT NOT NULL,
  status TEXT NOT NULL CHECK(status IN ('PENDING','COMPLETED','CANCELLED')) DEFAULT 'PENDING',
  recurrence_type TEXT,
  recurrence_interval INTEGER,
  recurrence_days TEXT,
  recurrence_day_of_month INTEGER,
  recurrence_end DATETIME,
  recurrence_count INTEGER,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_schedules_due ON schedules(status, scheduled_time);
CREATE INDEX IF NOT EXISTS idx_schedules_task ON schedules(task_id);
CREATE TABLE IF NOT EXISTS reminders (
  id TEXT PRIMARY KEY,
  schedule_id TEXT NOT NULL REFERENCES schedules(id),
  task_id TEXT NOT NULL,
  reminder_time DATETIME NOT NULL,
  message TEXT NOT NULL,
  status TEXT NOT NULL CHECK(status IN ('PENDING','SENT','FAILED')) DEFAULT 'PENDING',
  channels TEXT NOT NULL,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_reminders_due ON reminders(status, reminder_time);
CREATE INDEX IF NOT EXISTS idx_reminders_schedule ON reminders(schedule_id);
`
	_, err := db.Exec(schema)
	return err
}

type SQLiteTaskStore struct{ db *sql.DB }

func NewSQLiteTaskStore(db *sql.DB) *SQLiteTaskStore { return &SQLiteTaskStore{db: db} }

func (s *SQLiteTaskStore) Create(ctx context.Context, t domain.Task) (string, error) {
	id := t.ID
	if id == "" {
		id = "tsk_" + uuid.NewString()
	}
	if t.Status == "" {
		t.Status = domain.TaskTodo
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO tasks (id,title,description,status,due_date,created_at,updated_at)
VALUES (?,?,?,?,?,CURRENT_TIMESTAMP,CURRENT_TIMESTAMP)
`, id, t.Title, t.Description, string(t.Status), nullTime(t.DueDate))
	return id, err
}

func (s *SQLiteTaskStore) FindByID(ctx context.Context, id string) (domain.Task, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id,title,description,status,due_date,created_at,updated_at
FROM tasks WHERE id=?`, id)
	var t domain.Task
	var due sql.NullTime
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Status, &due, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Task{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
		}
		return domain.Task{}, err
	}
	if due.Valid {
		d := due.Time
		t.DueDate = &d
	}
	return t, nil
}

func (s *SQLiteTaskStore) Save(ctx context.Context, t domain.Task) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE tasks SET title=?,description=?,status=?,due_date=?,updated_at=CURRENT_TIMESTAMP WHERE id=?`,
		t.Title, t.Description, string(t.Status), nullTime(t.DueDate), t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %s: %w", t.ID, ErrNotFound)
	}
	return nil
}

func (s *SQLiteTaskStore) TransitionStatus(ctx context.Context, id string, from []domain.TaskStatus, to domain.TaskStatus) (bool, error) {
	if len(from) == 0 {
		return false, errors.New("transition requires at least one expected status")
	}
	placeholders := strings.Repeat("?,", len(from))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(from)+2)
	args = append(args, string(to), id)
	for _, f := range from {
		args = append(args, string(f))
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status=?, updated_at=CURRENT_TIMESTAMP WHERE id=? AND status IN (`+placeholders+`)`, args...)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

type SQLiteScheduleStore struct{ db *sql.DB }

func NewSQLiteScheduleStore(db *sql.DB) *SQLiteScheduleStore { return &SQLiteScheduleStore{db: db} }

const scheduleCols = `id,task_id,title,description,scheduled_time,start_time,end_time,time_zone,status,
recurrence_type,recurrence_interval,recurrence_days,recurrence_day_of_month,recurrence_end,recurrence_count,
created_at,updated_at`

func (s *SQLiteScheduleStore) Create(ctx context.Context, sc domain.Schedule) (string, error) {
	id := sc.ID
	if id == "" {
		id = "sch_" + uuid.NewString()
	}
	if sc.Status == "" {
		sc.Status = domain.SchedulePending
	}
	rt, ri, rd, rm, re, rc := recurrenceCols(sc.Recurrence)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO schedules (`+scheduleCols+`)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,CURRENT_TIMESTAMP,CURRENT_TIMESTAMP)
`, id, sc.TaskID, sc.Title, sc.Description, sc.ScheduledTime.UTC(), sc.StartTime.UTC(), sc.EndTime.UTC(),
		sc.TimeZone, string(sc.Status), rt, ri, rd, rm, re, rc)
	return id, err
}

func (s *SQLiteScheduleStore) FindByID(ctx context.Context, id string) (domain.Schedule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+scheduleCols+` FROM schedules WHERE id=?`, id)
	sc, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Schedule{}, fmt.Errorf("schedule %s: %w", id, ErrNotFound)
	}
	return sc, err
}

func (s *SQLiteScheduleStore) FindByTask(ctx context.Context, taskID string) ([]domain.Schedule, error) {
	return s.querySchedules(ctx, `SELECT `+scheduleCols+` FROM schedules WHERE task_id=? ORDER BY scheduled_time`, taskID)
}

func (s *SQLiteScheduleStore) List(ctx context.Context, limit int) ([]domain.Schedule, error) {
	return s.querySchedules(ctx, `SELECT `+scheduleCols+` FROM schedules ORDER BY created_at DESC LIMIT ?`, limit)
}

func (s *SQLiteScheduleStore) Save(ctx context.Context, sc domain.Schedule) error {
	rt, ri, rd, rm, re, rc := recurrenceCols(sc.Recurrence)
	res, err := s.db.ExecContext(ctx, `
UPDATE schedules SET title=?,description=?,scheduled_time=?,start_time=?,end_time=?,time_zone=?,status=?,
recurrence_type=?,recurrence_interval=?,recurrence_days=?,recurrence_day_of_month=?,recurrence_end=?,recurrence_count=?,
updated_at=CURRENT_TIMESTAMP
WHERE id=?`, sc.Title, sc.Description, sc.ScheduledTime.UTC(), sc.StartTime.UTC(), sc.EndTime.UTC(),
		sc.TimeZone, string(sc.Status), rt, ri, rd, rm, re, rc, sc.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("schedule %s: %w", sc.ID, ErrNotFound)
	}
	return nil
}

func (s *SQLiteScheduleStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM schedules WHERE id=?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("schedule %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteScheduleStore) FindDueBefore(ctx context.Context, status domain.ScheduleStatus, instant time.Time) ([]domain.Schedule, error) {
	return s.querySchedules(ctx,
		`SELECT `+scheduleCols+` FROM schedules WHERE status=? AND scheduled_time < ? ORDER BY scheduled_time`,
		string(status), instant.UTC())
}

func (s *SQLiteScheduleStore) FindDueBetween(ctx context.Context, status domain.ScheduleStatus, start, end time.Time) ([]domain.Schedule, error) {
	return s.querySchedules(ctx,
		`SELECT `+scheduleCols+` FROM schedules WHERE status=? AND scheduled_time >= ? AND scheduled_time <= ? ORDER BY scheduled_time`,
		string(status), start.UTC(), end.UTC())
}

// TransitionStatus is the compare-and-set the tick relies on: the row
// moves only when it still holds the expected prior status.
func (s *SQLiteScheduleStore) TransitionStatus(ctx context.Context, id string, from, to domain.ScheduleStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET status=?, updated_at=CURRENT_TIMESTAMP WHERE id=? AND status=?`,
		string(to), id, string(from))
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteScheduleStore) querySchedules(ctx context.Context, q string, args ...any) ([]domain.Schedule, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Schedule
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

type rowScanner interface{ Scan(dest ...any) error }

func scanSchedule(row rowScanner) (domain.Schedule, error) {
	var sc domain.Schedule
	var rt sql.NullString
	var ri, rm, rc sql.NullInt64
	var rd sql.NullString
	var re sql.NullTime
	err := row.Scan(&sc.ID, &sc.TaskID, &sc.Title, &sc.Description,
		&sc.ScheduledTime, &sc.StartTime, &sc.EndTime, &sc.TimeZone, &sc.Status,
		&rt, &ri, &rd, &rm, &re, &rc, &sc.CreatedAt, &sc.UpdatedAt)
	if err != nil {
		return domain.Schedule{}, err
	}
	if rt.Valid {
		p := &domain.RecurrencePattern{
			Type:        domain.RecurrenceType(rt.String),
			Interval:    int(ri.Int64),
			DayOfMonth:  int(rm.Int64),
			Occurrences: int(rc.Int64),
			DaysOfWeek:  splitDays(rd.String),
		}
		if re.Valid {
			end := re.Time
			p.EndDate = &end
		}
		sc.Recurrence = p
	}
	return sc, nil
}

func recurrenceCols(p *domain.RecurrencePattern) (rt sql.NullString, ri sql.NullInt64, rd sql.NullString, rm sql.NullInt64, re sql.NullTime, rc sql.NullInt64) {
	if p == nil {
		return
	}
	rt = sql.NullString{String: string(p.Type), Valid: true}
	ri = sql.NullInt64{Int64: int64(p.Interval), Valid: true}
	rd = sql.NullString{String: joinDays(p.DaysOfWeek), Valid: true}
	rm = sql.NullInt64{Int64: int64(p.DayOfMonth), Valid: true}
	rc = sql.NullInt64{Int64: int64(p.Occurrences), Valid: true}
	if p.EndDate != nil {
		re = sql.NullTime{Time: p.EndDate.UTC(), Valid: true}
	}
	return
}

type SQLiteReminderStore struct{ db *sql.DB }

func NewSQLiteReminderStore(db *sql.DB) *SQLiteReminderStore { return &SQLiteReminderStore{db: db} }

const reminderCols = `id,schedule_id,task_id,reminder_time,message,status,channels,created_at,updated_at`

func (s *SQLiteReminderStore) Create(ctx context.Context, r domain.Reminder) (string, error) {
	id := r.ID
	if id == "" {
		id = "rem_" + uuid.NewString()
	}
	if r.Status == "" {
		r.Status = domain.ReminderPending
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO reminders (`+reminderCols+`)
VALUES (?,?,?,?,?,?,?,CURRENT_TIMESTAMP,CURRENT_TIMESTAMP)
`, id, r.ScheduleID, r.TaskID, r.ReminderTime.UTC(), r.Message, string(r.Status), joinChannels(r.Channels))
	return id, err
}

func (s *SQLiteReminderStore) FindByID(ctx context.Context, id string) (domain.Reminder, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reminderCols+` FROM reminders WHERE id=?`, id)
	r, err := scanReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Reminder{}, fmt.Errorf("reminder %s: %w", id, ErrNotFound)
	}
	return r, err
}

func (s *SQLiteReminderStore) FindBySchedule(ctx context.Context, scheduleID string) ([]domain.Reminder, error) {
	return s.queryReminders(ctx, `SELECT `+reminderCols+` FROM reminders WHERE schedule_id=? ORDER BY reminder_time`, scheduleID)
}

func (s *SQLiteReminderStore) Save(ctx context.Context, r domain.Reminder) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE reminders SET reminder_time=?,message=?,status=?,channels=?,updated_at=CURRENT_TIMESTAMP WHERE id=?`,
		r.ReminderTime.UTC(), r.Message, string(r.Status), joinChannels(r.Channels), r.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("reminder %s: %w", r.ID, ErrNotFound)
	}
	return nil
}

func (s *SQLiteReminderStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM reminders WHERE id=?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("reminder %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteReminderStore) FindDueBefore(ctx context.Context, status domain.ReminderStatus, instant time.Time) ([]domain.Reminder, error) {
	return s.queryReminders(ctx,
		`SELECT `+reminderCols+` FROM reminders WHERE status=? AND reminder_time <= ? ORDER BY reminder_time`,
		string(status), instant.UTC())
}

func (s *SQLiteReminderStore) FindDueBetween(ctx context.Context, status domain.ReminderStatus, start, end time.Time) ([]domain.Reminder, error) {
	return s.queryReminders(ctx,
		`SELECT `+reminderCols+` FROM reminders WHERE status=? AND reminder_time >= ? AND reminder_time <= ? ORDER BY reminder_time`,
		string(status), start.UTC(), end.UTC())
}

func (s *SQLiteReminderStore) TransitionStatus(ctx context.Context, id string, from, to domain.ReminderStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET status=?, updated_at=CURRENT_TIMESTAMP WHERE id=? AND status=?`,
		string(to), id, string(from))
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteReminderStore) queryReminders(ctx context.Context, q string, args ...any) ([]domain.Reminder, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanReminder(row rowScanner) (domain.Reminder, error) {
	var r domain.Reminder
	var channels string
	err := row.Scan(&r.ID, &r.ScheduleID, &r.TaskID, &r.ReminderTime, &r.Message, &r.Status, &channels,
		&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return domain.Reminder{}, err
	}
	r.Channels = splitChannels(channels)
	return r, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func joinChannels(chs []domain.NotificationChannel) string {
	parts := make([]string, len(chs))
	for i, c := range chs {
		parts[i] = string(c)
	}
	return strings.Join(parts, ",")
}

func splitChannels(s string) []domain.NotificationChannel {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]domain.NotificationChannel, len(parts))
	for i, p := range parts {
		out[i] = domain.NotificationChannel(p)
	}
	return out
}

func joinDays(days []time.Weekday) string {
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(int(d))
	}
	return strings.Join(parts, ",")
}

func splitDays(s string) []time.Weekday {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]time.Weekday, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			continue
		}
		out = append(out, time.Weekday(n))
	}
	return out
}
