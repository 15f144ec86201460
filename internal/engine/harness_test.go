package engine

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"timeflow/internal/domain"
	"timeflow/internal/notify"
	"timeflow/internal/store"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type stubDispatcher struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (d *stubDispatcher) Send(ctx context.Context, message string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, message)
	return nil
}

func (d *stubDispatcher) messages() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.sent...)
}

type harness struct {
	tasks      *store.SQLiteTaskStore
	schedules  *store.SQLiteScheduleStore
	reminders  *store.SQLiteReminderStore
	schedEng   *ScheduleEngine
	remEng     *ReminderEngine
	clock      *fakeClock
	dispatcher *stubDispatcher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	if err := store.EnsureSchema(db); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	clock := &fakeClock{now: time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)}
	dispatcher := &stubDispatcher{}
	registry := notify.NewRegistry()
	registry.Register(domain.ChannelBroadcast, dispatcher)

	tasks := store.NewSQLiteTaskStore(db)
	schedules := store.NewSQLiteScheduleStore(db)
	reminders := store.NewSQLiteReminderStore(db)
	log := zerolog.Nop()

	remEng := NewReminderEngine(reminders, schedules, tasks, registry, Settings{}, clock, log)
	schedEng := NewScheduleEngine(schedules, tasks, remEng, Settings{}, clock, log)

	return &harness{
		tasks:      tasks,
		schedules:  schedules,
		reminders:  reminders,
		schedEng:   schedEng,
		remEng:     remEng,
		clock:      clock,
		dispatcher: dispatcher,
	}
}

func (h *harness) createTask(t *testing.T, due *time.Time) domain.Task {
	t.Helper()
	id, err := h.tasks.Create(context.Background(), domain.Task{Title: "write report", DueDate: due})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	task, err := h.tasks.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("find task: %v", err)
	}
	return task
}

func isValidation(err error) bool {
	var verr *domain.ValidationError
	return errors.As(err, &verr)
}
