package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"timeflow/internal/domain"
	"timeflow/internal/engine"
	"timeflow/internal/notify"
	"timeflow/internal/recurrence"
	"timeflow/internal/store"
)

type Server struct {
	r         *chi.Mux
	tasks     store.TaskStore
	schedules *engine.ScheduleEngine
	reminders *engine.ReminderEngine
	broadcast *notify.Broadcaster
}

func NewServer(tasks store.TaskStore, schedules *engine.ScheduleEngine, reminders *engine.ReminderEngine,
	broadcast *notify.Broadcaster) http.Handler {
	return NewServerWithDebug(tasks, schedules, reminders, broadcast, false)
}

func NewServerWithDebug(tasks store.TaskStore, schedules *engine.ScheduleEngine, reminders *engine.ReminderEngine,
	broadcast *notify.Broadcaster, enableDebug bool) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	s := &Server{r: r, tasks: tasks, schedules: schedules, reminders: reminders, broadcast: broadcast}

	r.Get("/health", s.health)
	r.Get("/metrics", s.metrics)

	r.Post("/api/tasks", s.createTask)
	r.Get("/api/tasks/{id}", s.getTask)
	r.Get("/api/tasks/{id}/schedules", s.listTaskSchedules)

	r.Post("/api/schedules", s.createSchedule)
	r.Get("/api/schedules", s.listSchedules)
	r.Get("/api/schedules/pending", s.pendingSchedules)
	r.Get("/api/schedules/due", s.dueSchedules)
	r.Get("/api/schedules/{id}", s.getSchedule)
	r.Put("/api/schedules/{id}", s.updateSchedule)
	r.Delete("/api/schedules/{id}", s.deleteSchedule)
	r.Patch("/api/schedules/{id}/reschedule", s.reschedule)
	r.Patch("/api/schedules/{id}/status", s.updateScheduleStatus)
	r.Get("/api/schedules/{id}/next-occurrence", s.nextOccurrence)
	r.Get("/api/schedules/{id}/reminders", s.listScheduleReminders)

	r.Post("/api/reminders", s.createReminder)
	r.Get("/api/reminders/due", s.dueReminders)
	r.Get("/api/reminders/{id}", s.getReminder)
	r.Put("/api/reminders/{id}", s.updateReminder)
	r.Delete("/api/reminders/{id}", s.deleteReminder)
	r.Post("/api/reminders/{id}/trigger", s.triggerReminder)

	r.Get("/api/notifications/stream", s.streamNotifications)

	if enableDebug {
		r.HandleFunc("/debug/pprof/", pprof.Index)
		r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		r.HandleFunc("/debug/pprof/profile", pprof.Profile)
		r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		r.HandleFunc("/debug/pprof/trace", pprof.Trace)
		r.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
		r.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	}

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("content-type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("timeflow_up 1\n"))
}

// fail maps the error taxonomy to status codes: validation 400, unknown
// id 404, delivery failure 502, everything else 500.
func fail(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	var derr *domain.DeliveryError
	switch {
	case errors.As(err, &verr):
		http.Error(w, verr.Error(), http.StatusBadRequest)
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &derr):
		http.Error(w, derr.Error(), http.StatusBadGateway)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

type taskJSON struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func toTaskJSON(t domain.Task) taskJSON {
	return taskJSON{
		ID: t.ID, Title: t.Title, Description: t.Description,
		Status: string(t.Status), DueDate: t.DueDate,
		CreatedAt: t.CreatedAt, UpdatedAt: t.UpdatedAt,
	}
}

type createTaskReq struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DueDate     *time.Time `json:"due_date"`
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Title == "" {
		http.Error(w, "title is required", http.StatusBadRequest)
		return
	}
	id, err := s.tasks.Create(r.Context(), domain.Task{
		Title: req.Title, Description: req.Description,
		Status: domain.TaskTodo, DueDate: req.DueDate,
	})
	if err != nil {
		fail(w, err)
		return
	}
	t, err := s.tasks.FindByID(r.Context(), id)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTaskJSON(t))
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.tasks.FindByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskJSON(t))
}

func (s *Server) listTaskSchedules(w http.ResponseWriter, r *http.Request) {
	list, err := s.schedules.ListByTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleList(list))
}

type recurrenceJSON struct {
	Type        string     `json:"type"`
	Interval    int        `json:"interval,omitempty"`
	DaysOfWeek  []int      `json:"days_of_week,omitempty"` // 0=Sunday .. 6=Saturday
	DayOfMonth  int        `json:"day_of_month,omitempty"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	Occurrences int        `json:"occurrences,omitempty"`
}

func (j *recurrenceJSON) toDomain() *domain.RecurrencePattern {
	if j == nil {
		return nil
	}
	p := &domain.RecurrencePattern{
		Type:        domain.RecurrenceType(j.Type),
		Interval:    j.Interval,
		DayOfMonth:  j.DayOfMonth,
		EndDate:     j.EndDate,
		Occurrences: j.Occurrences,
	}
	for _, d := range j.DaysOfWeek {
		p.DaysOfWeek = append(p.DaysOfWeek, time.Weekday(d))
	}
	return p
}

func toRecurrenceJSON(p *domain.RecurrencePattern) *recurrenceJSON {
	if p == nil {
		return nil
	}
	j := &recurrenceJSON{
		Type:        string(p.Type),
		Interval:    p.Interval,
		DayOfMonth:  p.DayOfMonth,
		EndDate:     p.EndDate,
		Occurrences: p.Occurrences,
	}
	for _, d := range p.DaysOfWeek {
		j.DaysOfWeek = append(j.DaysOfWeek, int(d))
	}
	return j
}

type scheduleJSON struct {
	ID            string          `json:"id"`
	TaskID        string          `json:"task_id"`
	Title         string          `json:"title,omitempty"`
	Description   string          `json:"description,omitempty"`
	ScheduledTime time.Time       `json:"scheduled_time"`
	StartTime     time.Time       `json:"start_time"`
	EndTime       time.Time       `json:"end_time"`
	TimeZone      string          `json:"time_zone"`
	Status        string          `json:"status"`
	Recurrence    *recurrenceJSON `json:"recurrence,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func toScheduleJSON(sc domain.Schedule) scheduleJSON {
	return scheduleJSON{
		ID: sc.ID, TaskID: sc.TaskID, Title: sc.Title, Description: sc.Description,
		ScheduledTime: sc.ScheduledTime, StartTime: sc.StartTime, EndTime: sc.EndTime,
		TimeZone: sc.TimeZone, Status: string(sc.Status),
		Recurrence: toRecurrenceJSON(sc.Recurrence),
		CreatedAt:  sc.CreatedAt, UpdatedAt: sc.UpdatedAt,
	}
}

func toScheduleList(list []domain.Schedule) []scheduleJSON {
	out := make([]scheduleJSON, 0, len(list))
	for _, sc := range list {
		out = append(out, toScheduleJSON(sc))
	}
	return out
}

type createScheduleReq struct {
	TaskID                string          `json:"task_id"`
	Title                 string          `json:"title"`
	Description           string          `json:"description"`
	ScheduledTime         time.Time       `json:"scheduled_time"`
	StartTime             *time.Time      `json:"start_time"`
	EndTime               *time.Time      `json:"end_time"`
	TimeZone              string          `json:"time_zone"`
	Recurrence            *recurrenceJSON `json:"recurrence"`
	CreateDefaultReminder bool            `json:"create_default_reminder"`
}

func (s *Server) createSchedule(w http.ResponseWriter, r *http.Request) {
	var req createScheduleReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sc, err := s.schedules.Create(r.Context(), engine.CreateScheduleRequest{
		TaskID:                req.TaskID,
		Title:                 req.Title,
		Description:           req.Description,
		ScheduledTime:         req.ScheduledTime,
		StartTime:             req.StartTime,
		EndTime:               req.EndTime,
		TimeZone:              req.TimeZone,
		Recurrence:            req.Recurrence.toDomain(),
		CreateDefaultReminder: req.CreateDefaultReminder,
	})
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toScheduleJSON(sc))
}

func (s *Server) listSchedules(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := s.schedules.List(r.Context(), limit)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleList(list))
}

func (s *Server) pendingSchedules(w http.ResponseWriter, r *http.Request) {
	list, err := s.schedules.PendingSchedules(r.Context())
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleList(list))
}

func (s *Server) dueSchedules(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "hours must be a positive integer", http.StatusBadRequest)
			return
		}
		hours = n
	}
	list, err := s.schedules.DueSchedules(r.Context(), time.Duration(hours)*time.Hour)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleList(list))
}

func (s *Server) getSchedule(w http.ResponseWriter, r *http.Request) {
	sc, err := s.schedules.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleJSON(sc))
}

type updateScheduleReq struct {
	Title         *string    `json:"title"`
	Description   *string    `json:"description"`
	ScheduledTime *time.Time `json:"scheduled_time"`
	TimeZone      *string    `json:"time_zone"`
}

func (s *Server) updateSchedule(w http.ResponseWriter, r *http.Request) {
	var req updateScheduleReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sc, err := s.schedules.Update(r.Context(), chi.URLParam(r, "id"), engine.UpdateScheduleRequest{
		Title:         req.Title,
		Description:   req.Description,
		ScheduledTime: req.ScheduledTime,
		TimeZone:      req.TimeZone,
	})
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleJSON(sc))
}

func (s *Server) deleteSchedule(w http.ResponseWriter, r *http.Request) {
	if err := s.schedules.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type rescheduleReq struct {
	ScheduledTime time.Time `json:"scheduled_time"`
}

func (s *Server) reschedule(w http.ResponseWriter, r *http.Request) {
	var req rescheduleReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sc, err := s.schedules.Reschedule(r.Context(), chi.URLParam(r, "id"), req.ScheduledTime)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleJSON(sc))
}

type updateStatusReq struct {
	Status string `json:"status"`
}

func (s *Server) updateScheduleStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sc, err := s.schedules.UpdateStatus(r.Context(), chi.URLParam(r, "id"), domain.ScheduleStatus(req.Status))
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleJSON(sc))
}

func (s *Server) nextOccurrence(w http.ResponseWriter, r *http.Request) {
	next, err := s.schedules.NextOccurrence(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, recurrence.ErrEnded) {
			writeJSON(w, http.StatusOK, map[string]any{"ended": true})
			return
		}
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"next": next.Format(time.RFC3339)})
}

func (s *Server) listScheduleReminders(w http.ResponseWriter, r *http.Request) {
	list, err := s.reminders.ListBySchedule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReminderList(list))
}

type reminderJSON struct {
	ID           string    `json:"id"`
	ScheduleID   string    `json:"schedule_id"`
	TaskID       string    `json:"task_id"`
	ReminderTime time.Time `json:"reminder_time"`
	Message      string    `json:"message"`
	Status       string    `json:"status"`
	Channels     []string  `json:"channels"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toReminderJSON(rm domain.Reminder) reminderJSON {
	chs := make([]string, len(rm.Channels))
	for i, c := range rm.Channels {
		chs[i] = string(c)
	}
	return reminderJSON{
		ID: rm.ID, ScheduleID: rm.ScheduleID, TaskID: rm.TaskID,
		ReminderTime: rm.ReminderTime, Message: rm.Message,
		Status: string(rm.Status), Channels: chs,
		CreatedAt: rm.CreatedAt, UpdatedAt: rm.UpdatedAt,
	}
}

func toReminderList(list []domain.Reminder) []reminderJSON {
	out := make([]reminderJSON, 0, len(list))
	for _, rm := range list {
		out = append(out, toReminderJSON(rm))
	}
	return out
}

type createReminderReq struct {
	ScheduleID   string    `json:"schedule_id"`
	ReminderTime time.Time `json:"reminder_time"`
	Message      string    `json:"message"`
	Channels     []string  `json:"channels"`
}

func (s *Server) createReminder(w http.ResponseWriter, r *http.Request) {
	var req createReminderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	channels := make([]domain.NotificationChannel, 0, len(req.Channels))
	for _, c := range req.Channels {
		channels = append(channels, domain.NotificationChannel(c))
	}
	rm, err := s.reminders.Create(r.Context(), engine.CreateReminderRequest{
		ScheduleID:   req.ScheduleID,
		ReminderTime: req.ReminderTime,
		Message:      req.Message,
		Channels:     channels,
	})
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReminderJSON(rm))
}

func (s *Server) dueReminders(w http.ResponseWriter, r *http.Request) {
	hours := 1
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "hours must be a positive integer", http.StatusBadRequest)
			return
		}
		hours = n
	}
	list, err := s.reminders.DueReminders(r.Context(), time.Duration(hours)*time.Hour)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReminderList(list))
}

func (s *Server) getReminder(w http.ResponseWriter, r *http.Request) {
	rm, err := s.reminders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReminderJSON(rm))
}

type updateReminderReq struct {
	ReminderTime *time.Time `json:"reminder_time"`
	Message      *string    `json:"message"`
	Channels     []string   `json:"channels"`
}

func (s *Server) updateReminder(w http.ResponseWriter, r *http.Request) {
	var req updateReminderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	channels := make([]domain.NotificationChannel, 0, len(req.Channels))
	for _, c := range req.Channels {
		channels = append(channels, domain.NotificationChannel(c))
	}
	rm, err := s.reminders.Update(r.Context(), chi.URLParam(r, "id"), engine.UpdateReminderRequest{
		ReminderTime: req.ReminderTime,
		Message:      req.Message,
		Channels:     channels,
	})
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReminderJSON(rm))
}

func (s *Server) deleteReminder(w http.ResponseWriter, r *http.Request) {
	if err := s.reminders.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) triggerReminder(w http.ResponseWriter, r *http.Request) {
	if err := s.reminders.Process(r.Context(), chi.URLParam(r, "id")); err != nil {
		fail(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// streamNotifications pushes broadcast-channel notifications to the
// client as server-sent events; it is the HTTP face of the Broadcaster.
func (s *Server) streamNotifications(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	ch, unsub := s.broadcast.Subscribe(16)
	defer unsub()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case n, open := <-ch:
			if !open {
				return
			}
			payload, err := json.Marshal(n)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
