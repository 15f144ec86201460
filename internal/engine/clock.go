package engine

import "time"

// Clock is threaded through both engines instead of ambient time.Now so
// validation and tick behavior stay deterministic under test.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Settings is the configuration surface the engines consume.
type Settings struct {
	DefaultScheduleDuration time.Duration
	DefaultReminderLead     time.Duration
	MinReminderLead         time.Duration
	ReminderLookAhead       time.Duration
	Zone                    *time.Location
}

func (s Settings) withDefaults() Settings {
	if s.DefaultScheduleDuration <= 0 {
		s.DefaultScheduleDuration = time.Hour
	}
	if s.DefaultReminderLead <= 0 {
		s.DefaultReminderLead = 30 * time.Minute
	}
	if s.MinReminderLead <= 0 {
		s.MinReminderLead = time.Minute
	}
	if s.ReminderLookAhead <= 0 {
		s.ReminderLookAhead = time.Minute
	}
	if s.Zone == nil {
		s.Zone = time.UTC
	}
	return s
}
