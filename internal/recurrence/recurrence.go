// Package recurrence computes the next concrete occurrence of a
// recurrence pattern. Everything here is pure: no clocks, no stores.
package recurrence

import (
	"errors"
	"time"

	"timeflow/internal/domain"
)

// ErrEnded is returned when the computed occurrence falls after the
// pattern's end date.
var ErrEnded = errors.New("recurrence ended")

// dailyHour is the fixed wall-clock hour DAILY occurrences normalize to.
// A daily reminder lands at the next morning, not a literal +24h.
const dailyHour = 9

// Validate checks the fields a pattern type requires.
func Validate(p domain.RecurrencePattern) error {
	switch p.Type {
	case "":
		return domain.Invalid("recurrence.type", "is required")
	case domain.RecurrenceWeekly:
		if len(p.DaysOfWeek) == 0 {
			return domain.Invalid("recurrence.daysOfWeek", "weekly recurrence requires at least one day of week")
		}
	case domain.RecurrenceMonthly:
		if p.DayOfMonth < 1 || p.DayOfMonth > 31 {
			return domain.Invalid("recurrence.dayOfMonth", "must be between 1 and 31, got %d", p.DayOfMonth)
		}
	case domain.RecurrenceDaily, domain.RecurrenceYearly:
	default:
		return domain.Invalid("recurrence.type", "unknown type %q", p.Type)
	}
	return nil
}

// Next returns the first occurrence of p strictly after from (for DAILY
// and YEARLY, the fixed offset from the source instant). Deterministic,
// no I/O.
func Next(p domain.RecurrencePattern, from time.Time) (time.Time, error) {
	if err := Validate(p); err != nil {
		return time.Time{}, err
	}

	var next time.Time
	switch p.Type {
	case domain.RecurrenceDaily:
		d := from.AddDate(0, 0, 1)
		next = time.Date(d.Year(), d.Month(), d.Day(), dailyHour, 0, 0, 0, d.Location())
	case domain.RecurrenceWeekly:
		next = nextWeekly(from, p.DaysOfWeek)
	case domain.RecurrenceMonthly:
		next = nextMonthly(from, p.DayOfMonth)
	case domain.RecurrenceYearly:
		next = from.AddDate(1, 0, 0)
	}

	if p.EndDate != nil && next.After(*p.EndDate) {
		return time.Time{}, ErrEnded
	}
	return next, nil
}

// nextWeekly picks the minimum over the next-or-same occurrence of each
// requested weekday, keeping from's time of day.
func nextWeekly(from time.Time, days []time.Weekday) time.Time {
	var best time.Time
	for _, day := range days {
		ahead := (int(day) - int(from.Weekday()) + 7) % 7
		candidate := from.AddDate(0, 0, ahead)
		if best.IsZero() || candidate.Before(best) {
			best = candidate
		}
	}
	return best
}

// nextMonthly returns the first candidate with the requested day of
// month that lies strictly after from. Months too short for the day are
// skipped rather than letting the date normalize into the next month,
// so the result's day always equals dayOfMonth.
func nextMonthly(from time.Time, dayOfMonth int) time.Time {
	for add := 0; ; add++ {
		anchor := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, from.Location()).AddDate(0, add, 0)
		if dayOfMonth > daysIn(anchor.Year(), anchor.Month()) {
			continue
		}
		candidate := time.Date(anchor.Year(), anchor.Month(), dayOfMonth,
			from.Hour(), from.Minute(), from.Second(), from.Nanosecond(), from.Location())
		if candidate.After(from) {
			return candidate
		}
	}
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
