// Package poller drives the engines: two independent fixed-interval
// tickers, one per engine, each running its ticks to completion before
// the next fires. Stopping lets in-flight items finish.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"timeflow/internal/engine"
)

type Poller struct {
	schedules        *engine.ScheduleEngine
	reminders        *engine.ReminderEngine
	scheduleInterval time.Duration
	reminderInterval time.Duration
	stop             chan struct{}
	stopOnce         sync.Once
	log              zerolog.Logger
}

func New(schedules *engine.ScheduleEngine, reminders *engine.ReminderEngine,
	scheduleInterval, reminderInterval time.Duration, log zerolog.Logger) *Poller {
	if scheduleInterval <= 0 {
		scheduleInterval = time.Minute
	}
	if reminderInterval <= 0 {
		reminderInterval = 30 * time.Second
	}
	return &Poller{
		schedules:        schedules,
		reminders:        reminders,
		scheduleInterval: scheduleInterval,
		reminderInterval: reminderInterval,
		stop:             make(chan struct{}),
		log:              log,
	}
}

// Run blocks until ctx is cancelled or Stop is called, driving both
// tick loops. Ticks of one kind never overlap each other; the two kinds
// run concurrently by design.
func (p *Poller) Run(ctx context.Context) {
	p.log.Info().
		Dur("schedule_interval", p.scheduleInterval).
		Dur("reminder_interval", p.reminderInterval).
		Msg("poller started")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		p.loop(ctx, p.scheduleInterval, "schedule", func(now time.Time) (int, error) {
			return p.schedules.Tick(ctx, now)
		})
	}()
	go func() {
		defer wg.Done()
		p.loop(ctx, p.reminderInterval, "reminder", func(now time.Time) (int, error) {
			return p.reminders.Tick(ctx, now)
		})
	}()
	wg.Wait()
	p.log.Info().Msg("poller stopped")
}

func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

func (p *Poller) loop(ctx context.Context, interval time.Duration, kind string, tick func(time.Time) (int, error)) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case now := <-t.C:
			n, err := tick(now)
			if err != nil {
				p.log.Error().Err(err).Str("tick", kind).Msg("tick failed")
				continue
			}
			if n > 0 {
				p.log.Info().Str("tick", kind).Int("processed", n).Msg("tick processed due items")
			}
		}
	}
}
