// Package notify delivers reminder notifications through pluggable
// channel strategies. Dispatchers never retry; translating a failed
// send into reminder state is the engine's job.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"timeflow/internal/domain"
)

// Dispatcher sends one message through one channel. A returned error
// means the message may or may not have arrived (at-least-once overall).
type Dispatcher interface {
	Send(ctx context.Context, message string) error
}

// Registry maps channel names to dispatchers. Channel selection is a
// plain lookup; there is no dynamic dispatch machinery beyond the map.
type Registry struct {
	mu          sync.RWMutex
	dispatchers map[domain.NotificationChannel]Dispatcher
}

func NewRegistry() *Registry {
	return &Registry{dispatchers: make(map[domain.NotificationChannel]Dispatcher)}
}

func (r *Registry) Register(ch domain.NotificationChannel, d Dispatcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dispatchers[ch] = d
}

// Dispatch fans the message out to every requested channel. All channels
// are attempted even when an earlier one fails; the joined error carries
// every failure.
func (r *Registry) Dispatch(ctx context.Context, channels []domain.NotificationChannel, message string) error {
	if len(channels) == 0 {
		return errors.New("no notification channels requested")
	}
	var errs []error
	for _, ch := range channels {
		r.mu.RLock()
		d, ok := r.dispatchers[ch]
		r.mu.RUnlock()
		if !ok {
			errs = append(errs, fmt.Errorf("no dispatcher registered for channel %s", ch))
			continue
		}
		if err := d.Send(ctx, message); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", ch, err))
		}
	}
	return errors.Join(errs...)
}
