package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Notification is what broadcast subscribers receive.
type Notification struct {
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Broadcaster is the in-process fanout channel: Send publishes to every
// subscriber without blocking, and slow subscribers drop messages rather
// than stalling a tick. It stands in for the original deployment's
// websocket topic.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[uint64]chan Notification
	seq  atomic.Uint64
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: map[uint64]chan Notification{}}
}

func (b *Broadcaster) Send(ctx context.Context, message string) error {
	n := Notification{Message: message, Time: time.Now()}

	// Snapshot subscribers so Send doesn't hold the lock while sending.
	b.mu.RLock()
	chs := make([]chan Notification, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		// Non-blocking delivery. If a subscriber unsubscribes concurrently
		// and the channel closes, recover from the send panic.
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- n:
			default:
			}
		}()
	}
	return nil
}

// Subscribe registers a buffered listener. The returned func detaches it;
// calling it more than once is safe.
func (b *Broadcaster) Subscribe(buffer int) (<-chan Notification, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Notification, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}
