// Package events carries queue-change notifications between writers and the
// display push loop.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	TypeQueueChanged  = "queue.changed"
	TypeDoctorChanged = "doctor.changed"

	Channel = "clinic:queue"

	subscriberBuffer = 32
)

type Event struct {
	Type       string    `json:"type"`
	PatientID  string    `json:"patient_id,omitempty"`
	Action     string    `json:"action,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Bus delivers events to every live subscriber. Slow subscribers drop events
// instead of blocking publishers.
type Bus interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(ctx context.Context) (<-chan Event, error)
	Close() error
}

// LocalBus is an in-process Bus for a single instance and for tests.
type LocalBus struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	closed      bool
}

func NewLocalBus() *LocalBus {
	return &LocalBus{subscribers: make(map[chan Event]struct{})}
}

func (b *LocalBus) Publish(ctx context.Context, event Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for subscriber := range b.subscribers {
		select {
		case subscriber <- event:
		default:
			log.Warn().Str("type", event.Type).Msg("subscriber full, dropping event")
		}
	}
	return nil
}

// Subscribe returns a channel that is closed when ctx ends or the bus closes.
func (b *LocalBus) Subscribe(ctx context.Context) (<-chan Event, error) {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, nil
	}
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.remove(ch)
	}()
	return ch, nil
}

func (b *LocalBus) remove(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[ch]; !ok {
		return
	}
	delete(b.subscribers, ch)
	close(ch)
}

func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for ch := range b.subscribers {
		delete(b.subscribers, ch)
		close(ch)
	}
	return nil
}
