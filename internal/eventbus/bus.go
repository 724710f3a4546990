// Package eventbus is a small in-memory fanout used to decouple the feed
// layer from the scheduling session: feed refreshes and config changes
// are published here, and the session folds them into its single
// evaluation entry point.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Well-known event types.
const (
	// TypeEventsChanged signals that the materialized event set changed
	// (feed refresh, config edit). Data is an EventsChanged.
	TypeEventsChanged = "events.changed"

	// TypeAlertDispatched is emitted after an alert was acknowledged and
	// handed to the dispatcher. Data is an AlertDispatched.
	TypeAlertDispatched = "alert.dispatched"
)

// EventsChanged describes a change to the event data set.
type EventsChanged struct {
	Source string `json:"source"` // feed id or "config"
	Count  int    `json:"count"`  // events now known for that source
}

// AlertDispatched describes one surfaced alert.
type AlertDispatched struct {
	Key      string    `json:"key"`
	EventID  string    `json:"event_id"`
	FireTime time.Time `json:"fire_time"`
}

// Event is a lightweight, in-memory signal.
//
// Contract:
//   - Publish MUST be non-blocking.
//   - Slow subscribers may drop events (bounded backpressure).
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns a simple in-memory fanout bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Snapshot subscribers so Publish doesn't hold locks while sending.
	b.mu.RLock()
	chs := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		// Non-blocking delivery; a concurrently closed channel is
		// tolerated via recover.
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
			}
		}()
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
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
