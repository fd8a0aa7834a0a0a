// Package bus is an in-process publish/subscribe bus. Delivery is
// non-blocking: a subscriber that falls behind loses events rather than
// stalling the publisher, and the loss is counted.
package bus

import (
	"strings"
	"sync"
	"sync/atomic"
)

// Bus fans events out to subscribers whose prefix matches the event kind.
type Bus struct {
	mu      sync.RWMutex
	subs    map[int]*subscriber
	nextID  int
	dropped atomic.Uint64
}

type subscriber struct {
	prefix string
	ch     chan Event
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[int]*subscriber)}
}

// Publish delivers evt to every subscriber whose prefix matches evt.Kind.
// Subscribers with full buffers are skipped.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if !strings.HasPrefix(evt.Kind, s.prefix) {
			continue
		}
		select {
		case s.ch <- evt:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribe registers interest in events whose kind starts with prefix.
// An empty prefix matches everything. The returned func unsubscribes.
func (b *Bus) Subscribe(prefix string, buf int) (<-chan Event, func()) {
	ch := make(chan Event, buf)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = &subscriber{prefix: prefix, ch: ch}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Dropped returns the number of events discarded because a subscriber's
// buffer was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}
