// Package notify broadcasts sync lifecycle signals to every open client.
package notify

import (
	"log/slog"
	"sync"
	"time"
)

// SignalType distinguishes sync lifecycle signals.
type SignalType string

const (
	SyncStarted  SignalType = "SYNC_START"
	SyncComplete SignalType = "SYNC_COMPLETE"
)

// Signal is one broadcast. Counts are filled in for SyncComplete.
type Signal struct {
	Type      SignalType
	Pending   int
	Succeeded int
	Failed    int
	At        time.Time
}

// Broadcaster fans signals out to subscribers.
//
// Publish never blocks: a subscriber whose buffer is full misses the signal
// and a warning is logged.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[int]chan Signal
	next int
}

// NewBroadcaster creates a broadcaster with no subscribers.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan Signal)}
}

// Subscribe registers a subscriber with the given channel buffer.
// The returned cancel func unregisters it and closes the channel.
func (b *Broadcaster) Subscribe(buffer int) (<-chan Signal, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Signal, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers s to every subscriber.
func (b *Broadcaster) Publish(s Signal) {
	if s.At.IsZero() {
		s.At = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		select {
		case ch <- s:
		default:
			slog.Warn("signal dropped: subscriber buffer full", "signal", s.Type, "subscriber", id)
		}
	}
}

// Subscribers returns the current subscriber count.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
