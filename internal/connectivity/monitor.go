// Package connectivity holds the process-wide online/offline state as an
// explicit handle.
//
// The state is never durable: it is initialised from the platform at startup
// and flipped by an event source (a Prober, or a test calling Set).
package connectivity

import (
	"log/slog"
	"sync"
	"time"
)

// Status is the read side of the connectivity state.
type Status interface {
	Online() bool
}

// Change describes a transition.
type Change struct {
	Online bool
	At     time.Time
}

// Monitor holds the current state and notifies subscribers of transitions.
type Monitor struct {
	mu     sync.RWMutex
	online bool
	subs   map[int]chan Change
	next   int
}

// NewMonitor creates a monitor with the given initial state.
func NewMonitor(online bool) *Monitor {
	return &Monitor{online: online, subs: make(map[int]chan Change)}
}

// Online reports the current state.
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Set updates the state. Subscribers are notified only on a transition.
// Returns true when the state changed.
func (m *Monitor) Set(online bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.online == online {
		return false
	}
	m.online = online
	c := Change{Online: online, At: time.Now()}

	slog.Info("connectivity changed", "online", online)
	for id, ch := range m.subs {
		select {
		case ch <- c:
			continue
		default:
		}
		// Full buffer: drop the oldest pending change so the latest state
		// is always delivered. Set is the only sender and holds mu.
		select {
		case <-ch:
			slog.Debug("connectivity change coalesced", "subscriber", id)
		default:
		}
		select {
		case ch <- c:
		default:
			slog.Warn("connectivity change dropped: subscriber buffer full", "subscriber", id)
		}
	}
	return true
}

// Subscribe returns a channel of transitions and a cancel func that closes it.
// A subscriber that falls behind loses its oldest pending transitions, never
// the most recent one.
func (m *Monitor) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, 8)

	m.mu.Lock()
	id := m.next
	m.next++
	m.subs[id] = ch
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
			close(ch)
		})
	}
}
