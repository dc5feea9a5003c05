// Package queue is the durable mutation queue and its replay engine.
//
// Every accepted intent is appended to an ordered list that is persisted in
// full under StorageKey after each change. Drain replays a snapshot of the
// list as one concurrent batch and removes exactly the entries the server
// accepted; everything else stays queued for the next drain.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/roach88/feedsync/internal/action"
	"github.com/roach88/feedsync/internal/connectivity"
	"github.com/roach88/feedsync/internal/notify"
)

// StorageKey is the durable key holding the queued list.
const StorageKey = "offline-actions"

// Persister is the durable key/value surface the queue writes to.
type Persister interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	PutJSON(ctx context.Context, key string, v any) error
}

// Queue holds queued actions in creation order.
type Queue struct {
	persister  Persister
	dispatcher action.Dispatcher
	status     connectivity.Status
	signals    *notify.Broadcaster

	now         func() time.Time
	suffix      func() string
	maxInFlight int

	mu      sync.Mutex // guards actions and serializes persistence
	actions []action.Queued

	drainMu    sync.Mutex
	background conc.WaitGroup
}

// Option configures a Queue.
type Option func(*Queue)

// WithClock sets the time source for action timestamps.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		q.now = now
	}
}

// WithSuffix sets the id suffix generator.
func WithSuffix(suffix func() string) Option {
	return func(q *Queue) {
		q.suffix = suffix
	}
}

// WithMaxInFlight bounds concurrent dispatches during a drain.
// Zero means unbounded.
func WithMaxInFlight(n int) Option {
	return func(q *Queue) {
		q.maxInFlight = n
	}
}

// New creates an empty queue. Call Load to restore a persisted list.
// status may be nil (always online); signals may be nil.
func New(p Persister, d action.Dispatcher, status connectivity.Status, signals *notify.Broadcaster, opts ...Option) *Queue {
	q := &Queue{
		persister:  p,
		dispatcher: d,
		status:     status,
		signals:    signals,
		now:        time.Now,
		suffix:     action.RandomSuffix,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Load replaces the in-memory list with the persisted one.
func (q *Queue) Load(ctx context.Context) error {
	var stored []action.Queued
	if _, err := q.persister.GetJSON(ctx, StorageKey, &stored); err != nil {
		return fmt.Errorf("load queue: %w", err)
	}
	q.mu.Lock()
	q.actions = stored
	q.mu.Unlock()
	slog.Debug("queue loaded", "pending", len(stored))
	return nil
}

// Enqueue records an intent and returns its id. When online a drain starts
// in the background. A failed durable write is logged; the action stays
// queued in memory.
func (q *Queue) Enqueue(ctx context.Context, kind action.Kind, payload []byte, userID string) (string, error) {
	if err := action.Validate(kind, payload); err != nil {
		return "", fmt.Errorf("enqueue %s: %w", kind, err)
	}
	rec := action.NewQueued(kind, payload, userID, q.now(), q.suffix())

	q.mu.Lock()
	q.actions = append(q.actions, rec)
	q.persistLocked(ctx)
	q.mu.Unlock()

	slog.Info("action queued", "id", rec.ID, "kind", kind)

	if q.online() {
		bg := context.WithoutCancel(ctx)
		q.background.Go(func() {
			q.Drain(bg)
		})
	}
	return rec.ID, nil
}

// Pending returns a copy of the queued actions in creation order.
func (q *Queue) Pending() []action.Queued {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]action.Queued(nil), q.actions...)
}

// Len returns the number of queued actions.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.actions)
}

// Clear drops every queued action.
func (q *Queue) Clear(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.actions = nil
	if err := q.persister.PutJSON(ctx, StorageKey, []action.Queued{}); err != nil {
		return fmt.Errorf("clear queue: %w", err)
	}
	return nil
}

// Wait blocks until background drains started by Enqueue have finished.
func (q *Queue) Wait() {
	q.background.Wait()
}

func (q *Queue) online() bool {
	return q.status == nil || q.status.Online()
}

func (q *Queue) persistLocked(ctx context.Context) {
	list := q.actions
	if list == nil {
		list = []action.Queued{}
	}
	if err := q.persister.PutJSON(ctx, StorageKey, list); err != nil {
		slog.Warn("queue persist failed", "pending", len(list), "error", err)
	}
}

func (q *Queue) publish(s notify.Signal) {
	if q.signals != nil {
		q.signals.Publish(s)
	}
}
