// Package views records a post as viewed once it has stayed sufficiently
// visible for a dwell period.
//
// Each post moves unseen -> pending -> confirmed. Leaving the viewport
// while pending cancels the timer; confirmed is absorbing until Reset.
package views

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/roach88/feedsync/internal/action"
	"github.com/roach88/feedsync/internal/connectivity"
)

const (
	DefaultDwell     = 2 * time.Second
	DefaultThreshold = 0.5

	// AnonymousUser is recorded when no user is signed in.
	AnonymousUser = "anonymous"
)

// State of one tracked post.
type State int

const (
	Unseen State = iota
	Pending
	Confirmed
)

func (s State) String() string {
	switch s {
	case Unseen:
		return "unseen"
	case Pending:
		return "pending"
	case Confirmed:
		return "confirmed"
	default:
		return "unknown"
	}
}

// Clock schedules dwell timers. AfterFunc returns a stop func that reports
// whether the timer was still pending.
type Clock interface {
	AfterFunc(d time.Duration, fn func()) func() bool
}

type systemClock struct{}

func (systemClock) AfterFunc(d time.Duration, fn func()) func() bool {
	return time.AfterFunc(d, fn).Stop
}

// Enqueuer accepts intents for later replay.
type Enqueuer interface {
	Enqueue(ctx context.Context, kind action.Kind, payload []byte, userID string) (string, error)
}

type item struct {
	state State
	stop  func() bool
	gen   uint64
}

// Debouncer tracks visibility of registered posts.
type Debouncer struct {
	clock      Clock
	dwell      time.Duration
	threshold  float64
	userID     string
	queue      Enqueuer
	dispatcher action.Dispatcher
	status     connectivity.Status

	mu     sync.Mutex
	items  map[string]*item
	viewed map[string]bool

	sends conc.WaitGroup
}

// Option configures a Debouncer.
type Option func(*Debouncer)

// WithClock sets the timer source.
func WithClock(c Clock) Option {
	return func(d *Debouncer) {
		d.clock = c
	}
}

// WithDwell sets how long a post must stay visible.
func WithDwell(dwell time.Duration) Option {
	return func(d *Debouncer) {
		d.dwell = dwell
	}
}

// WithThreshold sets the visibility ratio that counts as visible.
func WithThreshold(ratio float64) Option {
	return func(d *Debouncer) {
		d.threshold = ratio
	}
}

// New creates a Debouncer recording views for userID.
func New(userID string, q Enqueuer, dispatcher action.Dispatcher, status connectivity.Status, opts ...Option) *Debouncer {
	if userID == "" {
		userID = AnonymousUser
	}
	d := &Debouncer{
		clock:      systemClock{},
		dwell:      DefaultDwell,
		threshold:  DefaultThreshold,
		userID:     userID,
		queue:      q,
		dispatcher: dispatcher,
		status:     status,
		items:      make(map[string]*item),
		viewed:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register starts tracking postID.
func (d *Debouncer) Register(postID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.registerLocked(postID)
}

func (d *Debouncer) registerLocked(postID string) *item {
	it, ok := d.items[postID]
	if !ok {
		it = &item{}
		if d.viewed[postID] {
			it.state = Confirmed
		}
		d.items[postID] = it
	}
	return it
}

// Unregister stops tracking postID and cancels its timer. The viewed
// record is kept.
func (d *Debouncer) Unregister(postID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if it, ok := d.items[postID]; ok {
		cancelLocked(it)
		delete(d.items, postID)
	}
}

// Observe maps a visibility ratio to Visible or Hidden.
func (d *Debouncer) Observe(postID string, ratio float64) {
	if ratio >= d.threshold {
		d.Visible(postID)
		return
	}
	d.Hidden(postID)
}

// Visible starts the dwell timer for an unseen post. A post already
// pending keeps its original timer.
func (d *Debouncer) Visible(postID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	it := d.registerLocked(postID)
	if it.state != Unseen {
		return
	}
	it.state = Pending
	it.gen++
	gen := it.gen
	it.stop = d.clock.AfterFunc(d.dwell, func() {
		d.fire(postID, gen)
	})
}

// Hidden cancels a pending timer.
func (d *Debouncer) Hidden(postID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if it, ok := d.items[postID]; ok && it.state == Pending {
		cancelLocked(it)
		it.state = Unseen
	}
}

func cancelLocked(it *item) {
	if it.stop != nil {
		it.stop()
		it.stop = nil
	}
	it.gen++
}

func (d *Debouncer) fire(postID string, gen uint64) {
	d.mu.Lock()
	it, ok := d.items[postID]
	if !ok || it.gen != gen || it.state != Pending {
		d.mu.Unlock()
		return
	}
	it.state = Confirmed
	it.stop = nil
	d.viewed[postID] = true
	d.mu.Unlock()

	d.record(postID)
}

// record reports a confirmed view: queued offline, sent directly online.
func (d *Debouncer) record(postID string) {
	payload, err := json.Marshal(action.Target{PostID: postID})
	if err != nil {
		slog.Warn("view not recorded", "post", postID, "error", err)
		return
	}
	ctx := context.Background()

	if d.status != nil && !d.status.Online() {
		if _, err := d.queue.Enqueue(ctx, action.KindView, payload, d.userID); err != nil {
			slog.Warn("view not queued", "post", postID, "error", err)
		}
		return
	}

	d.sends.Go(func() {
		out, err := d.dispatcher.Dispatch(ctx, action.Intent{Kind: action.KindView, Payload: payload, UserID: d.userID})
		if err != nil || !out.OK {
			slog.Warn("view not recorded", "post", postID, "status", out.Status, "error", err)
		}
	})
}

// MarkViewed confirms postID without emitting a view event.
func (d *Debouncer) MarkViewed(postID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.viewed[postID] = true
	if it, ok := d.items[postID]; ok {
		cancelLocked(it)
		it.state = Confirmed
	}
}

// Reset forgets every viewed post and cancels every timer, as at the start
// of a new session.
func (d *Debouncer) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, it := range d.items {
		cancelLocked(it)
		it.state = Unseen
	}
	d.viewed = make(map[string]bool)
}

// HasViewed reports whether postID was confirmed this session.
func (d *Debouncer) HasViewed(postID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.viewed[postID]
}

// ViewedCount returns the number of confirmed posts.
func (d *Debouncer) ViewedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.viewed)
}

// State returns the state of postID.
func (d *Debouncer) State(postID string) State {
	d.mu.Lock()
	defer d.mu.Unlock()
	if it, ok := d.items[postID]; ok {
		return it.state
	}
	if d.viewed[postID] {
		return Confirmed
	}
	return Unseen
}

// Wait blocks until direct view sends have finished.
func (d *Debouncer) Wait() {
	d.sends.Wait()
}
