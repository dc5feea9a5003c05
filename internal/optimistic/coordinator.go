package optimistic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/feedsync/internal/action"
	"github.com/roach88/feedsync/internal/connectivity"
)

// ErrInFlight is returned when in-flight coalescing is enabled and the same
// gesture on the same post has not been answered yet.
var ErrInFlight = errors.New("action already in flight")

// Enqueuer accepts intents for later replay.
type Enqueuer interface {
	Enqueue(ctx context.Context, kind action.Kind, payload []byte, userID string) (string, error)
}

// Result describes how a toggle was settled.
type Result struct {
	State    ItemState
	Queued   bool   // offline: recorded for replay
	ActionID string // set when Queued
	Reverted bool   // online call failed and the gesture was undone
}

// Created describes a created post or comment.
type Created struct {
	ID     string // server id, or the queued action id when Queued
	Queued bool
}

// Coordinator settles gestures either through the queue (offline) or a
// direct call (online).
type Coordinator struct {
	board      *Board
	queue      Enqueuer
	dispatcher action.Dispatcher
	status     connectivity.Status

	coalesce bool
	mu       sync.Mutex
	inFlight map[string]bool
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithCoalescing ignores a gesture while the same gesture on the same post
// is still waiting for the server.
func WithCoalescing(enabled bool) Option {
	return func(c *Coordinator) {
		c.coalesce = enabled
	}
}

// NewCoordinator creates a Coordinator over board.
func NewCoordinator(board *Board, q Enqueuer, d action.Dispatcher, status connectivity.Status, opts ...Option) *Coordinator {
	c := &Coordinator{
		board:      board,
		queue:      q,
		dispatcher: d,
		status:     status,
		inFlight:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Board returns the displayed state.
func (c *Coordinator) Board() *Board {
	return c.board
}

// ToggleLike flips the like on postID.
func (c *Coordinator) ToggleLike(ctx context.Context, userID, postID string) (Result, error) {
	return c.toggle(ctx, action.KindLike, userID, postID)
}

// ToggleBookmark flips the bookmark on postID.
func (c *Coordinator) ToggleBookmark(ctx context.Context, userID, postID string) (Result, error) {
	return c.toggle(ctx, action.KindBookmark, userID, postID)
}

// ToggleReclip flips the reclip on postID.
func (c *Coordinator) ToggleReclip(ctx context.Context, userID, postID string) (Result, error) {
	return c.toggle(ctx, action.KindReclip, userID, postID)
}

// ToggleFollow flips following the author of postID.
func (c *Coordinator) ToggleFollow(ctx context.Context, userID, postID string) (Result, error) {
	return c.toggle(ctx, action.KindFollow, userID, postID)
}

func (c *Coordinator) toggle(ctx context.Context, kind action.Kind, userID, postID string) (Result, error) {
	key := kind.String() + ":" + postID
	if !c.acquire(key) {
		return Result{State: c.board.Get(postID)}, ErrInFlight
	}
	defer c.release(key)

	value, prev := c.board.flip(kind, postID)
	tgt := action.Target{PostID: postID, Value: action.Bool(value)}
	if kind == action.KindFollow {
		tgt.Username = c.board.Get(postID).Author
	}
	payload, err := json.Marshal(tgt)
	if err != nil {
		c.board.restore(kind, postID, prev)
		return Result{State: c.board.Get(postID)}, fmt.Errorf("%s: %w", kind, err)
	}

	if !c.online() {
		id, err := c.queue.Enqueue(ctx, kind, payload, userID)
		if err != nil {
			c.board.restore(kind, postID, prev)
			return Result{State: c.board.Get(postID)}, err
		}
		return Result{State: c.board.Get(postID), Queued: true, ActionID: id}, nil
	}

	out, err := c.dispatcher.Dispatch(ctx, action.Intent{Kind: kind, Payload: payload, UserID: userID})
	if err != nil || !out.OK {
		c.board.restore(kind, postID, prev)
		slog.Warn("optimistic update reverted", "kind", kind, "post", postID, "status", out.Status, "error", err)
		return Result{State: c.board.Get(postID), Reverted: true}, nil
	}
	return Result{State: c.board.Get(postID)}, nil
}

// CreatePost publishes body, or queues it when offline.
func (c *Coordinator) CreatePost(ctx context.Context, userID string, body json.RawMessage) (Created, error) {
	return c.create(ctx, action.KindPost, userID, body)
}

// AddComment posts text on postID, or queues it when offline.
func (c *Coordinator) AddComment(ctx context.Context, userID, postID, text string) (Created, error) {
	payload, err := json.Marshal(action.CommentBody{PostID: postID, Text: text})
	if err != nil {
		return Created{}, err
	}
	return c.create(ctx, action.KindComment, userID, payload)
}

func (c *Coordinator) create(ctx context.Context, kind action.Kind, userID string, payload json.RawMessage) (Created, error) {
	if err := action.Validate(kind, payload); err != nil {
		return Created{}, fmt.Errorf("%s: %w", kind, err)
	}
	if !c.online() {
		id, err := c.queue.Enqueue(ctx, kind, payload, userID)
		if err != nil {
			return Created{}, err
		}
		return Created{ID: id, Queued: true}, nil
	}

	out, err := c.dispatcher.Dispatch(ctx, action.Intent{Kind: kind, Payload: payload, UserID: userID})
	if err != nil {
		return Created{}, fmt.Errorf("%s: %w", kind, err)
	}
	if !out.OK {
		return Created{}, fmt.Errorf("%s: server returned %d", kind, out.Status)
	}
	return Created{ID: out.CreatedID}, nil
}

func (c *Coordinator) online() bool {
	return c.status == nil || c.status.Online()
}

func (c *Coordinator) acquire(key string) bool {
	if !c.coalesce {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight[key] {
		return false
	}
	c.inFlight[key] = true
	return true
}

func (c *Coordinator) release(key string) {
	if !c.coalesce {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, key)
}
