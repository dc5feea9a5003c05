package action

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Intent is one user action ready to be sent to the server.
type Intent struct {
	Kind    Kind
	Payload json.RawMessage
	UserID  string

	// Key is an optional idempotency key forwarded to the server.
	Key string
}

// Queued is a durably persisted intent awaiting replay.
// Records are never mutated in place.
type Queued struct {
	ID        string          `json:"id"`
	Kind      Kind            `json:"type"`
	Payload   json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"` // unix milliseconds
	UserID    string          `json:"userId"`
}

// CreatedAt returns the creation time.
func (q Queued) CreatedAt() time.Time {
	return time.UnixMilli(q.Timestamp)
}

// Intent converts the record back into a dispatchable intent.
// The record id becomes the idempotency key.
func (q Queued) Intent() Intent {
	return Intent{Kind: q.Kind, Payload: q.Payload, UserID: q.UserID, Key: q.ID}
}

// NewQueued builds a record for kind created at now.
func NewQueued(kind Kind, payload json.RawMessage, userID string, now time.Time, suffix string) Queued {
	return Queued{
		ID:        NewID(kind, now, suffix),
		Kind:      kind,
		Payload:   payload,
		Timestamp: now.UnixMilli(),
		UserID:    userID,
	}
}

// NewID derives an action id from kind, creation time and a random suffix:
// "<kind>_<unix-ms>_<suffix>".
func NewID(kind Kind, now time.Time, suffix string) string {
	return fmt.Sprintf("%s_%d_%s", kind, now.UnixMilli(), suffix)
}

// RandomSuffix returns 9 random lower-case hex characters.
func RandomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
}

// Outcome is the server's answer to a dispatched intent.
type Outcome struct {
	OK        bool
	Status    int
	CreatedID string // set for KindPost and KindComment when the server returns one
}

// Dispatcher sends one intent to the server.
// A returned error means the call did not complete; OK=false means the
// server answered with a failure.
type Dispatcher interface {
	Dispatch(ctx context.Context, in Intent) (Outcome, error)
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, in Intent) (Outcome, error)

// Dispatch calls f.
func (f DispatcherFunc) Dispatch(ctx context.Context, in Intent) (Outcome, error) {
	return f(ctx, in)
}
