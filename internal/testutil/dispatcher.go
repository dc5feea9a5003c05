package testutil

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/roach88/feedsync/internal/action"
)

// FakeDispatcher records dispatched intents and answers from a script.
//
// Intents succeed unless their kind/target pair was registered with Fail
// or FailWith. Created posts and comments get ids "srv_1", "srv_2", ...
type FakeDispatcher struct {
	mu      sync.Mutex
	calls   []action.Intent
	failing map[string]error
	created int
}

// NewFakeDispatcher creates a dispatcher that accepts everything.
func NewFakeDispatcher() *FakeDispatcher {
	return &FakeDispatcher{failing: make(map[string]error)}
}

// Target returns the "kind:target" key an intent is matched by. The target
// is the post id, or the username for follows.
func Target(in action.Intent) string {
	t, err := action.DecodeTarget(in.Payload)
	if err != nil || (t.PostID == "" && t.Username == "") {
		return in.Kind.String()
	}
	if t.Username != "" {
		return in.Kind.String() + ":" + t.Username
	}
	return in.Kind.String() + ":" + t.PostID
}

// Fail makes intents matching key be rejected by the server with a 500.
func (d *FakeDispatcher) Fail(key string) {
	d.FailWith(key, nil)
}

// FailWith makes intents matching key fail with err. A nil err means a
// server rejection rather than a transport failure.
func (d *FakeDispatcher) FailWith(key string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failing[key] = err
}

// Recover clears every scripted failure.
func (d *FakeDispatcher) Recover() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failing = make(map[string]error)
}

// Dispatch implements action.Dispatcher.
func (d *FakeDispatcher) Dispatch(_ context.Context, in action.Intent) (action.Outcome, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, in)

	key := Target(in)
	if err, ok := d.failing[key]; ok {
		if err != nil {
			return action.Outcome{}, err
		}
		return action.Outcome{OK: false, Status: http.StatusInternalServerError}, nil
	}

	out := action.Outcome{OK: true, Status: http.StatusOK}
	if in.Kind == action.KindPost || in.Kind == action.KindComment {
		d.created++
		out.Status = http.StatusCreated
		out.CreatedID = fmt.Sprintf("srv_%d", d.created)
	}
	return out, nil
}

// Calls returns a copy of every intent dispatched so far.
func (d *FakeDispatcher) Calls() []action.Intent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]action.Intent(nil), d.calls...)
}

// Keys returns the "kind:target" key of every dispatched intent, in call order.
func (d *FakeDispatcher) Keys() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	keys := make([]string, len(d.calls))
	for i, in := range d.calls {
		keys[i] = Target(in)
	}
	return keys
}
