package views

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/feedsync/internal/action"
	"github.com/roach88/feedsync/internal/connectivity"
	"github.com/roach88/feedsync/internal/testutil"
)

type recordingQueue struct {
	mu      sync.Mutex
	entries []action.Intent
}

func (q *recordingQueue) Enqueue(_ context.Context, kind action.Kind, payload []byte, userID string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, action.Intent{Kind: kind, Payload: payload, UserID: userID})
	return "view_1", nil
}

func setup(online bool, userID string) (*Debouncer, *testutil.FakeClock, *recordingQueue, *testutil.FakeDispatcher) {
	clock := testutil.NewFakeClock(time.Unix(0, 0))
	q := &recordingQueue{}
	d := testutil.NewFakeDispatcher()
	deb := New(userID, q, d, connectivity.NewMonitor(online), WithClock(clock))
	return deb, clock, q, d
}

func TestDebouncer_ConfirmsAfterDwell(t *testing.T) {
	deb, clock, q, d := setup(true, "u1")
	deb.Register("p1")

	deb.Visible("p1")
	assert.Equal(t, Pending, deb.State("p1"))

	clock.Advance(1999 * time.Millisecond)
	assert.Equal(t, Pending, deb.State("p1"))

	clock.Advance(time.Millisecond)
	deb.Wait()
	assert.Equal(t, Confirmed, deb.State("p1"))
	assert.True(t, deb.HasViewed("p1"))
	assert.Equal(t, []string{"view:p1"}, d.Keys())
	assert.Equal(t, "u1", d.Calls()[0].UserID)
	assert.Empty(t, q.entries)
}

func TestDebouncer_HiddenBeforeDwellCancels(t *testing.T) {
	deb, clock, _, d := setup(true, "u1")
	deb.Register("p1")

	deb.Visible("p1")
	clock.Advance(time.Second)
	deb.Hidden("p1")
	clock.Advance(5 * time.Second)
	deb.Wait()

	assert.Equal(t, Unseen, deb.State("p1"))
	assert.Empty(t, d.Calls())
	assert.Zero(t, clock.Pending())
}

func TestDebouncer_RepeatedVisibleKeepsTimer(t *testing.T) {
	deb, clock, _, d := setup(true, "u1")
	deb.Register("p1")

	deb.Visible("p1")
	clock.Advance(time.Second)
	deb.Visible("p1")
	clock.Advance(time.Second)
	deb.Wait()

	assert.Equal(t, Confirmed, deb.State("p1"))
	assert.Len(t, d.Calls(), 1)
}

func TestDebouncer_ConfirmedIsAbsorbing(t *testing.T) {
	deb, clock, _, d := setup(true, "u1")
	deb.Register("p1")

	deb.Visible("p1")
	clock.Advance(2 * time.Second)
	deb.Hidden("p1")
	deb.Visible("p1")
	clock.Advance(10 * time.Second)
	deb.Wait()

	assert.Equal(t, Confirmed, deb.State("p1"))
	assert.Len(t, d.Calls(), 1)
}

func TestDebouncer_OfflineQueuesView(t *testing.T) {
	deb, clock, q, d := setup(false, "")
	deb.Register("p1")

	deb.Visible("p1")
	clock.Advance(2 * time.Second)

	assert.Empty(t, d.Calls())
	require.Len(t, q.entries, 1)
	assert.Equal(t, action.KindView, q.entries[0].Kind)
	assert.Equal(t, AnonymousUser, q.entries[0].UserID)
	assert.JSONEq(t, `{"postId":"p1"}`, string(q.entries[0].Payload))
}

func TestDebouncer_UnregisterCancels(t *testing.T) {
	deb, clock, _, d := setup(true, "u1")
	deb.Register("p1")

	deb.Visible("p1")
	deb.Unregister("p1")
	clock.Advance(3 * time.Second)
	deb.Wait()

	assert.Empty(t, d.Calls())
	assert.False(t, deb.HasViewed("p1"))
}

func TestDebouncer_ObserveThreshold(t *testing.T) {
	deb, clock, _, _ := setup(true, "u1")
	deb.Register("p1")
	deb.Register("p2")

	deb.Observe("p1", 0.49)
	deb.Observe("p2", 0.5)
	clock.Advance(2 * time.Second)
	deb.Wait()

	assert.Equal(t, Unseen, deb.State("p1"))
	assert.Equal(t, Confirmed, deb.State("p2"))
	assert.Equal(t, 1, deb.ViewedCount())
}

func TestDebouncer_MarkViewedAndReset(t *testing.T) {
	deb, clock, _, d := setup(true, "u1")
	deb.Register("p1")

	deb.Visible("p1")
	deb.MarkViewed("p1")
	clock.Advance(2 * time.Second)
	deb.Wait()
	assert.Equal(t, Confirmed, deb.State("p1"))
	assert.Empty(t, d.Calls(), "marking does not emit a view")

	deb.Reset()
	assert.Zero(t, deb.ViewedCount())
	assert.Equal(t, Unseen, deb.State("p1"))

	deb.Visible("p1")
	clock.Advance(2 * time.Second)
	deb.Wait()
	assert.Len(t, d.Calls(), 1)
}

func TestDebouncer_ReRegisterRemembersViewed(t *testing.T) {
	deb, clock, _, _ := setup(true, "u1")
	deb.Register("p1")
	deb.Visible("p1")
	clock.Advance(2 * time.Second)
	deb.Wait()

	deb.Unregister("p1")
	deb.Register("p1")
	assert.Equal(t, Confirmed, deb.State("p1"))
}
