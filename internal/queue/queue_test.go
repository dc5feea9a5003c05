package queue

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/feedsync/internal/action"
	"github.com/roach88/feedsync/internal/api"
	"github.com/roach88/feedsync/internal/connectivity"
	"github.com/roach88/feedsync/internal/notify"
	"github.com/roach88/feedsync/internal/store"
	"github.com/roach88/feedsync/internal/testutil"
)

func openStore(t *testing.T, path string) *store.Store {
	t.Helper()
	st, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func target(t *testing.T, tgt action.Target) json.RawMessage {
	t.Helper()
	raw, err := action.EncodeTarget(tgt)
	require.NoError(t, err)
	return raw
}

func fixedSuffix() func() string {
	n := 0
	return func() string {
		n++
		return []string{"aaaaaaaaa", "bbbbbbbbb", "ccccccccc", "ddddddddd"}[(n-1)%4]
	}
}

func newTestQueue(t *testing.T, online bool) (*Queue, *testutil.FakeDispatcher, *connectivity.Monitor, *notify.Broadcaster, *store.Store) {
	t.Helper()
	st := openStore(t, filepath.Join(t.TempDir(), "queue.db"))
	d := testutil.NewFakeDispatcher()
	mon := connectivity.NewMonitor(online)
	signals := notify.NewBroadcaster()
	clock := testutil.NewFakeClock(time.UnixMilli(1700000000000))
	q := New(st, d, mon, signals, WithClock(clock.Now), WithSuffix(fixedSuffix()))
	t.Cleanup(q.Wait)
	return q, d, mon, signals, st
}

func drainSignals(ch <-chan notify.Signal) []notify.Signal {
	var out []notify.Signal
	for {
		select {
		case s := <-ch:
			out = append(out, s)
		default:
			return out
		}
	}
}

func TestEnqueue_AssignsIDAndPersists(t *testing.T) {
	q, _, _, _, st := newTestQueue(t, false)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, action.KindLike, target(t, action.Target{PostID: "p1", Value: action.Bool(true)}), "u9")
	require.NoError(t, err)
	assert.Equal(t, "like_1700000000000_aaaaaaaaa", id)

	var stored []action.Queued
	found, err := st.GetJSON(ctx, StorageKey, &stored)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, stored, 1)
	assert.Equal(t, id, stored[0].ID)
	assert.Equal(t, action.KindLike, stored[0].Kind)
	assert.Equal(t, "u9", stored[0].UserID)
	assert.Equal(t, int64(1700000000000), stored[0].Timestamp)
}

func TestEnqueue_RejectsMalformedPayload(t *testing.T) {
	q, _, _, _, _ := newTestQueue(t, false)

	_, err := q.Enqueue(context.Background(), action.KindLike, []byte(`{}`), "u1")
	assert.ErrorIs(t, err, action.ErrEmptyPayload)
	assert.Zero(t, q.Len())
}

func TestQueue_SurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")
	ctx := context.Background()

	st := openStore(t, path)
	first := New(st, testutil.NewFakeDispatcher(), connectivity.NewMonitor(false), nil)
	_, err := first.Enqueue(ctx, action.KindBookmark, target(t, action.Target{PostID: "p1", Value: action.Bool(true)}), "u1")
	require.NoError(t, err)
	_, err = first.Enqueue(ctx, action.KindFollow, target(t, action.Target{Username: "u2", Value: action.Bool(true)}), "u1")
	require.NoError(t, err)
	require.NoError(t, st.Close())

	reopened := openStore(t, path)
	second := New(reopened, testutil.NewFakeDispatcher(), connectivity.NewMonitor(false), nil)
	require.NoError(t, second.Load(ctx))

	pending := second.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, action.KindBookmark, pending[0].Kind)
	assert.Equal(t, action.KindFollow, pending[1].Kind)
}

func TestDrain_SkippedOfflineOrEmpty(t *testing.T) {
	q, d, mon, signals, _ := newTestQueue(t, true)
	ch, cancel := signals.Subscribe(8)
	defer cancel()
	ctx := context.Background()

	report := q.Drain(ctx)
	assert.True(t, report.Skipped)

	mon.Set(false)
	_, err := q.Enqueue(ctx, action.KindView, target(t, action.Target{PostID: "p1"}), "u1")
	require.NoError(t, err)

	report = q.Drain(ctx)
	assert.True(t, report.Skipped)
	assert.Equal(t, 1, report.Remaining)
	assert.Empty(t, d.Calls())
	assert.Empty(t, drainSignals(ch))
}

// Like p1 and follow u1 while offline, then reconnect: both replay, the
// queue empties and exactly one completion signal is broadcast.
func TestDrain_ReplaysOfflineActions(t *testing.T) {
	q, d, mon, signals, st := newTestQueue(t, false)
	ch, cancel := signals.Subscribe(8)
	defer cancel()
	ctx := context.Background()

	_, err := q.Enqueue(ctx, action.KindLike, target(t, action.Target{PostID: "p1", Value: action.Bool(true)}), "u9")
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, action.KindFollow, target(t, action.Target{Username: "u1", Value: action.Bool(true)}), "u9")
	require.NoError(t, err)
	require.Equal(t, 2, q.Len())

	mon.Set(true)
	report := q.Drain(ctx)

	assert.Equal(t, Report{Attempted: 2, Succeeded: 2}, report)
	assert.ElementsMatch(t, []string{"like:p1", "follow:u1"}, d.Keys())
	assert.Zero(t, q.Len())

	var stored []action.Queued
	_, err = st.GetJSON(ctx, StorageKey, &stored)
	require.NoError(t, err)
	assert.Empty(t, stored)

	sigs := drainSignals(ch)
	require.Len(t, sigs, 2)
	assert.Equal(t, notify.SyncStarted, sigs[0].Type)
	assert.Equal(t, 2, sigs[0].Pending)
	assert.Equal(t, notify.SyncComplete, sigs[1].Type)
	assert.Equal(t, 2, sigs[1].Succeeded)
}

func TestDrain_PartialFailureKeepsOrder(t *testing.T) {
	q, d, mon, _, _ := newTestQueue(t, false)
	ctx := context.Background()

	a, err := q.Enqueue(ctx, action.KindLike, target(t, action.Target{PostID: "p1", Value: action.Bool(true)}), "u1")
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, action.KindLike, target(t, action.Target{PostID: "p2", Value: action.Bool(true)}), "u1")
	require.NoError(t, err)
	c, err := q.Enqueue(ctx, action.KindLike, target(t, action.Target{PostID: "p3", Value: action.Bool(true)}), "u1")
	require.NoError(t, err)

	d.Fail("like:p1")
	d.FailWith("like:p3", errors.New("connection reset"))
	mon.Set(true)

	report := q.Drain(ctx)
	assert.Equal(t, 3, report.Attempted)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, []string{a, c}, report.FailedIDs)

	pending := q.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, a, pending[0].ID)
	assert.Equal(t, c, pending[1].ID)

	d.Recover()
	report = q.Retry(ctx)
	assert.Equal(t, 2, report.Succeeded)
	assert.Zero(t, q.Len())
}

func TestDrain_MissingCredentialStaysQueued(t *testing.T) {
	st := openStore(t, filepath.Join(t.TempDir(), "queue.db"))
	client := api.NewClient(api.Config{BaseURL: "http://127.0.0.1:1"}, api.StaticToken(""), nil)
	q := New(st, client, connectivity.NewMonitor(false), nil)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, action.KindView, target(t, action.Target{PostID: "p1"}), "u1")
	require.NoError(t, err)

	q.status = connectivity.NewMonitor(true)
	report := q.Drain(ctx)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, q.Len())
}

func TestDrain_EnqueuedDuringDrainSurvives(t *testing.T) {
	st := openStore(t, filepath.Join(t.TempDir(), "queue.db"))
	mon := connectivity.NewMonitor(false)
	started := make(chan struct{})
	release := make(chan struct{})
	d := action.DispatcherFunc(func(ctx context.Context, in action.Intent) (action.Outcome, error) {
		close(started)
		<-release
		return action.Outcome{OK: true, Status: 200}, nil
	})
	q := New(st, d, mon, nil)
	ctx := context.Background()

	first, err := q.Enqueue(ctx, action.KindView, target(t, action.Target{PostID: "p1"}), "u1")
	require.NoError(t, err)

	mon.Set(true)
	done := make(chan Report)
	go func() { done <- q.Drain(ctx) }()

	<-started
	mon.Set(false)
	second, err := q.Enqueue(ctx, action.KindView, target(t, action.Target{PostID: "p2"}), "u1")
	require.NoError(t, err)
	close(release)

	report := <-done
	assert.Equal(t, 1, report.Succeeded)
	pending := q.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, second, pending[0].ID)
	assert.NotEqual(t, first, second)
}

func TestEnqueue_OnlineDrainsInBackground(t *testing.T) {
	q, d, _, _, _ := newTestQueue(t, true)

	_, err := q.Enqueue(context.Background(), action.KindReclip, target(t, action.Target{PostID: "p7", Value: action.Bool(true)}), "u1")
	require.NoError(t, err)
	q.Wait()

	assert.Equal(t, []string{"reclip:p7"}, d.Keys())
	assert.Zero(t, q.Len())
}

type brokenPersister struct{}

func (brokenPersister) GetJSON(context.Context, string, any) (bool, error) {
	return false, errors.New("storage unavailable")
}

func (brokenPersister) PutJSON(context.Context, string, any) error {
	return errors.New("storage unavailable")
}

func TestEnqueue_PersistFailureKeepsActionInMemory(t *testing.T) {
	q := New(brokenPersister{}, testutil.NewFakeDispatcher(), connectivity.NewMonitor(false), nil)

	id, err := q.Enqueue(context.Background(), action.KindLike, target(t, action.Target{PostID: "p1", Value: action.Bool(true)}), "u1")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, q.Len())

	assert.Error(t, q.Load(context.Background()))
	assert.Equal(t, 1, q.Len(), "failed load leaves the list untouched")
}

func TestDrain_BoundedConcurrency(t *testing.T) {
	st := openStore(t, filepath.Join(t.TempDir(), "queue.db"))
	mon := connectivity.NewMonitor(false)
	d := testutil.NewFakeDispatcher()
	q := New(st, d, mon, nil, WithMaxInFlight(1))
	ctx := context.Background()

	for _, p := range []string{"p1", "p2", "p3"} {
		_, err := q.Enqueue(ctx, action.KindView, target(t, action.Target{PostID: p}), "u1")
		require.NoError(t, err)
	}
	mon.Set(true)
	q.Drain(ctx)

	assert.Equal(t, []string{"view:p1", "view:p2", "view:p3"}, d.Keys(), "one at a time keeps dispatch order")
}

func TestClear(t *testing.T) {
	q, _, _, _, st := newTestQueue(t, false)
	ctx := context.Background()
	_, err := q.Enqueue(ctx, action.KindView, target(t, action.Target{PostID: "p1"}), "u1")
	require.NoError(t, err)

	require.NoError(t, q.Clear(ctx))
	assert.Zero(t, q.Len())

	var stored []action.Queued
	_, err = st.GetJSON(ctx, StorageKey, &stored)
	require.NoError(t, err)
	assert.Empty(t, stored)
}
