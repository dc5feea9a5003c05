package optimistic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/feedsync/internal/action"
	"github.com/roach88/feedsync/internal/connectivity"
	"github.com/roach88/feedsync/internal/testutil"
)

type recordingQueue struct {
	mu      sync.Mutex
	entries []action.Queued
	err     error
}

func (q *recordingQueue) Enqueue(_ context.Context, kind action.Kind, payload []byte, userID string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return "", q.err
	}
	id := fmt.Sprintf("%s_%d", kind, len(q.entries)+1)
	q.entries = append(q.entries, action.Queued{ID: id, Kind: kind, Payload: payload, UserID: userID})
	return id, nil
}

func setup(online bool, opts ...Option) (*Coordinator, *recordingQueue, *testutil.FakeDispatcher) {
	board := NewBoard()
	board.Seed(ItemState{PostID: "p1", Author: "alice", Likes: 10, Bookmarks: 2})
	board.Seed(ItemState{PostID: "p2", Author: "alice", Likes: 0})
	q := &recordingQueue{}
	d := testutil.NewFakeDispatcher()
	return NewCoordinator(board, q, d, connectivity.NewMonitor(online), opts...), q, d
}

func TestToggleLike_OnlineFailureRollsBack(t *testing.T) {
	c, q, d := setup(true)
	d.Fail("like:p1")

	res, err := c.ToggleLike(context.Background(), "u1", "p1")
	require.NoError(t, err)
	assert.True(t, res.Reverted)
	assert.False(t, res.State.Liked)
	assert.Equal(t, 10, res.State.Likes)
	assert.Equal(t, 10, c.Board().Get("p1").Likes)
	assert.Empty(t, q.entries, "online failures are not queued")
	assert.Equal(t, []string{"like:p1"}, d.Keys())
}

func TestToggleLike_OnlineSuccess(t *testing.T) {
	c, _, d := setup(true)
	ctx := context.Background()

	res, err := c.ToggleLike(ctx, "u1", "p1")
	require.NoError(t, err)
	assert.False(t, res.Reverted)
	assert.True(t, res.State.Liked)
	assert.Equal(t, 11, res.State.Likes)

	tgt, err := action.DecodeTarget(d.Calls()[0].Payload)
	require.NoError(t, err)
	require.NotNil(t, tgt.Value)
	assert.True(t, *tgt.Value)

	res, err = c.ToggleLike(ctx, "u1", "p1")
	require.NoError(t, err)
	assert.Equal(t, 10, res.State.Likes)
	tgt, err = action.DecodeTarget(d.Calls()[1].Payload)
	require.NoError(t, err)
	assert.False(t, *tgt.Value)
}

func TestToggle_OfflineQueuesWithoutDispatch(t *testing.T) {
	c, q, d := setup(false)

	res, err := c.ToggleBookmark(context.Background(), "u1", "p1")
	require.NoError(t, err)
	assert.True(t, res.Queued)
	assert.Equal(t, "bookmark_1", res.ActionID)
	assert.True(t, res.State.Bookmarked)
	assert.Equal(t, 3, res.State.Bookmarks)
	assert.Empty(t, d.Calls())
	require.Len(t, q.entries, 1)
	assert.Equal(t, action.KindBookmark, q.entries[0].Kind)
}

func TestToggle_OfflineEnqueueFailureRollsBack(t *testing.T) {
	c, q, _ := setup(false)
	q.err = errors.New("invalid payload")

	_, err := c.ToggleReclip(context.Background(), "u1", "p1")
	assert.Error(t, err)
	assert.False(t, c.Board().Get("p1").Reclipped)
}

func TestToggleFollow_AppliesToEveryPostByAuthor(t *testing.T) {
	c, _, d := setup(true)

	res, err := c.ToggleFollow(context.Background(), "u1", "p1")
	require.NoError(t, err)
	assert.True(t, res.State.Following)
	assert.True(t, c.Board().Get("p2").Following)
	assert.Equal(t, []string{"follow:alice"}, d.Keys())
}

func TestToggle_UnlikeNeverNegative(t *testing.T) {
	c, _, _ := setup(true)
	c.Board().Seed(ItemState{PostID: "p3", Liked: true, Likes: 0})

	res, err := c.ToggleLike(context.Background(), "u1", "p3")
	require.NoError(t, err)
	assert.False(t, res.State.Liked)
	assert.Zero(t, res.State.Likes)
}

func TestToggle_RevertRestoresExactCountAtZero(t *testing.T) {
	c, _, d := setup(true)
	seeded := ItemState{PostID: "p3", Liked: true, Likes: 0}
	c.Board().Seed(seeded)
	d.Fail("like:p3")

	res, err := c.ToggleLike(context.Background(), "u1", "p3")
	require.NoError(t, err)
	assert.True(t, res.Reverted)
	assert.Equal(t, seeded, res.State)
	assert.Equal(t, seeded, c.Board().Get("p3"))
}

func TestToggle_EnqueueFailureRestoresExactCountAtZero(t *testing.T) {
	c, q, _ := setup(false)
	seeded := ItemState{PostID: "p3", Bookmarked: true, Bookmarks: 0, Likes: 4}
	c.Board().Seed(seeded)
	q.err = errors.New("disk full")

	res, err := c.ToggleBookmark(context.Background(), "u1", "p3")
	assert.Error(t, err)
	assert.Equal(t, seeded, res.State)
	assert.Equal(t, seeded, c.Board().Get("p3"))
}

func TestToggle_RevertLeavesOtherKindsAlone(t *testing.T) {
	c, _, d := setup(true)
	d.Fail("bookmark:p1")

	_, err := c.ToggleLike(context.Background(), "u1", "p1")
	require.NoError(t, err)
	res, err := c.ToggleBookmark(context.Background(), "u1", "p1")
	require.NoError(t, err)

	assert.True(t, res.Reverted)
	assert.True(t, res.State.Liked)
	assert.Equal(t, 11, res.State.Likes)
	assert.False(t, res.State.Bookmarked)
	assert.Equal(t, 2, res.State.Bookmarks)
}

func TestToggle_CoalescingRejectsSecondGesture(t *testing.T) {
	board := NewBoard()
	board.Seed(ItemState{PostID: "p1", Likes: 1})
	started := make(chan struct{})
	release := make(chan struct{})
	d := action.DispatcherFunc(func(context.Context, action.Intent) (action.Outcome, error) {
		close(started)
		<-release
		return action.Outcome{OK: true, Status: 200}, nil
	})
	c := NewCoordinator(board, &recordingQueue{}, d, nil, WithCoalescing(true))
	ctx := context.Background()

	done := make(chan Result)
	go func() {
		res, _ := c.ToggleLike(ctx, "u1", "p1")
		done <- res
	}()
	<-started

	_, err := c.ToggleLike(ctx, "u1", "p1")
	assert.ErrorIs(t, err, ErrInFlight)

	close(release)
	res := <-done
	assert.True(t, res.State.Liked)
	assert.Equal(t, 2, res.State.Likes)
}

func TestCreatePost(t *testing.T) {
	ctx := context.Background()
	body := json.RawMessage(`{"caption":"hello"}`)

	online, _, _ := setup(true)
	created, err := online.CreatePost(ctx, "u1", body)
	require.NoError(t, err)
	assert.Equal(t, Created{ID: "srv_1"}, created)

	offline, q, _ := setup(false)
	created, err = offline.CreatePost(ctx, "u1", body)
	require.NoError(t, err)
	assert.True(t, created.Queued)
	assert.Equal(t, "post_1", created.ID)
	assert.JSONEq(t, string(body), string(q.entries[0].Payload))
}

func TestCreatePost_ServerRejects(t *testing.T) {
	c, _, d := setup(true)
	d.Fail("post")

	_, err := c.CreatePost(context.Background(), "u1", json.RawMessage(`{"caption":"x"}`))
	assert.Error(t, err)
}

func TestAddComment(t *testing.T) {
	c, _, d := setup(true)

	created, err := c.AddComment(context.Background(), "u1", "p1", "nice")
	require.NoError(t, err)
	assert.Equal(t, "srv_1", created.ID)
	assert.Equal(t, []string{"comment:p1"}, d.Keys())

	_, err = c.AddComment(context.Background(), "u1", "p1", "")
	assert.ErrorIs(t, err, action.ErrEmptyPayload)
}
