package testutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/feedsync/internal/action"
)

func TestFakeClock_FiresInDueOrder(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	var fired []string

	clock.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })
	clock.AfterFunc(time.Second, func() { fired = append(fired, "a") })
	stop := clock.AfterFunc(1500*time.Millisecond, func() { fired = append(fired, "stopped") })
	assert.True(t, stop())
	assert.False(t, stop(), "second stop reports nothing pending")

	clock.Advance(1999 * time.Millisecond)
	assert.Equal(t, []string{"a"}, fired)
	assert.Equal(t, 1, clock.Pending())

	clock.Advance(time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, fired)
	assert.Zero(t, clock.Pending())
	assert.Equal(t, time.Unix(2, 0), clock.Now())
}

func TestFakeDispatcher_Script(t *testing.T) {
	d := NewFakeDispatcher()
	ctx := context.Background()
	like, err := action.EncodeTarget(action.Target{PostID: "p1"})
	require.NoError(t, err)
	follow, err := action.EncodeTarget(action.Target{Username: "u1"})
	require.NoError(t, err)

	d.Fail("like:p1")
	d.FailWith("follow:u1", errors.New("reset"))

	out, err := d.Dispatch(ctx, action.Intent{Kind: action.KindLike, Payload: like})
	require.NoError(t, err)
	assert.False(t, out.OK)

	_, err = d.Dispatch(ctx, action.Intent{Kind: action.KindFollow, Payload: follow})
	assert.Error(t, err)

	d.Recover()
	out, err = d.Dispatch(ctx, action.Intent{Kind: action.KindLike, Payload: like})
	require.NoError(t, err)
	assert.True(t, out.OK)

	assert.Equal(t, []string{"like:p1", "follow:u1", "like:p1"}, d.Keys())
}
