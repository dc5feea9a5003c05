package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestKV_PutGetDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, found, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Put(ctx, "a", []byte("1")))
	require.NoError(t, s.Put(ctx, "a", []byte("2")))

	v, found, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("2"), v)

	require.NoError(t, s.Delete(ctx, "a"))
	require.NoError(t, s.Delete(ctx, "a"), "deleting a missing key is not an error")

	_, found, err = s.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestKV_KeysByPrefix(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, k := range []string{"feed:u1:home", "feed:u1:local", "feed:u2:home", "cache_/api/x"} {
		require.NoError(t, s.Put(ctx, k, []byte("[]")))
	}

	keys, err := s.Keys(ctx, "feed:u1:")
	require.NoError(t, err)
	assert.Equal(t, []string{"feed:u1:home", "feed:u1:local"}, keys)

	keys, err = s.Keys(ctx, "nothing")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestKV_JSONRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	type record struct {
		ID    string `json:"id"`
		Count int    `json:"count"`
	}

	require.NoError(t, s.PutJSON(ctx, "offline-actions", []record{{ID: "a", Count: 1}, {ID: "b", Count: 2}}))

	var got []record
	found, err := s.GetJSON(ctx, "offline-actions", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []record{{ID: "a", Count: 1}, {ID: "b", Count: 2}}, got)
}

func TestKV_GetJSONCorrupt(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "bad", []byte("{not json")))

	var dst map[string]any
	found, err := s.GetJSON(ctx, "bad", &dst)
	assert.True(t, found)
	assert.Error(t, err)
}
