package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runFile(t *testing.T, name string) *Result {
	t.Helper()
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	result, err := Run(scenario)
	require.NoError(t, err)
	return result
}

func TestRun_Scenarios(t *testing.T) {
	names := []string{
		"like_offline_then_reconnect",
		"partial_failure_retry",
		"online_failure_reverts",
		"view_dwell",
		"cache_offline_fallback",
		"create_offline",
	}
	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			result := runFile(t, name)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
		})
	}
}

func TestRun_TraceHasOneEventPerStep(t *testing.T) {
	result := runFile(t, "partial_failure_retry")

	// start + five steps
	require.Len(t, result.Trace, 6)
	for i, event := range result.Trace {
		assert.Equal(t, int64(i+1), event.Seq)
	}
	assert.Equal(t, "start", result.Trace[0].Op)
	assert.Equal(t, "drain", result.Trace[5].Op)
	assert.Equal(t, 1, result.Trace[5].Result["succeeded"])
}

func TestRun_ActionIDsAreDeterministic(t *testing.T) {
	first := runFile(t, "like_offline_then_reconnect")
	second := runFile(t, "like_offline_then_reconnect")

	assert.Equal(t, "like_1700000000000_000000001", first.Trace[1].Result["action_id"])
	assert.Equal(t, first.Trace, second.Trace)
}

func TestRun_FailingAssertionReported(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: wrong_expectation
description: "Expects a queued like that was sent directly"
online: true
seed:
  - post: p1
    likes: 1
steps:
  - toggle: { kind: like, post: p1 }
assertions:
  - type: pending
    count: 1
  - type: item
    post: p1
    expect: { likes: 5 }
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "Assertion failed: pending")
	assert.Contains(t, result.Errors[1], "p1.likes = 5")
}

func TestRun_FollowSharedByAuthor(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: follow_author
description: "Following from one post shows on every post by that author"
user: u9
online: false
seed:
  - post: p1
    author: alice
  - post: p2
    author: alice
steps:
  - toggle: { kind: follow, post: p1 }
  - connectivity: online
assertions:
  - type: item
    post: p2
    expect: { following: true }
  - type: dispatched
    actions: ["follow:alice"]
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_DesktopProfileKeepsEverything(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: desktop_cache
description: "Desktop partitions are not bounded"
profile: desktop
online: true
server:
  routes:
    /api/a: { status: 200, body: '{}' }
    /api/b: { status: 200, body: '{}' }
steps:
  - fetch: { url: /api/a }
  - fetch: { url: /api/b }
assertions:
  - type: cache_entries
    partition: api
    count: 2
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}
