package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValuesEqual(t *testing.T) {
	assert.True(t, valuesEqual(11, 11))
	assert.True(t, valuesEqual(11, int64(11)))
	assert.True(t, valuesEqual(float64(2), 2))
	assert.False(t, valuesEqual(2, "2"))
	assert.True(t, valuesEqual("cache", "cache"))
	assert.True(t, valuesEqual(true, true))
	assert.False(t, valuesEqual(true, false))
	assert.True(t, valuesEqual(
		map[string]any{"failed": 1},
		map[string]any{"failed": 1, "succeeded": 3},
	))
	assert.False(t, valuesEqual(map[string]any{"failed": 1}, 1))
}

func TestAssertTraceContains_SubsetMatch(t *testing.T) {
	result := NewResult()
	result.AddEvent("fetch", map[string]any{"url": "/a"}, map[string]any{"status": 200, "source": "network"})
	result.AddEvent("fetch", map[string]any{"url": "/a"}, map[string]any{"status": 200, "source": "cache"})

	assert.NoError(t, assertTraceContains(result, Assertion{Type: AssertTraceContains, Op: "fetch", Expect: map[string]any{"source": "cache"}}))
	assert.Error(t, assertTraceContains(result, Assertion{Type: AssertTraceContains, Op: "fetch", Expect: map[string]any{"source": "fallback"}}))
	assert.Error(t, assertTraceContains(result, Assertion{Type: AssertTraceContains, Op: "drain"}))
}

func TestEvaluateAssertions(t *testing.T) {
	result := NewResult()
	result.Pending = []string{"like_1_a"}
	result.Dispatched = []string{"like:p1", "like:p1", "view:p2"}
	result.Signals = []string{"SYNC_START", "SYNC_COMPLETE"}
	result.Partitions = map[string]int{"api": 2}

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertPending, Count: 1},
		{Type: AssertDispatched, Actions: []string{"like:p1", "like:p1", "view:p2"}},
		{Type: AssertDispatchedCount, Action: "like:p1", Count: 2},
		{Type: AssertSignals, Signals: []string{"SYNC_START", "SYNC_COMPLETE"}},
		{Type: AssertCacheEntries, Partition: "api", Count: 2},
		{Type: AssertCacheEntries, Partition: "media", Count: 0},
	})
	assert.Empty(t, errs)

	errs = EvaluateAssertions(result, []Assertion{
		{Type: AssertDispatchedCount, Action: "view:p2", Count: 2},
		{Type: AssertItem, Post: "p9", Expect: map[string]any{"liked": true}},
	})
	assert.Len(t, errs, 2)
	assert.Contains(t, errs[0], "assertion 0")
	assert.Contains(t, errs[1], "post p9 to be seeded")
}

func TestAssertionError_IncludesTrace(t *testing.T) {
	err := &AssertionError{
		Type:     AssertPending,
		Expected: "0 queued actions",
		Actual:   "1 queued",
		Trace:    []TraceEvent{{Seq: 1, Op: "start"}},
	}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: pending")
	assert.Contains(t, msg, "[1] start")
}
