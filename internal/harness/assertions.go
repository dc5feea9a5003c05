package harness

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes the trace to help debug the failure.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %v -> %v\n", event.Seq, event.Op, event.Args, event.Result)
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion against result and returns the
// failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertPending:
		return assertPending(result, a)
	case AssertDispatched:
		return assertDispatched(result, a)
	case AssertDispatchedCount:
		return assertDispatchedCount(result, a)
	case AssertSignals:
		return assertSignals(result, a)
	case AssertItem:
		return assertItem(result, a)
	case AssertCacheEntries:
		return assertCacheEntries(result, a)
	case AssertTraceContains:
		return assertTraceContains(result, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertPending(result *Result, a Assertion) error {
	if len(result.Pending) != a.Count {
		return &AssertionError{
			Type:     AssertPending,
			Expected: fmt.Sprintf("%d queued actions", a.Count),
			Actual:   fmt.Sprintf("%d queued: %v", len(result.Pending), result.Pending),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertDispatched(result *Result, a Assertion) error {
	if !equalStrings(result.Dispatched, a.Actions) {
		return &AssertionError{
			Type:     AssertDispatched,
			Expected: fmt.Sprintf("%v", a.Actions),
			Actual:   fmt.Sprintf("%v", result.Dispatched),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertDispatchedCount(result *Result, a Assertion) error {
	count := 0
	for _, key := range result.Dispatched {
		if key == a.Action {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertDispatchedCount,
			Expected: fmt.Sprintf("%d dispatches of %s", a.Count, a.Action),
			Actual:   fmt.Sprintf("%d dispatches", count),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertSignals(result *Result, a Assertion) error {
	if !equalStrings(result.Signals, a.Signals) {
		return &AssertionError{
			Type:     AssertSignals,
			Expected: fmt.Sprintf("%v", a.Signals),
			Actual:   fmt.Sprintf("%v", result.Signals),
		}
	}
	return nil
}

func assertItem(result *Result, a Assertion) error {
	item, ok := result.Items[a.Post]
	if !ok {
		return &AssertionError{
			Type:     AssertItem,
			Expected: fmt.Sprintf("post %s to be seeded", a.Post),
			Actual:   "not on the board",
		}
	}
	if field, ok := mismatch(item, a.Expect); !ok {
		return &AssertionError{
			Type:     AssertItem,
			Expected: fmt.Sprintf("%s.%s = %v", a.Post, field, a.Expect[field]),
			Actual:   fmt.Sprintf("%s.%s = %v", a.Post, field, item[field]),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertCacheEntries(result *Result, a Assertion) error {
	got := result.Partitions[a.Partition]
	if got != a.Count {
		return &AssertionError{
			Type:     AssertCacheEntries,
			Expected: fmt.Sprintf("%d entries in %s", a.Count, a.Partition),
			Actual:   fmt.Sprintf("%d entries", got),
		}
	}
	return nil
}

// assertTraceContains checks that some event with the assertion's op has a
// result matching Expect (subset match).
func assertTraceContains(result *Result, a Assertion) error {
	for _, event := range result.Trace {
		if event.Op != a.Op {
			continue
		}
		if _, ok := mismatch(event.Result, a.Expect); ok {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("%s with result %v", a.Op, a.Expect),
		Actual:   "not found in trace",
		Trace:    result.Trace,
	}
}

// mismatch reports the first expected key (in sorted order) whose value
// differs in actual. Extra keys in actual are ignored.
func mismatch(actual, expected map[string]any) (string, bool) {
	keys := make([]string, 0, len(expected))
	for k := range expected {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		got, ok := actual[k]
		if !ok || !valuesEqual(expected[k], got) {
			return k, false
		}
	}
	return "", true
}

// valuesEqual compares a YAML-decoded expectation with a captured value.
// Numbers compare by value regardless of their Go type; nested maps use
// subset semantics.
func valuesEqual(expected, actual any) bool {
	if en, ok := toFloat(expected); ok {
		an, ok := toFloat(actual)
		return ok && en == an
	}
	if em, ok := expected.(map[string]any); ok {
		am, ok := actual.(map[string]any)
		if !ok {
			return false
		}
		_, match := mismatch(am, em)
		return match
	}
	return reflect.DeepEqual(expected, actual)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
