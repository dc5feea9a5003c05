package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden_LikeOfflineThenReconnect(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "like_offline_then_reconnect.yaml"))
	require.NoError(t, err)

	// Regenerate with:
	//   go test ./internal/harness -run TestRunWithGolden -update
	result, err := RunWithGolden(t, scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestMarshalSnapshot_SortsMapKeys(t *testing.T) {
	result := NewResult()
	result.AddEvent("toggle", map[string]any{"post": "p1", "kind": "like"}, nil)

	data, err := MarshalSnapshot("sorted", result)
	require.NoError(t, err)

	s := string(data)
	assert.Less(t, indexOf(s, `"kind"`), indexOf(s, `"post"`))
	assert.NotContains(t, s, `"result"`)
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
