package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario_ValidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")

	content := `
name: test_scenario
description: "Test scenario for validation"
user: u9
online: false
seed:
  - post: p1
    likes: 10
steps:
  - toggle: { kind: like, post: p1 }
  - connectivity: online
assertions:
  - type: pending
    count: 0
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, "u9", scenario.User)
	assert.False(t, scenario.Online)
	require.Len(t, scenario.Seed, 1)
	assert.Equal(t, 10, scenario.Seed[0].Likes)
	require.Len(t, scenario.Steps, 2)
	require.NotNil(t, scenario.Steps[0].Toggle)
	assert.Equal(t, "like", scenario.Steps[0].Toggle.Kind)
	assert.Equal(t, "online", scenario.Steps[1].Connectivity)
	assert.Len(t, scenario.Assertions, 1)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "unknown field",
			content: `
name: x
description: d
flow: []
steps: [{ drain: true }]
assertions: [{ type: pending }]
`,
			wantErr: "field flow not found",
		},
		{
			name: "missing name",
			content: `
description: d
steps: [{ drain: true }]
assertions: [{ type: pending }]
`,
			wantErr: "name is required",
		},
		{
			name: "no steps",
			content: `
name: x
description: d
assertions: [{ type: pending }]
`,
			wantErr: "steps list is required",
		},
		{
			name: "two actions in one step",
			content: `
name: x
description: d
steps: [{ drain: true, recover: true }]
assertions: [{ type: pending }]
`,
			wantErr: "exactly one action is required, got 2",
		},
		{
			name: "post cannot be toggled",
			content: `
name: x
description: d
steps: [{ toggle: { kind: post, post: p1 } }]
assertions: [{ type: pending }]
`,
			wantErr: "post cannot be toggled",
		},
		{
			name: "bad connectivity",
			content: `
name: x
description: d
steps: [{ connectivity: flaky }]
assertions: [{ type: pending }]
`,
			wantErr: "connectivity must be online or offline",
		},
		{
			name: "bad advance",
			content: `
name: x
description: d
steps: [{ advance: soon }]
assertions: [{ type: pending }]
`,
			wantErr: "advance",
		},
		{
			name: "unknown assertion",
			content: `
name: x
description: d
steps: [{ drain: true }]
assertions: [{ type: final_state }]
`,
			wantErr: `unknown assertion type "final_state"`,
		},
		{
			name: "bad partition",
			content: `
name: x
description: d
steps: [{ drain: true }]
assertions: [{ type: cache_entries, partition: thumbnails }]
`,
			wantErr: "thumbnails",
		},
		{
			name: "unknown profile",
			content: `
name: x
description: d
profile: watch
steps: [{ drain: true }]
assertions: [{ type: pending }]
`,
			wantErr: `unknown profile "watch"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestScenarioFiles_Parse(t *testing.T) {
	files, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, path := range files {
		t.Run(filepath.Base(path), func(t *testing.T) {
			_, err := LoadScenario(path)
			require.NoError(t, err)
		})
	}
}
