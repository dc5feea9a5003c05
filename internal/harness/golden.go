package harness

import (
	"testing"

	"github.com/bytedance/sonic"
	"github.com/sebdah/goldie/v2"
)

// canonical sorts map keys so traces serialise identically across runs.
var canonical = sonic.Config{SortMapKeys: true}.Froze()

// Snapshot is the golden form of a scenario run.
type Snapshot struct {
	Scenario   string       `json:"scenario"`
	Trace      []TraceEvent `json:"trace"`
	Pending    []string     `json:"pending"`
	Dispatched []string     `json:"dispatched"`
	Signals    []string     `json:"signals"`
}

// MarshalSnapshot renders result as indented JSON with sorted map keys.
func MarshalSnapshot(name string, result *Result) ([]byte, error) {
	return canonical.MarshalIndent(Snapshot{
		Scenario:   name,
		Trace:      result.Trace,
		Pending:    result.Pending,
		Dispatched: result.Dispatched,
		Signals:    result.Signals,
	}, "", "  ")
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := MarshalSnapshot(scenarioName, result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
