package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/shelf/internal/ir"
)

// TraceSnapshot captures the trace of one scenario run.
// The backend is deliberately left out: every backend must produce the
// same snapshot, so they all share one golden file.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
}

// Value converts the snapshot for canonical JSON serialization.
func (s *TraceSnapshot) Value() ir.Object {
	trace := make(ir.List, len(s.Trace))
	for i, event := range s.Trace {
		trace[i] = event.Value()
	}
	return ir.Object{
		"scenario_name": ir.String(s.ScenarioName),
		"trace":         trace,
	}
}

// Snapshot renders a result's trace as canonical JSON.
func Snapshot(scenarioName string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{ScenarioName: scenarioName, Trace: result.Trace}
	return ir.MarshalCanonical(snapshot.Value())
}

// RunWithGolden executes a scenario on every backend and compares each
// trace against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns an error if a run could not execute. Expectation failures and
// golden mismatches fail t.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	results, err := RunAll(context.Background(), scenario)
	if err != nil {
		return err
	}
	for _, result := range results {
		if !result.Pass {
			t.Errorf("%s on %s failed:\n%v", scenario.Name, result.Backend, result.Errors)
		}
		if err := AssertGolden(t, scenario.Name, result); err != nil {
			return err
		}
	}
	return nil
}

// AssertGolden compares an existing result's trace against the golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
