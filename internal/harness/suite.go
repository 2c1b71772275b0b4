package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

// SuiteResult summarizes a directory of scenarios.
type SuiteResult struct {
	TotalScenarios int            `json:"total_scenarios"`
	Passed         int            `json:"passed"`
	Failed         int            `json:"failed"`
	Failures       []SuiteFailure `json:"failures,omitempty"`
}

// SuiteFailure is one scenario that failed on one backend.
type SuiteFailure struct {
	ScenarioPath string `json:"scenario_path"`
	Backend      string `json:"backend,omitempty"`
	Error        string `json:"error"`
}

// FindScenarios returns the .yaml and .yml files under dir, sorted.
func FindScenarios(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch filepath.Ext(path) {
		case ".yaml", ".yml":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(paths)
	return paths, nil
}

// RunSuite loads and runs every scenario under dir on the given targets
// (all of Targets when empty). A scenario passes when it passes on every
// target and all targets agree on the trace.
func RunSuite(ctx context.Context, dir string, targets []Target) (*SuiteResult, error) {
	paths, err := FindScenarios(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenarios found in %s", dir)
	}

	if len(targets) == 0 {
		targets = Targets
	}

	result := &SuiteResult{}
	for _, path := range paths {
		result.TotalScenarios++

		if err := ctx.Err(); err != nil {
			return result, err
		}

		sc, err := LoadScenario(path)
		if err != nil {
			result.fail(path, "", fmt.Sprintf("failed to load scenario: %v", err))
			continue
		}

		runs, err := RunTargets(ctx, sc, targets)
		if err != nil {
			result.fail(path, "", fmt.Sprintf("scenario execution failed: %v", err))
			continue
		}

		passed := true
		for _, run := range runs {
			if !run.Pass {
				passed = false
				result.fail(path, run.Backend, fmt.Sprintf("scenario assertions failed: %v", run.Errors))
			}
		}
		if passed {
			result.Passed++
		} else {
			result.Failed++
		}
	}
	return result, nil
}

func (r *SuiteResult) fail(path, backend, msg string) {
	if backend == "" {
		r.Failed++
	}
	r.Failures = append(r.Failures, SuiteFailure{ScenarioPath: path, Backend: backend, Error: msg})
}
