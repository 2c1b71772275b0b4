package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScenario writes content as a scenario file next to a schema file.
func writeScenario(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	schemaSrc, err := os.ReadFile(filepath.Join("testdata", "schema", "library.cue"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "library.cue"), schemaSrc, 0644))

	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, `
name: test_scenario
description: "Test scenario for validation"
schema: library.cue
collection: Book
policy:
  strict_fetch_many: true
setup:
  - {_id: b1, title: Dune, year: 1965}
steps:
  - op: fetch
    id: b1
    expect:
      record: {title: Dune}
assertions:
  - type: final_count
    count: 1
`)

	sc, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", sc.Name)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "library.cue"), sc.Schema, "schema resolves against the scenario directory")
	assert.True(t, sc.Policy.StrictFetchMany)
	assert.False(t, sc.Policy.IgnoreMissingDelete)
	require.Len(t, sc.Setup, 1)
	assert.Equal(t, "Dune", sc.Setup[0]["title"])
	require.Len(t, sc.Steps, 1)
	assert.Equal(t, "b1", sc.Steps[0].ID)
	require.NotNil(t, sc.Steps[0].Expect)
	assert.Equal(t, "Dune", sc.Steps[0].Expect.Record["title"])
	require.Len(t, sc.Assertions, 1)
	assert.Equal(t, AssertFinalCount, sc.Assertions[0].Type)

	s, err := sc.LoadSchema()
	require.NoError(t, err)
	assert.Equal(t, "Book", s.Name())
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_RejectsUnknownFields(t *testing.T) {
	path := writeScenario(t, `
name: typo
description: "has a typo"
schema: library.cue
collection: Book
steps:
  - op: fetch_all
assertion:
  - type: final_count
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_Invalid(t *testing.T) {
	header := `
name: bad
description: "invalid"
schema: library.cue
collection: Book
`
	tests := []struct {
		name string
		body string
		want string
	}{
		{"no steps", "steps: []\n", "steps list is required"},
		{"unknown op", "steps:\n  - op: upsert\n", `unknown op "upsert"`},
		{"create without record", "steps:\n  - op: create\n", "record is required"},
		{"create_many without records", "steps:\n  - op: create_many\n", "records list is required"},
		{"fetch without id", "steps:\n  - op: fetch\n", "id is required for fetch"},
		{"update without changes", "steps:\n  - op: update\n    id: b1\n", "id and changes are required"},
		{"update_many without batch", "steps:\n  - op: update_many\n", "batch is required"},
		{"delete_many without ids", "steps:\n  - op: delete_many\n", "ids is required for delete_many"},
		{"assertion without type", "steps:\n  - op: fetch_all\nassertions:\n  - op: create\n", "type is required"},
		{"unknown assertion", "steps:\n  - op: fetch_all\nassertions:\n  - type: eventually\n", "unknown assertion type"},
		{"trace_order without ops", "steps:\n  - op: fetch_all\nassertions:\n  - type: trace_order\n", "ops list is required"},
		{"final_state without expect", "steps:\n  - op: fetch_all\nassertions:\n  - type: final_state\n    id: b1\n", "expect or absent is required"},
		{"negative count", "steps:\n  - op: fetch_all\nassertions:\n  - type: final_count\n    count: -1\n", "count must be non-negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, header+tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_RequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"name", "description: d\nschema: library.cue\ncollection: Book\nsteps: [{op: fetch_all}]\n", "name is required"},
		{"description", "name: n\nschema: library.cue\ncollection: Book\nsteps: [{op: fetch_all}]\n", "description is required"},
		{"schema", "name: n\ndescription: d\ncollection: Book\nsteps: [{op: fetch_all}]\n", "schema is required"},
		{"collection", "name: n\ndescription: d\nschema: library.cue\nsteps: [{op: fetch_all}]\n", "collection is required"},
		{"schema file", "name: n\ndescription: d\nschema: missing.cue\ncollection: Book\nsteps: [{op: fetch_all}]\n", "schema file not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_Testdata(t *testing.T) {
	paths, err := FindScenarios(filepath.Join("testdata", "scenarios"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			sc, err := LoadScenario(path)
			require.NoError(t, err)
			_, err = sc.LoadSchema()
			require.NoError(t, err)
		})
	}
}
