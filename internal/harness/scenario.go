package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/shelf/internal/compiler"
	"github.com/roach88/shelf/internal/schema"
)

// Scenario is a sequence of store operations with expected outcomes.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is the .cue file or directory declaring Collection.
	// Relative paths are resolved against the scenario file's directory.
	Schema string `yaml:"schema"`

	// Collection names the collection under test.
	Collection string `yaml:"collection"`

	// Policy selects the fetch-many and missing-delete behaviour.
	Policy PolicySpec `yaml:"policy,omitempty"`

	// Setup records are created before the first step and must succeed.
	Setup []map[string]any `yaml:"setup,omitempty"`

	// Steps run in order; each may carry an expect clause.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and store contents.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// PolicySpec mirrors dao.Policy.
type PolicySpec struct {
	StrictFetchMany     bool `yaml:"strict_fetch_many"`
	IgnoreMissingDelete bool `yaml:"ignore_missing_delete"`
}

// Step is one store operation.
type Step struct {
	// Op is the operation name (see package docs).
	Op string `yaml:"op"`

	ID  string   `yaml:"id,omitempty"`
	IDs []string `yaml:"ids,omitempty"`

	// Record is the record to create; Records the batch to create.
	Record  map[string]any   `yaml:"record,omitempty"`
	Records []map[string]any `yaml:"records,omitempty"`

	// Changes is the update payload; Batch maps ids to payloads for
	// update_many.
	Changes map[string]any            `yaml:"changes,omitempty"`
	Batch   map[string]map[string]any `yaml:"batch,omitempty"`

	// Where is a predicate in query syntax (count, query).
	Where string `yaml:"where,omitempty"`
	// Order is a sort specification such as "-year,title".
	Order  string   `yaml:"order,omitempty"`
	Fields []string `yaml:"fields,omitempty"`
	Limit  int      `yaml:"limit,omitempty"`
	Offset int      `yaml:"offset,omitempty"`
	First  bool     `yaml:"first,omitempty"`

	// Expect specifies the expected outcome. Nil means "must succeed".
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect lists what a step must produce. Only the given parts are checked.
type Expect struct {
	// Error is the expected store error code, e.g. NOT_FOUND.
	Error string `yaml:"error,omitempty"`

	// IDs are the expected result ids, in order.
	IDs []string `yaml:"ids,omitempty"`

	// Failed are the ids of batch members expected to fail.
	Failed []string `yaml:"failed,omitempty"`

	Count  *int  `yaml:"count,omitempty"`
	Exists *bool `yaml:"exists,omitempty"`

	// Record is a subset of the returned record.
	Record map[string]any `yaml:"record,omitempty"`
}

// Assertion validates the trace or the final store contents.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Op is the operation name (trace_contains, trace_count).
	Op string `yaml:"op,omitempty"`

	// Ops is the expected operation order (trace_order).
	Ops []string `yaml:"ops,omitempty"`

	// ID names a record (trace_contains, final_state).
	ID string `yaml:"id,omitempty"`

	// Outcome is the expected outcome of the matched step (trace_contains).
	Outcome string `yaml:"outcome,omitempty"`

	// Expect holds expected field values (final_state, subset match).
	Expect map[string]any `yaml:"expect,omitempty"`

	// Absent asserts the record does not exist (final_state).
	Absent bool `yaml:"absent,omitempty"`

	// Where is a predicate in query syntax (final_count).
	Where string `yaml:"where,omitempty"`

	// Count is the expected number (trace_count, final_count).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertFinalCount    = "final_count"
)

var knownOps = map[string]bool{
	"create": true, "create_many": true,
	"fetch": true, "fetch_many": true, "fetch_all": true,
	"exists": true, "count": true, "query": true,
	"update": true, "update_many": true,
	"delete": true, "delete_many": true, "delete_all": true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, filepath.Dir(path))
}

// ParseScenario parses scenario YAML, resolving the schema path against
// baseDir.
func ParseScenario(data []byte, baseDir string) (*Scenario, error) {
	// Reject unknown fields (catches typos like "assertion:" vs "assertions:")
	var sc Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&sc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if sc.Schema != "" && !filepath.IsAbs(sc.Schema) && baseDir != "" {
		sc.Schema = filepath.Join(baseDir, sc.Schema)
	}

	if err := validateScenario(&sc); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &sc, nil
}

// LoadSchema compiles the scenario's collection.
func (sc *Scenario) LoadSchema() (*schema.Schema, error) {
	return compiler.LoadCollection(sc.Schema, sc.Collection)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Schema == "" {
		return fmt.Errorf("schema is required")
	}
	if s.Collection == "" {
		return fmt.Errorf("collection is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if _, err := os.Stat(s.Schema); os.IsNotExist(err) {
		return fmt.Errorf("schema file not found: %s", s.Schema)
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, st *Step) error {
	if !knownOps[st.Op] {
		return fmt.Errorf("steps[%d]: unknown op %q", i, st.Op)
	}
	switch st.Op {
	case "create":
		if st.Record == nil {
			return fmt.Errorf("steps[%d]: record is required for create", i)
		}
	case "create_many":
		if len(st.Records) == 0 {
			return fmt.Errorf("steps[%d]: records list is required for create_many", i)
		}
	case "fetch", "exists", "delete":
		if st.ID == "" {
			return fmt.Errorf("steps[%d]: id is required for %s", i, st.Op)
		}
	case "update":
		if st.ID == "" || st.Changes == nil {
			return fmt.Errorf("steps[%d]: id and changes are required for update", i)
		}
	case "update_many":
		if len(st.Batch) == 0 {
			return fmt.Errorf("steps[%d]: batch is required for update_many", i)
		}
	case "fetch_many", "delete_many":
		if st.IDs == nil {
			return fmt.Errorf("steps[%d]: ids is required for %s (use [] for none)", i, st.Op)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTraceContains:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Ops) == 0 {
			return fmt.Errorf("assertions[%d]: ops list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.ID == "" {
			return fmt.Errorf("assertions[%d]: id is required for final_state", index)
		}
		if len(a.Expect) == 0 && !a.Absent {
			return fmt.Errorf("assertions[%d]: expect or absent is required for final_state", index)
		}
	case AssertFinalCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for final_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
