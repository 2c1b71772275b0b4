package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/shelf/internal/dao"
	"github.com/roach88/shelf/internal/ir"
	"github.com/roach88/shelf/internal/query"
	"github.com/roach88/shelf/internal/schema"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
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
			fmt.Fprintf(&buf, "  [%d] %s", event.Seq, event.Op)
			if event.ID != "" {
				fmt.Fprintf(&buf, " %s", event.ID)
			}
			fmt.Fprintf(&buf, " -> %s\n", event.Outcome)
		}
	}

	return buf.String()
}

// assertTraceContains checks that some step ran the given op, optionally
// on the given id and with the given outcome.
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if event.Op != assertion.Op {
			continue
		}
		if assertion.ID != "" && string(event.ID) != assertion.ID {
			continue
		}
		if assertion.Outcome != "" && event.Outcome != assertion.Outcome {
			continue
		}
		return nil
	}

	want := assertion.Op
	if assertion.ID != "" {
		want += " " + assertion.ID
	}
	if assertion.Outcome != "" {
		want += " -> " + assertion.Outcome
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: want,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that ops first appear in the given order.
// Ops don't need to be consecutive (intervening steps are allowed).
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	positions := make(map[string]int)
	for i, event := range trace {
		if _, seen := positions[event.Op]; !seen {
			positions[event.Op] = i + 1 // 1-indexed for readability
		}
	}

	for _, op := range assertion.Ops {
		if positions[op] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all ops present: %v", assertion.Ops),
				Actual:   fmt.Sprintf("missing op: %s", op),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Ops); i++ {
		prev, curr := assertion.Ops[i-1], assertion.Ops[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("ops in order: %v", assertion.Ops),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks the op appears exactly Count times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Op == assertion.Op {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Op),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState reads a record back from the store and checks its
// fields with subset semantics, or checks that it is gone.
func assertFinalState(ctx context.Context, st dao.Dao, assertion Assertion) error {
	id := ir.ID(assertion.ID)
	rec, err := st.Fetch(ctx, id, nil)

	if assertion.Absent {
		switch {
		case ir.IsNotFound(err):
			return nil
		case err != nil:
			return fmt.Errorf("final_state: fetch %s: %w", id, err)
		}
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("record %s to be absent", id),
			Actual:   fmt.Sprintf("found %s", mustCanonical(rec)),
		}
	}

	if ir.IsNotFound(err) {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("record %s", id),
			Actual:   "record not found",
		}
	}
	if err != nil {
		return fmt.Errorf("final_state: fetch %s: %w", id, err)
	}

	if msg := matchSubset(st.Schema(), rec, assertion.Expect); msg != "" {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("record %s to match %v", id, assertion.Expect),
			Actual:   msg,
		}
	}
	return nil
}

// assertFinalCount counts the records matching Where (all when empty).
func assertFinalCount(ctx context.Context, st dao.Dao, assertion Assertion) error {
	var where query.Predicate
	if strings.TrimSpace(assertion.Where) != "" {
		p, err := query.Parse(assertion.Where, st.Schema())
		if err != nil {
			return fmt.Errorf("final_count: %w", err)
		}
		where = p
	}

	n, err := st.Count(ctx, where)
	if err != nil {
		return fmt.Errorf("final_count: %w", err)
	}
	if n != assertion.Count {
		desc := "all records"
		if where != nil {
			desc = query.String(where)
		}
		return &AssertionError{
			Type:     AssertFinalCount,
			Expected: fmt.Sprintf("%d records matching %s", assertion.Count, desc),
			Actual:   fmt.Sprintf("%d records", n),
		}
	}
	return nil
}

// matchSubset checks that rec holds every field in want. Expected values
// are typed through the schema, so "2024-01-02T00:00:00Z" matches a
// timestamp field. Returns "" on a match.
func matchSubset(s *schema.Schema, rec ir.Object, want map[string]any) string {
	keys := make([]string, 0, len(want))
	for k := range want {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, key := range keys {
		expected, err := s.DecodeValue(key, want[key])
		if err != nil {
			return fmt.Sprintf("field %q: %v", key, err)
		}
		actual := rec.Get(key)
		if !ir.Equal(expected, actual) {
			return fmt.Sprintf("field %q = %s, expected %s",
				key, query.FormatLiteral(actual), query.FormatLiteral(expected))
		}
	}
	return ""
}

func mustCanonical(rec ir.Object) string {
	data, err := ir.MarshalCanonical(rec)
	if err != nil {
		return fmt.Sprintf("%v", rec)
	}
	return string(data)
}

// AssertionContext provides store access for final_* assertions.
type AssertionContext struct {
	Store dao.Dao
	Ctx   context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState, AssertFinalCount:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: %s requires a store", i, assertion.Type)
			} else if assertion.Type == AssertFinalState {
				err = assertFinalState(actx.Ctx, actx.Store, assertion)
			} else {
				err = assertFinalCount(actx.Ctx, actx.Store, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
