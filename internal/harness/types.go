package harness

import (
	"github.com/roach88/shelf/internal/ir"
)

// TraceEvent records one executed step.
type TraceEvent struct {
	Seq     int64  `json:"seq"`
	Op      string `json:"op"`
	ID      ir.ID  `json:"id,omitempty"`
	Outcome string `json:"outcome"` // "ok" or a store error code

	IDs    []ir.ID   `json:"ids,omitempty"`
	Failed []ir.ID   `json:"failed,omitempty"`
	Count  *int      `json:"count,omitempty"`
	Exists *bool     `json:"exists,omitempty"`
	Record ir.Object `json:"record,omitempty"`
}

// OK reports whether the step succeeded.
func (e TraceEvent) OK() bool { return e.Outcome == OutcomeOK }

// OutcomeOK marks a successful step.
const OutcomeOK = "ok"

// Value renders the event for canonical serialization.
func (e TraceEvent) Value() ir.Object {
	out := ir.Object{
		"seq":     ir.Int(e.Seq),
		"op":      ir.String(e.Op),
		"outcome": ir.String(e.Outcome),
	}
	if e.ID != "" {
		out["id"] = ir.String(e.ID)
	}
	if e.IDs != nil {
		out["ids"] = idList(e.IDs)
	}
	if len(e.Failed) > 0 {
		out["failed"] = idList(e.Failed)
	}
	if e.Count != nil {
		out["count"] = ir.Int(*e.Count)
	}
	if e.Exists != nil {
		out["exists"] = ir.Bool(*e.Exists)
	}
	if e.Record != nil {
		out["record"] = e.Record
	}
	return out
}

func idList(ids []ir.ID) ir.List {
	out := make(ir.List, len(ids))
	for i, id := range ids {
		out[i] = ir.String(id)
	}
	return out
}

// Result is the outcome of running a scenario on one backend.
type Result struct {
	// Backend names the target the scenario ran on.
	Backend string `json:"backend"`

	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace lists the executed steps in order. Setup is not traced.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult(backend string) *Result {
	return &Result{
		Backend: backend,
		Pass:    true,
		Trace:   []TraceEvent{},
		Errors:  []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
