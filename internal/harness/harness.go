package harness

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/roach88/shelf/internal/backend"
	"github.com/roach88/shelf/internal/config"
	"github.com/roach88/shelf/internal/dao"
	"github.com/roach88/shelf/internal/ident"
	"github.com/roach88/shelf/internal/ir"
	"github.com/roach88/shelf/internal/query"
	"github.com/roach88/shelf/internal/schema"
)

// Target is one backend configuration a scenario runs on.
type Target struct {
	Name    string
	Backend string
	Cache   bool
}

// Targets lists every backend, plus a cached persistent one.
var Targets = []Target{
	{Name: "memory", Backend: "memory"},
	{Name: "file", Backend: "file"},
	{Name: "bolt", Backend: "bolt"},
	{Name: "sqlite", Backend: "sqlite"},
	{Name: "sqlite+cache", Backend: "sqlite", Cache: true},
}

// TargetByName looks a target up.
func TargetByName(name string) (Target, bool) {
	for _, t := range Targets {
		if t.Name == name {
			return t, true
		}
	}
	return Target{}, false
}

// Harness holds what a single run needs.
type Harness struct {
	store  dao.Dao
	schema *schema.Schema
	seq    int64
	logger *slog.Logger
}

// Run executes a scenario on one target and returns the result.
//
// Each run gets a fresh temporary directory and a fresh store. The error
// return is reserved for infrastructure failures (schema, setup, opening
// the store); expectation failures are reported in Result.Errors.
func Run(ctx context.Context, sc *Scenario, target Target) (*Result, error) {
	s, err := sc.LoadSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}

	dir, err := os.MkdirTemp("", "shelf-harness-")
	if err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	cfg := &config.Config{
		Backend:             target.Backend,
		Cache:               target.Cache,
		StrictFetchMany:     sc.Policy.StrictFetchMany,
		IgnoreMissingDelete: sc.Policy.IgnoreMissingDelete,
		IDStrategy:          ident.StrategyUUID,
		LogLevel:            "info",
	}
	switch target.Backend {
	case "file":
		cfg.Path = filepath.Join(dir, "data")
	case "bolt":
		cfg.Path = filepath.Join(dir, "shelf.bolt")
	case "sqlite":
		cfg.Path = filepath.Join(dir, "shelf.db")
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	st, err := backend.Open(ctx, cfg, s, backend.Options{
		Logger:    logger,
		Generator: ident.NewSequenceGenerator("id"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", target.Name, err)
	}
	defer backend.Close(st)

	h := &Harness{store: st, schema: s, logger: logger}

	if err := h.executeSetup(ctx, sc.Setup); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	result := NewResult(target.Name)
	for i, step := range sc.Steps {
		event := h.execute(ctx, step)
		result.Trace = append(result.Trace, event)
		for _, msg := range h.check(event, step.Expect) {
			result.AddError(fmt.Sprintf("step %d (%s): %s", i, step.Op, msg))
		}
	}

	actx := &AssertionContext{Store: st, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, sc.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// RunAll runs the scenario on every target in Targets.
func RunAll(ctx context.Context, sc *Scenario) ([]*Result, error) {
	return RunTargets(ctx, sc, Targets)
}

// RunTargets runs the scenario on each target in turn. A target whose
// trace differs from the first target's fails, even when its own
// expectations held.
func RunTargets(ctx context.Context, sc *Scenario, targets []Target) ([]*Result, error) {
	var (
		results []*Result
		first   []byte
	)
	for _, target := range targets {
		res, err := Run(ctx, sc, target)
		if err != nil {
			return results, fmt.Errorf("%s: %w", target.Name, err)
		}
		snap, err := Snapshot(sc.Name, res)
		if err != nil {
			return results, fmt.Errorf("%s: %w", target.Name, err)
		}
		if first == nil {
			first = snap
		} else if !bytes.Equal(first, snap) {
			res.AddError(fmt.Sprintf("trace differs from %s:\n  %s: %s\n  %s: %s",
				targets[0].Name, targets[0].Name, first, target.Name, snap))
		}
		results = append(results, res)
	}
	return results, nil
}

// executeSetup creates the setup records. Setup must succeed.
func (h *Harness) executeSetup(ctx context.Context, setup []map[string]any) error {
	for i, raw := range setup {
		rec, err := h.record(raw)
		if err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
		if _, err := h.store.Create(ctx, rec); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
	}
	return nil
}

// execute runs one step and records what happened.
func (h *Harness) execute(ctx context.Context, step Step) TraceEvent {
	h.seq++
	ev := TraceEvent{Seq: h.seq, Op: step.Op, ID: ir.ID(step.ID)}

	err := h.dispatch(ctx, step, &ev)
	ev.Outcome = outcome(err)
	if err != nil {
		// partial results of a failed call are not part of the trace
		ev.IDs, ev.Count, ev.Exists, ev.Record = nil, nil, nil, nil
		h.logger.Debug("step failed", "seq", ev.Seq, "op", step.Op, "error", err)
	}
	return ev
}

func (h *Harness) dispatch(ctx context.Context, step Step, ev *TraceEvent) error {
	switch step.Op {
	case "create":
		rec, err := h.record(step.Record)
		if err != nil {
			return err
		}
		created, err := h.store.Create(ctx, rec)
		if err != nil {
			return err
		}
		ev.ID, _ = created.ID()
		ev.Record = created

	case "create_many":
		recs := make([]ir.Object, len(step.Records))
		for i, raw := range step.Records {
			rec, err := h.record(raw)
			if err != nil {
				return fmt.Errorf("records[%d]: %w", i, err)
			}
			recs[i] = rec
		}
		batch(ev, h.store.CreateMany(ctx, recs))

	case "fetch":
		rec, err := h.store.Fetch(ctx, ir.ID(step.ID), step.Fields)
		if err != nil {
			return err
		}
		ev.Record = rec

	case "fetch_many":
		recs, err := h.store.FetchMany(ctx, toIDs(step.IDs), step.Fields)
		if err != nil {
			return err
		}
		ev.IDs = dao.SortedIDs(recs)

	case "fetch_all":
		recs, err := h.store.FetchAll(ctx, step.Fields)
		if err != nil {
			return err
		}
		ev.IDs = recordIDs(recs)

	case "exists":
		ok, err := h.store.Exists(ctx, ir.ID(step.ID))
		if err != nil {
			return err
		}
		ev.Exists = &ok

	case "count":
		where, err := h.predicate(step.Where)
		if err != nil {
			return err
		}
		n, err := h.store.Count(ctx, where)
		if err != nil {
			return err
		}
		ev.Count = &n

	case "query":
		sel, err := h.selectFor(step)
		if err != nil {
			return err
		}
		recs, err := h.store.Query(ctx, sel)
		if err != nil {
			return err
		}
		ev.IDs = recordIDs(recs)

	case "update":
		changes, err := h.record(step.Changes)
		if err != nil {
			return err
		}
		updated, err := h.store.Update(ctx, ir.ID(step.ID), changes)
		if err != nil {
			return err
		}
		ev.Record = updated

	case "update_many":
		changes := make(map[ir.ID]ir.Object, len(step.Batch))
		for id, raw := range step.Batch {
			c, err := h.record(raw)
			if err != nil {
				return fmt.Errorf("batch[%s]: %w", id, err)
			}
			changes[ir.ID(id)] = c
		}
		batch(ev, h.store.UpdateMany(ctx, changes))

	case "delete":
		return h.store.Delete(ctx, ir.ID(step.ID))

	case "delete_many":
		batch(ev, h.store.DeleteMany(ctx, toIDs(step.IDs)))

	case "delete_all":
		n, err := h.store.DeleteAll(ctx)
		if err != nil {
			return err
		}
		ev.Count = &n

	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
	return nil
}

func batch(ev *TraceEvent, res dao.BatchResult) {
	ev.IDs = res.Succeeded()
	if ev.IDs == nil {
		ev.IDs = []ir.ID{}
	}
	ev.Failed = dao.SortedIDs(res.Failed())
}

// record converts YAML values to a record, typed by the schema where it
// can be. Values the schema rejects are passed through untyped so the
// store reports the error itself.
func (h *Harness) record(raw map[string]any) (ir.Object, error) {
	if raw == nil {
		return ir.Object{}, nil
	}
	if rec, err := h.schema.Decode(raw); err == nil {
		return rec, nil
	}
	return ir.ObjectFromMap(raw)
}

func (h *Harness) predicate(src string) (query.Predicate, error) {
	if strings.TrimSpace(src) == "" {
		return nil, nil
	}
	p, err := query.Parse(src, h.schema)
	if err != nil && ir.CodeOf(err) == "" {
		return nil, ir.InvalidPredicate("", "%v", err)
	}
	return p, err
}

func (h *Harness) selectFor(step Step) (query.Select, error) {
	where, err := h.predicate(step.Where)
	if err != nil {
		return query.Select{}, err
	}
	order, err := query.ParseOrder(step.Order)
	if err != nil {
		return query.Select{}, ir.InvalidPredicate("", "%v", err)
	}
	return query.Select{
		Where:   where,
		Fields:  step.Fields,
		OrderBy: order,
		First:   step.First,
		Limit:   step.Limit,
		Offset:  step.Offset,
	}, nil
}

// check compares an event with its expect clause.
func (h *Harness) check(ev TraceEvent, want *Expect) []string {
	if want == nil {
		if !ev.OK() {
			return []string{fmt.Sprintf("expected success, got %s", ev.Outcome)}
		}
		return nil
	}

	var errs []string
	wantOutcome := OutcomeOK
	if want.Error != "" {
		wantOutcome = want.Error
	}
	if ev.Outcome != wantOutcome {
		errs = append(errs, fmt.Sprintf("expected outcome %s, got %s", wantOutcome, ev.Outcome))
		return errs
	}

	if want.IDs != nil && !slices.Equal(toIDs(want.IDs), ev.IDs) {
		errs = append(errs, fmt.Sprintf("expected ids %v, got %v", want.IDs, ev.IDs))
	}
	if want.Failed != nil && !slices.Equal(toIDs(want.Failed), ev.Failed) {
		errs = append(errs, fmt.Sprintf("expected failed %v, got %v", want.Failed, ev.Failed))
	}
	if want.Count != nil && (ev.Count == nil || *ev.Count != *want.Count) {
		errs = append(errs, fmt.Sprintf("expected count %d, got %v", *want.Count, deref(ev.Count)))
	}
	if want.Exists != nil && (ev.Exists == nil || *ev.Exists != *want.Exists) {
		errs = append(errs, fmt.Sprintf("expected exists %v, got %v", *want.Exists, deref(ev.Exists)))
	}
	if want.Record != nil {
		if ev.Record == nil {
			errs = append(errs, "expected a record, got none")
		} else if msg := matchSubset(h.schema, ev.Record, want.Record); msg != "" {
			errs = append(errs, msg)
		}
	}
	return errs
}

func outcome(err error) string {
	if err == nil {
		return OutcomeOK
	}
	if code := ir.CodeOf(err); code != "" {
		return string(code)
	}
	return "ERROR"
}

func toIDs(ss []string) []ir.ID {
	out := make([]ir.ID, len(ss))
	for i, s := range ss {
		out[i] = ir.ID(s)
	}
	return out
}

func recordIDs(recs []ir.Object) []ir.ID {
	out := make([]ir.ID, len(recs))
	for i, rec := range recs {
		out[i], _ = rec.ID()
	}
	return out
}

func deref[T any](p *T) any {
	if p == nil {
		return "nothing"
	}
	return *p
}
