// Package memstore is the in-memory indexed record store: a record table,
// one ordered index per indexed field, and the predicate evaluator that
// answers queries from those indexes.
package memstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/shelf/internal/dao"
	"github.com/roach88/shelf/internal/ident"
	"github.com/roach88/shelf/internal/index"
	"github.com/roach88/shelf/internal/ir"
	"github.com/roach88/shelf/internal/query"
	"github.com/roach88/shelf/internal/schema"
)

// Options configures a Store.
type Options struct {
	// Generator assigns ids to records created without one.
	// Defaults to ident.UUIDv7Generator.
	Generator ident.Generator

	// Policy selects the fetch-many and missing-delete behaviour.
	Policy dao.Policy

	// Logger receives mutation events at Debug. Defaults to slog.Default().
	Logger *slog.Logger

	// DisableShortCircuit makes AND evaluate both sides even when the first
	// is empty. Results never change; only cost does.
	DisableShortCircuit bool
}

// Store is one collection held in memory.
//
// Mutations hold the write lock for their whole duration, index maintenance
// included; reads share the read lock. The context is checked once before
// work starts. Nothing here blocks or performs I/O.
type Store struct {
	mu      sync.RWMutex
	schema  *schema.Schema
	table   *Table
	indexes map[string]*index.Index

	gen          ident.Generator
	policy       dao.Policy
	logger       *slog.Logger
	shortCircuit bool
}

var _ dao.Dao = (*Store)(nil)

// New returns an empty store for s.
func New(s *schema.Schema, opts Options) *Store {
	if opts.Generator == nil {
		opts.Generator = ident.UUIDv7Generator{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	st := &Store{
		schema:       s,
		table:        NewTable(),
		indexes:      make(map[string]*index.Index),
		gen:          opts.Generator,
		policy:       opts.Policy,
		logger:       opts.Logger.With("collection", s.Name()),
		shortCircuit: !opts.DisableShortCircuit,
	}
	for _, f := range s.Fields() {
		if f.Indexed {
			st.indexes[f.Name] = index.New(f.Name, f.Kind)
		}
	}
	return st
}

// Load builds a store from records that already carry their _id, as read
// back from a persistence backend. Any invalid or duplicate record fails the
// whole load.
func Load(s *schema.Schema, recs []ir.Object, opts Options) (*Store, error) {
	st := New(s, opts)
	for _, rec := range recs {
		id, ok := rec.ID()
		if !ok {
			return nil, ir.InvalidRecord(ir.IDField, "stored record has no identifier")
		}
		if err := s.Validate(rec); err != nil {
			return nil, fmt.Errorf("loading %s: %w", id, err)
		}
		if err := st.insert(id, rec.Clone()); err != nil {
			return nil, fmt.Errorf("loading %s: %w", id, err)
		}
	}
	return st, nil
}

// Schema returns the collection schema.
func (s *Store) Schema() *schema.Schema { return s.schema }

// Len returns the number of live records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table.Len()
}

// Exists reports whether id is live.
func (s *Store) Exists(ctx context.Context, id ir.ID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table.Has(id), nil
}

// ExistsMany reports liveness for each id.
func (s *Store) ExistsMany(ctx context.Context, ids []ir.ID) (map[ir.ID]bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[ir.ID]bool, len(ids))
	for _, id := range ids {
		out[id] = s.table.Has(id)
	}
	return out, nil
}

// Count returns the number of records matching where (nil = all).
func (s *Store) Count(ctx context.Context, where query.Predicate) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := query.Validate(where, s.schema); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids, err := s.evaluate(where)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Create validates rec, assigns its identifier, and indexes it.
func (s *Store) Create(ctx context.Context, rec ir.Object) (ir.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stored, id, err := s.prepare(rec)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.insert(id, stored); err != nil {
		return nil, err
	}
	s.logger.Debug("record created", "id", id)
	return stored.Clone(), nil
}

// prepare validates a new record and returns the copy to store.
func (s *Store) prepare(rec ir.Object) (ir.Object, ir.ID, error) {
	if err := s.schema.Validate(rec); err != nil {
		return nil, "", err
	}
	return ident.Assign(s.gen, rec)
}

// insert adds a validated record under the write lock, undoing any partial
// index work if an index rejects it.
func (s *Store) insert(id ir.ID, rec ir.Object) error {
	if err := s.table.Insert(id, rec); err != nil {
		return err
	}
	var added []*index.Index
	for _, ix := range s.indexes {
		if err := ix.Add(rec.Get(ix.Field()), id); err != nil {
			for _, undo := range added {
				_ = undo.Remove(rec.Get(undo.Field()), id)
			}
			_ = s.table.Remove(id)
			return fmt.Errorf("indexing %s: %w", id, err)
		}
		added = append(added, ix)
	}
	return nil
}

// CreateMany creates each record independently.
func (s *Store) CreateMany(ctx context.Context, recs []ir.Object) dao.BatchResult {
	var res dao.BatchResult
	for _, rec := range recs {
		id, _ := rec.ID()
		created, err := s.Create(ctx, rec)
		if err == nil {
			id, _ = created.ID()
		}
		res.Add(id, created, err)
	}
	return res
}

// Fetch returns one record, projected.
func (s *Store) Fetch(ctx context.Context, id ir.ID, fields []string) (ir.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	names, err := s.schema.Projection(fields)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, err := s.table.Get(id)
	if err != nil {
		return nil, err
	}
	return schema.Project(rec, names), nil
}

// FetchMany returns the requested records keyed by id. Missing ids are
// omitted unless the store runs with Policy.StrictFetchMany.
func (s *Store) FetchMany(ctx context.Context, ids []ir.ID, fields []string) (map[ir.ID]ir.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	names, err := s.schema.Projection(fields)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[ir.ID]ir.Object, len(ids))
	var missing []ir.ID
	for _, id := range ids {
		rec, err := s.table.Get(id)
		if err != nil {
			missing = append(missing, id)
			continue
		}
		out[id] = schema.Project(rec, names)
	}
	if s.policy.StrictFetchMany && len(missing) > 0 {
		return nil, dao.MissingError(missing)
	}
	return out, nil
}

// FetchAll returns every record ordered by _id.
func (s *Store) FetchAll(ctx context.Context, fields []string) ([]ir.Object, error) {
	return s.Query(ctx, query.Select{Fields: fields})
}

// Update merges changes into the record and moves it between index buckets
// for every indexed field whose value changed.
func (s *Store) Update(ctx context.Context, id ir.ID, changes ir.Object) (ir.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := dao.CheckChanges(s.schema, id, changes); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old, err := s.table.Get(id)
	if err != nil {
		return nil, err
	}
	updated := old.Merge(changes)

	if err := s.reindex(id, old, updated, changes); err != nil {
		return nil, err
	}
	if err := s.table.Replace(id, updated); err != nil {
		return nil, err
	}
	s.logger.Debug("record updated", "id", id, "fields", changes.Keys())
	return updated.Clone(), nil
}

// Replace stores rec in place of the record carrying the same _id, moving it
// between index buckets for every field whose value differs.
func (s *Store) Replace(ctx context.Context, rec ir.Object) (ir.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.schema.Validate(rec); err != nil {
		return nil, err
	}
	id, ok := rec.ID()
	if !ok {
		return nil, ir.InvalidRecord(ir.IDField, "replacement has no identifier")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old, err := s.table.Get(id)
	if err != nil {
		return nil, err
	}
	stored := rec.Clone()
	touched := old.Merge(stored)
	if err := s.reindex(id, old, stored, touched); err != nil {
		return nil, err
	}
	if err := s.table.Replace(id, stored); err != nil {
		return nil, err
	}
	s.logger.Debug("record replaced", "id", id)
	return stored.Clone(), nil
}

// reindex moves id from its old bucket to its new one in every index whose
// field appears in changes with a different value.
func (s *Store) reindex(id ir.ID, old, updated, changes ir.Object) error {
	type move struct {
		ix       *index.Index
		from, to ir.Value
	}
	var done []move
	rollback := func() {
		for _, m := range done {
			_ = m.ix.Remove(m.to, id)
			_ = m.ix.Add(m.from, id)
		}
	}

	for field := range changes {
		ix, ok := s.indexes[field]
		if !ok {
			continue
		}
		from, to := old.Get(field), updated.Get(field)
		if ir.Equal(from, to) {
			continue
		}
		if err := ix.Remove(from, id); err != nil {
			rollback()
			return fmt.Errorf("reindexing %s: %w", id, err)
		}
		if err := ix.Add(to, id); err != nil {
			_ = ix.Add(from, id)
			rollback()
			return fmt.Errorf("reindexing %s: %w", id, err)
		}
		done = append(done, move{ix: ix, from: from, to: to})
	}
	return nil
}

// UpdateMany applies each change set independently, in ascending id order.
func (s *Store) UpdateMany(ctx context.Context, changes map[ir.ID]ir.Object) dao.BatchResult {
	var res dao.BatchResult
	for _, id := range dao.SortedIDs(changes) {
		rec, err := s.Update(ctx, id, changes[id])
		res.Add(id, rec, err)
	}
	return res
}

// Delete removes a record from every index and then from the table.
func (s *Store) Delete(ctx context.Context, id ir.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.table.Get(id)
	if err != nil {
		if s.policy.IgnoreMissingDelete && ir.IsNotFound(err) {
			return nil
		}
		return err
	}
	for _, ix := range s.indexes {
		if err := ix.Remove(rec.Get(ix.Field()), id); err != nil {
			return fmt.Errorf("unindexing %s: %w", id, err)
		}
	}
	if err := s.table.Remove(id); err != nil {
		return err
	}
	s.logger.Debug("record deleted", "id", id)
	return nil
}

// DeleteMany deletes each id independently.
func (s *Store) DeleteMany(ctx context.Context, ids []ir.ID) dao.BatchResult {
	var res dao.BatchResult
	for _, id := range ids {
		res.Add(id, nil, s.Delete(ctx, id))
	}
	return res
}

// DeleteAll empties the store and returns how many records it held.
func (s *Store) DeleteAll(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.table.Len()
	s.table.Clear()
	for _, ix := range s.indexes {
		ix.Clear()
	}
	s.logger.Debug("collection cleared", "count", n)
	return n, nil
}

// Query evaluates sel.Where, then sorts, paginates and projects.
func (s *Store) Query(ctx context.Context, sel query.Select) ([]ir.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := sel.Validate(s.schema); err != nil {
		return nil, err
	}
	names, err := s.schema.Projection(sel.Fields)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, err := s.evaluate(sel.Where)
	if err != nil {
		return nil, err
	}

	matched := make([]ir.Object, 0, len(ids))
	for id := range ids {
		rec, err := s.table.Get(id)
		if err != nil {
			return nil, fmt.Errorf("index references missing record: %w", err)
		}
		matched = append(matched, rec)
	}

	query.SortRecords(matched, sel.OrderBy)
	matched = sel.Paginate(matched)

	out := make([]ir.Object, len(matched))
	for i, rec := range matched {
		out[i] = schema.Project(rec, names)
	}
	return out, nil
}

// Evaluate validates p and returns the matching ids.
func (s *Store) Evaluate(ctx context.Context, p query.Predicate) (index.Set, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := query.Validate(p, s.schema); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.evaluate(p)
}
