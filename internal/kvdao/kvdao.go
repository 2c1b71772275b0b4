// Package kvdao turns a plain key/value record store into a full dao.Dao.
//
// The underlying Records only get, put and list whole records. Queries are
// answered by loading every record into a transient memstore and asking it,
// so key/value backends share the indexed engine's predicate semantics
// exactly, at the cost of a full load per query.
package kvdao

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/roach88/shelf/internal/dao"
	"github.com/roach88/shelf/internal/ident"
	"github.com/roach88/shelf/internal/ir"
	"github.com/roach88/shelf/internal/memstore"
	"github.com/roach88/shelf/internal/query"
	"github.com/roach88/shelf/internal/schema"
)

// Records is a raw keyed record store. Records handed in are already valid
// and carry their _id; records handed out are owned by the caller.
type Records interface {
	// Get returns one record or NOT_FOUND.
	Get(ctx context.Context, id ir.ID) (ir.Object, error)
	// Insert stores a new record or fails with ALREADY_EXISTS.
	Insert(ctx context.Context, id ir.ID, rec ir.Object) error
	// Replace overwrites an existing record or fails with NOT_FOUND.
	Replace(ctx context.Context, id ir.ID, rec ir.Object) error
	// Remove deletes a record or fails with NOT_FOUND.
	Remove(ctx context.Context, id ir.ID) error
	// All returns every record, in any order.
	All(ctx context.Context) ([]ir.Object, error)
	// Clear removes every record and returns how many there were.
	Clear(ctx context.Context) (int, error)
}

// Options configures a Store.
type Options struct {
	Generator ident.Generator
	Policy    dao.Policy
	Logger    *slog.Logger
}

// Store implements dao.Dao over Records.
//
// Updates are read-modify-write; the mutex makes them atomic with respect
// to other calls through the same Store, not to other processes sharing the
// backing storage.
type Store struct {
	mu      sync.Mutex
	records Records
	schema  *schema.Schema
	gen     ident.Generator
	policy  dao.Policy
	logger  *slog.Logger
}

var (
	_ dao.Dao    = (*Store)(nil)
	_ dao.Closer = (*Store)(nil)
)

// New wraps records.
func New(s *schema.Schema, records Records, opts Options) *Store {
	if opts.Generator == nil {
		opts.Generator = ident.UUIDv7Generator{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Store{
		records: records,
		schema:  s,
		gen:     opts.Generator,
		policy:  opts.Policy,
		logger:  opts.Logger.With("collection", s.Name()),
	}
}

// Schema returns the collection schema.
func (s *Store) Schema() *schema.Schema { return s.schema }

// Close closes the underlying records when they hold resources.
func (s *Store) Close() error {
	if c, ok := s.records.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Exists reports whether id is stored.
func (s *Store) Exists(ctx context.Context, id ir.ID) (bool, error) {
	_, err := s.records.Get(ctx, id)
	if ir.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

// ExistsMany reports liveness for each id.
func (s *Store) ExistsMany(ctx context.Context, ids []ir.ID) (map[ir.ID]bool, error) {
	out := make(map[ir.ID]bool, len(ids))
	for _, id := range ids {
		ok, err := s.Exists(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = ok
	}
	return out, nil
}

// Create validates rec, assigns its identifier and inserts it.
func (s *Store) Create(ctx context.Context, rec ir.Object) (ir.Object, error) {
	if err := s.schema.Validate(rec); err != nil {
		return nil, err
	}
	stored, id, err := ident.Assign(s.gen, rec)
	if err != nil {
		return nil, err
	}
	if err := s.records.Insert(ctx, id, stored); err != nil {
		return nil, err
	}
	s.logger.Debug("record created", "id", id)
	return stored, nil
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
	names, err := s.schema.Projection(fields)
	if err != nil {
		return nil, err
	}
	rec, err := s.records.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return schema.Project(rec, names), nil
}

// FetchMany returns the requested records keyed by id.
func (s *Store) FetchMany(ctx context.Context, ids []ir.ID, fields []string) (map[ir.ID]ir.Object, error) {
	names, err := s.schema.Projection(fields)
	if err != nil {
		return nil, err
	}
	out := make(map[ir.ID]ir.Object, len(ids))
	var missing []ir.ID
	for _, id := range ids {
		rec, err := s.records.Get(ctx, id)
		if ir.IsNotFound(err) {
			missing = append(missing, id)
			continue
		}
		if err != nil {
			return nil, err
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

// Update merges changes into the stored record.
func (s *Store) Update(ctx context.Context, id ir.ID, changes ir.Object) (ir.Object, error) {
	if err := dao.CheckChanges(s.schema, id, changes); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old, err := s.records.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	updated := old.Merge(changes)
	if err := s.records.Replace(ctx, id, updated); err != nil {
		return nil, err
	}
	s.logger.Debug("record updated", "id", id, "fields", changes.Keys())
	return updated, nil
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

// Delete removes one record.
func (s *Store) Delete(ctx context.Context, id ir.ID) error {
	err := s.records.Remove(ctx, id)
	if ir.IsNotFound(err) && s.policy.IgnoreMissingDelete {
		return nil
	}
	if err != nil {
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

// DeleteAll removes every record.
func (s *Store) DeleteAll(ctx context.Context) (int, error) {
	n, err := s.records.Clear(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Debug("collection cleared", "count", n)
	return n, nil
}

// Count loads every record and counts the matches.
func (s *Store) Count(ctx context.Context, where query.Predicate) (int, error) {
	if err := query.Validate(where, s.schema); err != nil {
		return 0, err
	}
	mem, err := s.snapshot(ctx)
	if err != nil {
		return 0, err
	}
	return mem.Count(ctx, where)
}

// Query loads every record into a memstore and queries it.
func (s *Store) Query(ctx context.Context, sel query.Select) ([]ir.Object, error) {
	if err := sel.Validate(s.schema); err != nil {
		return nil, err
	}
	mem, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return mem.Query(ctx, sel)
}

// snapshot indexes the current contents of the backing records.
func (s *Store) snapshot(ctx context.Context) (*memstore.Store, error) {
	recs, err := s.records.All(ctx)
	if err != nil {
		return nil, err
	}
	return memstore.Load(s.schema, recs, memstore.Options{Logger: discard})
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))
