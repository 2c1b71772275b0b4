package memstore

import (
	"github.com/roach88/shelf/internal/index"
	"github.com/roach88/shelf/internal/ir"
)

// Table is the authoritative map from identifier to record.
//
// It knows nothing about indexes: keeping them in step is the Store's job.
// Records are stored as given; the Store hands in copies it owns.
type Table struct {
	rows map[ir.ID]ir.Object
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{rows: make(map[ir.ID]ir.Object)}
}

// Insert adds a record. ALREADY_EXISTS if id is present.
func (t *Table) Insert(id ir.ID, rec ir.Object) error {
	if _, ok := t.rows[id]; ok {
		return ir.AlreadyExists(id)
	}
	t.rows[id] = rec
	return nil
}

// Get returns the stored record. NOT_FOUND if id is absent.
func (t *Table) Get(id ir.ID) (ir.Object, error) {
	rec, ok := t.rows[id]
	if !ok {
		return nil, ir.NotFound(id)
	}
	return rec, nil
}

// Replace swaps in a new record. NOT_FOUND if id is absent.
func (t *Table) Replace(id ir.ID, rec ir.Object) error {
	if _, ok := t.rows[id]; !ok {
		return ir.NotFound(id)
	}
	t.rows[id] = rec
	return nil
}

// Remove deletes a record. NOT_FOUND if id is absent.
func (t *Table) Remove(id ir.ID) error {
	if _, ok := t.rows[id]; !ok {
		return ir.NotFound(id)
	}
	delete(t.rows, id)
	return nil
}

// Has reports whether id is live.
func (t *Table) Has(id ir.ID) bool {
	_, ok := t.rows[id]
	return ok
}

// Len returns the number of live records.
func (t *Table) Len() int { return len(t.rows) }

// IDs returns every live identifier.
func (t *Table) IDs() index.Set {
	out := make(index.Set, len(t.rows))
	for id := range t.rows {
		out.Add(id)
	}
	return out
}

// Range calls fn for each record until fn returns false.
func (t *Table) Range(fn func(id ir.ID, rec ir.Object) bool) {
	for id, rec := range t.rows {
		if !fn(id, rec) {
			return
		}
	}
}

// Clear removes every record.
func (t *Table) Clear() {
	clear(t.rows)
}
