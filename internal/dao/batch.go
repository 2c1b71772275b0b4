package dao

import (
	"errors"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/shelf/internal/ir"
)

// Item is the outcome of one member of a batch operation.
// Record is set for successful creates and updates.
type Item struct {
	ID     ir.ID
	Record ir.Object
	Err    error
}

// BatchResult lists batch outcomes in input order.
type BatchResult struct {
	Items []Item
}

// Add appends one outcome.
func (r *BatchResult) Add(id ir.ID, rec ir.Object, err error) {
	r.Items = append(r.Items, Item{ID: id, Record: rec, Err: err})
}

// OK reports whether every member succeeded.
func (r BatchResult) OK() bool {
	for _, it := range r.Items {
		if it.Err != nil {
			return false
		}
	}
	return true
}

// Succeeded returns the ids of members that succeeded, in input order.
func (r BatchResult) Succeeded() []ir.ID {
	var out []ir.ID
	for _, it := range r.Items {
		if it.Err == nil {
			out = append(out, it.ID)
		}
	}
	return out
}

// Failed maps each failed member's id to its error.
func (r BatchResult) Failed() map[ir.ID]error {
	out := make(map[ir.ID]error)
	for _, it := range r.Items {
		if it.Err != nil {
			out[it.ID] = it.Err
		}
	}
	return out
}

// Records returns the records of successful members, in input order.
func (r BatchResult) Records() []ir.Object {
	var out []ir.Object
	for _, it := range r.Items {
		if it.Err == nil && it.Record != nil {
			out = append(out, it.Record)
		}
	}
	return out
}

// Err joins every member error, or returns nil when all succeeded.
func (r BatchResult) Err() error {
	var errs []error
	for _, it := range r.Items {
		if it.Err != nil {
			errs = append(errs, it.Err)
		}
	}
	return errors.Join(errs...)
}

// SortedIDs returns the keys of an update batch in ascending order, the
// order in which batch updates are applied and reported.
func SortedIDs[V any](m map[ir.ID]V) []ir.ID {
	return slices.Sorted(maps.Keys(m))
}

// MissingError builds the NOT_FOUND error strict FetchMany returns.
func MissingError(missing []ir.ID) error {
	if len(missing) == 0 {
		return nil
	}
	err := ir.NotFound(missing[0])
	if len(missing) > 1 {
		err.Message = "records not found: " + joinIDs(missing)
	}
	return err
}

func joinIDs(ids []ir.ID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, ", ")
}
