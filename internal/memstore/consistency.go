package memstore

import (
	"errors"
	"fmt"

	"github.com/roach88/shelf/internal/index"
	"github.com/roach88/shelf/internal/ir"
)

// CheckConsistency verifies that every index holds exactly one entry per
// live record, under the bucket for that record's current value, and
// nothing else. It returns every violation found, joined.
func (s *Store) CheckConsistency() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var errs []error
	for _, field := range s.schema.IndexedFields() {
		ix, ok := s.indexes[field]
		if !ok {
			errs = append(errs, fmt.Errorf("index %s: missing", field))
			continue
		}
		errs = append(errs, s.checkIndex(ix)...)
	}
	return errors.Join(errs...)
}

func (s *Store) checkIndex(ix *index.Index) []error {
	var errs []error
	seen := index.Set{}

	ix.Ascend(func(key ir.Value, ids index.Set) bool {
		if len(ids) == 0 {
			errs = append(errs, fmt.Errorf("index %s: empty bucket for %v", ix.Field(), key))
		}
		for id := range ids {
			rec, err := s.table.Get(id)
			if err != nil {
				errs = append(errs, fmt.Errorf("index %s: stale entry %s", ix.Field(), id))
				continue
			}
			if !ir.Equal(rec.Get(ix.Field()), key) {
				errs = append(errs, fmt.Errorf("index %s: %s filed under %v, holds %v",
					ix.Field(), id, key, rec.Get(ix.Field())))
			}
			if seen.Has(id) {
				errs = append(errs, fmt.Errorf("index %s: %s appears in more than one bucket", ix.Field(), id))
			}
			seen.Add(id)
		}
		return true
	})

	if ix.Entries() != seen.Len() {
		errs = append(errs, fmt.Errorf("index %s: entry count %d, found %d", ix.Field(), ix.Entries(), seen.Len()))
	}
	for id := range s.table.IDs() {
		if !seen.Has(id) {
			errs = append(errs, fmt.Errorf("index %s: record %s not indexed", ix.Field(), id))
		}
	}
	return errs
}
