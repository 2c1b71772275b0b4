package sqlstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/shelf/internal/ir"
	"github.com/roach88/shelf/internal/querysql"
)

// checkTimes rejects timestamps in column-backed fields that Unix
// nanoseconds cannot represent.
func (s *Store) checkTimes(rec ir.Object) error {
	for _, name := range s.schema.IndexedFields() {
		t, ok := rec[name].(ir.Time)
		if !ok {
			continue
		}
		if !querysql.TimeInRange(t.Time) {
			return ir.InvalidRecord(name, "timestamp %s outside the storable range", t.Format(time.RFC3339))
		}
	}
	return nil
}

// unmarshalDoc parses the _doc column back into a record, restoring
// timestamps and numeric kinds from the schema.
// Uses json.Number so integers beyond 2^53 survive.
func (s *Store) unmarshalDoc(data string) (ir.Object, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	rec, err := s.schema.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return rec, nil
}
