package dao

import (
	"errors"

	"github.com/roach88/shelf/internal/ir"
	"github.com/roach88/shelf/internal/schema"
)

// CheckChanges validates an update payload for record id: every field must
// be declared with a matching kind, and _id may appear only unchanged.
func CheckChanges(s *schema.Schema, id ir.ID, changes ir.Object) error {
	if v, ok := changes[ir.IDField]; ok {
		if got, isStr := v.(ir.String); !isStr || ir.ID(got) != id {
			return ir.InvalidRecord(ir.IDField, "identifier is immutable").WithID(id)
		}
	}
	if err := s.ValidatePartial(changes); err != nil {
		var se *ir.StoreError
		if errors.As(err, &se) {
			return se.WithID(id)
		}
		return err
	}
	return nil
}
