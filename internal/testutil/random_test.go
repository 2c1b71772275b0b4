package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shelf/internal/ir"
	"github.com/roach88/shelf/internal/query"
)

func TestRandom_RecordsAreValid(t *testing.T) {
	s := BookSchema()
	r := NewRandom(7)
	for i := 0; i < 200; i++ {
		rec := r.Record(r.ID(20))
		require.NoError(t, s.Validate(rec), "record %v", rec)
		require.NoError(t, s.ValidatePartial(r.Changes()))
	}
}

func TestRandom_PredicatesAreValid(t *testing.T) {
	s := BookSchema()
	r := NewRandom(11)
	for i := 0; i < 500; i++ {
		p := r.Predicate(3)
		require.NoError(t, query.Validate(p, s), "predicate %s", query.String(p))
	}
}

func TestRandom_SameSeedSameStream(t *testing.T) {
	a, b := NewRandom(42), NewRandom(42)
	for i := 0; i < 50; i++ {
		assert.True(t, ir.Equal(a.Record("x"), b.Record("x")))
		assert.Equal(t, query.String(a.Predicate(2)), query.String(b.Predicate(2)))
	}
}

func TestSampleBooks_Valid(t *testing.T) {
	s := BookSchema()
	for _, rec := range SampleBooks() {
		assert.NoError(t, s.Validate(rec))
	}
}
