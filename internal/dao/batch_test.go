package dao

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shelf/internal/ir"
	"github.com/roach88/shelf/internal/schema"
)

func TestBatchResult(t *testing.T) {
	var r BatchResult
	r.Add("a", ir.Object{"_id": ir.String("a")}, nil)
	r.Add("b", nil, ir.NotFound("b"))
	r.Add("c", ir.Object{"_id": ir.String("c")}, nil)

	assert.False(t, r.OK())
	assert.Equal(t, []ir.ID{"a", "c"}, r.Succeeded())
	assert.Len(t, r.Failed(), 1)
	assert.True(t, ir.IsNotFound(r.Failed()["b"]))
	assert.Len(t, r.Records(), 2)
	assert.True(t, ir.IsNotFound(r.Err()))
}

func TestBatchResultAllOK(t *testing.T) {
	var r BatchResult
	r.Add("a", nil, nil)
	assert.True(t, r.OK())
	assert.NoError(t, r.Err())
	assert.Empty(t, r.Failed())
}

func TestSortedIDs(t *testing.T) {
	m := map[ir.ID]ir.Object{"b": nil, "a": nil, "c": nil}
	assert.Equal(t, []ir.ID{"a", "b", "c"}, SortedIDs(m))
}

func TestMissingError(t *testing.T) {
	assert.NoError(t, MissingError(nil))

	err := MissingError([]ir.ID{"x", "y"})
	assert.True(t, ir.IsNotFound(err))
	assert.Contains(t, err.Error(), "x, y")
}

func TestCheckChanges(t *testing.T) {
	s := schema.MustNew("Book", schema.Field{Name: "year", Kind: ir.KindInt, Indexed: true})

	assert.NoError(t, CheckChanges(s, "a", ir.Object{"year": ir.Int(1)}))
	assert.NoError(t, CheckChanges(s, "a", ir.Object{ir.IDField: ir.String("a")}))

	err := CheckChanges(s, "a", ir.Object{ir.IDField: ir.String("b")})
	assert.True(t, ir.IsInvalidRecord(err))

	err = CheckChanges(s, "a", ir.Object{"year": ir.String("x")})
	require.Error(t, err)
	var se *ir.StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, ir.ID("a"), se.ID)
	assert.Equal(t, "year", se.Field)
}
