package index

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shelf/internal/ir"
	"github.com/roach88/shelf/internal/query"
)

func yearIndex(t *testing.T) *Index {
	t.Helper()
	ix := New("year", ir.KindInt)
	require.NoError(t, ix.Add(ir.Int(1999), "a"))
	require.NoError(t, ix.Add(ir.Int(2014), "b"))
	require.NoError(t, ix.Add(ir.Int(2014), "c"))
	require.NoError(t, ix.Add(ir.Int(2020), "d"))
	require.NoError(t, ix.Add(ir.Null{}, "e"))
	require.NoError(t, ix.Add(nil, "f"))
	return ix
}

func TestIndex_AddAndCounts(t *testing.T) {
	ix := yearIndex(t)

	assert.Equal(t, 4, ix.Len(), "distinct keys: null, 1999, 2014, 2020")
	assert.Equal(t, 6, ix.Entries())
	assert.Equal(t, 2, ix.Count(ir.Int(2014)))
	assert.Equal(t, 2, ix.Count(nil))
	assert.Equal(t, 0, ix.Count(ir.String("x")))

	require.NoError(t, ix.Add(ir.Int(2014), "b"), "re-adding is a no-op")
	assert.Equal(t, 6, ix.Entries())
}

func TestIndex_AddKindMismatch(t *testing.T) {
	ix := New("year", ir.KindInt)
	err := ix.Add(ir.Float(1), "a")
	assert.ErrorIs(t, err, ErrKindMismatch)
	assert.Equal(t, 0, ix.Len())
}

func TestIndex_RemoveDropsEmptyBucket(t *testing.T) {
	ix := yearIndex(t)

	require.NoError(t, ix.Remove(ir.Int(1999), "a"))
	got, err := ix.LookupEq(ir.Int(1999))
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 3, ix.Len())

	var keys []ir.Value
	ix.Ascend(func(k ir.Value, _ Set) bool {
		keys = append(keys, k)
		return true
	})
	assert.Equal(t, []ir.Value{ir.Null{}, ir.Int(2014), ir.Int(2020)}, keys)

	assert.ErrorIs(t, ix.Remove(ir.Int(1999), "a"), ErrNotIndexed)
	assert.ErrorIs(t, ix.Remove(ir.Int(2014), "zzz"), ErrNotIndexed)
}

func TestIndex_LookupEq(t *testing.T) {
	ix := yearIndex(t)

	got, err := ix.LookupEq(ir.Int(2014))
	require.NoError(t, err)
	assert.Equal(t, NewSet("b", "c"), got)

	got, err = ix.LookupEq(nil)
	require.NoError(t, err)
	assert.Equal(t, NewSet("e", "f"), got)

	got.Add("zzz")
	again, err := ix.LookupEq(nil)
	require.NoError(t, err)
	assert.False(t, again.Has("zzz"), "lookups return copies")

	_, err = ix.LookupEq(ir.String("2014"))
	assert.True(t, ir.IsInvalidPredicate(err))
}

func TestIndex_LookupRange(t *testing.T) {
	ix := yearIndex(t)
	tests := []struct {
		op    query.Op
		value ir.Value
		want  Set
	}{
		{query.OpGt, ir.Int(2000), NewSet("b", "c", "d")},
		{query.OpGt, ir.Int(2014), NewSet("d")},
		{query.OpGte, ir.Int(2014), NewSet("b", "c", "d")},
		{query.OpLt, ir.Int(2014), NewSet("a")},
		{query.OpLte, ir.Int(2014), NewSet("a", "b", "c")},
		{query.OpLt, ir.Int(1000), NewSet()},
		{query.OpGte, ir.Int(3000), NewSet()},
		{query.OpLte, ir.Int(2015), NewSet("a", "b", "c")},
	}
	for _, tt := range tests {
		t.Run(string(tt.op)+" "+query.FormatLiteral(tt.value), func(t *testing.T) {
			got, err := ix.LookupRange(tt.op, tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIndex_LookupRangeRejects(t *testing.T) {
	ix := yearIndex(t)

	_, err := ix.LookupRange(query.OpGt, nil)
	assert.True(t, ir.IsInvalidPredicate(err), "null range operand")

	_, err = ix.LookupRange(query.OpGt, ir.Float(1))
	assert.True(t, ir.IsInvalidPredicate(err), "no int/float coercion")

	_, err = ix.LookupRange(query.OpEq, ir.Int(1))
	assert.True(t, ir.IsInvalidPredicate(err))
}

func TestIndex_LookupIn(t *testing.T) {
	ix := yearIndex(t)

	got, err := ix.LookupIn([]ir.Value{ir.Int(1999), ir.Int(2020), ir.Int(1)})
	require.NoError(t, err)
	assert.Equal(t, NewSet("a", "d"), got)

	got, err = ix.LookupIn([]ir.Value{ir.Null{}})
	require.NoError(t, err)
	assert.Equal(t, NewSet("e", "f"), got)

	got, err = ix.LookupIn(nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = ix.LookupIn([]ir.Value{ir.Int(1), ir.String("x")})
	assert.True(t, ir.IsInvalidPredicate(err))
}

func TestIndex_KeyOrderingPerKind(t *testing.T) {
	t0 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		kind ir.Kind
		in   []ir.Value
		want []ir.Value
	}{
		{"strings", ir.KindString, []ir.Value{ir.String("b"), ir.String("B"), ir.String("a")}, []ir.Value{ir.String("B"), ir.String("a"), ir.String("b")}},
		{"bools", ir.KindBool, []ir.Value{ir.Bool(true), ir.Bool(false)}, []ir.Value{ir.Bool(false), ir.Bool(true)}},
		{"floats", ir.KindFloat, []ir.Value{ir.Float(2.5), ir.Float(-1), ir.Float(0)}, []ir.Value{ir.Float(-1), ir.Float(0), ir.Float(2.5)}},
		{"times", ir.KindTime, []ir.Value{ir.NewTime(t0.Add(time.Hour)), ir.NewTime(t0)}, []ir.Value{ir.NewTime(t0), ir.NewTime(t0.Add(time.Hour))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ix := New("f", tt.kind)
			for i, v := range tt.in {
				require.NoError(t, ix.Add(v, ir.ID(string(rune('a'+i)))))
			}
			var keys []ir.Value
			ix.Ascend(func(k ir.Value, _ Set) bool {
				keys = append(keys, k)
				return true
			})
			assert.Equal(t, tt.want, keys)
		})
	}
}

func TestIndex_Clear(t *testing.T) {
	ix := yearIndex(t)
	ix.Clear()
	assert.Equal(t, 0, ix.Len())
	assert.Equal(t, 0, ix.Entries())
}
