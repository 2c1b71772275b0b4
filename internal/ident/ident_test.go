package ident

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shelf/internal/ir"
)

func TestUUIDv7Generator(t *testing.T) {
	gen := UUIDv7Generator{}

	a, err := gen.Generate(nil)
	require.NoError(t, err)
	b, err := gen.Generate(nil)
	require.NoError(t, err)

	assert.Len(t, string(a), 36)
	assert.NotEqual(t, a, b)

	parsed, err := uuid.Parse(string(a))
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestContentGenerator(t *testing.T) {
	gen := ContentGenerator{}
	rec := ir.Object{"title": ir.String("Dune")}

	a, err := gen.Generate(rec)
	require.NoError(t, err)
	b, err := gen.Generate(rec.Clone())
	require.NoError(t, err)
	c, err := gen.Generate(ir.Object{"title": ir.String("Emma")})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestSuppliedGenerator(t *testing.T) {
	_, err := SuppliedGenerator{}.Generate(ir.Object{})
	assert.True(t, ir.IsInvalidRecord(err))
}

func TestFixedGenerator(t *testing.T) {
	gen := NewFixedGenerator("a", "b")

	id, err := gen.Generate(nil)
	require.NoError(t, err)
	assert.Equal(t, ir.ID("a"), id)

	id, err = gen.Generate(nil)
	require.NoError(t, err)
	assert.Equal(t, ir.ID("b"), id)

	_, err = gen.Generate(nil)
	assert.Error(t, err)
}

func TestSequenceGenerator(t *testing.T) {
	gen := NewSequenceGenerator("book")

	var wg sync.WaitGroup
	seen := make(chan ir.ID, 100)
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := gen.Generate(nil)
			assert.NoError(t, err)
			seen <- id
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[ir.ID]bool)
	for id := range seen {
		unique[id] = true
	}
	assert.Len(t, unique, 100)

	gen.Reset()
	id, err := gen.Generate(nil)
	require.NoError(t, err)
	assert.Equal(t, ir.ID("book-000001"), id)
}

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		want Generator
	}{
		{"", UUIDv7Generator{}},
		{"uuid", UUIDv7Generator{}},
		{"content", ContentGenerator{}},
		{"supplied", SuppliedGenerator{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Parse("random")
	assert.Error(t, err)
}

func TestAssign(t *testing.T) {
	rec := ir.Object{"title": ir.String("Dune")}

	out, id, err := Assign(NewFixedGenerator("g1"), rec)
	require.NoError(t, err)
	assert.Equal(t, ir.ID("g1"), id)
	assert.Equal(t, ir.String("g1"), out[ir.IDField])
	assert.NotContains(t, rec, ir.IDField, "input must not be modified")

	own := ir.Object{ir.IDField: ir.String("mine")}
	_, id, err = Assign(SuppliedGenerator{}, own)
	require.NoError(t, err)
	assert.Equal(t, ir.ID("mine"), id)

	_, _, err = Assign(SuppliedGenerator{}, rec)
	assert.True(t, ir.IsInvalidRecord(err))

	_, _, err = Assign(NewFixedGenerator(""), rec)
	assert.True(t, ir.IsInvalidRecord(err))
}
