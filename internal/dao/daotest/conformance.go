// Package daotest is the behavioural suite every dao.Dao implementation
// runs, so that backends stay interchangeable.
package daotest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shelf/internal/dao"
	"github.com/roach88/shelf/internal/ir"
	"github.com/roach88/shelf/internal/query"
	"github.com/roach88/shelf/internal/testutil"
)

// Factory opens an empty store over testutil.BookSchema with the given
// policy. The store must be closed by the factory's own t.Cleanup.
type Factory func(t *testing.T, policy dao.Policy) dao.Dao

// Run executes the conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateFetch", func(t *testing.T) { testCreateFetch(t, newStore) })
	t.Run("CreateErrors", func(t *testing.T) { testCreateErrors(t, newStore) })
	t.Run("UpdateMovesIndexEntries", func(t *testing.T) { testUpdate(t, newStore) })
	t.Run("DeletePolicies", func(t *testing.T) { testDelete(t, newStore) })
	t.Run("FetchManyPolicies", func(t *testing.T) { testFetchMany(t, newStore) })
	t.Run("Batch", func(t *testing.T) { testBatch(t, newStore) })
	t.Run("QueryOperators", func(t *testing.T) { testQueryOperators(t, newStore) })
	t.Run("QuerySortPaginate", func(t *testing.T) { testQuerySortPaginate(t, newStore) })
	t.Run("QueryErrors", func(t *testing.T) { testQueryErrors(t, newStore) })
	t.Run("RandomAgainstOracle", func(t *testing.T) { testRandomAgainstOracle(t, newStore) })
}

func seeded(t *testing.T, newStore Factory, policy dao.Policy) dao.Dao {
	t.Helper()
	s := newStore(t, policy)
	res := s.CreateMany(context.Background(), testutil.SampleBooks())
	require.NoError(t, res.Err())
	return s
}

// IDs returns the identifiers of recs in order.
func IDs(recs []ir.Object) []ir.ID {
	out := make([]ir.ID, len(recs))
	for i, rec := range recs {
		out[i], _ = rec.ID()
	}
	return out
}

func testCreateFetch(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, dao.Policy{})

	for _, rec := range testutil.SampleBooks() {
		created, err := s.Create(ctx, rec)
		require.NoError(t, err)
		assert.True(t, ir.Equal(rec, created))

		id, _ := rec.ID()
		got, err := s.Fetch(ctx, id, nil)
		require.NoError(t, err)
		assert.True(t, ir.Equal(rec, got), "round trip changed %s:\n want %v\n got  %v", id, rec, got)
	}

	got, err := s.Fetch(ctx, "b2", []string{"published"})
	require.NoError(t, err)
	assert.Equal(t, []string{ir.IDField, "published"}, got.Keys())

	_, err = s.Fetch(ctx, "b2", []string{"isbn"})
	assert.True(t, ir.IsInvalidFieldProjection(err))

	_, err = s.Fetch(ctx, "zz", nil)
	assert.True(t, ir.IsNotFound(err))

	ok, err := s.Exists(ctx, "b3")
	require.NoError(t, err)
	assert.True(t, ok)

	generated, err := s.Create(ctx, testutil.Book("", "Untitled", 2020))
	require.NoError(t, err)
	id, ok := generated.ID()
	require.True(t, ok)
	ok, err = s.Exists(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
}

func testCreateErrors(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := seeded(t, newStore, dao.Policy{})

	_, err := s.Create(ctx, testutil.Book("b1", "Again", 2000))
	assert.True(t, ir.IsAlreadyExists(err), "got %v", err)

	_, err = s.Create(ctx, ir.Object{"title": ir.String("no year")})
	assert.True(t, ir.IsInvalidRecord(err), "got %v", err)

	_, err = s.Create(ctx, testutil.With(testutil.Book("x", "t", 1), "year", ir.Float(1.5)))
	assert.True(t, ir.IsInvalidRecord(err), "got %v", err)

	n, err := s.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
}

func testUpdate(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := seeded(t, newStore, dao.Policy{})

	updated, err := s.Update(ctx, "b1", ir.Object{"year": ir.Int(2015), "rating": ir.Null{}})
	require.NoError(t, err)
	assert.Equal(t, ir.Int(2015), updated["year"])
	assert.Equal(t, ir.String("Dune"), updated["title"])

	got, err := s.Query(ctx, query.Select{Where: query.Eq("year", ir.Int(1965))})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.Query(ctx, query.Select{Where: query.Gt("year", ir.Int(2010))})
	require.NoError(t, err)
	assert.Equal(t, []ir.ID{"b1"}, IDs(got))

	n, err := s.Count(ctx, query.Gt("rating", ir.Float(0)))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.Update(ctx, "zz", ir.Object{"year": ir.Int(1)})
	assert.True(t, ir.IsNotFound(err), "got %v", err)

	_, err = s.Update(ctx, "b1", ir.Object{"year": ir.String("x")})
	assert.True(t, ir.IsInvalidRecord(err), "got %v", err)

	_, err = s.Update(ctx, "b1", ir.Object{ir.IDField: ir.String("b9")})
	assert.True(t, ir.IsInvalidRecord(err), "got %v", err)
}

func testDelete(t *testing.T, newStore Factory) {
	ctx := context.Background()

	strict := seeded(t, newStore, dao.Policy{})
	require.NoError(t, strict.Delete(ctx, "b1"))
	assert.True(t, ir.IsNotFound(strict.Delete(ctx, "b1")))
	_, err := strict.Fetch(ctx, "b1", nil)
	assert.True(t, ir.IsNotFound(err))

	lenient := seeded(t, newStore, dao.Policy{IgnoreMissingDelete: true})
	require.NoError(t, lenient.Delete(ctx, "b1"))
	assert.NoError(t, lenient.Delete(ctx, "b1"))

	n, err := lenient.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	all, err := lenient.FetchAll(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func testFetchMany(t *testing.T, newStore Factory) {
	ctx := context.Background()
	ids := []ir.ID{"b2", "nope", "b1"}

	lenient := seeded(t, newStore, dao.Policy{})
	got, err := lenient.FetchMany(ctx, ids, []string{"year"})
	require.NoError(t, err)
	assert.Equal(t, map[ir.ID]ir.Object{
		"b1": {ir.IDField: ir.String("b1"), "year": ir.Int(1965)},
		"b2": {ir.IDField: ir.String("b2"), "year": ir.Int(1984)},
	}, got)

	strict := seeded(t, newStore, dao.Policy{StrictFetchMany: true})
	_, err = strict.FetchMany(ctx, ids, nil)
	assert.True(t, ir.IsNotFound(err), "got %v", err)

	exists, err := strict.ExistsMany(ctx, ids)
	require.NoError(t, err)
	assert.Equal(t, map[ir.ID]bool{"b1": true, "b2": true, "nope": false}, exists)
}

func testBatch(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, dao.Policy{})

	created := s.CreateMany(ctx, []ir.Object{
		testutil.Book("x1", "A", 2001),
		testutil.Book("x1", "dup", 2002),
		testutil.Book("x2", "B", 2003),
	})
	require.Len(t, created.Items, 3)
	assert.Equal(t, []ir.ID{"x1", "x2"}, created.Succeeded())
	assert.True(t, ir.IsAlreadyExists(created.Items[1].Err))

	updated := s.UpdateMany(ctx, map[ir.ID]ir.Object{
		"x2": {"title": ir.String("B2")},
		"x0": {"title": ir.String("none")},
	})
	assert.Equal(t, []ir.ID{"x2"}, updated.Succeeded())
	assert.True(t, ir.IsNotFound(updated.Failed()["x0"]))

	deleted := s.DeleteMany(ctx, []ir.ID{"x2", "x2"})
	assert.Equal(t, []ir.ID{"x2"}, deleted.Succeeded())
	assert.True(t, ir.IsNotFound(deleted.Items[1].Err))
}

func testQueryOperators(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := seeded(t, newStore, dao.Policy{})
	march1984 := ir.NewTime(time.Date(1984, time.March, 1, 0, 0, 0, 0, time.UTC))

	tests := []struct {
		where query.Predicate
		want  []ir.ID
	}{
		{nil, []ir.ID{"b1", "b2", "b3", "b4", "b5", "b6", "b7", "b8"}},
		{query.Eq("title", ir.String("Dune")), []ir.ID{"b1"}},
		{query.Neq("instock", ir.Bool(true)), []ir.ID{"b1", "b2", "b4", "b5", "b6", "b7", "b8"}},
		{query.Eq("instock", ir.Null{}), []ir.ID{"b1", "b2", "b4", "b5", "b6", "b8"}},
		{query.Lt("year", ir.Int(1970)), []ir.ID{"b1", "b5"}},
		{query.Lte("year", ir.Int(1969)), []ir.ID{"b1", "b5"}},
		{query.Gt("year", ir.Int(1999)), []ir.ID{"b4", "b8"}},
		{query.Gte("rating", ir.Float(4.1)), []ir.ID{"b1", "b5"}},
		{query.Gte("published", march1984), []ir.ID{"b2"}},
		{query.Lt("instock", ir.Bool(true)), []ir.ID{"b7"}},
		{query.In("year", ir.Int(1965), ir.Int(2008), ir.Int(3)), []ir.ID{"b1", "b4"}},
		{query.In("rating", ir.Float(4.5), ir.Null{}), []ir.ID{"b1", "b2", "b3", "b4", "b6", "b7", "b8"}},
		{query.NotIn("year", ir.Int(1965), ir.Int(2008)), []ir.ID{"b2", "b3", "b5", "b6", "b7", "b8"}},
		{query.NotIn("rating", ir.Null{}), []ir.ID{"b1", "b5"}},
		{query.Contains("tags", ir.String("scifi")), []ir.ID{"b1", "b2"}},
		{query.Contains("tags", ir.String("romance")), nil},
		{query.Contains("meta", ir.String("pages")), []ir.ID{"b4"}},
		{query.Contains("meta", ir.String("series")), []ir.ID{"b4"}},
		{
			query.Or(query.Gt("year", ir.Int(2000)), query.Eq("year", ir.Int(1999))),
			[]ir.ID{"b4", "b6"},
		},
		{
			query.And(query.Contains("tags", ir.String("scifi")), query.Gt("year", ir.Int(1970))),
			[]ir.ID{"b2"},
		},
		{
			query.And(query.Eq("year", ir.Int(1)), query.Contains("tags", ir.String("scifi"))),
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(query.String(tt.where), func(t *testing.T) {
			got, err := s.Query(ctx, query.Select{Where: tt.where})
			require.NoError(t, err)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, IDs(got))

			n, err := s.Count(ctx, tt.where)
			require.NoError(t, err)
			assert.Equal(t, len(tt.want), n)
		})
	}
}

func testQuerySortPaginate(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := seeded(t, newStore, dao.Policy{})

	tests := []struct {
		name string
		sel  query.Select
		want []ir.ID
	}{
		{"year descending", query.Select{OrderBy: []query.Order{{Field: "year", Desc: true}}}, []ir.ID{"b4", "b8", "b6", "b3", "b7", "b2", "b5", "b1"}},
		{"nulls first ascending", query.Select{OrderBy: []query.Order{{Field: "rating"}}, Limit: 3}, []ir.ID{"b2", "b3", "b4"}},
		{"nulls last descending", query.Select{OrderBy: []query.Order{{Field: "rating", Desc: true}}, Limit: 3}, []ir.ID{"b1", "b5", "b2"}},
		{"offset", query.Select{Offset: 6}, []ir.ID{"b7", "b8"}},
		{"offset past end", query.Select{Offset: 20}, []ir.ID{}},
		{"limit and offset", query.Select{Limit: 2, Offset: 1}, []ir.ID{"b2", "b3"}},
		{"first", query.Select{Where: query.Gt("year", ir.Int(1980)), First: true}, []ir.ID{"b2"}},
		{"id descending", query.Select{OrderBy: []query.Order{{Field: ir.IDField, Desc: true}}, Limit: 2}, []ir.ID{"b8", "b7"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Query(ctx, tt.sel)
			require.NoError(t, err)
			assert.Equal(t, tt.want, IDs(got))
		})
	}

	projected, err := s.Query(ctx, query.Select{Fields: []string{"title"}, Limit: 1})
	require.NoError(t, err)
	require.Len(t, projected, 1)
	assert.Equal(t, ir.Object{ir.IDField: ir.String("b1"), "title": ir.String("Dune")}, projected[0])
}

func testQueryErrors(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := seeded(t, newStore, dao.Policy{})

	tests := []struct {
		name  string
		sel   query.Select
		check func(error) bool
	}{
		{"unknown field", query.Select{Where: query.Eq("isbn", ir.String("x"))}, ir.IsInvalidPredicate},
		{"unindexed field", query.Select{Where: query.Eq("notes", ir.String("x"))}, ir.IsInvalidPredicate},
		{"kind mismatch", query.Select{Where: query.Lt("year", ir.Float(1))}, ir.IsInvalidPredicate},
		{"null range", query.Select{Where: query.Lt("year", ir.Null{})}, ir.IsInvalidPredicate},
		{"contains on scalar", query.Select{Where: query.Contains("year", ir.Int(1))}, ir.IsInvalidPredicate},
		{"unknown projection", query.Select{Fields: []string{"isbn"}}, ir.IsInvalidFieldProjection},
		{"unknown sort", query.Select{OrderBy: []query.Order{{Field: "isbn"}}}, ir.IsInvalidFieldProjection},
		{"unindexed sort", query.Select{OrderBy: []query.Order{{Field: "notes"}}}, ir.IsInvalidPredicate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Query(ctx, tt.sel)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
		})
	}
}

func testRandomAgainstOracle(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, dao.Policy{})
	r := testutil.NewRandom(2024)

	for range 60 {
		id := r.ID(20)
		switch r.Intn(4) {
		case 0, 1:
			_, _ = s.Create(ctx, r.Record(id))
		case 2:
			_, _ = s.Update(ctx, id, r.Changes())
		default:
			_ = s.Delete(ctx, id)
		}
	}

	all, err := s.FetchAll(ctx, nil)
	require.NoError(t, err)

	for i := range 60 {
		p := r.Predicate(3)
		var want []ir.ID
		for _, rec := range all {
			if query.Matches(p, rec) {
				id, _ := rec.ID()
				want = append(want, id)
			}
		}
		got, err := s.Query(ctx, query.Select{Where: p})
		require.NoError(t, err, query.String(p))
		assert.ElementsMatch(t, want, IDs(got), fmt.Sprintf("predicate %d: %s", i, query.String(p)))
	}
}
