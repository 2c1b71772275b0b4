package cachestore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shelf/internal/dao"
	"github.com/roach88/shelf/internal/dao/daotest"
	"github.com/roach88/shelf/internal/ir"
	"github.com/roach88/shelf/internal/memstore"
	"github.com/roach88/shelf/internal/query"
	"github.com/roach88/shelf/internal/sqlstore"
	"github.com/roach88/shelf/internal/testutil"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// countingDao records how often reads reach the back store.
type countingDao struct {
	dao.Dao
	reads atomic.Int64
}

func (c *countingDao) Fetch(ctx context.Context, id ir.ID, fields []string) (ir.Object, error) {
	c.reads.Add(1)
	return c.Dao.Fetch(ctx, id, fields)
}

func (c *countingDao) FetchAll(ctx context.Context, fields []string) ([]ir.Object, error) {
	c.reads.Add(1)
	return c.Dao.FetchAll(ctx, fields)
}

func (c *countingDao) Query(ctx context.Context, sel query.Select) ([]ir.Object, error) {
	c.reads.Add(1)
	return c.Dao.Query(ctx, sel)
}

// revisingDao stamps every update it accepts, standing in for a back store
// that rewrites records on write.
type revisingDao struct {
	dao.Dao
}

func (r revisingDao) Update(ctx context.Context, id ir.ID, changes ir.Object) (ir.Object, error) {
	return r.Dao.Update(ctx, id, changes.Merge(ir.Object{"notes": ir.String("revised")}))
}

func (r revisingDao) UpdateMany(ctx context.Context, changes map[ir.ID]ir.Object) dao.BatchResult {
	stamped := make(map[ir.ID]ir.Object, len(changes))
	for id, c := range changes {
		stamped[id] = c.Merge(ir.Object{"notes": ir.String("revised")})
	}
	return r.Dao.UpdateMany(ctx, stamped)
}

func memBack(policy dao.Policy) *memstore.Store {
	return memstore.New(testutil.BookSchema(), memstore.Options{Policy: policy, Logger: quiet()})
}

func TestConformance_MemoryBack(t *testing.T) {
	daotest.Run(t, func(t *testing.T, policy dao.Policy) dao.Dao {
		s, err := Open(context.Background(), memBack(policy), Options{Policy: policy, Logger: quiet()})
		require.NoError(t, err)
		return s
	})
}

func TestConformance_SQLiteBack(t *testing.T) {
	daotest.Run(t, func(t *testing.T, policy dao.Policy) dao.Dao {
		back, err := sqlstore.Open(context.Background(), filepath.Join(t.TempDir(), "cache.db"),
			testutil.BookSchema(), sqlstore.Options{Policy: policy, Logger: quiet()})
		require.NoError(t, err)
		s, err := Open(context.Background(), back, Options{Policy: policy, Logger: quiet()})
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestOpenPrefetches(t *testing.T) {
	ctx := context.Background()
	back := memBack(dao.Policy{})
	require.NoError(t, back.CreateMany(ctx, testutil.SampleBooks()).Err())

	counting := &countingDao{Dao: back}
	s, err := Open(ctx, counting, Options{Logger: quiet()})
	require.NoError(t, err)
	assert.EqualValues(t, 1, counting.reads.Load())

	got, err := s.Query(ctx, query.Select{Where: query.Eq("year", ir.Int(1965))})
	require.NoError(t, err)
	assert.Equal(t, []ir.ID{"b1"}, daotest.IDs(got))

	_, err = s.Fetch(ctx, "b4", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, counting.reads.Load(), "reads must not reach the back store")
}

func TestWritesReachBack(t *testing.T) {
	ctx := context.Background()
	back := memBack(dao.Policy{})
	s, err := Open(ctx, back, Options{Logger: quiet()})
	require.NoError(t, err)

	_, err = s.Create(ctx, testutil.Book("x1", "Dune", 1965))
	require.NoError(t, err)
	_, err = s.Update(ctx, "x1", ir.Object{"year": ir.Int(1966)})
	require.NoError(t, err)

	got, err := back.Fetch(ctx, "x1", nil)
	require.NoError(t, err)
	assert.Equal(t, ir.Int(1966), got["year"])

	require.NoError(t, s.Delete(ctx, "x1"))
	ok, err := back.Exists(ctx, "x1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRejectedWriteLeavesCacheAlone(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, memBack(dao.Policy{}), Options{Logger: quiet()})
	require.NoError(t, err)
	require.NoError(t, s.CreateMany(ctx, testutil.SampleBooks()).Err())

	_, err = s.Update(ctx, "b1", ir.Object{"year": ir.String("soon")})
	assert.True(t, ir.IsInvalidRecord(err))

	got, err := s.Fetch(ctx, "b1", nil)
	require.NoError(t, err)
	assert.Equal(t, ir.Int(1965), got["year"])
}

func TestOutOfBandChanges(t *testing.T) {
	ctx := context.Background()
	back := memBack(dao.Policy{})
	s, err := Open(ctx, back, Options{Logger: quiet()})
	require.NoError(t, err)

	// written behind the cache's back
	_, err = back.Create(ctx, testutil.Book("x1", "Dune", 1965))
	require.NoError(t, err)

	ok, err := s.Exists(ctx, "x1")
	require.NoError(t, err)
	assert.False(t, ok, "cache does not see out-of-band writes")

	// the back store accepts the update, the cache cannot mirror it
	_, err = s.Update(ctx, "x1", ir.Object{"year": ir.Int(1966)})
	require.NoError(t, err)

	got, err := s.Fetch(ctx, "x1", nil)
	require.NoError(t, err, "stale cache reloads before reading")
	assert.Equal(t, ir.Int(1966), got["year"])

	_, err = back.Create(ctx, testutil.Book("x2", "Emma", 1815))
	require.NoError(t, err)
	require.NoError(t, s.Refresh(ctx))
	n, err := s.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestBatchMirrorsOnlySuccesses(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, memBack(dao.Policy{}), Options{Logger: quiet()})
	require.NoError(t, err)

	res := s.CreateMany(ctx, []ir.Object{
		testutil.Book("a", "A", 1),
		testutil.Book("a", "dup", 2),
		{"title": ir.Int(3)},
	})
	assert.Equal(t, []ir.ID{"a"}, res.Succeeded())

	all, err := s.FetchAll(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, ir.String("A"), all[0]["title"])

	del := s.DeleteMany(ctx, []ir.ID{"a", "zz"})
	assert.Equal(t, []ir.ID{"a"}, del.Succeeded())
	n, err := s.Count(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpdatesMirrorBackRecord(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		update func(s *Store) error
	}{
		{"update", func(s *Store) error {
			_, err := s.Update(ctx, "b1", ir.Object{"year": ir.Int(1966)})
			return err
		}},
		{"update many", func(s *Store) error {
			return s.UpdateMany(ctx, map[ir.ID]ir.Object{"b1": {"year": ir.Int(1966)}}).Err()
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			back := memBack(dao.Policy{})
			require.NoError(t, back.CreateMany(ctx, testutil.SampleBooks()).Err())
			s, err := Open(ctx, revisingDao{Dao: back}, Options{Logger: quiet()})
			require.NoError(t, err)

			require.NoError(t, tt.update(s))

			want, err := back.Fetch(ctx, "b1", nil)
			require.NoError(t, err)
			got, err := s.Fetch(ctx, "b1", nil)
			require.NoError(t, err)
			assert.Equal(t, want, got)
			assert.Equal(t, ir.String("revised"), got["notes"])

			found, err := s.Query(ctx, query.Select{Where: query.Eq("year", ir.Int(1966))})
			require.NoError(t, err)
			assert.Equal(t, []ir.ID{"b1"}, daotest.IDs(found))
		})
	}
}
