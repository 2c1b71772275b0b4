package metrics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shelf/internal/dao"
	"github.com/roach88/shelf/internal/dao/daotest"
	"github.com/roach88/shelf/internal/ir"
	"github.com/roach88/shelf/internal/memstore"
	"github.com/roach88/shelf/internal/query"
	shelftest "github.com/roach88/shelf/internal/testutil"
)

func newWrapped(t *testing.T, policy dao.Policy) (*Store, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	back := memstore.New(shelftest.BookSchema(), memstore.Options{
		Policy: policy,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return Wrap(back, NewCollectors(reg)), reg
}

func TestConformance(t *testing.T) {
	daotest.Run(t, func(t *testing.T, policy dao.Policy) dao.Dao {
		s, _ := newWrapped(t, policy)
		return s
	})
}

func TestStatus(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{ir.NotFound("x"), "not_found"},
		{ir.InvalidPredicate("year", "bad"), "invalid_predicate"},
		{errors.New("disk"), "error"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Status(tt.err))
		})
	}
}

func TestCountsOperations(t *testing.T) {
	ctx := context.Background()
	s, reg := newWrapped(t, dao.Policy{})
	c := s.c

	_, err := s.Create(ctx, shelftest.Book("b1", "Dune", 1965))
	require.NoError(t, err)
	_, err = s.Create(ctx, shelftest.Book("b1", "Dune", 1965))
	require.Error(t, err)
	_, err = s.Fetch(ctx, "zz", nil)
	require.Error(t, err)
	_, err = s.Query(ctx, query.Select{Where: query.Eq("year", ir.Int(1965))})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.OperationsTotal.WithLabelValues("Book", "create", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.OperationsTotal.WithLabelValues("Book", "create", "already_exists")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.OperationsTotal.WithLabelValues("Book", "fetch", "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.OperationsTotal.WithLabelValues("Book", "query", "ok")))

	assert.Equal(t, 3, testutil.CollectAndCount(c.OperationDuration))

	expected := `
# HELP shelf_operations_total Total number of store operations
# TYPE shelf_operations_total counter
shelf_operations_total{collection="Book",op="create",status="already_exists"} 1
shelf_operations_total{collection="Book",op="create",status="ok"} 1
shelf_operations_total{collection="Book",op="fetch",status="not_found"} 1
shelf_operations_total{collection="Book",op="query",status="ok"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "shelf_operations_total"))
}

func TestBatchOutcomes(t *testing.T) {
	ctx := context.Background()
	s, _ := newWrapped(t, dao.Policy{})
	c := s.c

	res := s.CreateMany(ctx, []ir.Object{
		shelftest.Book("a", "A", 1),
		shelftest.Book("a", "A", 1),
		shelftest.Book("b", "B", 2),
	})
	require.False(t, res.OK())

	assert.Equal(t, 1.0, testutil.ToFloat64(c.OperationsTotal.WithLabelValues("Book", "create_many", "partial")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.BatchItemsTotal.WithLabelValues("Book", "create_many", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.BatchItemsTotal.WithLabelValues("Book", "create_many", "already_exists")))

	s.DeleteMany(ctx, []ir.ID{"a", "b"})
	assert.Equal(t, 1.0, testutil.ToFloat64(c.OperationsTotal.WithLabelValues("Book", "delete_many", "ok")))
}

func TestCollectorsAreRegistryScoped(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollectors(reg)
	assert.Panics(t, func() { NewCollectors(reg) }, "duplicate registration")
	assert.NotPanics(t, func() { NewCollectors(prometheus.NewRegistry()) })
}
