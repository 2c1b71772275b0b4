package kvdao

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shelf/internal/dao"
	"github.com/roach88/shelf/internal/dao/daotest"
	"github.com/roach88/shelf/internal/ir"
	"github.com/roach88/shelf/internal/query"
	"github.com/roach88/shelf/internal/testutil"
)

// mapRecords is the simplest Records: a map guarded by a mutex.
type mapRecords struct {
	mu     sync.Mutex
	recs   map[ir.ID]ir.Object
	loads  int
	closed bool
	fail   error
}

func newMapRecords() *mapRecords {
	return &mapRecords{recs: make(map[ir.ID]ir.Object)}
}

func (m *mapRecords) Get(_ context.Context, id ir.ID) (ir.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[id]
	if !ok {
		return nil, ir.NotFound(id)
	}
	return rec.Clone(), nil
}

func (m *mapRecords) Insert(_ context.Context, id ir.ID, rec ir.Object) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recs[id]; ok {
		return ir.AlreadyExists(id)
	}
	m.recs[id] = rec.Clone()
	return nil
}

func (m *mapRecords) Replace(_ context.Context, id ir.ID, rec ir.Object) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recs[id]; !ok {
		return ir.NotFound(id)
	}
	m.recs[id] = rec.Clone()
	return nil
}

func (m *mapRecords) Remove(_ context.Context, id ir.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recs[id]; !ok {
		return ir.NotFound(id)
	}
	delete(m.recs, id)
	return nil
}

func (m *mapRecords) All(context.Context) ([]ir.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	m.loads++
	out := make([]ir.Object, 0, len(m.recs))
	for _, rec := range m.recs {
		out = append(out, rec.Clone())
	}
	return out, nil
}

func (m *mapRecords) Clear(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.recs)
	m.recs = make(map[ir.ID]ir.Object)
	return n, nil
}

func (m *mapRecords) Close() error {
	m.closed = true
	return nil
}

func newStore(records Records, policy dao.Policy) *Store {
	return New(testutil.BookSchema(), records, Options{
		Policy: policy,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestConformance(t *testing.T) {
	daotest.Run(t, func(t *testing.T, policy dao.Policy) dao.Dao {
		s := newStore(newMapRecords(), policy)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestQueryLoadsSnapshot(t *testing.T) {
	ctx := context.Background()
	recs := newMapRecords()
	s := newStore(recs, dao.Policy{})
	require.NoError(t, s.CreateMany(ctx, testutil.SampleBooks()).Err())

	got, err := s.Query(ctx, query.Select{Where: query.Gt("year", ir.Int(1990))})
	require.NoError(t, err)
	assert.Equal(t, []ir.ID{"b3", "b4", "b6", "b8"}, daotest.IDs(got))

	n, err := s.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, 2, recs.loads)
}

func TestQueryValidatesBeforeLoading(t *testing.T) {
	ctx := context.Background()
	recs := newMapRecords()
	s := newStore(recs, dao.Policy{})

	_, err := s.Query(ctx, query.Select{Where: query.Eq("isbn", ir.String("x"))})
	assert.True(t, ir.IsInvalidPredicate(err))
	_, err = s.Count(ctx, query.Lt("tags", ir.String("x")))
	assert.True(t, ir.IsInvalidPredicate(err))
	assert.Zero(t, recs.loads)
}

func TestLoadErrorsPropagate(t *testing.T) {
	ctx := context.Background()
	recs := newMapRecords()
	recs.fail = errors.New("disk on fire")
	s := newStore(recs, dao.Policy{})

	_, err := s.Query(ctx, query.Select{})
	assert.ErrorContains(t, err, "disk on fire")
	_, err = s.FetchAll(ctx, nil)
	assert.Error(t, err)
}

func TestCorruptStoredRecordFailsQuery(t *testing.T) {
	ctx := context.Background()
	recs := newMapRecords()
	recs.recs["x1"] = ir.Object{ir.IDField: ir.String("x1"), "title": ir.Int(3), "year": ir.Int(1)}
	s := newStore(recs, dao.Policy{})

	_, err := s.Query(ctx, query.Select{})
	assert.True(t, ir.IsInvalidRecord(err))
}

func TestCloseDelegates(t *testing.T) {
	recs := newMapRecords()
	s := newStore(recs, dao.Policy{})
	require.NoError(t, s.Close())
	assert.True(t, recs.closed)
}
