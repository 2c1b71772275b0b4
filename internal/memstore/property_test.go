package memstore

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shelf/internal/ir"
	"github.com/roach88/shelf/internal/query"
	"github.com/roach88/shelf/internal/testutil"
)

// oracle is the brute-force answer: every live record checked with
// query.Matches.
func oracle(t *testing.T, s *Store, p query.Predicate) []ir.ID {
	t.Helper()
	all, err := s.FetchAll(context.Background(), nil)
	require.NoError(t, err)
	var out []ir.ID
	for _, rec := range all {
		if query.Matches(p, rec) {
			id, _ := rec.ID()
			out = append(out, id)
		}
	}
	return out
}

// mutate applies n random creates, updates and deletes over a pool of 20
// identifiers. Errors are expected (collisions, missing ids) and ignored.
func mutate(s *Store, r *testutil.Random, n int) {
	ctx := context.Background()
	for range n {
		id := r.ID(20)
		switch r.Intn(5) {
		case 0, 1:
			_, _ = s.Create(ctx, r.Record(id))
		case 2, 3:
			_, _ = s.Update(ctx, id, r.Changes())
		default:
			_ = s.Delete(ctx, id)
		}
	}
}

func TestProperty_IndexConsistencyAfterRandomMutations(t *testing.T) {
	for seed := uint64(1); seed <= 20; seed++ {
		t.Run(fmt.Sprintf("seed_%d", seed), func(t *testing.T) {
			s := newBookStore(t, Options{})
			r := testutil.NewRandom(seed)
			for range 10 {
				mutate(s, r, 30)
				require.NoError(t, s.CheckConsistency())
			}
		})
	}
}

func TestProperty_EvaluatorMatchesOracle(t *testing.T) {
	ctx := context.Background()
	for seed := uint64(1); seed <= 10; seed++ {
		t.Run(fmt.Sprintf("seed_%d", seed), func(t *testing.T) {
			s := newBookStore(t, Options{})
			r := testutil.NewRandom(seed)
			mutate(s, r, 80)

			for range 100 {
				p := r.Predicate(3)
				ids, err := s.Evaluate(ctx, p)
				require.NoError(t, err, query.String(p))
				assert.ElementsMatch(t, oracle(t, s, p), ids.Sorted(), query.String(p))
			}
		})
	}
}

func TestProperty_ShortCircuitNeverChangesResults(t *testing.T) {
	ctx := context.Background()
	r1, r2 := testutil.NewRandom(99), testutil.NewRandom(99)
	on := newBookStore(t, Options{})
	off := newBookStore(t, Options{DisableShortCircuit: true})
	mutate(on, r1, 100)
	mutate(off, r2, 100)

	preds := testutil.NewRandom(5)
	for range 200 {
		p := preds.Predicate(4)
		a, err := on.Evaluate(ctx, p)
		require.NoError(t, err)
		b, err := off.Evaluate(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, a.Sorted(), b.Sorted(), query.String(p))
	}
}

func TestProperty_ConcurrentReadersAndWriters(t *testing.T) {
	ctx := context.Background()
	s := newBookStore(t, Options{})

	var wg sync.WaitGroup
	for w := range 4 {
		wg.Add(1)
		go func(seed uint64) {
			defer wg.Done()
			mutate(s, testutil.NewRandom(seed), 200)
		}(uint64(w + 1))
	}
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := testutil.NewRandom(1234)
			for range 200 {
				_, err := s.Evaluate(ctx, r.Predicate(2))
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	require.NoError(t, s.CheckConsistency())
}
