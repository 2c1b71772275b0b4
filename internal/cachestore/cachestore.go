// Package cachestore puts an in-memory indexed copy of a collection in
// front of another Dao. Every record is prefetched on open; reads are
// answered from memory and writes go to the back store first, then are
// mirrored into the cache.
package cachestore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/shelf/internal/dao"
	"github.com/roach88/shelf/internal/ident"
	"github.com/roach88/shelf/internal/ir"
	"github.com/roach88/shelf/internal/memstore"
	"github.com/roach88/shelf/internal/query"
	"github.com/roach88/shelf/internal/schema"
)

// Options configures a Store.
type Options struct {
	// Policy must match the back store's policy for FetchMany to behave
	// the same through the cache.
	Policy dao.Policy

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Store is a write-through cache over a back Dao.
//
// Writes hold the lock across the back call and the mirror, so the cache
// applies mutations in the order the back store did. If mirroring fails
// the cache is marked stale and reloaded before the next read.
type Store struct {
	mu    sync.RWMutex
	back  dao.Dao
	front *memstore.Store
	stale bool

	policy dao.Policy
	logger *slog.Logger
}

var (
	_ dao.Dao    = (*Store)(nil)
	_ dao.Closer = (*Store)(nil)
)

// Open primes a cache with every record of back.
func Open(ctx context.Context, back dao.Dao, opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Store{
		back:   back,
		policy: opts.Policy,
		logger: opts.Logger.With("collection", back.Schema().Name()),
	}
	if err := s.reload(ctx); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "cache primed", "records", s.front.Len())
	return s, nil
}

// Back returns the wrapped store.
func (s *Store) Back() dao.Dao { return s.back }

// Schema returns the collection schema.
func (s *Store) Schema() *schema.Schema { return s.back.Schema() }

// Close closes the back store when it holds resources.
func (s *Store) Close() error {
	if c, ok := s.back.(dao.Closer); ok {
		return c.Close()
	}
	return nil
}

// Refresh discards the cache and reloads it from the back store.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reload(ctx)
}

func (s *Store) reload(ctx context.Context) error {
	recs, err := s.back.FetchAll(ctx, nil)
	if err != nil {
		return fmt.Errorf("prefetch: %w", err)
	}
	front, err := memstore.Load(s.back.Schema(), recs, memstore.Options{
		Generator: ident.SuppliedGenerator{},
		Policy:    dao.Policy{StrictFetchMany: s.policy.StrictFetchMany, IgnoreMissingDelete: true},
		Logger:    s.logger,
	})
	if err != nil {
		return fmt.Errorf("prefetch: %w", err)
	}
	s.front = front
	s.stale = false
	return nil
}

// cache returns the in-memory copy, reloading it first when stale.
func (s *Store) cache(ctx context.Context) (*memstore.Store, error) {
	s.mu.RLock()
	front, stale := s.front, s.stale
	s.mu.RUnlock()
	if !stale {
		return front, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stale {
		s.logger.InfoContext(ctx, "reloading stale cache")
		if err := s.reload(ctx); err != nil {
			return nil, err
		}
	}
	return s.front, nil
}

// mirror applies a write the back store already accepted. Called with the
// write lock held.
func (s *Store) mirror(ctx context.Context, op string, id ir.ID, apply func(*memstore.Store) error) {
	if s.stale {
		return
	}
	if err := apply(s.front); err != nil {
		s.logger.WarnContext(ctx, "cache out of sync, will reload", "op", op, "id", id, "error", err)
		s.stale = true
	}
}

// Exists answers from the cache.
func (s *Store) Exists(ctx context.Context, id ir.ID) (bool, error) {
	front, err := s.cache(ctx)
	if err != nil {
		return false, err
	}
	return front.Exists(ctx, id)
}

// ExistsMany answers from the cache.
func (s *Store) ExistsMany(ctx context.Context, ids []ir.ID) (map[ir.ID]bool, error) {
	front, err := s.cache(ctx)
	if err != nil {
		return nil, err
	}
	return front.ExistsMany(ctx, ids)
}

// Count answers from the cache.
func (s *Store) Count(ctx context.Context, where query.Predicate) (int, error) {
	front, err := s.cache(ctx)
	if err != nil {
		return 0, err
	}
	return front.Count(ctx, where)
}

// Fetch answers from the cache.
func (s *Store) Fetch(ctx context.Context, id ir.ID, fields []string) (ir.Object, error) {
	front, err := s.cache(ctx)
	if err != nil {
		return nil, err
	}
	return front.Fetch(ctx, id, fields)
}

// FetchMany answers from the cache.
func (s *Store) FetchMany(ctx context.Context, ids []ir.ID, fields []string) (map[ir.ID]ir.Object, error) {
	front, err := s.cache(ctx)
	if err != nil {
		return nil, err
	}
	return front.FetchMany(ctx, ids, fields)
}

// FetchAll answers from the cache.
func (s *Store) FetchAll(ctx context.Context, fields []string) ([]ir.Object, error) {
	front, err := s.cache(ctx)
	if err != nil {
		return nil, err
	}
	return front.FetchAll(ctx, fields)
}

// Query answers from the cache.
func (s *Store) Query(ctx context.Context, sel query.Select) ([]ir.Object, error) {
	front, err := s.cache(ctx)
	if err != nil {
		return nil, err
	}
	return front.Query(ctx, sel)
}

// Create writes through to the back store.
func (s *Store) Create(ctx context.Context, rec ir.Object) (ir.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	created, err := s.back.Create(ctx, rec)
	if err != nil {
		return nil, err
	}
	id, _ := created.ID()
	s.mirror(ctx, "create", id, func(f *memstore.Store) error {
		_, err := f.Create(ctx, created)
		return err
	})
	return created, nil
}

// CreateMany writes through to the back store.
func (s *Store) CreateMany(ctx context.Context, recs []ir.Object) dao.BatchResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.back.CreateMany(ctx, recs)
	for _, it := range res.Items {
		if it.Err != nil {
			continue
		}
		s.mirror(ctx, "create", it.ID, func(f *memstore.Store) error {
			_, err := f.Create(ctx, it.Record)
			return err
		})
	}
	return res
}

// Update writes through to the back store.
func (s *Store) Update(ctx context.Context, id ir.ID, changes ir.Object) (ir.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated, err := s.back.Update(ctx, id, changes)
	if err != nil {
		return nil, err
	}
	s.mirror(ctx, "update", id, func(f *memstore.Store) error {
		_, err := f.Replace(ctx, updated)
		return err
	})
	return updated, nil
}

// UpdateMany writes through to the back store.
func (s *Store) UpdateMany(ctx context.Context, changes map[ir.ID]ir.Object) dao.BatchResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.back.UpdateMany(ctx, changes)
	for _, it := range res.Items {
		if it.Err != nil {
			continue
		}
		s.mirror(ctx, "update", it.ID, func(f *memstore.Store) error {
			_, err := f.Replace(ctx, it.Record)
			return err
		})
	}
	return res
}

// Delete writes through to the back store.
func (s *Store) Delete(ctx context.Context, id ir.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.back.Delete(ctx, id); err != nil {
		return err
	}
	s.mirror(ctx, "delete", id, func(f *memstore.Store) error {
		return f.Delete(ctx, id)
	})
	return nil
}

// DeleteMany writes through to the back store.
func (s *Store) DeleteMany(ctx context.Context, ids []ir.ID) dao.BatchResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.back.DeleteMany(ctx, ids)
	for _, it := range res.Items {
		if it.Err != nil {
			continue
		}
		s.mirror(ctx, "delete", it.ID, func(f *memstore.Store) error {
			return f.Delete(ctx, it.ID)
		})
	}
	return res
}

// DeleteAll empties the back store and the cache.
func (s *Store) DeleteAll(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.back.DeleteAll(ctx)
	if err != nil {
		return 0, err
	}
	s.mirror(ctx, "delete_all", "", func(f *memstore.Store) error {
		_, err := f.DeleteAll(ctx)
		return err
	})
	return n, nil
}
