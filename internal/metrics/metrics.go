// Package metrics instruments a Dao with Prometheus counters and latency
// histograms.
package metrics

import (
	"context"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/shelf/internal/dao"
	"github.com/roach88/shelf/internal/ir"
	"github.com/roach88/shelf/internal/query"
	"github.com/roach88/shelf/internal/schema"
)

// Collectors holds the metric vectors shared by every wrapped store.
type Collectors struct {
	// OperationsTotal counts calls by collection, operation and outcome.
	OperationsTotal *prometheus.CounterVec
	// OperationDuration is the latency of each call.
	OperationDuration *prometheus.HistogramVec
	// BatchItemsTotal counts members of batch calls by outcome.
	BatchItemsTotal *prometheus.CounterVec
}

// NewCollectors registers the shelf metrics with reg.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	factory := promauto.With(reg)
	return &Collectors{
		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shelf_operations_total",
				Help: "Total number of store operations",
			},
			[]string{"collection", "op", "status"},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shelf_operation_duration_seconds",
				Help:    "Store operation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"collection", "op"},
		),
		BatchItemsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shelf_batch_items_total",
				Help: "Total number of batch members processed",
			},
			[]string{"collection", "op", "status"},
		),
	}
}

// Status is the outcome label for err: "ok", the lower-cased store error
// code, or "error" for anything else.
func Status(err error) string {
	if err == nil {
		return "ok"
	}
	if code := ir.CodeOf(err); code != "" {
		return strings.ToLower(string(code))
	}
	return "error"
}

// Store wraps a Dao and records every call.
type Store struct {
	next       dao.Dao
	c          *Collectors
	collection string
}

var (
	_ dao.Dao    = (*Store)(nil)
	_ dao.Closer = (*Store)(nil)
)

// Wrap instruments next.
func Wrap(next dao.Dao, c *Collectors) *Store {
	return &Store{next: next, c: c, collection: next.Schema().Name()}
}

// Unwrap returns the instrumented store.
func (s *Store) Unwrap() dao.Dao { return s.next }

func (s *Store) observe(op string, start time.Time, err error) {
	s.c.OperationDuration.WithLabelValues(s.collection, op).Observe(time.Since(start).Seconds())
	s.c.OperationsTotal.WithLabelValues(s.collection, op, Status(err)).Inc()
}

func (s *Store) observeBatch(op string, start time.Time, res dao.BatchResult) {
	status := "ok"
	for _, it := range res.Items {
		if it.Err != nil {
			status = "partial"
		}
		s.c.BatchItemsTotal.WithLabelValues(s.collection, op, Status(it.Err)).Inc()
	}
	s.c.OperationDuration.WithLabelValues(s.collection, op).Observe(time.Since(start).Seconds())
	s.c.OperationsTotal.WithLabelValues(s.collection, op, status).Inc()
}

// Schema returns the collection schema.
func (s *Store) Schema() *schema.Schema { return s.next.Schema() }

// Close closes the wrapped store when it holds resources.
func (s *Store) Close() error {
	if c, ok := s.next.(dao.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *Store) Exists(ctx context.Context, id ir.ID) (ok bool, err error) {
	defer func(start time.Time) { s.observe("exists", start, err) }(time.Now())
	return s.next.Exists(ctx, id)
}

func (s *Store) ExistsMany(ctx context.Context, ids []ir.ID) (out map[ir.ID]bool, err error) {
	defer func(start time.Time) { s.observe("exists_many", start, err) }(time.Now())
	return s.next.ExistsMany(ctx, ids)
}

func (s *Store) Count(ctx context.Context, where query.Predicate) (n int, err error) {
	defer func(start time.Time) { s.observe("count", start, err) }(time.Now())
	return s.next.Count(ctx, where)
}

func (s *Store) Create(ctx context.Context, rec ir.Object) (out ir.Object, err error) {
	defer func(start time.Time) { s.observe("create", start, err) }(time.Now())
	return s.next.Create(ctx, rec)
}

func (s *Store) CreateMany(ctx context.Context, recs []ir.Object) (res dao.BatchResult) {
	defer func(start time.Time) { s.observeBatch("create_many", start, res) }(time.Now())
	return s.next.CreateMany(ctx, recs)
}

func (s *Store) Fetch(ctx context.Context, id ir.ID, fields []string) (out ir.Object, err error) {
	defer func(start time.Time) { s.observe("fetch", start, err) }(time.Now())
	return s.next.Fetch(ctx, id, fields)
}

func (s *Store) FetchMany(ctx context.Context, ids []ir.ID, fields []string) (out map[ir.ID]ir.Object, err error) {
	defer func(start time.Time) { s.observe("fetch_many", start, err) }(time.Now())
	return s.next.FetchMany(ctx, ids, fields)
}

func (s *Store) FetchAll(ctx context.Context, fields []string) (out []ir.Object, err error) {
	defer func(start time.Time) { s.observe("fetch_all", start, err) }(time.Now())
	return s.next.FetchAll(ctx, fields)
}

func (s *Store) Update(ctx context.Context, id ir.ID, changes ir.Object) (out ir.Object, err error) {
	defer func(start time.Time) { s.observe("update", start, err) }(time.Now())
	return s.next.Update(ctx, id, changes)
}

func (s *Store) UpdateMany(ctx context.Context, changes map[ir.ID]ir.Object) (res dao.BatchResult) {
	defer func(start time.Time) { s.observeBatch("update_many", start, res) }(time.Now())
	return s.next.UpdateMany(ctx, changes)
}

func (s *Store) Delete(ctx context.Context, id ir.ID) (err error) {
	defer func(start time.Time) { s.observe("delete", start, err) }(time.Now())
	return s.next.Delete(ctx, id)
}

func (s *Store) DeleteMany(ctx context.Context, ids []ir.ID) (res dao.BatchResult) {
	defer func(start time.Time) { s.observeBatch("delete_many", start, res) }(time.Now())
	return s.next.DeleteMany(ctx, ids)
}

func (s *Store) DeleteAll(ctx context.Context) (n int, err error) {
	defer func(start time.Time) { s.observe("delete_all", start, err) }(time.Now())
	return s.next.DeleteAll(ctx)
}

func (s *Store) Query(ctx context.Context, sel query.Select) (out []ir.Object, err error) {
	defer func(start time.Time) { s.observe("query", start, err) }(time.Now())
	return s.next.Query(ctx, sel)
}
