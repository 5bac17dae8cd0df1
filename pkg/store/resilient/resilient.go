// Package resilient guards a store.Store with a circuit breaker and a
// per-call timeout.
package resilient

import (
	"context"
	"errors"
	"time"

	"txn-ingest/pkg/metrics"
	"txn-ingest/pkg/record"
	"txn-ingest/pkg/resilience"
	"txn-ingest/pkg/status"
	"txn-ingest/pkg/store"
)

// Store wraps another store. An open circuit surfaces as store.ErrUnavailable
// and an expired timeout as store.ErrTimeout.
type Store struct {
	next    store.Store
	breaker *resilience.Breaker
	metrics metrics.Collector
}

var _ store.Store = (*Store)(nil)

// New wraps next. A nil collector disables metrics.
func New(next store.Store, config resilience.ResilientConfig, collector metrics.Collector) *Store {
	collector = metrics.OrNoOp(collector)
	return &Store{
		next:    next,
		breaker: resilience.NewBreaker("store."+next.Name(), config, collector, isExpected),
		metrics: collector,
	}
}

// closed stores are a caller bug, not a backend outage
func isExpected(err error) bool {
	return errors.Is(err, store.ErrClosed)
}

func (s *Store) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := s.breaker.Execute(ctx, op, fn)
	s.metrics.RecordStoreOp(op, err == nil, time.Since(start))

	switch {
	case err == nil:
		return nil
	case errors.Is(err, resilience.ErrOpen):
		return store.WrapError(store.ErrUnavailable, s.next.Name(), op)
	case errors.Is(err, resilience.ErrTimeout):
		return store.WrapError(store.ErrTimeout, s.next.Name(), op)
	default:
		return store.WrapError(err, s.next.Name(), op)
	}
}

// InsertBatch implements store.Store.
func (s *Store) InsertBatch(ctx context.Context, batch []record.Transaction) error {
	return s.do(ctx, "insert_batch", func(ctx context.Context) error {
		return s.next.InsertBatch(ctx, batch)
	})
}

// QueryByCurrency implements store.Store.
func (s *Store) QueryByCurrency(ctx context.Context, currencyCode string) ([]record.Transaction, error) {
	var out []record.Transaction
	err := s.do(ctx, "query_currency", func(ctx context.Context) error {
		var err error
		out, err = s.next.QueryByCurrency(ctx, currencyCode)
		return err
	})
	return out, err
}

// QueryByDateRange implements store.Store.
func (s *Store) QueryByDateRange(ctx context.Context, start, end time.Time) ([]record.Transaction, error) {
	var out []record.Transaction
	err := s.do(ctx, "query_date_range", func(ctx context.Context) error {
		var err error
		out, err = s.next.QueryByDateRange(ctx, start, end)
		return err
	})
	return out, err
}

// QueryByStatus implements store.Store.
func (s *Store) QueryByStatus(ctx context.Context, code status.Code) ([]record.Transaction, error) {
	var out []record.Transaction
	err := s.do(ctx, "query_status", func(ctx context.Context) error {
		var err error
		out, err = s.next.QueryByStatus(ctx, code)
		return err
	})
	return out, err
}

// Ping bypasses the breaker so health checks see the real backend.
func (s *Store) Ping(ctx context.Context) error {
	return s.next.Ping(ctx)
}

// State returns the breaker state.
func (s *Store) State() metrics.CircuitState {
	return s.breaker.State()
}

// Name implements store.Store.
func (s *Store) Name() string {
	return s.next.Name()
}

// Close implements store.Store.
func (s *Store) Close() error {
	return s.next.Close()
}
