// Package memstore is an in-process store.Store used for local runs and tests.
package memstore

import (
	"context"
	"sync"
	"time"

	"txn-ingest/pkg/record"
	"txn-ingest/pkg/status"
	"txn-ingest/pkg/store"
)

// Store holds transactions in insertion order.
type Store struct {
	mu     sync.RWMutex
	rows   []record.Transaction
	nextID int64
	closed bool

	// FailInsert, when set, is returned by InsertBatch before anything is
	// written.
	FailInsert error
}

// New returns an empty store.
func New() *Store {
	return &Store{nextID: 1}
}

// InsertBatch appends the whole batch under one lock so readers never see
// part of it.
func (s *Store) InsertBatch(ctx context.Context, batch []record.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrClosed
	}
	if s.FailInsert != nil {
		return s.FailInsert
	}

	for _, t := range batch {
		t.ID = s.nextID
		s.nextID++
		s.rows = append(s.rows, t)
	}
	return nil
}

// QueryByCurrency implements store.Store.
func (s *Store) QueryByCurrency(ctx context.Context, currencyCode string) ([]record.Transaction, error) {
	return s.filter(ctx, func(t record.Transaction) bool {
		return t.CurrencyCode == currencyCode
	})
}

// QueryByDateRange implements store.Store.
func (s *Store) QueryByDateRange(ctx context.Context, start, end time.Time) ([]record.Transaction, error) {
	return s.filter(ctx, func(t record.Transaction) bool {
		return !t.TransactionDate.Before(start) && !t.TransactionDate.After(end)
	})
}

// QueryByStatus implements store.Store.
func (s *Store) QueryByStatus(ctx context.Context, code status.Code) ([]record.Transaction, error) {
	return s.filter(ctx, func(t record.Transaction) bool {
		return t.Status == code
	})
}

func (s *Store) filter(ctx context.Context, match func(record.Transaction) bool) ([]record.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, store.ErrClosed
	}

	out := []record.Transaction{}
	for _, t := range s.rows {
		if match(t) {
			out = append(out, t)
		}
	}
	return out, nil
}

// Len returns the number of stored transactions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// Ping implements store.Store.
func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return store.ErrClosed
	}
	return ctx.Err()
}

// Name implements store.Store.
func (s *Store) Name() string {
	return "memory"
}

// Close implements store.Store.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
