// Package store defines the persistence boundary for canonical transactions.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"txn-ingest/pkg/record"
	"txn-ingest/pkg/status"
)

// Store persists transaction batches and answers the read-side filters.
// Implementations must commit a batch atomically and return query results
// in insertion order.
type Store interface {
	// InsertBatch commits all records or none of them. An empty batch is a no-op.
	InsertBatch(ctx context.Context, batch []record.Transaction) error

	// QueryByCurrency returns transactions with exactly this currency code.
	QueryByCurrency(ctx context.Context, currencyCode string) ([]record.Transaction, error)

	// QueryByDateRange returns transactions with start <= date <= end.
	QueryByDateRange(ctx context.Context, start, end time.Time) ([]record.Transaction, error)

	// QueryByStatus returns transactions with exactly this status code.
	QueryByStatus(ctx context.Context, code status.Code) ([]record.Transaction, error)

	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error

	// Name identifies the backend in logs and metrics.
	Name() string

	Close() error
}

var (
	// ErrUnavailable is returned while the backend circuit is open
	ErrUnavailable = errors.New("store: unavailable")

	// ErrTimeout is returned when a store call exceeds its deadline
	ErrTimeout = errors.New("store: operation timeout")

	// ErrClosed is returned by operations on a closed store
	ErrClosed = errors.New("store: closed")
)

// IsUnavailable reports whether err means the backend could not be reached.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrTimeout)
}

// WrapError adds the backend and operation to err.
func WrapError(err error, backend, operation string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("store %s %s: %w", backend, operation, err)
}
