// Package query answers the read-side transaction filters, serving results
// through the layered read cache when one is configured.
package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"txn-ingest/pkg/cache"
	"txn-ingest/pkg/chain"
	"txn-ingest/pkg/logging"
	"txn-ingest/pkg/metrics"
	"txn-ingest/pkg/record"
	"txn-ingest/pkg/status"
	"txn-ingest/pkg/store"
)

// bumpTimeout bounds a generation bump once it no longer follows the
// caller's context.
const bumpTimeout = 5 * time.Second

// ErrInvalidRange is returned when a date range starts after it ends.
var ErrInvalidRange = errors.New("query: start is after end")

// Query kinds, used in cache keys and metrics.
const (
	KindCurrency  = "currency"
	KindDateRange = "date_range"
	KindStatus    = "status"
)

// Config wires a Service.
type Config struct {
	Store store.Store

	// Cache is optional. Without it every call goes to the store.
	Cache *chain.Chain

	// Generation versions cache keys (default: LocalGeneration)
	Generation Generation

	// KeyPrefix starts every cache key (default: "txn")
	KeyPrefix string

	Metrics metrics.Collector
	Logger  *logging.Logger
}

// Service runs the three read-side filters.
type Service struct {
	store   store.Store
	cache   *chain.Chain
	gen     Generation
	keys    *cache.KeyPattern
	metrics metrics.Collector
	logger  *logging.Logger

	// pending is set while an invalidation has not reached the generation.
	// The cache is bypassed until a bump succeeds.
	pending atomic.Bool
}

// New creates a Service.
func New(config Config) (*Service, error) {
	if config.Store == nil {
		return nil, errors.New("query: store is required")
	}
	if config.Generation == nil {
		config.Generation = &LocalGeneration{}
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "txn"
	}

	return &Service{
		store:   config.Store,
		cache:   config.Cache,
		gen:     config.Generation,
		keys:    cache.NewKeyPattern(config.KeyPrefix, ":"),
		metrics: metrics.OrNoOp(config.Metrics),
		logger:  logging.OrNop(config.Logger).Component("query"),
	}, nil
}

// ByCurrency returns transactions with exactly this currency code.
func (s *Service) ByCurrency(ctx context.Context, currencyCode string) ([]record.Transaction, error) {
	return s.run(ctx, KindCurrency, []string{currencyCode}, func(ctx context.Context) ([]record.Transaction, error) {
		return s.store.QueryByCurrency(ctx, currencyCode)
	})
}

// ByDateRange returns transactions dated within [start, end].
func (s *Service) ByDateRange(ctx context.Context, start, end time.Time) ([]record.Transaction, error) {
	if start.After(end) {
		return nil, ErrInvalidRange
	}

	parts := []string{start.UTC().Format(time.RFC3339Nano), end.UTC().Format(time.RFC3339Nano)}
	return s.run(ctx, KindDateRange, parts, func(ctx context.Context) ([]record.Transaction, error) {
		return s.store.QueryByDateRange(ctx, start, end)
	})
}

// ByStatus returns transactions with exactly this canonical status.
func (s *Service) ByStatus(ctx context.Context, code status.Code) ([]record.Transaction, error) {
	return s.run(ctx, KindStatus, []string{code.String()}, func(ctx context.Context) ([]record.Transaction, error) {
		return s.store.QueryByStatus(ctx, code)
	})
}

// Invalidate makes every cached result stale. It runs after each commit, so
// it is not cut short when ctx is cancelled. If the bump fails this Service
// stops reading the cache and retries the bump on the next query.
func (s *Service) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bumpTimeout)
	defer cancel()
	return s.bump(ctx)
}

func (s *Service) bump(ctx context.Context) error {
	gen, err := s.gen.Bump(ctx)
	if err != nil {
		s.pending.Store(true)
		s.logger.Error("cache invalidation failed", zap.Error(err))
		return fmt.Errorf("query: bump generation: %w", err)
	}
	s.pending.Store(false)
	s.logger.Debug("cache invalidated", zap.Int64("generation", gen))
	return nil
}

type loadFunc func(ctx context.Context) ([]record.Transaction, error)

func (s *Service) run(ctx context.Context, kind string, args []string, load loadFunc) (txs []record.Transaction, err error) {
	start := time.Now()
	defer func() {
		if err == nil {
			s.metrics.RecordQuery(kind, len(txs) > 0, time.Since(start))
		}
	}()

	key, ok := s.cacheKey(ctx, kind, args)
	if !ok {
		return load(ctx)
	}

	data, err := s.cache.GetOrLoad(ctx, key, func(ctx context.Context) ([]byte, error) {
		txs, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if txs == nil {
			txs = []record.Transaction{}
		}
		return json.Marshal(txs)
	})
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(data, &txs); err != nil {
		// A corrupt entry is dropped and the store answers instead.
		s.logger.Warn("discarding unreadable cache entry", zap.String("key", key), zap.Error(err))
		_ = s.cache.Delete(ctx, key)
		return load(ctx)
	}
	if txs == nil {
		txs = []record.Transaction{}
	}
	return txs, nil
}

// cacheKey returns the key for a query, or false when the cache must be
// bypassed.
func (s *Service) cacheKey(ctx context.Context, kind string, args []string) (string, bool) {
	if s.cache == nil {
		return "", false
	}

	if s.pending.Load() {
		if err := s.bump(ctx); err != nil {
			return "", false
		}
	}

	gen, err := s.gen.Current(ctx)
	if err != nil {
		s.logger.Warn("generation unavailable, bypassing cache", zap.Error(err))
		return "", false
	}

	parts := append([]string{strconv.FormatInt(gen, 10), kind}, args...)
	key, err := s.keys.BuildValid(parts...)
	if err != nil {
		return "", false
	}
	return key, true
}
