package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"txn-ingest/pkg/cache"
	"txn-ingest/pkg/cache/memory"
	"txn-ingest/pkg/cache/redis"
	"txn-ingest/pkg/chain"
	"txn-ingest/pkg/config"
	"txn-ingest/pkg/ingest"
	"txn-ingest/pkg/logging"
	"txn-ingest/pkg/metrics"
	metricsmem "txn-ingest/pkg/metrics/memory"
	promMetrics "txn-ingest/pkg/metrics/prometheus"
	"txn-ingest/pkg/query"
	"txn-ingest/pkg/store"
	"txn-ingest/pkg/store/memstore"
	"txn-ingest/pkg/store/resilient"
	"txn-ingest/pkg/store/sqlstore"
)

// app holds the wired services shared by the subcommands.
type app struct {
	store    *resilient.Store
	cache    *chain.Chain
	queries  *query.Service
	ingestor *ingest.Ingestor

	registry *prometheus.Registry
	snapshot *metricsmem.MemoryCollector
	logger   *logging.Logger
}

func newApp(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*app, error) {
	logger = logging.OrNop(logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	prom := promMetrics.NewPrometheusCollector(cfg.Metrics.Namespace)
	if err := prom.Register(registry); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	snapshot := metricsmem.NewMemoryCollector()
	collector := metrics.NewMulti(prom, snapshot)

	raw, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	a := &app{
		store:    resilient.New(raw, cfg.Store.Resilience(), collector),
		registry: registry,
		snapshot: snapshot,
		logger:   logger,
	}

	var gen query.Generation
	if cfg.Cache.Enabled {
		gen, err = a.openCache(cfg.Cache, collector)
		if err != nil {
			a.store.Close()
			return nil, err
		}
	}

	a.queries, err = query.New(query.Config{
		Store:      a.store,
		Cache:      a.cache,
		Generation: gen,
		Metrics:    collector,
		Logger:     logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.ingestor, err = ingest.New(ingest.Config{
		Store:   a.store,
		Metrics: collector,
		Logger:  logger,
		OnCommit: []ingest.CommitHook{
			func(ctx context.Context, res ingest.Result) {
				if err := a.queries.Invalidate(ctx); err != nil {
					logger.Warn("read cache stays bypassed until invalidation succeeds",
						zap.String("filename", res.Filename),
						zap.Error(err),
					)
				}
			},
		},
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	logger.Info("services ready",
		zap.String("store", a.store.Name()),
		zap.Bool("cache", a.cache != nil),
	)
	return a, nil
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	if cfg.Driver == config.DriverMemory {
		return memstore.New(), nil
	}

	s, err := sqlstore.Open(ctx, cfg.SQL())
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Driver, err)
	}
	return s, nil
}

// openCache builds the query cache. With a Redis layer the generation lives
// in Redis too, so every instance sees the same invalidations.
func (a *app) openCache(cfg config.CacheConfig, collector metrics.Collector) (query.Generation, error) {
	layers := []cache.Layer{memory.NewMemoryCache(cfg.Memory())}
	var gen query.Generation = &query.LocalGeneration{}

	if cfg.RedisAddr != "" {
		rc, err := redis.NewRedisCache(cfg.Redis())
		if err != nil {
			layers[0].Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		layers = append(layers, rc)
		gen = query.NewSharedGeneration(rc, "generation")
	}

	chainConfig := cfg.Chain()
	chainConfig.Metrics = collector
	c, err := chain.NewWithConfig(chainConfig, layers...)
	if err != nil {
		for _, l := range layers {
			l.Close()
		}
		return nil, err
	}

	a.cache = c
	a.logger.Info("query cache enabled", zap.Stringer("chain", c))
	return gen, nil
}

// Close releases the cache layers and the store.
func (a *app) Close() error {
	var errs []error
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	errs = append(errs, a.store.Close())
	return errors.Join(errs...)
}
