package resilience

import (
	"context"
	"errors"
	"time"

	"txn-ingest/pkg/cache"
	"txn-ingest/pkg/metrics"
)

// ResilientLayer wraps a cache.Layer with a Breaker. Misses and invalid keys
// do not count as failures. Every call is reported to metrics.
type ResilientLayer struct {
	layer   cache.Layer
	breaker *Breaker
	metrics metrics.Collector
}

// NewResilientLayer wraps layer without metrics.
func NewResilientLayer(layer cache.Layer, config ResilientConfig) *ResilientLayer {
	return NewResilientLayerWithMetrics(layer, config, metrics.NoOpCollector{})
}

// NewResilientLayerWithMetrics wraps layer and reports to collector.
func NewResilientLayerWithMetrics(layer cache.Layer, config ResilientConfig, collector metrics.Collector) *ResilientLayer {
	collector = metrics.OrNoOp(collector)
	return &ResilientLayer{
		layer:   layer,
		breaker: NewBreaker("cache."+layer.Name(), config, collector, isExpectedCacheError),
		metrics: collector,
	}
}

func isExpectedCacheError(err error) bool {
	return cache.IsNotFound(err) || errors.Is(err, cache.ErrInvalidKey) || errors.Is(err, cache.ErrInvalidValue)
}

func toCacheError(err error) error {
	switch {
	case errors.Is(err, ErrOpen):
		return cache.ErrCircuitOpen
	case errors.Is(err, ErrTimeout):
		return cache.ErrTimeout
	default:
		return err
	}
}

// Name returns the name of the underlying layer.
func (rl *ResilientLayer) Name() string {
	return rl.layer.Name()
}

// State returns the breaker state.
func (rl *ResilientLayer) State() metrics.CircuitState {
	return rl.breaker.State()
}

// Get implements cache.Layer.
func (rl *ResilientLayer) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()

	var value []byte
	err := rl.breaker.Execute(ctx, "get", func(ctx context.Context) error {
		var err error
		value, err = rl.layer.Get(ctx, key)
		return err
	})

	rl.metrics.RecordCacheGet(rl.layer.Name(), err == nil, time.Since(start))
	if err != nil {
		return nil, toCacheError(err)
	}
	return value, nil
}

// Set implements cache.Layer.
func (rl *ResilientLayer) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()

	err := rl.breaker.Execute(ctx, "set", func(ctx context.Context) error {
		return rl.layer.Set(ctx, key, value, ttl)
	})

	rl.metrics.RecordCacheSet(rl.layer.Name(), err == nil, time.Since(start))
	return toCacheError(err)
}

// Delete implements cache.Layer.
func (rl *ResilientLayer) Delete(ctx context.Context, key string) error {
	start := time.Now()

	err := rl.breaker.Execute(ctx, "delete", func(ctx context.Context) error {
		return rl.layer.Delete(ctx, key)
	})

	rl.metrics.RecordCacheDelete(rl.layer.Name(), err == nil, time.Since(start))
	return toCacheError(err)
}

// Close closes the underlying layer.
func (rl *ResilientLayer) Close() error {
	return rl.layer.Close()
}
