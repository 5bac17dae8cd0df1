package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"txn-ingest/pkg/cache"
	"txn-ingest/pkg/logging"
	"txn-ingest/pkg/metrics"
	"txn-ingest/pkg/resilience"
	"txn-ingest/pkg/writer"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Loader produces the value for a key on a full chain miss.
type Loader func(ctx context.Context) ([]byte, error)

// Config configures a Chain.
type Config struct {
	// BaseTTL is the TTL handed to the TTL strategy (default: 1m)
	BaseTTL time.Duration

	// TTLStrategy maps BaseTTL to a per-layer TTL (default: uniform)
	TTLStrategy TTLStrategy

	// Resilience returns the breaker config for the layer at index. Nil
	// uses a 100ms timeout for the first layer and 1s for the rest.
	Resilience func(index int) resilience.ResilientConfig

	// Writer configures the async warm-up writers
	Writer writer.AsyncWriterConfig

	// Metrics receives layer and chain metrics (default: no-op)
	Metrics metrics.Collector
}

// DefaultConfig returns the default chain configuration.
func DefaultConfig() Config {
	return Config{
		BaseTTL:     time.Minute,
		TTLStrategy: &UniformTTLStrategy{},
		Writer: writer.AsyncWriterConfig{
			QueueSize:   1000,
			Workers:     2,
			MaxWaitTime: 10 * time.Millisecond,
		},
	}
}

func defaultResilience(index int) resilience.ResilientConfig {
	config := resilience.DefaultResilientConfig()
	if index == 0 {
		return config.WithTimeout(100 * time.Millisecond)
	}
	return config.WithTimeout(time.Second)
}

// Chain looks a key up through layers ordered fastest first. A hit in a
// lower layer warms the layers above it asynchronously. Concurrent lookups
// of the same key share one traversal.
type Chain struct {
	layers  []cache.Layer
	writers []*writer.AsyncWriter
	sf      singleflight.Group
	config  Config
	metrics metrics.Collector
	logger  *logging.Logger
}

// New creates a chain with DefaultConfig.
func New(layers ...cache.Layer) (*Chain, error) {
	return NewWithConfig(DefaultConfig(), layers...)
}

// NewWithConfig creates a chain. Every layer is wrapped with resilience
// protection and gets its own async writer.
func NewWithConfig(config Config, layers ...cache.Layer) (*Chain, error) {
	if len(layers) == 0 {
		return nil, errors.New("chain: at least one layer required")
	}
	if config.BaseTTL <= 0 {
		config.BaseTTL = time.Minute
	}
	if config.TTLStrategy == nil {
		config.TTLStrategy = &UniformTTLStrategy{}
	}
	if config.Resilience == nil {
		config.Resilience = defaultResilience
	}
	collector := metrics.OrNoOp(config.Metrics)

	c := &Chain{
		layers:  make([]cache.Layer, len(layers)),
		writers: make([]*writer.AsyncWriter, len(layers)),
		config:  config,
		metrics: collector,
		logger:  logging.L().Named("chain"),
	}

	for i, layer := range layers {
		rl := resilience.NewResilientLayerWithMetrics(layer, config.Resilience(i), collector)
		c.layers[i] = rl
		c.writers[i] = writer.NewAsyncWriterWithMetrics(rl, config.Writer, collector)
	}

	return c, nil
}

func (c *Chain) ttlFor(index int, base time.Duration) time.Duration {
	if base <= 0 {
		base = c.config.BaseTTL
	}
	return c.config.TTLStrategy.GetTTL(index, len(c.layers), base)
}

// Get returns the value for key from the first layer that has it, or an
// error matching cache.ErrKeyNotFound when no layer does.
func (c *Chain) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v, err, _ := c.sf.Do(key, func() (interface{}, error) {
		return c.getWithFallback(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	return cache.Clone(v.([]byte)), nil
}

// GetOrLoad is Get, falling back to load on a full miss and storing the
// loaded value in every layer. Concurrent callers for the same key share a
// single load. Cache failures never fail the call; load errors do.
func (c *Chain) GetOrLoad(ctx context.Context, key string, load Loader) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v, err, _ := c.sf.Do("load:"+key, func() (interface{}, error) {
		value, err := c.getWithFallback(ctx, key)
		if err == nil {
			return value, nil
		}

		value, err = load(ctx)
		if err != nil {
			return nil, err
		}
		if setErr := c.Set(ctx, key, value, 0); setErr != nil {
			c.logger.Warn("cache fill failed",
				zap.String("key", key),
				zap.String("error_type", cache.ClassifyError(setErr)),
				zap.Error(setErr),
			)
		}
		return value, nil
	})
	if err != nil {
		return nil, err
	}
	return cache.Clone(v.([]byte)), nil
}

func (c *Chain) getWithFallback(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	var lastErr error

	for i, layer := range c.layers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		value, err := layer.Get(ctx, key)
		if err != nil {
			// misses and unhealthy layers both fall through to the next layer
			if !cache.IsNotFound(err) {
				c.logger.Debug("layer get failed",
					zap.String("layer", layer.Name()),
					zap.String("error_type", cache.ClassifyError(err)),
				)
			}
			lastErr = err
			continue
		}

		c.metrics.RecordChainGet(true, i, time.Since(start))
		if i > 0 {
			c.warmUpperLayers(ctx, key, value, i)
		}
		return value, nil
	}

	c.metrics.RecordChainGet(false, -1, time.Since(start))
	if lastErr != nil && !cache.IsNotFound(lastErr) {
		return nil, fmt.Errorf("%w: %v", cache.ErrKeyNotFound, lastErr)
	}
	return nil, cache.ErrKeyNotFound
}

func (c *Chain) warmUpperLayers(ctx context.Context, key string, value []byte, hitIndex int) {
	for i := hitIndex - 1; i >= 0; i-- {
		if err := c.writers[i].Write(ctx, key, value, c.ttlFor(i, 0)); err != nil {
			c.logger.Debug("warm-up not queued",
				zap.String("layer", c.layers[i].Name()),
				zap.Error(err),
			)
		}
	}
}

// Set writes value to every layer with the strategy's TTL for base ttl
// (0 = BaseTTL). All layers are attempted; the last error is returned.
func (c *Chain) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var lastErr error

	for i, layer := range c.layers {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := layer.Set(ctx, key, value, c.ttlFor(i, ttl)); err != nil {
			lastErr = err
		}
	}

	return lastErr
}

// Delete removes key from every layer. All layers are attempted; the last
// error is returned.
func (c *Chain) Delete(ctx context.Context, key string) error {
	var lastErr error

	for _, layer := range c.layers {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := layer.Delete(ctx, key); err != nil {
			lastErr = err
		}
	}

	return lastErr
}

// Flush waits for pending warm-up writes on every layer.
func (c *Chain) Flush(timeout time.Duration) error {
	for _, w := range c.writers {
		if err := w.Flush(timeout); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the writers, then the layers, attempting all of them.
func (c *Chain) Close() error {
	var lastErr error

	for _, w := range c.writers {
		if err := w.Close(); err != nil {
			lastErr = err
		}
	}
	for _, layer := range c.layers {
		if err := layer.Close(); err != nil {
			lastErr = err
		}
	}

	return lastErr
}

// Len returns the number of layers in the chain.
func (c *Chain) Len() int {
	return len(c.layers)
}

// String returns the layer names in lookup order.
func (c *Chain) String() string {
	names := make([]string, len(c.layers))
	for i, layer := range c.layers {
		names[i] = layer.Name()
	}
	return fmt.Sprintf("chain(%d layers): %s", len(c.layers), strings.Join(names, " -> "))
}
