package writer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"txn-ingest/pkg/cache"
	"txn-ingest/pkg/logging"
	"txn-ingest/pkg/metrics"

	"go.uber.org/zap"
)

// AsyncWriter performs cache warm-up writes off the query path using a
// bounded queue and a worker pool. A full queue drops the write after
// MaxWaitTime instead of blocking the caller.
type AsyncWriter struct {
	layer      cache.Layer
	queue      chan writeOp
	workers    int
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc
	config     AsyncWriterConfig
	metrics    metrics.Collector
	logger     *logging.Logger
	layerName  string

	// accessed atomically
	droppedWrites int64
	totalWrites   int64
	failedWrites  int64
	pending       int64

	metricsTicker *time.Ticker
	metricsStop   chan struct{}
	closeOnce     sync.Once
}

type writeOp struct {
	key   string
	value []byte
	ttl   time.Duration
}

// AsyncWriterConfig configures the async writer behavior.
type AsyncWriterConfig struct {
	// QueueSize is the bounded queue size (default: 1000)
	QueueSize int

	// Workers is the number of concurrent workers (default: 2)
	Workers int

	// MaxWaitTime is how long Write waits on a full queue before dropping
	// (default: 10ms)
	MaxWaitTime time.Duration

	// WriteTimeout bounds each Set on the layer (default: 1s)
	WriteTimeout time.Duration

	// MetricsInterval is how often queue depth is reported (default: 5s)
	MetricsInterval time.Duration
}

// NewAsyncWriter creates a writer without metrics.
func NewAsyncWriter(layer cache.Layer, config AsyncWriterConfig) *AsyncWriter {
	return NewAsyncWriterWithMetrics(layer, config, metrics.NoOpCollector{})
}

// NewAsyncWriterWithMetrics creates a writer and starts its workers. It must
// be closed with Close.
func NewAsyncWriterWithMetrics(layer cache.Layer, config AsyncWriterConfig, collector metrics.Collector) *AsyncWriter {
	if config.QueueSize <= 0 {
		config.QueueSize = 1000
	}
	if config.Workers <= 0 {
		config.Workers = 2
	}
	if config.MaxWaitTime == 0 {
		config.MaxWaitTime = 10 * time.Millisecond
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = time.Second
	}
	if config.MetricsInterval <= 0 {
		config.MetricsInterval = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	w := &AsyncWriter{
		layer:         layer,
		queue:         make(chan writeOp, config.QueueSize),
		workers:       config.Workers,
		ctx:           ctx,
		cancelFunc:    cancel,
		config:        config,
		metrics:       metrics.OrNoOp(collector),
		logger:        logging.L().Named("writer").With(zap.String("layer", layer.Name())),
		layerName:     layer.Name(),
		metricsTicker: time.NewTicker(config.MetricsInterval),
		metricsStop:   make(chan struct{}),
	}

	for i := 0; i < config.Workers; i++ {
		w.wg.Add(1)
		go w.worker()
	}

	go w.reportMetrics()

	return w
}

// Write enqueues a copy of value. It returns ErrQueueFull when the write was
// dropped and ErrWriterClosed after Close.
func (w *AsyncWriter) Write(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	select {
	case <-w.ctx.Done():
		return ErrWriterClosed
	default:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	op := writeOp{
		key:   key,
		value: cache.Clone(value),
		ttl:   ttl,
	}

	timer := time.NewTimer(w.config.MaxWaitTime)
	defer timer.Stop()

	atomic.AddInt64(&w.pending, 1)
	select {
	case w.queue <- op:
		atomic.AddInt64(&w.totalWrites, 1)
		return nil
	case <-timer.C:
		atomic.AddInt64(&w.pending, -1)
		atomic.AddInt64(&w.droppedWrites, 1)
		w.metrics.RecordWriteDropped(w.layerName)
		w.logger.Debug("warm-up write dropped", zap.String("key", key))
		return ErrQueueFull
	case <-ctx.Done():
		atomic.AddInt64(&w.pending, -1)
		return ctx.Err()
	case <-w.ctx.Done():
		atomic.AddInt64(&w.pending, -1)
		return ErrWriterClosed
	}
}

func (w *AsyncWriter) worker() {
	defer w.wg.Done()

	for {
		select {
		case op := <-w.queue:
			w.apply(op)
		case <-w.ctx.Done():
			// drain what is already queued
			for {
				select {
				case op := <-w.queue:
					w.apply(op)
				default:
					return
				}
			}
		}
	}
}

func (w *AsyncWriter) apply(op writeOp) {
	defer atomic.AddInt64(&w.pending, -1)

	ctx, cancel := context.WithTimeout(context.Background(), w.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	err := w.layer.Set(ctx, op.key, op.value, op.ttl)
	w.metrics.RecordAsyncWrite(w.layerName, err == nil, time.Since(start))

	if err != nil {
		atomic.AddInt64(&w.failedWrites, 1)
		w.logger.Warn("warm-up write failed",
			zap.String("key", op.key),
			zap.String("error_type", cache.ClassifyError(err)),
			zap.Error(err),
		)
	}
}

// Flush waits until every accepted write has been applied, or returns
// ErrFlushTimeout.
func (w *AsyncWriter) Flush(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for atomic.LoadInt64(&w.pending) > 0 {
		if time.Now().After(deadline) {
			return ErrFlushTimeout
		}
		time.Sleep(time.Millisecond)
	}
	return nil
}

// Close stops accepting writes, applies the queued ones and waits for the
// workers. It is safe to call more than once.
func (w *AsyncWriter) Close() error {
	w.closeOnce.Do(func() {
		close(w.metricsStop)
		w.metricsTicker.Stop()
		w.cancelFunc()
		w.wg.Wait()
	})
	return nil
}

func (w *AsyncWriter) reportMetrics() {
	for {
		select {
		case <-w.metricsTicker.C:
			w.metrics.RecordQueueDepth(w.layerName, len(w.queue))
		case <-w.metricsStop:
			return
		}
	}
}
