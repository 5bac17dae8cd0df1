package prometheus

import (
	"strconv"
	"time"

	"txn-ingest/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

// latencyBuckets spans 0.1ms to ~3s.
var latencyBuckets = prometheus.ExponentialBuckets(0.0001, 2, 15)

// PrometheusCollector implements metrics.Collector for Prometheus.
type PrometheusCollector struct {
	namespace string

	// Uploads
	uploads         *prometheus.CounterVec
	recordsIngested *prometheus.CounterVec
	uploadLatency   *prometheus.HistogramVec

	// Queries
	queries      *prometheus.CounterVec
	queryLatency *prometheus.HistogramVec

	// Storage
	storeOps     *prometheus.CounterVec
	storeLatency *prometheus.HistogramVec

	// Read cache
	cacheHits    *prometheus.CounterVec
	cacheMisses  *prometheus.CounterVec
	cacheSets    *prometheus.CounterVec
	cacheDeletes *prometheus.CounterVec
	cacheErrors  *prometheus.CounterVec
	getLatency   *prometheus.HistogramVec
	chainHits    *prometheus.CounterVec
	chainMisses  prometheus.Counter
	chainLatency *prometheus.HistogramVec

	// Circuit breakers
	circuitOpens *prometheus.CounterVec
	circuitState *prometheus.GaugeVec

	// Async writer
	queueDepth    *prometheus.GaugeVec
	droppedWrites *prometheus.CounterVec
	asyncWrites   *prometheus.CounterVec
	asyncLatency  *prometheus.HistogramVec
}

// NewPrometheusCollector creates a new Prometheus metrics collector.
func NewPrometheusCollector(namespace string) *PrometheusCollector {
	return &PrometheusCollector{
		namespace: namespace,
		uploads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "uploads_total",
				Help:      "Total number of file uploads by format and outcome",
			},
			[]string{"format", "outcome"},
		),
		recordsIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_ingested_total",
				Help:      "Total number of transactions committed by format",
			},
			[]string{"format"},
		),
		uploadLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upload_duration_seconds",
				Help:      "Upload processing latency",
				Buckets:   latencyBuckets,
			},
			[]string{"format"},
		),
		queries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queries_total",
				Help:      "Total number of transaction queries by kind and result",
			},
			[]string{"kind", "found"},
		),
		queryLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_duration_seconds",
				Help:      "Transaction query latency",
				Buckets:   latencyBuckets,
			},
			[]string{"kind"},
		),
		storeOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_operations_total",
				Help:      "Total number of storage calls by operation and status",
			},
			[]string{"operation", "status"},
		),
		storeLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "store_duration_seconds",
				Help:      "Storage call latency",
				Buckets:   latencyBuckets,
			},
			[]string{"operation"},
		),
		cacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Total number of query cache hits per layer",
			},
			[]string{"layer"},
		),
		cacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Total number of query cache misses per layer",
			},
			[]string{"layer"},
		),
		cacheSets: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_sets_total",
				Help:      "Total number of query cache set operations per layer",
			},
			[]string{"layer"},
		),
		cacheDeletes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_deletes_total",
				Help:      "Total number of query cache delete operations per layer",
			},
			[]string{"layer"},
		),
		cacheErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_errors_total",
				Help:      "Total number of query cache errors per layer and operation",
			},
			[]string{"layer", "operation"},
		),
		getLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cache_get_duration_seconds",
				Help:      "Query cache get latency",
				Buckets:   latencyBuckets,
			},
			[]string{"layer"},
		),
		chainHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chain_hits_total",
				Help:      "Total number of chain-level cache hits",
			},
			[]string{"layer_index"},
		),
		chainMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chain_misses_total",
				Help:      "Total number of chain-level cache misses",
			},
		),
		chainLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "chain_get_duration_seconds",
				Help:      "Chain get operation total latency",
				Buckets:   latencyBuckets,
			},
			[]string{"hit"},
		),
		circuitOpens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_opens_total",
				Help:      "Total number of circuit breaker opens",
			},
			[]string{"name"},
		),
		circuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_state",
				Help:      "Current circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"name"},
		),
		queueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_depth",
				Help:      "Current async writer queue depth per layer",
			},
			[]string{"layer"},
		),
		droppedWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dropped_writes_total",
				Help:      "Total number of dropped async writes per layer",
			},
			[]string{"layer"},
		),
		asyncWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "async_writes_total",
				Help:      "Total number of async writes per layer",
			},
			[]string{"layer", "status"},
		),
		asyncLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "async_write_duration_seconds",
				Help:      "Async write operation latency",
				Buckets:   latencyBuckets,
			},
			[]string{"layer"},
		),
	}
}

// Register registers all metrics with the given Prometheus registry.
func (pc *PrometheusCollector) Register(registry prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		pc.uploads,
		pc.recordsIngested,
		pc.uploadLatency,
		pc.queries,
		pc.queryLatency,
		pc.storeOps,
		pc.storeLatency,
		pc.cacheHits,
		pc.cacheMisses,
		pc.cacheSets,
		pc.cacheDeletes,
		pc.cacheErrors,
		pc.getLatency,
		pc.chainHits,
		pc.chainMisses,
		pc.chainLatency,
		pc.circuitOpens,
		pc.circuitState,
		pc.queueDepth,
		pc.droppedWrites,
		pc.asyncWrites,
		pc.asyncLatency,
	}

	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			return err
		}
	}

	return nil
}

// RecordUpload records one finished upload.
func (pc *PrometheusCollector) RecordUpload(format, outcome string, records int, duration time.Duration) {
	pc.uploads.WithLabelValues(format, outcome).Inc()
	if outcome == "ok" {
		pc.recordsIngested.WithLabelValues(format).Add(float64(records))
	}
	pc.uploadLatency.WithLabelValues(format).Observe(duration.Seconds())
}

// RecordQuery records one read-side query.
func (pc *PrometheusCollector) RecordQuery(kind string, found bool, duration time.Duration) {
	pc.queries.WithLabelValues(kind, strconv.FormatBool(found)).Inc()
	pc.queryLatency.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordStoreOp records one storage call.
func (pc *PrometheusCollector) RecordStoreOp(operation string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	pc.storeOps.WithLabelValues(operation, status).Inc()
	pc.storeLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCacheGet records a cache get operation.
func (pc *PrometheusCollector) RecordCacheGet(layer string, hit bool, duration time.Duration) {
	if hit {
		pc.cacheHits.WithLabelValues(layer).Inc()
	} else {
		pc.cacheMisses.WithLabelValues(layer).Inc()
	}
	pc.getLatency.WithLabelValues(layer).Observe(duration.Seconds())
}

// RecordCacheSet records a cache set operation.
func (pc *PrometheusCollector) RecordCacheSet(layer string, success bool, duration time.Duration) {
	pc.cacheSets.WithLabelValues(layer).Inc()
	if !success {
		pc.cacheErrors.WithLabelValues(layer, "set").Inc()
	}
}

// RecordCacheDelete records a cache delete operation.
func (pc *PrometheusCollector) RecordCacheDelete(layer string, success bool, duration time.Duration) {
	pc.cacheDeletes.WithLabelValues(layer).Inc()
	if !success {
		pc.cacheErrors.WithLabelValues(layer, "delete").Inc()
	}
}

// RecordChainGet records a chain-level get operation.
func (pc *PrometheusCollector) RecordChainGet(hit bool, layerIndex int, totalDuration time.Duration) {
	if hit {
		pc.chainHits.WithLabelValues(strconv.Itoa(layerIndex)).Inc()
	} else {
		pc.chainMisses.Inc()
	}
	pc.chainLatency.WithLabelValues(strconv.FormatBool(hit)).Observe(totalDuration.Seconds())
}

// RecordCircuitState records the current circuit breaker state.
func (pc *PrometheusCollector) RecordCircuitState(name string, state metrics.CircuitState) {
	pc.circuitState.WithLabelValues(name).Set(float64(state))
	if state == metrics.CircuitOpen {
		pc.circuitOpens.WithLabelValues(name).Inc()
	}
}

// RecordQueueDepth records the current async writer queue depth.
func (pc *PrometheusCollector) RecordQueueDepth(layer string, depth int) {
	pc.queueDepth.WithLabelValues(layer).Set(float64(depth))
}

// RecordWriteDropped records a dropped async write.
func (pc *PrometheusCollector) RecordWriteDropped(layer string) {
	pc.droppedWrites.WithLabelValues(layer).Inc()
}

// RecordAsyncWrite records an async write operation.
func (pc *PrometheusCollector) RecordAsyncWrite(layer string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	pc.asyncWrites.WithLabelValues(layer, status).Inc()
	pc.asyncLatency.WithLabelValues(layer).Observe(duration.Seconds())
}
