package memory

import (
	"sync"
	"time"

	"txn-ingest/pkg/metrics"
)

// MemoryCollector implements metrics.Collector in memory. It backs tests and
// the JSON metrics endpoint.
type MemoryCollector struct {
	mu sync.RWMutex

	// Per-layer cache metrics
	layerMetrics map[string]*LayerMetrics

	// Uploads keyed by "<format>/<outcome>"
	uploads         map[string]int64
	recordsIngested int64

	// Queries keyed by kind
	queries map[string]*QueryMetrics

	// Store calls keyed by operation
	storeOps    map[string]int64
	storeErrors map[string]int64

	// Circuit breakers keyed by name
	circuits map[string]metrics.CircuitState

	// Chain-level metrics
	chainHits        int64
	chainMisses      int64
	chainHitsByLayer map[int]int64
}

// LayerMetrics holds metrics for a single cache layer.
type LayerMetrics struct {
	Hits    int64
	Misses  int64
	Sets    int64
	Deletes int64
	Errors  int64

	// Async writer
	QueueDepth    int
	DroppedWrites int64
	AsyncWrites   int64
	AsyncErrors   int64
}

// QueryMetrics holds counts for one query kind.
type QueryMetrics struct {
	Total int64
	Empty int64
}

// NewMemoryCollector creates a new in-memory metrics collector.
func NewMemoryCollector() *MemoryCollector {
	mc := &MemoryCollector{}
	mc.reset()
	return mc
}

func (mc *MemoryCollector) reset() {
	mc.layerMetrics = make(map[string]*LayerMetrics)
	mc.uploads = make(map[string]int64)
	mc.recordsIngested = 0
	mc.queries = make(map[string]*QueryMetrics)
	mc.storeOps = make(map[string]int64)
	mc.storeErrors = make(map[string]int64)
	mc.circuits = make(map[string]metrics.CircuitState)
	mc.chainHits = 0
	mc.chainMisses = 0
	mc.chainHitsByLayer = make(map[int]int64)
}

// layer returns the LayerMetrics for the given layer, creating it if needed.
// The caller must hold mc.mu.
func (mc *MemoryCollector) layer(name string) *LayerMetrics {
	lm, ok := mc.layerMetrics[name]
	if !ok {
		lm = &LayerMetrics{}
		mc.layerMetrics[name] = lm
	}
	return lm
}

// RecordUpload records one finished upload.
func (mc *MemoryCollector) RecordUpload(format, outcome string, records int, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.uploads[format+"/"+outcome]++
	if outcome == "ok" {
		mc.recordsIngested += int64(records)
	}
}

// RecordQuery records one read-side query.
func (mc *MemoryCollector) RecordQuery(kind string, found bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	qm, ok := mc.queries[kind]
	if !ok {
		qm = &QueryMetrics{}
		mc.queries[kind] = qm
	}
	qm.Total++
	if !found {
		qm.Empty++
	}
}

// RecordStoreOp records one storage call.
func (mc *MemoryCollector) RecordStoreOp(operation string, success bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.storeOps[operation]++
	if !success {
		mc.storeErrors[operation]++
	}
}

// RecordCacheGet records a cache get operation.
func (mc *MemoryCollector) RecordCacheGet(layer string, hit bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	lm := mc.layer(layer)
	if hit {
		lm.Hits++
	} else {
		lm.Misses++
	}
}

// RecordCacheSet records a cache set operation.
func (mc *MemoryCollector) RecordCacheSet(layer string, success bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	lm := mc.layer(layer)
	lm.Sets++
	if !success {
		lm.Errors++
	}
}

// RecordCacheDelete records a cache delete operation.
func (mc *MemoryCollector) RecordCacheDelete(layer string, success bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	lm := mc.layer(layer)
	lm.Deletes++
	if !success {
		lm.Errors++
	}
}

// RecordChainGet records a chain-level get operation.
func (mc *MemoryCollector) RecordChainGet(hit bool, layerIndex int, totalDuration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if hit {
		mc.chainHits++
		mc.chainHitsByLayer[layerIndex]++
	} else {
		mc.chainMisses++
	}
}

// RecordCircuitState records the current circuit breaker state.
func (mc *MemoryCollector) RecordCircuitState(name string, state metrics.CircuitState) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.circuits[name] = state
}

// RecordQueueDepth records the current async writer queue depth.
func (mc *MemoryCollector) RecordQueueDepth(layer string, depth int) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.layer(layer).QueueDepth = depth
}

// RecordWriteDropped records a dropped async write.
func (mc *MemoryCollector) RecordWriteDropped(layer string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.layer(layer).DroppedWrites++
}

// RecordAsyncWrite records an async write operation.
func (mc *MemoryCollector) RecordAsyncWrite(layer string, success bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	lm := mc.layer(layer)
	lm.AsyncWrites++
	if !success {
		lm.AsyncErrors++
	}
}

// Snapshot is a point-in-time copy of the collected metrics.
type Snapshot struct {
	Uploads          map[string]int64        `json:"uploads"`
	RecordsIngested  int64                   `json:"records_ingested"`
	Queries          map[string]QueryMetrics `json:"queries"`
	StoreOps         map[string]int64        `json:"store_ops"`
	StoreErrors      map[string]int64        `json:"store_errors"`
	Circuits         map[string]string       `json:"circuits"`
	LayerMetrics     map[string]LayerMetrics `json:"layers"`
	ChainHits        int64                   `json:"chain_hits"`
	ChainMisses      int64                   `json:"chain_misses"`
	ChainHitsByLayer map[int]int64           `json:"chain_hits_by_layer"`
}

// Snapshot returns a copy of the current metrics state.
func (mc *MemoryCollector) Snapshot() Snapshot {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	s := Snapshot{
		Uploads:          make(map[string]int64, len(mc.uploads)),
		RecordsIngested:  mc.recordsIngested,
		Queries:          make(map[string]QueryMetrics, len(mc.queries)),
		StoreOps:         make(map[string]int64, len(mc.storeOps)),
		StoreErrors:      make(map[string]int64, len(mc.storeErrors)),
		Circuits:         make(map[string]string, len(mc.circuits)),
		LayerMetrics:     make(map[string]LayerMetrics, len(mc.layerMetrics)),
		ChainHits:        mc.chainHits,
		ChainMisses:      mc.chainMisses,
		ChainHitsByLayer: make(map[int]int64, len(mc.chainHitsByLayer)),
	}

	for k, v := range mc.uploads {
		s.Uploads[k] = v
	}
	for k, v := range mc.queries {
		s.Queries[k] = *v
	}
	for k, v := range mc.storeOps {
		s.StoreOps[k] = v
	}
	for k, v := range mc.storeErrors {
		s.StoreErrors[k] = v
	}
	for k, v := range mc.circuits {
		s.Circuits[k] = v.String()
	}
	for k, v := range mc.layerMetrics {
		s.LayerMetrics[k] = *v
	}
	for k, v := range mc.chainHitsByLayer {
		s.ChainHitsByLayer[k] = v
	}

	return s
}

// CircuitState returns the last reported state of a breaker.
func (mc *MemoryCollector) CircuitState(name string) (metrics.CircuitState, bool) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	state, ok := mc.circuits[name]
	return state, ok
}

// Reset clears all collected metrics.
func (mc *MemoryCollector) Reset() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.reset()
}
