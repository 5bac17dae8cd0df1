package metrics

import (
	"time"
)

// Collector defines the interface for collecting service metrics.
// Implementations can export metrics to various backends (Prometheus, in-memory, etc.).
type Collector interface {
	// Uploads and queries
	RecordUpload(format, outcome string, records int, duration time.Duration)
	RecordQuery(kind string, found bool, duration time.Duration)

	// Storage calls made through the resilient wrapper
	RecordStoreOp(operation string, success bool, duration time.Duration)

	// Read cache layers
	RecordCacheGet(layer string, hit bool, duration time.Duration)
	RecordCacheSet(layer string, success bool, duration time.Duration)
	RecordCacheDelete(layer string, success bool, duration time.Duration)
	RecordChainGet(hit bool, layerIndex int, totalDuration time.Duration)

	// Circuit breakers
	RecordCircuitState(name string, state CircuitState)

	// Async writer
	RecordQueueDepth(layer string, depth int)
	RecordWriteDropped(layer string)
	RecordAsyncWrite(layer string, success bool, duration time.Duration)
}

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed means the circuit breaker is allowing requests through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means the circuit breaker is blocking requests.
	CircuitOpen
	// CircuitHalfOpen means the circuit breaker is testing if the backend has recovered.
	CircuitHalfOpen
)

// String returns the string representation of the circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// NoOpCollector is a no-op implementation of Collector.
// It's used as the default collector when metrics are not needed.
type NoOpCollector struct{}

func (NoOpCollector) RecordUpload(format, outcome string, records int, duration time.Duration) {}
func (NoOpCollector) RecordQuery(kind string, found bool, duration time.Duration) {}
func (NoOpCollector) RecordStoreOp(operation string, success bool, duration time.Duration) {}
func (NoOpCollector) RecordCacheGet(layer string, hit bool, duration time.Duration) {}
func (NoOpCollector) RecordCacheSet(layer string, success bool, duration time.Duration) {}
func (NoOpCollector) RecordCacheDelete(layer string, success bool, duration time.Duration) {}
func (NoOpCollector) RecordChainGet(hit bool, layerIndex int, totalDuration time.Duration) {}
func (NoOpCollector) RecordCircuitState(name string, state CircuitState) {}
func (NoOpCollector) RecordQueueDepth(layer string, depth int) {}
func (NoOpCollector) RecordWriteDropped(layer string) {}
func (NoOpCollector) RecordAsyncWrite(layer string, success bool, duration time.Duration) {}

// OrNoOp returns c, or NoOpCollector when c is nil.
func OrNoOp(c Collector) Collector {
	if c == nil {
		return NoOpCollector{}
	}
	return c
}

// Multi fans every event out to several collectors.
type Multi []Collector

// NewMulti returns a Collector reporting to every non-nil collector.
func NewMulti(collectors ...Collector) Multi {
	m := make(Multi, 0, len(collectors))
	for _, c := range collectors {
		if c != nil {
			m = append(m, c)
		}
	}
	return m
}

func (m Multi) RecordUpload(format, outcome string, records int, duration time.Duration) {
	for _, c := range m {
		c.RecordUpload(format, outcome, records, duration)
	}
}

func (m Multi) RecordQuery(kind string, found bool, duration time.Duration) {
	for _, c := range m {
		c.RecordQuery(kind, found, duration)
	}
}

func (m Multi) RecordStoreOp(operation string, success bool, duration time.Duration) {
	for _, c := range m {
		c.RecordStoreOp(operation, success, duration)
	}
}

func (m Multi) RecordCacheGet(layer string, hit bool, duration time.Duration) {
	for _, c := range m {
		c.RecordCacheGet(layer, hit, duration)
	}
}

func (m Multi) RecordCacheSet(layer string, success bool, duration time.Duration) {
	for _, c := range m {
		c.RecordCacheSet(layer, success, duration)
	}
}

func (m Multi) RecordCacheDelete(layer string, success bool, duration time.Duration) {
	for _, c := range m {
		c.RecordCacheDelete(layer, success, duration)
	}
}

func (m Multi) RecordChainGet(hit bool, layerIndex int, totalDuration time.Duration) {
	for _, c := range m {
		c.RecordChainGet(hit, layerIndex, totalDuration)
	}
}

func (m Multi) RecordCircuitState(name string, state CircuitState) {
	for _, c := range m {
		c.RecordCircuitState(name, state)
	}
}

func (m Multi) RecordQueueDepth(layer string, depth int) {
	for _, c := range m {
		c.RecordQueueDepth(layer, depth)
	}
}

func (m Multi) RecordWriteDropped(layer string) {
	for _, c := range m {
		c.RecordWriteDropped(layer)
	}
}

func (m Multi) RecordAsyncWrite(layer string, success bool, duration time.Duration) {
	for _, c := range m {
		c.RecordAsyncWrite(layer, success, duration)
	}
}
