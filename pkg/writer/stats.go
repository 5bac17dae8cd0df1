package writer

import (
	"errors"
	"sync/atomic"
)

var (
	// ErrQueueFull means a warm-up write was dropped; the entry is simply
	// loaded again on the next miss.
	ErrQueueFull = errors.New("writer: warm-up queue full, write dropped")

	ErrWriterClosed = errors.New("writer: closed")

	// ErrFlushTimeout is returned by Flush when accepted writes are still
	// pending at the deadline.
	ErrFlushTimeout = errors.New("writer: flush deadline exceeded with writes pending")
)

// AsyncWriterStats is a point-in-time view of one layer's warm-up writer.
type AsyncWriterStats struct {
	Layer string

	// QueueDepth counts writes waiting for a worker
	QueueDepth int

	// Pending counts accepted writes not yet applied, queued or in flight
	Pending int64

	TotalWrites   int64
	DroppedWrites int64
	FailedWrites  int64
}

// Idle reports whether every accepted write has been applied.
func (s AsyncWriterStats) Idle() bool {
	return s.Pending == 0
}

// Stats returns the writer's counters.
func (w *AsyncWriter) Stats() AsyncWriterStats {
	return AsyncWriterStats{
		Layer:         w.layerName,
		QueueDepth:    len(w.queue),
		Pending:       atomic.LoadInt64(&w.pending),
		TotalWrites:   atomic.LoadInt64(&w.totalWrites),
		DroppedWrites: atomic.LoadInt64(&w.droppedWrites),
		FailedWrites:  atomic.LoadInt64(&w.failedWrites),
	}
}
