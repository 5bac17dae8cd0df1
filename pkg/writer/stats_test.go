package writer

import (
	"context"
	"testing"
	"time"
)

func TestAsyncWriter_StatsAfterFlush(t *testing.T) {
	layer, _ := recordingLayer()
	w := NewAsyncWriter(layer, AsyncWriterConfig{Workers: 1})
	defer w.Close()

	ctx := context.Background()
	for _, key := range []string{"txn:0:currency:USD", "txn:0:status:A"} {
		if err := w.Write(ctx, key, []byte("[]"), time.Minute); err != nil {
			t.Fatalf("Write(%s) failed: %v", key, err)
		}
	}
	if err := w.Flush(time.Second); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	stats := w.Stats()
	if stats.Layer != "L1" {
		t.Errorf("Expected layer L1, got %q", stats.Layer)
	}
	if !stats.Idle() || stats.QueueDepth != 0 {
		t.Errorf("Expected an idle writer after Flush, got %+v", stats)
	}
	if stats.TotalWrites != 2 || stats.DroppedWrites != 0 || stats.FailedWrites != 0 {
		t.Errorf("Unexpected counters: %+v", stats)
	}
}

func TestAsyncWriterStats_Idle(t *testing.T) {
	if (AsyncWriterStats{Pending: 1}).Idle() {
		t.Error("Expected a writer with pending writes not to be idle")
	}
	if !(AsyncWriterStats{}).Idle() {
		t.Error("Expected zero pending writes to be idle")
	}
}
