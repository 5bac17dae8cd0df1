package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"txn-ingest/pkg/cache"
	"txn-ingest/pkg/cache/memory"
	"txn-ingest/pkg/cache/mock"
	metricsmem "txn-ingest/pkg/metrics/memory"
)

func TestResilientLayer_GetSetDelete(t *testing.T) {
	memCache := memory.NewMemoryCache(memory.MemoryCacheConfig{Name: "L1"})
	collector := metricsmem.NewMemoryCollector()
	rl := NewResilientLayerWithMetrics(memCache, DefaultResilientConfig(), collector)
	defer rl.Close()

	ctx := context.Background()

	if rl.Name() != "L1" {
		t.Errorf("Expected name L1, got %q", rl.Name())
	}

	if err := rl.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := rl.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("Get = %q, %v", got, err)
	}
	if err := rl.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := rl.Get(ctx, "k"); !cache.IsNotFound(err) {
		t.Errorf("Expected ErrKeyNotFound, got %v", err)
	}

	lm := collector.Snapshot().LayerMetrics["L1"]
	if lm.Hits != 1 || lm.Misses != 1 || lm.Sets != 1 || lm.Deletes != 1 {
		t.Errorf("Unexpected layer metrics: %+v", lm)
	}
}

func TestResilientLayer_CacheMissDoesNotTripCircuit(t *testing.T) {
	memCache := memory.NewMemoryCache(memory.MemoryCacheConfig{Name: "L1"})
	rl := NewResilientLayer(memCache, fastTrip(time.Second))
	defer rl.Close()

	ctx := context.Background()
	for i := 0; i < 100; i++ {
		_, err := rl.Get(ctx, "txn:currency:JPY")
		if cache.IsCircuitOpen(err) {
			t.Fatalf("Circuit opened after %d misses", i+1)
		}
		if !cache.IsNotFound(err) {
			t.Fatalf("Expected ErrKeyNotFound, got %v", err)
		}
	}
}

func TestResilientLayer_RealErrorsTripCircuit(t *testing.T) {
	layer := &mock.MockLayer{
		NameFunc: func() string { return "redis" },
		GetFunc: func(ctx context.Context, key string) ([]byte, error) {
			return nil, errors.New("redis get: connection refused")
		},
	}
	rl := NewResilientLayer(layer, fastTrip(time.Second))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := rl.Get(ctx, "k"); cache.IsCircuitOpen(err) {
			t.Fatalf("Circuit open too early on call %d", i)
		}
	}

	if _, err := rl.Get(ctx, "k"); !cache.IsCircuitOpen(err) {
		t.Fatalf("Expected ErrCircuitOpen, got %v", err)
	}
	if layer.GetCalls() != 3 {
		t.Errorf("Open breaker should not reach the layer, got %d calls", layer.GetCalls())
	}
}

func TestResilientLayer_Timeout(t *testing.T) {
	layer := &mock.MockLayer{
		GetFunc: func(ctx context.Context, key string) ([]byte, error) {
			select {
			case <-time.After(200 * time.Millisecond):
				return []byte("late"), nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
	rl := NewResilientLayer(layer, fastTrip(20*time.Millisecond))

	if _, err := rl.Get(context.Background(), "k"); !cache.IsTimeout(err) {
		t.Errorf("Expected cache timeout, got %v", err)
	}
}
