package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"txn-ingest/pkg/record"
	"txn-ingest/pkg/status"
	"txn-ingest/pkg/store"
)

func tx(t *testing.T, id, ccy string, d int, code status.Code) record.Transaction {
	t.Helper()
	r, err := record.New(id, decimal.NewFromInt(1), ccy, time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC), code)
	if err != nil {
		t.Fatalf("record.New failed: %v", err)
	}
	return r
}

func TestStore_InsertAndFilter(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.InsertBatch(ctx, []record.Transaction{
		tx(t, "T1", "USD", 1, status.Approved),
		tx(t, "T2", "EUR", 2, status.Done),
		tx(t, "T3", "USD", 3, status.Done),
	})
	if err != nil {
		t.Fatalf("InsertBatch failed: %v", err)
	}

	usd, _ := s.QueryByCurrency(ctx, "USD")
	if len(usd) != 2 || usd[0].ID != 1 || usd[1].ID != 3 {
		t.Errorf("Unexpected USD result: %+v", usd)
	}

	done, _ := s.QueryByStatus(ctx, status.Done)
	if len(done) != 2 || done[0].TransactionID != "T2" {
		t.Errorf("Unexpected status result: %+v", done)
	}

	ranged, _ := s.QueryByDateRange(ctx,
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC))
	if len(ranged) != 2 {
		t.Errorf("Expected inclusive range to return 2, got %d", len(ranged))
	}

	none, err := s.QueryByCurrency(ctx, "JPY")
	if err != nil || none == nil || len(none) != 0 {
		t.Errorf("Expected empty non-nil result, got %#v, %v", none, err)
	}
}

func TestStore_FailInsertLeavesNothing(t *testing.T) {
	s := New()
	s.FailInsert = errors.New("disk full")

	err := s.InsertBatch(context.Background(), []record.Transaction{tx(t, "T1", "USD", 1, status.Approved)})
	if err == nil {
		t.Fatal("Expected error")
	}
	if s.Len() != 0 {
		t.Errorf("Expected no rows, got %d", s.Len())
	}
}

func TestStore_Closed(t *testing.T) {
	s := New()
	s.Close()

	if err := s.Ping(context.Background()); !errors.Is(err, store.ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if _, err := s.QueryByStatus(context.Background(), status.Done); !errors.Is(err, store.ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

func TestStore_ConcurrentBatchesStayContiguous(t *testing.T) {
	s := New()
	ctx := context.Background()

	batches := make([][]record.Transaction, 10)
	for i := range batches {
		ccy := string(rune('A'+i)) + "XX"
		batches[i] = []record.Transaction{
			tx(t, "A", ccy, 1, status.Approved),
			tx(t, "B", ccy, 1, status.Approved),
			tx(t, "C", ccy, 1, status.Approved),
		}
	}

	var wg sync.WaitGroup
	for _, batch := range batches {
		wg.Add(1)
		go func(batch []record.Transaction) {
			defer wg.Done()
			if err := s.InsertBatch(ctx, batch); err != nil {
				t.Errorf("InsertBatch failed: %v", err)
			}
		}(batch)
	}
	wg.Wait()

	if s.Len() != 30 {
		t.Fatalf("Expected 30 rows, got %d", s.Len())
	}

	all, _ := s.QueryByStatus(ctx, status.Approved)
	for i := 0; i < len(all); i += 3 {
		if all[i].CurrencyCode != all[i+1].CurrencyCode || all[i].CurrencyCode != all[i+2].CurrencyCode {
			t.Fatalf("Batch interleaved at %d", i)
		}
		if all[i].TransactionID != "A" || all[i+2].TransactionID != "C" {
			t.Errorf("Batch order lost at %d", i)
		}
	}
}
