package ingest

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	metricsmem "txn-ingest/pkg/metrics/memory"
	"txn-ingest/pkg/record"
	"txn-ingest/pkg/status"
	"txn-ingest/pkg/store"
	"txn-ingest/pkg/store/memstore"
	"txn-ingest/pkg/store/sqlstore"
)

const sampleXML = `<?xml version="1.0" encoding="utf-8"?>
<Transactions>
  <Transaction id="Inv00001">
    <TransactionDate>2019-01-23T13:45:10</TransactionDate>
    <PaymentDetails>
      <Amount>200.00</Amount>
      <CurrencyCode>USD</CurrencyCode>
    </PaymentDetails>
    <Status>Done</Status>
  </Transaction>
  <Transaction id="Inv00002">
    <TransactionDate>2019-01-24T16:09:15</TransactionDate>
    <PaymentDetails>
      <Amount>10000.00</Amount>
      <CurrencyCode>EUR</CurrencyCode>
    </PaymentDetails>
    <Status>Rejected</Status>
  </Transaction>
</Transactions>`

const fiveRowsBadThird = `"T1","1,00","USD","01/01/2024 10:00:00","Approved"
"T2","2,00","USD","02/01/2024 10:00:00","Failed"
"T3","3,00","USD","03/01/2024 10:00:00","Pending"
"T4","4,00","USD","04/01/2024 10:00:00","Done"
"T5","5,00","USD","05/01/2024 10:00:00","Finished"`

// closeTracker records whether the pipeline released the upload body.
type closeTracker struct {
	io.Reader
	mu     sync.Mutex
	closed bool
}

func body(s string) *closeTracker {
	return &closeTracker{Reader: strings.NewReader(s)}
}

func (c *closeTracker) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *closeTracker) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func newIngestor(t *testing.T, s store.Store, hooks ...CommitHook) (*Ingestor, *metricsmem.MemoryCollector) {
	t.Helper()

	mc := metricsmem.NewMemoryCollector()
	in, err := New(Config{Store: s, Metrics: mc, OnCommit: hooks})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return in, mc
}

func newSQLite(t *testing.T) *sqlstore.Store {
	t.Helper()

	s, err := sqlstore.Open(context.Background(), sqlstore.Config{Driver: "sqlite3", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("Failed to open sqlite store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNew_RequiresStore(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("Expected error without a store")
	}
}

func TestIngest_CSVSingleRow(t *testing.T) {
	s := memstore.New()
	in, _ := newIngestor(t, s)
	b := body(`"T1","1.000,00","USD","01/01/2024 10:00:00","Approved"`)

	res, err := in.Ingest(context.Background(), "upload.csv", b)
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if res.Records != 1 || res.Format != FormatCSV {
		t.Errorf("Unexpected result: %+v", res)
	}
	if res.UploadID == "" {
		t.Error("Expected an upload id")
	}
	if !b.Closed() {
		t.Error("Expected body to be closed")
	}

	got, _ := s.QueryByCurrency(context.Background(), "USD")
	if len(got) != 1 {
		t.Fatalf("Expected 1 stored transaction, got %d", len(got))
	}
	if got[0].Status != status.Approved {
		t.Errorf("Expected status A, got %s", got[0].Status)
	}
	if !got[0].Amount.Equal(decimal.RequireFromString("1000.00")) {
		t.Errorf("Expected amount 1000.00, got %s", got[0].Amount)
	}
}

func TestIngest_XML(t *testing.T) {
	s := newSQLite(t)
	in, _ := newIngestor(t, s)

	res, err := in.Ingest(context.Background(), "batch.XML", body(sampleXML))
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if res.Records != 2 || res.Format != FormatXML {
		t.Errorf("Unexpected result: %+v", res)
	}

	done, err := s.QueryByStatus(context.Background(), status.Done)
	if err != nil {
		t.Fatalf("QueryByStatus failed: %v", err)
	}
	if len(done) != 1 || done[0].TransactionID != "Inv00001" {
		t.Errorf("Unexpected Done result: %+v", done)
	}
}

func TestIngest_CSVBadRowCommitsNothing(t *testing.T) {
	backends := map[string]store.Store{
		"memory": memstore.New(),
		"sqlite": newSQLite(t),
	}

	for name, s := range backends {
		t.Run(name, func(t *testing.T) {
			in, _ := newIngestor(t, s)
			b := body(fiveRowsBadThird)

			_, err := in.Ingest(context.Background(), "five.csv", b)
			if !errors.Is(err, ErrUnrecognizedStatus) {
				t.Fatalf("Expected ErrUnrecognizedStatus, got %v", err)
			}

			var rowErr *RowError
			if !errors.As(err, &rowErr) || rowErr.Line != 3 {
				t.Errorf("Expected failure on line 3, got %v", err)
			}
			if !strings.Contains(err.Error(), "Pending") {
				t.Errorf("Expected message to name the label, got %q", err.Error())
			}
			if !b.Closed() {
				t.Error("Expected body to be closed")
			}

			got, err := s.QueryByCurrency(context.Background(), "USD")
			if err != nil {
				t.Fatalf("QueryByCurrency failed: %v", err)
			}
			if len(got) != 0 {
				t.Errorf("Expected nothing persisted, got %d rows", len(got))
			}
		})
	}
}

func TestIngest_XMLMissingStatusCommitsNothing(t *testing.T) {
	s := memstore.New()
	in, _ := newIngestor(t, s)

	doc := strings.Replace(sampleXML, "<Status>Rejected</Status>", "", 1)
	_, err := in.Ingest(context.Background(), "batch.xml", body(doc))
	if !errors.Is(err, ErrMissingField) {
		t.Fatalf("Expected ErrMissingField, got %v", err)
	}

	var nodeErr *NodeError
	if !errors.As(err, &nodeErr) {
		t.Fatalf("Expected NodeError, got %T", err)
	}
	if !strings.Contains(nodeErr.Node, "Inv00002") {
		t.Errorf("Expected node to identify Inv00002, got %q", nodeErr.Node)
	}
	if s.Len() != 0 {
		t.Errorf("Expected nothing persisted, got %d rows", s.Len())
	}
}

func TestIngest_RejectsBeforeParsing(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		content  string
		want     error
	}{
		{"unsupported extension", "data.json", `{"a":1}`, ErrUnsupportedFormat},
		{"no extension", "data", "x", ErrUnsupportedFormat},
		{"empty csv", "data.csv", "", ErrEmptyUpload},
		{"empty with bad extension", "data.txt", "", ErrEmptyUpload},
		{"malformed xml", "data.xml", "<Transactions><Transaction>", ErrMalformedDocument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := memstore.New()
			in, _ := newIngestor(t, s)
			b := body(tt.content)

			_, err := in.Ingest(context.Background(), tt.filename, b)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
			if !IsClientError(err) {
				t.Errorf("Expected client error, got %v", err)
			}
			if !b.Closed() {
				t.Error("Expected body to be closed")
			}
			if s.Len() != 0 {
				t.Errorf("Expected nothing persisted, got %d", s.Len())
			}
		})
	}
}

func TestIngest_NilBody(t *testing.T) {
	in, _ := newIngestor(t, memstore.New())

	if _, err := in.Ingest(context.Background(), "data.csv", nil); !errors.Is(err, ErrEmptyUpload) {
		t.Errorf("Expected ErrEmptyUpload, got %v", err)
	}
}

func TestIngest_PersistenceFailure(t *testing.T) {
	s := memstore.New()
	s.FailInsert = errors.New("disk full")

	called := false
	in, mc := newIngestor(t, s, func(context.Context, Result) { called = true })
	b := body(`"T1","1,00","USD","01/01/2024 10:00:00","Approved"`)

	_, err := in.Ingest(context.Background(), "data.csv", b)
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("Expected ErrPersistence, got %v", err)
	}
	if IsClientError(err) {
		t.Error("Persistence failure must not be a client error")
	}
	if Classify(err) != ErrPersistence {
		t.Errorf("Expected classification ErrPersistence, got %v", Classify(err))
	}
	if called {
		t.Error("Hook must not run after a failed commit")
	}
	if !b.Closed() {
		t.Error("Expected body to be closed")
	}
	if got := mc.Snapshot().Uploads["csv/persistence"]; got != 1 {
		t.Errorf("Expected 1 persistence failure recorded, got %d", got)
	}
}

func TestIngest_CommitHooks(t *testing.T) {
	var got []Result
	hook := func(_ context.Context, r Result) { got = append(got, r) }
	in, _ := newIngestor(t, memstore.New(), hook)

	res, err := in.Ingest(context.Background(), "a.xml", body(sampleXML))
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if len(got) != 1 || got[0] != res {
		t.Fatalf("Expected hook with %+v, got %+v", res, got)
	}

	// A document with no Transaction nodes commits nothing and skips hooks.
	res, err = in.Ingest(context.Background(), "b.xml", body("<Transactions/>"))
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if res.Records != 0 {
		t.Errorf("Expected 0 records, got %d", res.Records)
	}
	if len(got) != 1 {
		t.Errorf("Expected no hook for empty batch, got %d calls", len(got))
	}

	_, _ = in.Ingest(context.Background(), "c.csv", body(fiveRowsBadThird))
	if len(got) != 1 {
		t.Errorf("Expected no hook for failed upload, got %d calls", len(got))
	}
}

// cancelOnCommit cancels the upload's context as soon as the batch commits.
type cancelOnCommit struct {
	*memstore.Store
	cancel context.CancelFunc
}

func (s *cancelOnCommit) InsertBatch(ctx context.Context, batch []record.Transaction) error {
	err := s.Store.InsertBatch(ctx, batch)
	s.cancel()
	return err
}

func TestIngest_CommitHooksOutliveCaller(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var hookErr error
	hook := func(ctx context.Context, _ Result) { hookErr = ctx.Err() }
	in, _ := newIngestor(t, &cancelOnCommit{Store: memstore.New(), cancel: cancel}, hook)

	res, err := in.Ingest(ctx, "a.xml", body(sampleXML))
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if res.Records != 2 {
		t.Fatalf("Expected 2 records, got %d", res.Records)
	}
	if ctx.Err() == nil {
		t.Fatal("Expected the upload context to be cancelled after commit")
	}
	if hookErr != nil {
		t.Errorf("Expected hooks to run with a live context, got %v", hookErr)
	}
}

func TestIngest_RecordsMetrics(t *testing.T) {
	in, mc := newIngestor(t, memstore.New())
	ctx := context.Background()

	in.Ingest(ctx, "a.xml", body(sampleXML))
	in.Ingest(ctx, "b.csv", body(fiveRowsBadThird))
	in.Ingest(ctx, "c.pdf", body("%PDF"))

	s := mc.Snapshot()
	if s.Uploads["xml/ok"] != 1 {
		t.Errorf("Expected 1 ok xml upload, got %d", s.Uploads["xml/ok"])
	}
	if s.Uploads["csv/unrecognized_status"] != 1 {
		t.Errorf("Expected 1 unrecognized_status csv upload, got %d", s.Uploads["csv/unrecognized_status"])
	}
	if s.Uploads["unknown/unsupported_format"] != 1 {
		t.Errorf("Expected 1 unsupported upload, got %d", s.Uploads["unknown/unsupported_format"])
	}
	if s.RecordsIngested != 2 {
		t.Errorf("Expected 2 records ingested, got %d", s.RecordsIngested)
	}
}

func TestIngest_ConcurrentUploads(t *testing.T) {
	s := memstore.New()
	in, _ := newIngestor(t, s)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := in.Ingest(context.Background(), "a.xml", body(sampleXML)); err != nil {
				t.Errorf("Ingest failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if s.Len() != 16 {
		t.Errorf("Expected 16 rows, got %d", s.Len())
	}
}

func TestIngestFile(t *testing.T) {
	s := memstore.New()
	in, _ := newIngestor(t, s)

	path := filepath.Join(t.TempDir(), "upload.csv")
	if err := os.WriteFile(path, []byte(`"T1","12,5","EUR","31/12/2023 23:59:59","Finished"`), 0o600); err != nil {
		t.Fatal(err)
	}

	res, err := in.IngestFile(context.Background(), path)
	if err != nil {
		t.Fatalf("IngestFile failed: %v", err)
	}
	if res.Filename != "upload.csv" || res.Records != 1 {
		t.Errorf("Unexpected result: %+v", res)
	}

	if _, err := in.IngestFile(context.Background(), filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		filename string
		want     Format
		wantErr  bool
	}{
		{"a.csv", FormatCSV, false},
		{"A.CSV", FormatCSV, false},
		{"dir/b.xml", FormatXML, false},
		{"b.Xml", FormatXML, false},
		{"b.xml.txt", FormatUnknown, true},
		{"csv", FormatUnknown, true},
		{"", FormatUnknown, true},
	}

	for _, tt := range tests {
		got, err := DetectFormat(tt.filename)
		if (err != nil) != tt.wantErr {
			t.Errorf("DetectFormat(%q) error = %v, wantErr %v", tt.filename, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("DetectFormat(%q) = %v, want %v", tt.filename, got, tt.want)
		}
	}
}

func TestFormat_MarshalText(t *testing.T) {
	b, err := FormatXML.MarshalText()
	if err != nil || string(b) != "xml" {
		t.Errorf("Expected xml, got %q, %v", b, err)
	}
}
