package xmlparser

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"txn-ingest/pkg/ingest/errs"
	"txn-ingest/pkg/status"
)

const sample = `<?xml version="1.0" encoding="utf-8"?>
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

func TestParse(t *testing.T) {
	txs, err := Parse(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("Expected 2 transactions, got %d", len(txs))
	}

	first := txs[0]
	if first.TransactionID != "Inv00001" {
		t.Errorf("Expected Inv00001, got %s", first.TransactionID)
	}
	if !first.TransactionDate.Equal(time.Date(2019, 1, 23, 13, 45, 10, 0, time.UTC)) {
		t.Errorf("Unexpected date %v", first.TransactionDate)
	}
	if !first.Amount.Equal(decimal.NewFromInt(200)) {
		t.Errorf("Expected 200, got %s", first.Amount)
	}
	if first.CurrencyCode != "USD" || first.Status != status.Done {
		t.Errorf("Unexpected first transaction: %+v", first)
	}

	if txs[1].TransactionID != "Inv00002" || txs[1].Status != status.Rejected {
		t.Errorf("Unexpected second transaction: %+v", txs[1])
	}
}

func TestParse_NormalizesBeforeParsing(t *testing.T) {
	// Curly quotes around the attribute value are not valid XML until they
	// are normalized.
	doc := `<Transactions><Transaction id=“T1”>` +
		`<TransactionDate>2024-01-01 10:00:00</TransactionDate>` +
		`<PaymentDetails><Amount>1,000.50</Amount><CurrencyCode> GBP </CurrencyCode></PaymentDetails>` +
		`<Status>Approved</Status></Transaction></Transactions>`

	txs, err := Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("Expected 1 transaction, got %d", len(txs))
	}
	if txs[0].TransactionID != "T1" {
		t.Errorf("Expected T1, got %s", txs[0].TransactionID)
	}
	if txs[0].AmountString() != "1000.50" {
		t.Errorf("Expected 1000.50, got %s", txs[0].AmountString())
	}
	if txs[0].CurrencyCode != "GBP" {
		t.Errorf("Expected GBP, got %q", txs[0].CurrencyCode)
	}
}

func TestParse_KeepsGuillemetsAndPrimes(t *testing.T) {
	doc := `<Transactions><Transaction id="«T1»">` +
		`<TransactionDate>2024-01-01 10:00:00</TransactionDate>` +
		`<PaymentDetails><Amount>1.00</Amount><CurrencyCode>USD</CurrencyCode></PaymentDetails>` +
		`<Status>Approved</Status></Transaction>` +
		`<Transaction id="5″x2′">` +
		`<TransactionDate>2024-01-01 10:00:00</TransactionDate>` +
		`<PaymentDetails><Amount>1.00</Amount><CurrencyCode>USD</CurrencyCode></PaymentDetails>` +
		`<Status>Approved</Status></Transaction></Transactions>`

	txs, err := Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Expected guillemets and primes to leave the document well formed, got %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("Expected 2 transactions, got %d", len(txs))
	}
	if txs[0].TransactionID != "«T1»" {
		t.Errorf("Expected id «T1», got %q", txs[0].TransactionID)
	}
	if txs[1].TransactionID != "5″x2′" {
		t.Errorf("Expected id 5″x2′, got %q", txs[1].TransactionID)
	}
}

func TestParse_NestedAndRootTransactions(t *testing.T) {
	nested := `<Export><Batch><Transaction id="A1"><TransactionDate>2024-01-01</TransactionDate>` +
		`<PaymentDetails><Amount>1</Amount><CurrencyCode>USD</CurrencyCode></PaymentDetails>` +
		`<Status>Finished</Status></Transaction></Batch>` +
		`<Transaction id="A2"><TransactionDate>2024-01-02</TransactionDate>` +
		`<PaymentDetails><Amount>2</Amount><CurrencyCode>USD</CurrencyCode></PaymentDetails>` +
		`<Status>Failed</Status></Transaction></Export>`

	txs, err := Parse(strings.NewReader(nested))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(txs) != 2 || txs[0].TransactionID != "A1" || txs[1].TransactionID != "A2" {
		t.Fatalf("Expected A1, A2 in document order, got %+v", txs)
	}

	single := `<Transaction id="S1"><TransactionDate>2024-01-01</TransactionDate>` +
		`<PaymentDetails><Amount>1</Amount><CurrencyCode>USD</CurrencyCode></PaymentDetails>` +
		`<Status>Done</Status></Transaction>`
	txs, err = Parse(strings.NewReader(single))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(txs) != 1 || txs[0].TransactionID != "S1" {
		t.Errorf("Expected root Transaction to be selected, got %+v", txs)
	}
}

func TestParse_NoTransactions(t *testing.T) {
	txs, err := Parse(strings.NewReader(`<Transactions/>`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(txs) != 0 {
		t.Errorf("Expected no transactions, got %d", len(txs))
	}
}

func TestParse_MissingStatus(t *testing.T) {
	doc := `<Transactions>` +
		`<Transaction id="T1"><TransactionDate>2024-01-01</TransactionDate>` +
		`<PaymentDetails><Amount>1</Amount><CurrencyCode>USD</CurrencyCode></PaymentDetails>` +
		`<Status>Done</Status></Transaction>` +
		`<Transaction id="T2"><TransactionDate>2024-01-01</TransactionDate>` +
		`<PaymentDetails><Amount>1</Amount><CurrencyCode>USD</CurrencyCode></PaymentDetails>` +
		`</Transaction></Transactions>`

	txs, err := Parse(strings.NewReader(doc))
	if err == nil {
		t.Fatal("Expected error for missing Status")
	}
	if txs != nil {
		t.Errorf("Expected no transactions on failure, got %d", len(txs))
	}
	if !errors.Is(err, errs.ErrMissingField) {
		t.Errorf("Expected ErrMissingField, got %v", err)
	}

	var ne *errs.NodeError
	if !errors.As(err, &ne) {
		t.Fatalf("Expected *NodeError, got %T", err)
	}
	if ne.Field != "Status" {
		t.Errorf("Expected field Status, got %s", ne.Field)
	}
	if !strings.HasPrefix(ne.Node, `<Transaction id="T2">`) || !strings.HasSuffix(ne.Node, `</Transaction>`) {
		t.Errorf("Expected outer XML of T2, got %s", ne.Node)
	}
}

func TestParse_NodeErrors(t *testing.T) {
	tx := func(id, date, amount, ccy, st string) string {
		return `<Transactions><Transaction` + id + `><TransactionDate>` + date + `</TransactionDate>` +
			`<PaymentDetails><Amount>` + amount + `</Amount><CurrencyCode>` + ccy + `</CurrencyCode></PaymentDetails>` +
			`<Status>` + st + `</Status></Transaction></Transactions>`
	}

	tests := []struct {
		name  string
		doc   string
		kind  error
		field string
	}{
		{"missing id", tx("", "2024-01-01", "1", "USD", "Done"), errs.ErrMissingField, "id"},
		{"empty id", tx(` id=""`, "2024-01-01", "1", "USD", "Done"), errs.ErrMissingField, "transactionId"},
		{"bad date", tx(` id="T1"`, "someday", "1", "USD", "Done"), errs.ErrInvalidDate, "TransactionDate"},
		{"european amount", tx(` id="T1"`, "2024-01-01", "1.234,56", "USD", "Done"), errs.ErrInvalidAmount, "PaymentDetails/Amount"},
		{"unknown status", tx(` id="T1"`, "2024-01-01", "1", "USD", "Pending"), errs.ErrUnrecognizedStatus, "Status"},
		{"short currency", tx(` id="T1"`, "2024-01-01", "1", "US", "Done"), errs.ErrInvalidField, "currencyCode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.doc))
			if err == nil {
				t.Fatal("Expected error")
			}
			if got := errs.Classify(err); got != tt.kind {
				t.Errorf("Expected %v, got %v (%v)", tt.kind, got, err)
			}

			var ne *errs.NodeError
			if !errors.As(err, &ne) {
				t.Fatalf("Expected *NodeError, got %T", err)
			}
			if ne.Field != tt.field {
				t.Errorf("Expected field %s, got %s", tt.field, ne.Field)
			}
			if !strings.Contains(err.Error(), "<Transaction") {
				t.Errorf("Expected message to carry the node, got %s", err.Error())
			}
		})
	}
}

func TestParse_ConversionFailureMatchesKindAndCause(t *testing.T) {
	doc := `<Transactions><Transaction id="T1"><TransactionDate>2024-01-01</TransactionDate>` +
		`<PaymentDetails><Amount>abc</Amount><CurrencyCode>USD</CurrencyCode></PaymentDetails>` +
		`<Status>Done</Status></Transaction></Transactions>`

	_, err := Parse(strings.NewReader(doc))
	if !errors.Is(err, errs.ErrFieldConversion) {
		t.Errorf("Expected ErrFieldConversion, got %v", err)
	}
	if !errors.Is(err, errs.ErrInvalidAmount) {
		t.Errorf("Expected cause ErrInvalidAmount, got %v", err)
	}
}

func TestParse_Malformed(t *testing.T) {
	docs := map[string]string{
		"unclosed":   `<Transactions><Transaction id="T1">`,
		"mismatched": `<Transactions></Transaction>`,
		"two roots":  `<a/><b/>`,
		"no root":    `<?xml version="1.0"?>`,
		"plain text": `T1,1,USD`,
		"bad attr":   `<Transactions><Transaction id=T1/></Transactions>`,
		"trailing":   `<Transactions/>garbage`,
		"whitespace": "   \n  ",
	}

	for name, doc := range docs {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(doc))
			if !errors.Is(err, errs.ErrMalformedDocument) {
				t.Errorf("Expected ErrMalformedDocument, got %v", err)
			}
		})
	}
}

func TestParse_LegacyEncodings(t *testing.T) {
	body := `<Transactions><Transaction id="T1"><TransactionDate>2024-01-01</TransactionDate>` +
		`<PaymentDetails><Amount>5</Amount><CurrencyCode>USD</CurrencyCode></PaymentDetails>` +
		`<Status>Approved</Status></Transaction></Transactions>`

	t.Run("utf-16 with declaration", func(t *testing.T) {
		doc := `<?xml version="1.0" encoding="utf-16"?>` + body
		encoded := []byte{0xFF, 0xFE}
		for _, r := range doc {
			encoded = append(encoded, byte(r), 0)
		}

		txs, err := Parse(bytes.NewReader(encoded))
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}
		if len(txs) != 1 || txs[0].TransactionID != "T1" {
			t.Errorf("Unexpected result %+v", txs)
		}
	})

	t.Run("windows-1252 quotes", func(t *testing.T) {
		doc := strings.Replace(body, `id="T1"`, "id=\x93T1\x94", 1)

		txs, err := Parse(strings.NewReader(doc))
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}
		if len(txs) != 1 || txs[0].TransactionID != "T1" {
			t.Errorf("Unexpected result %+v", txs)
		}
	})
}
