package errs

import (
	"errors"
	"fmt"
	"testing"

	"txn-ingest/pkg/convert"
	"txn-ingest/pkg/record"
	"txn-ingest/pkg/status"
)

func TestClassify(t *testing.T) {
	_, amountErr := convert.ParseAmount("12.5")
	_, statusErr := status.Map("Pending")

	tests := []struct {
		name     string
		err      error
		expected error
	}{
		{"nil", nil, nil},
		{"unsupported", ErrUnsupportedFormat, ErrUnsupportedFormat},
		{"empty", ErrEmptyUpload, ErrEmptyUpload},
		{"malformed", Malformed(errors.New("EOF")), ErrMalformedDocument},
		{"row amount", &RowError{Line: 2, Err: amountErr}, ErrInvalidAmount},
		{"row status", &RowError{Line: 3, Err: statusErr}, ErrUnrecognizedStatus},
		{"row missing", &RowError{Line: 1, Err: &record.FieldError{Field: "currencyCode", Rule: "required", Kind: record.ErrMissingField}}, ErrMissingField},
		{"row invalid", &RowError{Line: 1, Err: &record.FieldError{Field: "currencyCode", Rule: "len", Kind: record.ErrInvalidField}}, ErrInvalidField},
		{"node missing", &NodeError{Kind: ErrMissingField, Field: "Status"}, ErrMissingField},
		{"node amount", &NodeError{Kind: ErrFieldConversion, Field: "Amount", Cause: amountErr}, ErrInvalidAmount},
		{"node conversion", &NodeError{Kind: ErrFieldConversion, Field: "Amount", Cause: errors.New("boom")}, ErrFieldConversion},
		{"persistence", &PersistenceError{Records: 2, Err: errors.New("connection reset")}, ErrPersistence},
		{"wrapped persistence", fmt.Errorf("ingest: %w", &PersistenceError{Err: errors.New("x")}), ErrPersistence},
		{"unknown", errors.New("boom"), ErrUnexpected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.expected {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestNodeError_MatchesKindAndCause(t *testing.T) {
	_, cause := convert.ParseXMLDate("yesterday")
	err := &NodeError{Kind: ErrFieldConversion, Field: "TransactionDate", Node: `<Transaction id="T1"/>`, Cause: cause}

	if !errors.Is(err, ErrFieldConversion) {
		t.Error("Expected error to match ErrFieldConversion")
	}
	if !errors.Is(err, ErrInvalidDate) {
		t.Error("Expected error to match its cause")
	}
	if errors.Is(err, ErrMissingField) {
		t.Error("Did not expect ErrMissingField")
	}

	expected := `cannot convert TransactionDate in node <Transaction id="T1"/>: cannot convert "yesterday" to date`
	if err.Error() != expected {
		t.Errorf("Expected %q, got %q", expected, err.Error())
	}
}

func TestRowError(t *testing.T) {
	err := &RowError{Line: 3, Err: &status.UnrecognizedError{Label: "Pending"}}

	var ue *status.UnrecognizedError
	if !errors.As(err, &ue) {
		t.Fatal("Expected RowError to unwrap to *status.UnrecognizedError")
	}
	if ue.Label != "Pending" {
		t.Errorf("Expected label Pending, got %s", ue.Label)
	}
}

func TestLabelAndIsClientError(t *testing.T) {
	tests := []struct {
		err    error
		label  string
		client bool
	}{
		{nil, "ok", false},
		{ErrUnsupportedFormat, "unsupported_format", true},
		{ErrEmptyUpload, "empty_upload", true},
		{Malformed(errors.New("x")), "malformed_document", true},
		{&PersistenceError{Err: errors.New("x")}, "persistence", false},
		{errors.New("x"), "unexpected", false},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			if got := Label(tt.err); got != tt.label {
				t.Errorf("Label(%v) = %s, want %s", tt.err, got, tt.label)
			}
			if got := IsClientError(tt.err); got != tt.client {
				t.Errorf("IsClientError(%v) = %v, want %v", tt.err, got, tt.client)
			}
		})
	}
}
