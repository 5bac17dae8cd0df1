// Package csvparser reads headerless transaction exports with five positional
// columns: transaction id, amount, currency code, transaction date, status.
package csvparser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"txn-ingest/pkg/convert"
	"txn-ingest/pkg/ingest/errs"
	"txn-ingest/pkg/normalize"
	"txn-ingest/pkg/record"
	"txn-ingest/pkg/status"
)

// columns names the positional fields in upload order.
var columns = []string{"transactionId", "amount", "currencyCode", "transactionDate", "status"}

// Reader yields one validated transaction per row.
type Reader struct {
	csv     *csv.Reader
	readErr error
}

// NewReader returns a Reader over r. The whole upload is read and decoded
// (byte order marks, Windows-1252) before splitting, so a legacy byte
// anywhere in the file selects the legacy decoder. Rows are still built one
// at a time by Next.
func NewReader(r io.Reader) *Reader {
	raw, err := io.ReadAll(r)
	if err != nil {
		return &Reader{readErr: fmt.Errorf("read upload: %w", err)}
	}
	cr := csv.NewReader(strings.NewReader(normalize.Decode(raw)))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true
	return &Reader{csv: cr}
}

// Next returns the next transaction, or io.EOF after the last row. A failing
// row is reported as *errs.RowError and the Reader must not be used again.
func (r *Reader) Next() (record.Transaction, error) {
	if r.readErr != nil {
		return record.Transaction{}, r.readErr
	}
	fields, err := r.csv.Read()
	if err == io.EOF {
		return record.Transaction{}, io.EOF
	}
	if err != nil {
		line := 0
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			line = pe.StartLine
		}
		return record.Transaction{}, &errs.RowError{Line: line, Err: errs.Malformed(err)}
	}

	line, _ := r.csv.FieldPos(0)
	tx, err := build(fields)
	if err != nil {
		return record.Transaction{}, &errs.RowError{Line: line, Err: err}
	}
	return tx, nil
}

// Parse reads every row of r. The first failing row aborts the parse and no
// transactions are returned.
func Parse(r io.Reader) ([]record.Transaction, error) {
	reader := NewReader(r)

	var out []record.Transaction
	for {
		tx, err := reader.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
}

func build(fields []string) (record.Transaction, error) {
	if len(fields) < len(columns) {
		return record.Transaction{}, &record.FieldError{
			Field: columns[len(fields)],
			Rule:  "required",
			Kind:  record.ErrMissingField,
		}
	}
	if len(fields) > len(columns) {
		return record.Transaction{}, errs.Malformed(
			fmt.Errorf("expected %d fields, got %d", len(columns), len(fields)))
	}

	amount, err := convert.ParseAmount(fields[1])
	if err != nil {
		return record.Transaction{}, err
	}

	date, err := convert.ParseTransactionDate(fields[3])
	if err != nil {
		return record.Transaction{}, err
	}

	code, err := status.Map(normalize.Field(fields[4]))
	if err != nil {
		return record.Transaction{}, err
	}

	return record.New(normalize.Field(fields[0]), amount, normalize.Field(fields[2]), date, code)
}
