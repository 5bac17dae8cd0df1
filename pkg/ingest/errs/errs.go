// Package errs holds the ingestion error taxonomy shared by the format
// parsers and the orchestrator. Package ingest re-exports every name.
package errs

import (
	"errors"
	"fmt"

	"txn-ingest/pkg/convert"
	"txn-ingest/pkg/record"
	"txn-ingest/pkg/status"
)

// Upload failure kinds. Every error returned by the pipeline matches exactly
// one of these through Classify.
var (
	// ErrUnsupportedFormat is returned for files that are neither .csv nor .xml
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrEmptyUpload is returned when no file or a zero-length file was sent
	ErrEmptyUpload = errors.New("no file uploaded")

	// ErrMalformedDocument is returned when the document structure cannot be read
	ErrMalformedDocument = errors.New("malformed document")

	// ErrMissingField is returned when an expected value is absent
	ErrMissingField = record.ErrMissingField

	// ErrFieldConversion is returned when a present value cannot be converted
	ErrFieldConversion = errors.New("field conversion failed")

	// ErrInvalidAmount is returned for amounts outside the expected convention
	ErrInvalidAmount = convert.ErrInvalidAmount

	// ErrInvalidDate is returned for timestamps outside the expected layout
	ErrInvalidDate = convert.ErrInvalidDate

	// ErrUnrecognizedStatus is returned for status labels outside the table
	ErrUnrecognizedStatus = status.ErrUnrecognized

	// ErrInvalidField is returned when a built record breaks a length rule
	ErrInvalidField = record.ErrInvalidField

	// ErrPersistence is returned when the batch could not be committed
	ErrPersistence = errors.New("persistence failure")

	// ErrUnexpected classifies everything else
	ErrUnexpected = errors.New("unexpected failure")
)

// RowError locates a CSV failure on its 1-based input line.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// NodeError locates an XML failure on a Transaction node. Node holds the
// node's serialized outer XML.
type NodeError struct {
	Kind  error
	Field string
	Node  string
	Cause error
}

func (e *NodeError) Error() string {
	switch e.Kind {
	case ErrMissingField:
		return fmt.Sprintf("transaction node is missing %s: %s", e.Field, e.Node)
	case ErrFieldConversion:
		return fmt.Sprintf("cannot convert %s in node %s: %v", e.Field, e.Node, e.Cause)
	default:
		return fmt.Sprintf("invalid %s in node %s: %v", e.Field, e.Node, e.Cause)
	}
}

// Is matches the failure kind; the cause is reached through Unwrap.
func (e *NodeError) Is(target error) bool {
	return target == e.Kind
}

func (e *NodeError) Unwrap() error {
	return e.Cause
}

// PersistenceError wraps a storage failure raised while committing a batch.
type PersistenceError struct {
	Records int
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("commit %d records: %v", e.Records, e.Err)
}

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Malformed wraps a structural parse failure as ErrMalformedDocument.
func Malformed(err error) error {
	return fmt.Errorf("%w: %w", ErrMalformedDocument, err)
}

// classes is checked in order; specific causes win over the generic
// conversion kind they are wrapped in.
var classes = []struct {
	kind  error
	label string
}{
	{ErrPersistence, "persistence"},
	{ErrEmptyUpload, "empty_upload"},
	{ErrUnsupportedFormat, "unsupported_format"},
	{ErrMalformedDocument, "malformed_document"},
	{ErrMissingField, "missing_field"},
	{ErrUnrecognizedStatus, "unrecognized_status"},
	{ErrInvalidAmount, "invalid_amount"},
	{ErrInvalidDate, "invalid_date"},
	{ErrFieldConversion, "field_conversion"},
	{ErrInvalidField, "invalid_field"},
}

// Classify returns the taxonomy kind err belongs to, nil for nil, and
// ErrUnexpected for anything unrecognised.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	for _, c := range classes {
		if errors.Is(err, c.kind) {
			return c.kind
		}
	}
	return ErrUnexpected
}

// Label returns a short metrics label for err's kind.
func Label(err error) string {
	if err == nil {
		return "ok"
	}
	kind := Classify(err)
	for _, c := range classes {
		if c.kind == kind {
			return c.label
		}
	}
	return "unexpected"
}

// IsClientError reports whether err was caused by the uploaded content rather
// than by the service.
func IsClientError(err error) bool {
	switch Classify(err) {
	case nil, ErrPersistence, ErrUnexpected:
		return false
	default:
		return true
	}
}
