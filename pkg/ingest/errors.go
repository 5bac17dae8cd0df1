package ingest

import "txn-ingest/pkg/ingest/errs"

// Error taxonomy, shared with the format parsers.
var (
	ErrUnsupportedFormat  = errs.ErrUnsupportedFormat
	ErrEmptyUpload        = errs.ErrEmptyUpload
	ErrMalformedDocument  = errs.ErrMalformedDocument
	ErrMissingField       = errs.ErrMissingField
	ErrFieldConversion    = errs.ErrFieldConversion
	ErrInvalidAmount      = errs.ErrInvalidAmount
	ErrInvalidDate        = errs.ErrInvalidDate
	ErrUnrecognizedStatus = errs.ErrUnrecognizedStatus
	ErrInvalidField       = errs.ErrInvalidField
	ErrPersistence        = errs.ErrPersistence
	ErrUnexpected         = errs.ErrUnexpected
)

type (
	// RowError locates a CSV failure on its 1-based input line.
	RowError = errs.RowError
	// NodeError locates an XML failure on a Transaction node.
	NodeError = errs.NodeError
	// PersistenceError wraps a failed batch commit.
	PersistenceError = errs.PersistenceError
)

// Classify returns the taxonomy kind of err, ErrUnexpected when unknown.
func Classify(err error) error {
	return errs.Classify(err)
}

// Label returns the metrics label for err's kind.
func Label(err error) string {
	return errs.Label(err)
}

// IsClientError reports whether err was caused by the upload's content.
func IsClientError(err error) bool {
	return errs.IsClientError(err)
}
