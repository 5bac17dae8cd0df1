package ingest

import (
	"path/filepath"
	"strings"
)

// Format is the upload format, chosen from the file extension.
type Format int

const (
	// FormatUnknown is any extension other than .csv or .xml.
	FormatUnknown Format = iota
	// FormatCSV is a headerless five-column delimited file.
	FormatCSV
	// FormatXML is a document of Transaction elements.
	FormatXML
)

// String returns the lower-case format name used in logs, metrics and
// responses.
func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatXML:
		return "xml"
	default:
		return "unknown"
	}
}

// DetectFormat maps filename's extension, case-insensitively, to a Format.
// Anything else yields ErrUnsupportedFormat.
func DetectFormat(filename string) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return FormatCSV, nil
	case ".xml":
		return FormatXML, nil
	default:
		return FormatUnknown, ErrUnsupportedFormat
	}
}

// MarshalText renders the format by name.
func (f Format) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}
