// Package convert turns normalized field text into amounts and timestamps.
//
// The CSV export uses a European numeric convention and a fixed day-first
// timestamp layout; the XML export uses invariant, ISO-style values. Each
// convention has its own function so neither ever guesses.
package convert

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"txn-ingest/pkg/normalize"
)

// DateLayout is the only timestamp layout accepted in CSV uploads.
const DateLayout = "02/01/2006 15:04:05"

// xmlDateLayouts are tried in order by ParseXMLDate.
var xmlDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
	DateLayout,
}

var (
	// ErrInvalidAmount is matched by every amount conversion failure.
	ErrInvalidAmount = errors.New("convert: invalid amount")

	// ErrInvalidDate is matched by every date conversion failure.
	ErrInvalidDate = errors.New("convert: invalid date")
)

var (
	// "." groups thousands in threes, "," starts the fraction.
	europeanAmount = regexp.MustCompile(`^[+-]?(\d{1,3}(\.\d{3})+|\d+)(,\d+)?$`)

	// "," groups thousands in threes, "." starts the fraction.
	invariantAmount = regexp.MustCompile(`^[+-]?(\d{1,3}(,\d{3})+|\d+)(\.\d+)?$`)

	exactDate = regexp.MustCompile(`^\d{2}/\d{2}/\d{4} \d{2}:\d{2}:\d{2}$`)
)

// AmountError reports text that is not an amount in the expected convention.
type AmountError struct {
	Text string
}

func (e *AmountError) Error() string {
	return fmt.Sprintf("cannot convert %q to decimal", e.Text)
}

// Is reports whether target is ErrInvalidAmount.
func (e *AmountError) Is(target error) bool {
	return target == ErrInvalidAmount
}

// DateError reports text that is not a timestamp in the expected layout.
type DateError struct {
	Text string
}

func (e *DateError) Error() string {
	return fmt.Sprintf("cannot convert %q to date", e.Text)
}

// Is reports whether target is ErrInvalidDate.
func (e *DateError) Is(target error) bool {
	return target == ErrInvalidDate
}

// ParseAmount parses a European formatted amount such as "1.234,56".
// Thousands grouping is optional; "12.5" is rejected because a group after
// "." must have exactly three digits.
func ParseAmount(text string) (decimal.Decimal, error) {
	s := normalize.Field(text)
	if !europeanAmount.MatchString(s) {
		return decimal.Zero, &AmountError{Text: text}
	}

	s = strings.ReplaceAll(s, ".", "")
	s = strings.Replace(s, ",", ".", 1)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &AmountError{Text: text}
	}
	return d, nil
}

// ParseXMLAmount parses an invariant formatted amount such as "1234.56" or
// "1,234.56". Surrounding whitespace is ignored.
func ParseXMLAmount(text string) (decimal.Decimal, error) {
	s := strings.TrimSpace(text)
	if !invariantAmount.MatchString(s) {
		return decimal.Zero, &AmountError{Text: text}
	}

	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
	if err != nil {
		return decimal.Zero, &AmountError{Text: text}
	}
	return d, nil
}

// ParseTransactionDate parses exactly "DD/MM/YYYY HH:MM:SS" (24-hour). The
// value carries no offset and is returned as a UTC wall-clock time.
func ParseTransactionDate(text string) (time.Time, error) {
	s := normalize.Field(text)
	if !exactDate.MatchString(s) {
		return time.Time{}, &DateError{Text: text}
	}

	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, &DateError{Text: text}
	}
	return t, nil
}

// ParseXMLDate parses the conventional layouts found in XML exports: RFC 3339,
// ISO date-time without offset, ISO date, and the CSV layout. Values with an
// offset are converted to UTC.
func ParseXMLDate(text string) (time.Time, error) {
	s := strings.TrimSpace(text)
	for _, layout := range xmlDateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, &DateError{Text: text}
}
