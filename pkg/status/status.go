// Package status maps free-text transaction status labels to canonical codes.
package status

import (
	"errors"
	"fmt"
)

// Code is the single-character canonical status stored with a transaction.
type Code string

const (
	// Approved marks an accepted transaction.
	Approved Code = "A"
	// Rejected marks a failed or rejected transaction.
	Rejected Code = "R"
	// Done marks a finished transaction.
	Done Code = "D"
)

// ErrUnrecognized is matched by every error returned from Map.
var ErrUnrecognized = errors.New("status: unrecognized label")

// labels is the closed label table. Adding a label is a one-line change here.
var labels = map[string]Code{
	"Approved": Approved,
	"Failed":   Rejected,
	"Rejected": Rejected,
	"Finished": Done,
	"Done":     Done,
}

// UnrecognizedError carries the label that had no mapping.
type UnrecognizedError struct {
	Label string
}

func (e *UnrecognizedError) Error() string {
	return fmt.Sprintf("unknown status: %q", e.Label)
}

// Is reports whether target is ErrUnrecognized.
func (e *UnrecognizedError) Is(target error) bool {
	return target == ErrUnrecognized
}

// Map returns the canonical code for label. Matching is exact and
// case-sensitive; the caller normalizes the label first.
func Map(label string) (Code, error) {
	code, ok := labels[label]
	if !ok {
		return "", &UnrecognizedError{Label: label}
	}
	return code, nil
}

// Codes returns the complete canonical code set.
func Codes() []Code {
	return []Code{Approved, Rejected, Done}
}

// Valid reports whether c belongs to the canonical code set.
func (c Code) Valid() bool {
	switch c {
	case Approved, Rejected, Done:
		return true
	}
	return false
}

// String returns the code as stored.
func (c Code) String() string {
	return string(c)
}

// Parse validates a canonical code supplied by a caller, such as a query
// parameter. It accepts codes only, never labels.
func Parse(s string) (Code, error) {
	c := Code(s)
	if !c.Valid() {
		return "", fmt.Errorf("status: invalid code %q", s)
	}
	return c, nil
}
