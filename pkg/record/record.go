// Package record defines the canonical transaction entity persisted by the
// ingestion pipeline.
package record

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"txn-ingest/pkg/status"
)

// AmountScale is the number of fractional digits kept for amounts.
const AmountScale = 2

// Transaction is one canonical transaction. Values are built with New and
// never modified afterwards.
type Transaction struct {
	// ID is assigned by storage on insert.
	ID int64 `json:"id"`

	TransactionID   string          `json:"transactionId" validate:"required,max=50"`
	Amount          decimal.Decimal `json:"amount"`
	CurrencyCode    string          `json:"currencyCode" validate:"required,len=3"`
	TransactionDate time.Time       `json:"transactionDate" validate:"required"`
	Status          status.Code     `json:"status" validate:"required,statuscode"`
}

var (
	// ErrMissingField is matched when a required value is empty.
	ErrMissingField = errors.New("record: missing field")

	// ErrInvalidField is matched when a value breaks a length or code rule.
	ErrInvalidField = errors.New("record: invalid field")
)

// FieldError describes the first rule a Transaction broke.
type FieldError struct {
	Field string
	Rule  string
	Kind  error
}

func (e *FieldError) Error() string {
	if e.Kind == ErrMissingField {
		return fmt.Sprintf("field %s is required", e.Field)
	}
	return fmt.Sprintf("field %s fails rule %q", e.Field, e.Rule)
}

// Is matches ErrMissingField or ErrInvalidField.
func (e *FieldError) Is(target error) bool {
	return target == e.Kind
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	if err := v.RegisterValidation("statuscode", func(fl validator.FieldLevel) bool {
		return status.Code(fl.Field().String()).Valid()
	}); err != nil {
		panic(fmt.Sprintf("record: register statuscode validation: %v", err))
	}
	return v
}

// New builds a validated Transaction. The amount is rounded to AmountScale
// fractional digits.
func New(transactionID string, amount decimal.Decimal, currencyCode string, date time.Time, code status.Code) (Transaction, error) {
	t := Transaction{
		TransactionID:   transactionID,
		Amount:          amount.Round(AmountScale),
		CurrencyCode:    currencyCode,
		TransactionDate: date,
		Status:          code,
	}
	if err := t.Validate(); err != nil {
		return Transaction{}, err
	}
	return t, nil
}

// Validate checks every invariant a stored transaction must hold.
func (t Transaction) Validate() error {
	err := validate.Struct(t)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("record: validate: %w", err)
	}

	first := verrs[0]
	kind := ErrInvalidField
	if first.Tag() == "required" {
		kind = ErrMissingField
	}
	return &FieldError{Field: first.Field(), Rule: first.Tag(), Kind: kind}
}

// AmountString renders the amount with exactly AmountScale digits.
func (t Transaction) AmountString() string {
	return t.Amount.StringFixed(AmountScale)
}
