// Package domain holds the ledger, grading and registration rules as pure
// types and functions. It imports nothing from the infrastructure layers.
package domain

import (
	"errors"
	"fmt"
)

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Sentinels are grouped by concern.

var (
	// Lookup errors
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")

	// Input errors
	ErrMissingField = errors.New("required field missing")

	// Ledger and payment errors
	ErrInvalidAmount       = errors.New("amount must be greater than 0")
	ErrOverpayment         = errors.New("payment exceeds outstanding balance")
	ErrFuturePayment       = errors.New("payment date cannot be in the future")
	ErrTellerRequired      = errors.New("bank payment requires a teller number")
	ErrNoOutstandingFees   = errors.New("no outstanding fees to settle")
	ErrNoBalanceForward    = errors.New("student has no balance brought forward")
	ErrLedgerInvariant     = errors.New("ledger invariant violated")
	ErrInvalidMoney        = errors.New("invalid money amount")

	// Result errors
	ErrInvalidScore        = errors.New("invalid score")
	ErrInconsistentCredits = errors.New("grade points recorded against zero credit units")

	// Workflow errors
	ErrInvalidTransition = errors.New("invalid state transition")

	// Import errors
	ErrUnknownImportKind = errors.New("unknown import kind")
)

// ValidationError is a user-correctable failure on a single field.
// It unwraps to the sentinel that classifies it.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Invalid builds a ValidationError classified by err.
func Invalid(field string, err error, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Err: err}
}

// NotFound wraps ErrNotFound with the entity and key that were looked up.
func NotFound(entity string, key interface{}) error {
	return fmt.Errorf("%s %v: %w", entity, key, ErrNotFound)
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
