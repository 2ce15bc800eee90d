package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation    = errors.New("validation_error")
	ErrNotRefundable = errors.New("not_refundable")
	// ErrLedgerWrite is returned when the processor accepted a payment but the
	// local record could not be completed. A retry with the same key resumes.
	ErrLedgerWrite = errors.New("ledger_write_failed")
)

// ValidationError names the offending request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation_error: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
