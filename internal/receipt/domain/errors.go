package domain

import "errors"

var (
	ErrNotFound           = errors.New("receipt_not_found")
	ErrInvalidMethod      = errors.New("invalid_delivery_method")
	ErrInvalidRecipient   = errors.New("invalid_recipient")
	ErrTransactionNotPaid = errors.New("transaction_not_paid")
	ErrNumberExhausted    = errors.New("receipt_number_exhausted")
)
