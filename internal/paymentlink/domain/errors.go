package domain

import "errors"

var (
	ErrNotFound        = errors.New("link_not_found")
	ErrExpired         = errors.New("link_expired")
	ErrAlreadyPaid     = errors.New("already_paid")
	ErrInvalidAmount   = errors.New("invalid_amount")
	ErrInvalidCurrency = errors.New("invalid_currency")
	ErrInvalidPhone    = errors.New("invalid_phone")
	ErrInvalidExpiry   = errors.New("invalid_expiry")
	ErrInvalidRequest  = errors.New("invalid_request")
)
