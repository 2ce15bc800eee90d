package domain

import "errors"

var (
	ErrInvalidKey = errors.New("invalid_idempotency_key")
	ErrKeyReused  = errors.New("idempotency_key_reused")
	ErrInProgress = errors.New("request_in_progress")
	ErrNotFound   = errors.New("idempotency_record_not_found")
)
