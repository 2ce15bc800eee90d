package gateway

import (
	"errors"
	"fmt"
)

// Kind separates client faults (declined, rejected) from service faults
// (unavailable). Only unavailable outcomes are safe to retry.
type Kind string

const (
	KindDeclined    Kind = "declined"
	KindRejected    Kind = "rejected"
	KindUnavailable Kind = "unavailable"
)

var (
	ErrDeclined    = errors.New("payment_declined")
	ErrRejected    = errors.New("payment_rejected")
	ErrUnavailable = errors.New("gateway_unavailable")

	ErrInvalidSignature = errors.New("invalid_signature")
	ErrMalformedPayload = errors.New("malformed_payload")
	ErrNotConfigured    = errors.New("gateway_not_configured")
)

// Error is a categorized processor failure. Message is the processor text
// and must not be shown to end users.
type Error struct {
	Kind        Kind
	Code        string
	DeclineCode string
	Message     string
	StatusCode  int
	Err         error
}

func (e *Error) Error() string {
	code := e.Code
	if e.DeclineCode != "" {
		code = code + "/" + e.DeclineCode
	}
	if e.Err != nil {
		return fmt.Sprintf("gateway %s (%s, status %d): %v", e.Kind, code, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("gateway %s (%s, status %d): %s", e.Kind, code, e.StatusCode, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrDeclined:
		return e.Kind == KindDeclined
	case ErrRejected:
		return e.Kind == KindRejected
	case ErrUnavailable:
		return e.Kind == KindUnavailable
	}
	return false
}

// Unavailable wraps a transport failure.
func Unavailable(err error) *Error {
	return &Error{Kind: KindUnavailable, Code: "unreachable", Err: err}
}

func KindOf(err error) (Kind, bool) {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Kind, true
	}
	return "", false
}
