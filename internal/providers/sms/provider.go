package sms

import (
	"context"
	"errors"
)

var (
	ErrNotConfigured    = errors.New("sms_not_configured")
	ErrInvalidRecipient = errors.New("invalid_recipient")
)

// Result is a delivered message as reported by the provider.
type Result struct {
	MessageID string
	Cost      string
}

// Provider sends one text message to one recipient.
type Provider interface {
	Send(ctx context.Context, phone string, message string) (Result, error)
}

// DisabledProvider is used when no SMS credentials are configured.
type DisabledProvider struct{}

func (p *DisabledProvider) Send(ctx context.Context, phone string, message string) (Result, error) {
	return Result{}, ErrNotConfigured
}
