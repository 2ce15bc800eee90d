package email

import (
	"context"
	"errors"
)

var ErrNotConfigured = errors.New("email_not_configured")

type Provider interface {
	Send(ctx context.Context, to []string, subject string, htmlBody string) error
	SendTemplate(ctx context.Context, to []string, templateName string, data map[string]any) error
}

// DisabledProvider is used when no SMTP host is configured.
type DisabledProvider struct{}

func (p *DisabledProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	return ErrNotConfigured
}

func (p *DisabledProvider) SendTemplate(ctx context.Context, to []string, templateName string, data map[string]any) error {
	return ErrNotConfigured
}
