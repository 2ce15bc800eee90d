package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paydesk/internal/money"
)

type CreateLinkRequest struct {
	Amount      money.Money
	Phone       string
	Description string
	// Expiry defaults to the payment policy link expiry when zero.
	Expiry           time.Duration
	SendNotification bool
}

type CreateLinkResponse struct {
	LinkID    snowflake.ID `json:"link_id"`
	URL       string       `json:"url"`
	ExpiresAt time.Time    `json:"expires_at"`
	Notified  bool         `json:"notified"`
	// NotifyError is set when Notified is false after an attempt.
	NotifyError string `json:"notify_error,omitempty"`
}

type ResendResponse struct {
	LinkID    snowflake.ID `json:"link_id"`
	Notified  bool         `json:"notified"`
	MessageID string       `json:"message_id,omitempty"`
	Error     string       `json:"error,omitempty"`
}

type Service interface {
	CreateLink(ctx context.Context, req CreateLinkRequest) (CreateLinkResponse, error)
	Resend(ctx context.Context, id snowflake.ID) (ResendResponse, error)
	Get(ctx context.Context, id snowflake.ID) (PaymentLink, error)
	FindBySessionRef(ctx context.Context, ref string) (PaymentLink, error)
}
