package gateway

import (
	"context"
	"time"

	"github.com/smallbiznis/paydesk/internal/money"
)

// Metadata keys written on processor objects so webhooks can be matched to
// local rows.
const (
	MetadataTransactionID = "transaction_id"
	MetadataPaymentLinkID = "payment_link_id"
)

type IntentRequest struct {
	Amount         money.Money
	Description    string
	ReceiptEmail   string
	Metadata       map[string]string
	IdempotencyKey string
}

// IntentStatus mirrors the processor payment-intent status.
type IntentStatus string

const (
	IntentRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentRequiresConfirmation  IntentStatus = "requires_confirmation"
	IntentRequiresAction        IntentStatus = "requires_action"
	IntentProcessing            IntentStatus = "processing"
	IntentSucceeded             IntentStatus = "succeeded"
	IntentCanceled              IntentStatus = "canceled"
)

type Intent struct {
	Ref          string
	ClientSecret string
	Status       IntentStatus
	Amount       money.Money
	CardLast4    string
	CardBrand    string
	Metadata     map[string]string
}

type RefundRequest struct {
	IntentRef string
	// Amount is the minor-unit amount to refund; zero refunds in full.
	Amount         int64
	IdempotencyKey string
	Metadata       map[string]string
}

type Refund struct {
	Ref    string
	Amount int64
	Status string
}

type CheckoutRequest struct {
	Amount         money.Money
	ProductName    string
	ExpiresAt      time.Time
	SuccessURL     string
	CancelURL      string
	Metadata       map[string]string
	IdempotencyKey string
}

type CheckoutSession struct {
	Ref       string
	URL       string
	ExpiresAt time.Time
}

// Client is the outbound side of the processor.
type Client interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	RetrieveIntent(ctx context.Context, ref string) (Intent, error)
	CreateRefund(ctx context.Context, req RefundRequest) (Refund, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)
}

// Verifier authenticates and decodes inbound webhook deliveries.
type Verifier interface {
	Provider() string
	VerifyEvent(payload []byte, signatureHeader string) (Event, error)
}
