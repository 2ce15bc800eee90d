package domain

import (
	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/smallbiznis/paydesk/internal/ledger/domain"
	"github.com/smallbiznis/paydesk/internal/money"
)

type CustomerContact struct {
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type CreatePaymentRequest struct {
	Amount      money.Money
	Description string
	Customer    CustomerContact
	// IdempotencyKey is optional; without it every call charges anew.
	IdempotencyKey string
}

type CreatePaymentResponse struct {
	TransactionID snowflake.ID        `json:"transaction_id"`
	ExternalRef   string              `json:"external_ref"`
	ClientSecret  string              `json:"client_secret"`
	Status        ledgerdomain.Status `json:"status"`
	// Replayed is true when the outcome came from an earlier request with
	// the same idempotency key.
	Replayed bool `json:"replayed"`
}

type RefundRequest struct {
	TransactionID snowflake.ID
	// Amount in minor units; zero refunds the full amount.
	Amount int64
}

type RefundResponse struct {
	TransactionID snowflake.ID `json:"transaction_id"`
	RefundRef     string       `json:"refund_ref"`
	Amount        money.Money  `json:"amount"`
	// LedgerSynced is false when the processor refunded but the local
	// transition could not be written. The charge.refunded webhook closes
	// the gap.
	LedgerSynced bool `json:"ledger_synced"`
}

type SyncResponse struct {
	Transaction   ledgerdomain.Transaction `json:"transaction"`
	GatewayStatus string                   `json:"gateway_status,omitempty"`
	Changed       bool                     `json:"changed"`
}
