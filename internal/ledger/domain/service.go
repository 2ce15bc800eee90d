package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paydesk/internal/money"
)

type CreateTransactionRequest struct {
	// ID is optional; callers that must reference the row before it exists
	// (for example in processor metadata) preassign it.
	ID            snowflake.ID
	Amount        money.Money
	PaymentMethod string
	ExternalRef   *string
	CustomerEmail string
	CustomerPhone string
	Description   string
}

type TransitionRequest struct {
	TransactionID  snowflake.ID
	From           []Status
	To             Status
	CausingEventID string

	// Applied together with a transition into succeeded.
	CardLast4 string
	CardBrand string

	// Applied together with a transition into refunded.
	RefundRef      string
	RefundedAmount int64
}

type TransitionResult struct {
	Transaction Transaction
	// Applied is false when the request was an idempotent replay.
	Applied bool
	// RefundRaised reports that a replay into refunded carried a larger
	// cumulative refund than the row held, and the row was updated.
	RefundRaised bool
}

type ListTransactionsRequest struct {
	Page    int
	PerPage int
	Status  string
}

type ListTransactionsResponse struct {
	Transactions []Transaction `json:"transactions"`
	Total        int64         `json:"total"`
	Page         int           `json:"page"`
	PerPage      int           `json:"per_page"`
	Pages        int           `json:"pages"`
}

type SettleLinkResult struct {
	Applied bool
}

type Service interface {
	Create(ctx context.Context, req CreateTransactionRequest) (Transaction, error)
	// EnsureByExternalRef returns the transaction carrying req.ExternalRef,
	// inserting it in pending when absent.
	EnsureByExternalRef(ctx context.Context, req CreateTransactionRequest) (Transaction, bool, error)
	Get(ctx context.Context, id snowflake.ID) (Transaction, error)
	FindByExternalRef(ctx context.Context, ref string) (Transaction, error)
	List(ctx context.Context, req ListTransactionsRequest) (ListTransactionsResponse, error)
	History(ctx context.Context, id snowflake.ID) ([]Transition, error)
	Transition(ctx context.Context, req TransitionRequest) (TransitionResult, error)
	SettleLink(ctx context.Context, linkID, txID snowflake.ID) (SettleLinkResult, error)
}
