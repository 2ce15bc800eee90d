package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (CreatePaymentResponse, error)
	Refund(ctx context.Context, req RefundRequest) (RefundResponse, error)
	// SyncStatus pulls the processor status for a pending transaction and
	// applies it, for recovery when a webhook never arrived.
	SyncStatus(ctx context.Context, id snowflake.ID) (SyncResponse, error)
}
