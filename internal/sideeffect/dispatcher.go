package sideeffect

import (
	"context"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/smallbiznis/paydesk/internal/ledger/domain"
)

// Dispatcher receives applied ledger transitions. Implementations must not
// block the caller and must never report back into the ledger.
type Dispatcher interface {
	PaymentSucceeded(ctx context.Context, tx ledgerdomain.Transaction)
	PaymentRefunded(ctx context.Context, tx ledgerdomain.Transaction)
	LinkPaid(ctx context.Context, linkID snowflake.ID, phone string, tx ledgerdomain.Transaction)
}

// Discard drops every notification.
type Discard struct{}

func (Discard) PaymentSucceeded(context.Context, ledgerdomain.Transaction) {}

func (Discard) PaymentRefunded(context.Context, ledgerdomain.Transaction) {}

func (Discard) LinkPaid(context.Context, snowflake.ID, string, ledgerdomain.Transaction) {}
