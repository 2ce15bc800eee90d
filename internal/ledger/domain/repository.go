package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// StatusUpdate is a compare-and-set on a transaction's status.
type StatusUpdate struct {
	TransactionID  snowflake.ID
	Expected       Status
	Next           Status
	CausingEventID string
	CardLast4      string
	CardBrand      string
	RefundRef      string
	RefundedAmount int64
	UpdatedAt      time.Time
}

// RefundUpdate raises the refunded amount of an already refunded row.
type RefundUpdate struct {
	TransactionID  snowflake.ID
	RefundRef      string
	RefundedAmount int64
	CausingEventID string
	UpdatedAt      time.Time
}

type ListFilter struct {
	Status Status
	Offset int
	Limit  int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, tx *Transaction) error
	InsertIfAbsent(ctx context.Context, db *gorm.DB, tx *Transaction) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Transaction, error)
	FindByExternalRef(ctx context.Context, db *gorm.DB, ref string) (*Transaction, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Transaction, int64, error)
	CompareAndSetStatus(ctx context.Context, db *gorm.DB, update StatusUpdate) (bool, error)
	AttachExternalRef(ctx context.Context, db *gorm.DB, id snowflake.ID, ref string, at time.Time) (bool, error)
	AttachCardDetails(ctx context.Context, db *gorm.DB, id snowflake.ID, last4, brand string, at time.Time) error
	RaiseRefund(ctx context.Context, db *gorm.DB, update RefundUpdate) (bool, error)
	InsertTransition(ctx context.Context, db *gorm.DB, transition *Transition) error
	FindTransitionByEvent(ctx context.Context, db *gorm.DB, txID snowflake.ID, eventID string, to Status) (*Transition, error)
	ListTransitions(ctx context.Context, db *gorm.DB, txID snowflake.ID) ([]Transition, error)
	SettleLink(ctx context.Context, db *gorm.DB, linkID, txID snowflake.ID, paidAt time.Time) (bool, error)
	FindLinkSettlement(ctx context.Context, db *gorm.DB, linkID snowflake.ID) (*LinkSettlement, error)
}

// LinkSettlement is the ledger-owned slice of a payment link row.
type LinkSettlement struct {
	ID            snowflake.ID
	Paid          bool
	PaidAt        *time.Time
	TransactionID *snowflake.ID
}
