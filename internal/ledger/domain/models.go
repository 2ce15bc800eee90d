package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paydesk/internal/money"
)

// Status is the lifecycle state of a Transaction.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

const (
	PaymentMethodCard        = "card"
	PaymentMethodPaymentLink = "payment_link"
)

// Transaction records one attempt to move money. Rows are never deleted.
type Transaction struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	ExternalRef    *string      `json:"external_ref,omitempty" gorm:"type:varchar(255);uniqueIndex"`
	Amount         int64        `json:"amount" gorm:"not null"`
	Currency       string       `json:"currency" gorm:"type:text;not null"`
	Status         Status       `json:"status" gorm:"type:varchar(16);not null;index"`
	PaymentMethod  string       `json:"payment_method" gorm:"type:text;not null"`
	CardLast4      string       `json:"card_last4,omitempty" gorm:"type:text;not null"`
	CardBrand      string       `json:"card_brand,omitempty" gorm:"type:text;not null"`
	CustomerEmail  string       `json:"customer_email,omitempty" gorm:"type:text;not null"`
	CustomerPhone  string       `json:"customer_phone,omitempty" gorm:"type:text;not null"`
	Description    string       `json:"description,omitempty" gorm:"type:text;not null"`
	RefundRef      string       `json:"refund_ref,omitempty" gorm:"type:text;not null"`
	RefundedAmount int64        `json:"refunded_amount,omitempty" gorm:"not null"`
	LastEventID    string       `json:"-" gorm:"type:text;not null"`
	CreatedAt      time.Time    `json:"created_at" gorm:"not null;index"`
	UpdatedAt      time.Time    `json:"updated_at" gorm:"not null"`
}

func (Transaction) TableName() string { return "transactions" }

func (t Transaction) Money() money.Money {
	return money.Money{Amount: t.Amount, Currency: t.Currency}
}

// Transition is the audit trail of applied status changes.
type Transition struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	TransactionID  snowflake.ID `json:"transaction_id" gorm:"not null;index:ix_transaction_transitions_event,priority:1"`
	FromStatus     Status       `json:"from_status" gorm:"type:text;not null"`
	ToStatus       Status       `json:"to_status" gorm:"type:text;not null"`
	CausingEventID string       `json:"causing_event_id" gorm:"type:varchar(255);not null;index:ix_transaction_transitions_event,priority:2"`
	CreatedAt      time.Time    `json:"created_at" gorm:"not null"`
}

func (Transition) TableName() string { return "transaction_transitions" }
