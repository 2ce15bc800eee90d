package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paydesk/internal/money"
	"gorm.io/datatypes"
)

// PaymentLink is a hosted checkout delivered to a customer phone. Once paid
// it references the transaction that settled it.
type PaymentLink struct {
	ID            snowflake.ID      `json:"id" gorm:"primaryKey"`
	SessionRef    string            `json:"session_ref" gorm:"type:varchar(255);not null;uniqueIndex"`
	URL           string            `json:"url" gorm:"type:text;not null"`
	Amount        int64             `json:"amount" gorm:"not null"`
	Currency      string            `json:"currency" gorm:"type:varchar(3);not null"`
	Phone         string            `json:"phone" gorm:"type:varchar(32);not null"`
	Description   string            `json:"description,omitempty" gorm:"type:text;not null"`
	ExpiresAt     time.Time         `json:"expires_at" gorm:"not null"`
	Paid          bool              `json:"paid" gorm:"not null"`
	PaidAt        *time.Time        `json:"paid_at,omitempty"`
	TransactionID *snowflake.ID     `json:"transaction_id,omitempty"`
	SMSSent       bool              `json:"sms_sent" gorm:"column:sms_sent;not null"`
	SMSSentAt     *time.Time        `json:"sms_sent_at,omitempty" gorm:"column:sms_sent_at"`
	SMSMessageID  string            `json:"sms_message_id,omitempty" gorm:"column:sms_message_id;type:text;not null"`
	SMSAttempts   int               `json:"sms_attempts" gorm:"column:sms_attempts;not null"`
	SMSLastError  string            `json:"-" gorm:"column:sms_last_error;type:text;not null"`
	Metadata      datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at" gorm:"not null"`
	UpdatedAt     time.Time         `json:"updated_at" gorm:"not null"`
}

func (PaymentLink) TableName() string { return "payment_links" }

// IsExpired reports whether the link is past expiry at now. An expired link
// is never payable, whatever the processor says.
func (l PaymentLink) IsExpired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

func (l PaymentLink) Money() money.Money {
	return money.Money{Amount: l.Amount, Currency: l.Currency}
}

// Delivery is the recorded outcome of one SMS attempt.
type Delivery struct {
	Sent      bool
	MessageID string
	Error     string
	At        time.Time
}
