package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Method string

const (
	MethodSMS   Method = "sms"
	MethodPrint Method = "print"
	MethodEmail Method = "email"
)

func (m Method) Valid() bool {
	switch m {
	case MethodSMS, MethodPrint, MethodEmail:
		return true
	default:
		return false
	}
}

type Receipt struct {
	ID                snowflake.ID `json:"id" gorm:"primaryKey"`
	Number            string       `json:"receipt_number" gorm:"column:receipt_number;type:varchar(32);not null;uniqueIndex"`
	TransactionID     snowflake.ID `json:"transaction_id" gorm:"not null;index"`
	Method            Method       `json:"method" gorm:"type:varchar(16);not null"`
	Recipient         string       `json:"recipient,omitempty" gorm:"type:text;not null"`
	Delivered         bool         `json:"delivered" gorm:"not null"`
	ProviderMessageID string       `json:"provider_message_id,omitempty" gorm:"type:text;not null"`
	DeliveryError     string       `json:"delivery_error,omitempty" gorm:"type:text;not null"`
	PDFPath           string       `json:"-" gorm:"column:pdf_path;type:text;not null"`
	CreatedAt         time.Time    `json:"created_at" gorm:"not null"`
}

func (Receipt) TableName() string { return "receipts" }
