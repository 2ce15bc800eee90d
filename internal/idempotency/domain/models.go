package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	// StatusInProgress records a reservation whose owner has not finished.
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	// StatusRetryable marks an attempt that ended without a processor outcome.
	// The next request with the same key takes it over.
	StatusRetryable Status = "retryable"
)

// Record binds a client idempotency key to the first outcome produced for it.
type Record struct {
	Key            string       `gorm:"column:idempotency_key;primaryKey;type:varchar(255)"`
	Fingerprint    string       `gorm:"type:varchar(64);not null"`
	Status         Status       `gorm:"type:varchar(32);not null"`
	TransactionID  snowflake.ID `gorm:"not null"`
	ExternalRef    string       `gorm:"type:text;not null"`
	ClientSecret   string       `gorm:"type:text;not null"`
	Attempt        int          `gorm:"not null"`
	LeaseExpiresAt time.Time    `gorm:"not null"`
	CreatedAt      time.Time    `gorm:"not null"`
	UpdatedAt      time.Time    `gorm:"not null;index"`
	CompletedAt    *time.Time
}

func (Record) TableName() string { return "idempotency_records" }

// Outcome is what a replayed request returns.
type Outcome struct {
	TransactionID snowflake.ID
	ExternalRef   string
	ClientSecret  string
}

func (r Record) Outcome() Outcome {
	return Outcome{
		TransactionID: r.TransactionID,
		ExternalRef:   r.ExternalRef,
		ClientSecret:  r.ClientSecret,
	}
}
