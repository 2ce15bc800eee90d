package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Outcome records what processing an event did. Every outcome except
// OutcomeRetry is terminal for the event id.
type Outcome string

const (
	OutcomeApplied          Outcome = "applied"
	OutcomeReplayed         Outcome = "replayed"
	OutcomeIgnored          Outcome = "ignored"
	OutcomeUnknownReference Outcome = "unknown_reference"
	OutcomeIllegal          Outcome = "illegal_transition"
	OutcomeLinkExpired      Outcome = "link_expired"
	OutcomeFailed           Outcome = "failed"
	OutcomeRetry            Outcome = "retry"
)

// Event is a verified processor notification kept for audit and dedup.
type Event struct {
	ID          snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider    string         `json:"provider" gorm:"type:varchar(32);not null;uniqueIndex:ux_webhook_events_provider_event,priority:1"`
	EventID     string         `json:"event_id" gorm:"type:varchar(255);not null;uniqueIndex:ux_webhook_events_provider_event,priority:2"`
	EventType   string         `json:"event_type" gorm:"type:varchar(128);not null"`
	Payload     datatypes.JSON `json:"payload"`
	Outcome     Outcome        `json:"outcome" gorm:"type:varchar(32);not null"`
	Detail      string         `json:"detail,omitempty" gorm:"type:text;not null"`
	Attempts    int            `json:"attempts" gorm:"not null"`
	ReceivedAt  time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt *time.Time     `json:"processed_at,omitempty"`
}

func (Event) TableName() string { return "webhook_events" }

func (e Event) Processed() bool {
	return e.ProcessedAt != nil
}
