package domain

import "context"

// Result describes one accepted delivery.
type Result struct {
	EventID   string  `json:"event_id"`
	EventType string  `json:"event_type"`
	Outcome   Outcome `json:"outcome"`
	Duplicate bool    `json:"duplicate,omitempty"`
}

type Service interface {
	// Ingest verifies and applies one delivery. A nil error means the
	// delivery is acknowledged, whatever the outcome.
	Ingest(ctx context.Context, payload []byte, signatureHeader string) (Result, error)
}
