package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// InsertIfAbsent stores event unless (provider, event_id) is already known.
	InsertIfAbsent(ctx context.Context, db *gorm.DB, event *Event) (bool, error)
	FindByEventID(ctx context.Context, db *gorm.DB, provider, eventID string) (*Event, error)
	RecordAttempt(ctx context.Context, db *gorm.DB, id snowflake.ID, outcome Outcome, detail string) error
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, outcome Outcome, detail string, processedAt time.Time) error
}
