package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	// InsertIfAbsent reports false when a record for the key already exists.
	InsertIfAbsent(ctx context.Context, db *gorm.DB, record *Record) (bool, error)
	FindByKey(ctx context.Context, db *gorm.DB, key string) (*Record, error)
	// Reclaim takes over a record still at expectedAttempt.
	Reclaim(ctx context.Context, db *gorm.DB, key string, expectedAttempt int, leaseExpiresAt, now time.Time) (bool, error)
	Complete(ctx context.Context, db *gorm.DB, key string, outcome Outcome, now time.Time) (bool, error)
	MarkRetryable(ctx context.Context, db *gorm.DB, key string, now time.Time) (bool, error)
	Delete(ctx context.Context, db *gorm.DB, key string) error
	PurgeCompletedBefore(ctx context.Context, db *gorm.DB, before time.Time) (int64, error)
}
