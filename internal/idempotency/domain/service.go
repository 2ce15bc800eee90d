package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ReserveRequest struct {
	Key         string
	Fingerprint string
	// TransactionID is the id to bind when the key is new.
	TransactionID snowflake.ID
}

// Reservation is the result of GetOrReserve. When Reserved is true the caller
// owns the key and must finish with Complete, MarkRetryable or Release.
// Otherwise Record holds the stored outcome.
type Reservation struct {
	Reserved bool
	// Reclaimed is set when the caller took over an earlier unfinished attempt.
	Reclaimed bool
	Record    Record
}

type Service interface {
	GetOrReserve(ctx context.Context, req ReserveRequest) (Reservation, error)
	// Await behaves like GetOrReserve but waits a bounded time for an
	// in-flight owner instead of failing with ErrInProgress.
	Await(ctx context.Context, req ReserveRequest) (Reservation, error)
	// Complete stores the outcome. db may be an open transaction so the
	// record commits together with ledger writes.
	Complete(ctx context.Context, db *gorm.DB, key string, outcome Outcome) error
	MarkRetryable(ctx context.Context, key string) error
	Release(ctx context.Context, key string) error
	Purge(ctx context.Context) (int64, error)
}
