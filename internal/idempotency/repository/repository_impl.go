package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/paydesk/internal/idempotency/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// InsertIfAbsent is the single conditional write behind a reservation.
func (r *repo) InsertIfAbsent(ctx context.Context, db *gorm.DB, record *domain.Record) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "idempotency_key"}}, DoNothing: true}).
		Create(record)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByKey(ctx context.Context, db *gorm.DB, key string) (*domain.Record, error) {
	var item domain.Record
	err := db.WithContext(ctx).
		Where("idempotency_key = ?", key).
		Limit(1).
		Find(&item).Error
	if err != nil {
		return nil, err
	}
	if item.Key == "" {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) Reclaim(ctx context.Context, db *gorm.DB, key string, expectedAttempt int, leaseExpiresAt, now time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Record{}).
		Where("idempotency_key = ? AND attempt = ? AND status <> ?", key, expectedAttempt, domain.StatusCompleted).
		Updates(map[string]any{
			"status":           domain.StatusInProgress,
			"attempt":          expectedAttempt + 1,
			"lease_expires_at": leaseExpiresAt,
			"updated_at":       now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) Complete(ctx context.Context, db *gorm.DB, key string, outcome domain.Outcome, now time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Record{}).
		Where("idempotency_key = ? AND status <> ?", key, domain.StatusCompleted).
		Updates(map[string]any{
			"status":         domain.StatusCompleted,
			"transaction_id": outcome.TransactionID,
			"external_ref":   outcome.ExternalRef,
			"client_secret":  outcome.ClientSecret,
			"completed_at":   now,
			"updated_at":     now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) MarkRetryable(ctx context.Context, db *gorm.DB, key string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Record{}).
		Where("idempotency_key = ? AND status = ?", key, domain.StatusInProgress).
		Updates(map[string]any{
			"status":     domain.StatusRetryable,
			"updated_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Delete removes an unfinished reservation. Completed records are kept.
func (r *repo) Delete(ctx context.Context, db *gorm.DB, key string) error {
	return db.WithContext(ctx).
		Where("idempotency_key = ? AND status <> ?", key, domain.StatusCompleted).
		Delete(&domain.Record{}).Error
}

func (r *repo) PurgeCompletedBefore(ctx context.Context, db *gorm.DB, before time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("status = ? AND completed_at < ?", domain.StatusCompleted, before).
		Delete(&domain.Record{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
