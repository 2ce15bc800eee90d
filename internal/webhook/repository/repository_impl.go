package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paydesk/internal/webhook/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertIfAbsent(ctx context.Context, db *gorm.DB, event *domain.Event) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}, {Name: "event_id"}},
			DoNothing: true,
		}).
		Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByEventID(ctx context.Context, db *gorm.DB, provider, eventID string) (*domain.Event, error) {
	var item domain.Event
	err := db.WithContext(ctx).
		Where("provider = ? AND event_id = ?", provider, eventID).
		Limit(1).
		Find(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) RecordAttempt(ctx context.Context, db *gorm.DB, id snowflake.ID, outcome domain.Outcome, detail string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE webhook_events
		 SET attempts = attempts + 1, outcome = ?, detail = ?
		 WHERE id = ? AND processed_at IS NULL`,
		outcome,
		detail,
		id,
	).Error
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, outcome domain.Outcome, detail string, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE webhook_events
		 SET attempts = attempts + 1, outcome = ?, detail = ?, processed_at = ?
		 WHERE id = ? AND processed_at IS NULL`,
		outcome,
		detail,
		processedAt,
		id,
	).Error
}
