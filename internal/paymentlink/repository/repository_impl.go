package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paydesk/internal/paymentlink/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, link *domain.PaymentLink) error {
	return db.WithContext(ctx).Create(link).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.PaymentLink, error) {
	var item domain.PaymentLink
	err := db.WithContext(ctx).
		Where("id = ?", id).
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

func (r *repo) FindBySessionRef(ctx context.Context, db *gorm.DB, ref string) (*domain.PaymentLink, error) {
	var item domain.PaymentLink
	err := db.WithContext(ctx).
		Where("session_ref = ?", ref).
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

// RecordDelivery stores the latest SMS attempt. A successful send is sticky:
// a later failure never clears sms_sent.
func (r *repo) RecordDelivery(ctx context.Context, db *gorm.DB, id snowflake.ID, delivery domain.Delivery) error {
	values := map[string]any{
		"sms_attempts":   gorm.Expr("sms_attempts + 1"),
		"sms_last_error": delivery.Error,
		"updated_at":     delivery.At,
	}
	if delivery.Sent {
		values["sms_sent"] = true
		values["sms_sent_at"] = delivery.At
		values["sms_message_id"] = delivery.MessageID
	}
	return db.WithContext(ctx).
		Model(&domain.PaymentLink{}).
		Where("id = ?", id).
		Updates(values).Error
}
