package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paydesk/internal/receipt/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, receipt *domain.Receipt) error {
	return db.WithContext(ctx).Create(receipt).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Receipt, error) {
	var item domain.Receipt
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

func (r *repo) ListByTransaction(ctx context.Context, db *gorm.DB, txID snowflake.ID) ([]domain.Receipt, error) {
	var items []domain.Receipt
	err := db.WithContext(ctx).
		Where("transaction_id = ?", txID).
		Order("created_at asc, id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpdateDelivery(ctx context.Context, db *gorm.DB, id snowflake.ID, delivery domain.Delivery) error {
	return db.WithContext(ctx).Exec(
		`UPDATE receipts
		 SET delivered = ?, provider_message_id = ?, delivery_error = ?, pdf_path = ?
		 WHERE id = ?`,
		delivery.Delivered,
		delivery.ProviderMessageID,
		delivery.DeliveryError,
		delivery.PDFPath,
		id,
	).Error
}
