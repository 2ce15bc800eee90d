package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, link *PaymentLink) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PaymentLink, error)
	FindBySessionRef(ctx context.Context, db *gorm.DB, ref string) (*PaymentLink, error)
	RecordDelivery(ctx context.Context, db *gorm.DB, id snowflake.ID, delivery Delivery) error
}
