package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Delivery is the stored outcome of handing a receipt to its channel.
type Delivery struct {
	Delivered         bool
	ProviderMessageID string
	DeliveryError     string
	PDFPath           string
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, receipt *Receipt) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Receipt, error)
	ListByTransaction(ctx context.Context, db *gorm.DB, txID snowflake.ID) ([]Receipt, error)
	UpdateDelivery(ctx context.Context, db *gorm.DB, id snowflake.ID, delivery Delivery) error
}
