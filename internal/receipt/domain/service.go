package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type GenerateRequest struct {
	TransactionID snowflake.ID
	Method        Method
	// Recipient defaults to the customer contact stored on the transaction.
	Recipient string
}

type Service interface {
	Generate(ctx context.Context, req GenerateRequest) (Receipt, error)
	Get(ctx context.Context, id snowflake.ID) (Receipt, error)
	ListByTransaction(ctx context.Context, txID snowflake.ID) ([]Receipt, error)
	// RenderPDF renders the printable receipt from current transaction data.
	RenderPDF(ctx context.Context, id snowflake.ID) ([]byte, Receipt, error)
}
