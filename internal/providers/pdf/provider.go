package pdf

import "context"

// Provider renders printable documents.
type Provider interface {
	RenderReceipt(ctx context.Context, data ReceiptData) ([]byte, error)
}

type NoOpProvider struct{}

func (p *NoOpProvider) RenderReceipt(ctx context.Context, data ReceiptData) ([]byte, error) {
	return nil, nil
}
