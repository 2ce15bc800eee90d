// Package gatewaytest provides a testify mock of gateway.Client.
package gatewaytest

import (
	"context"

	"github.com/smallbiznis/paydesk/internal/gateway"
	"github.com/stretchr/testify/mock"
)

type Client struct {
	mock.Mock
}

var _ gateway.Client = (*Client)(nil)

func (m *Client) CreateIntent(ctx context.Context, req gateway.IntentRequest) (gateway.Intent, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(gateway.Intent), args.Error(1)
}

func (m *Client) RetrieveIntent(ctx context.Context, ref string) (gateway.Intent, error) {
	args := m.Called(ctx, ref)
	return args.Get(0).(gateway.Intent), args.Error(1)
}

func (m *Client) CreateRefund(ctx context.Context, req gateway.RefundRequest) (gateway.Refund, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(gateway.Refund), args.Error(1)
}

func (m *Client) CreateCheckoutSession(ctx context.Context, req gateway.CheckoutRequest) (gateway.CheckoutSession, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(gateway.CheckoutSession), args.Error(1)
}
