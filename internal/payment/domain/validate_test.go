package domain

import (
	"errors"
	"strings"
	"testing"

	"github.com/smallbiznis/paydesk/internal/config"
	"github.com/smallbiznis/paydesk/internal/money"
	"github.com/stretchr/testify/require"
)

func TestCreatePaymentRequestValidate(t *testing.T) {
	policy := config.DefaultPaymentPolicy()
	base := CreatePaymentRequest{
		Amount:      money.Money{Amount: 1000, Currency: "usd"},
		Description: "Latte",
		Customer:    CustomerContact{Email: "a@example.com", Phone: "+254 712 345 678"},
	}

	amount, err := base.Validate(policy)
	require.NoError(t, err)
	require.Equal(t, money.Money{Amount: 1000, Currency: "USD"}, amount)

	cases := map[string]func(r *CreatePaymentRequest){
		"amount":          func(r *CreatePaymentRequest) { r.Amount.Amount = 0 },
		"ceiling":         func(r *CreatePaymentRequest) { r.Amount.Amount = policy.MaxAmount + 1 },
		"currency":        func(r *CreatePaymentRequest) { r.Amount.Currency = "XYZ" },
		"description":     func(r *CreatePaymentRequest) { r.Description = strings.Repeat("d", 501) },
		"customer_email":  func(r *CreatePaymentRequest) { r.Customer.Email = "nobody" },
		"customer_phone":  func(r *CreatePaymentRequest) { r.Customer.Phone = "12" },
		"idempotency_key": func(r *CreatePaymentRequest) { r.IdempotencyKey = strings.Repeat("k", 256) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := base
			mutate(&req)
			_, err := req.Validate(policy)
			require.ErrorIs(t, err, ErrValidation)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
		})
	}
}
