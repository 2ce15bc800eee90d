package stripe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/smallbiznis/paydesk/internal/gateway"
	"github.com/smallbiznis/paydesk/internal/money"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Config{SecretKey: "sk_test", BaseURL: server.URL, Timeout: time.Second}, nil, zap.NewNop(), nil)
}

func TestCreateIntentSendsFormAndIdempotencyKey(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/payment_intents", r.URL.Path)
		require.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		require.Equal(t, "pos:k1", r.Header.Get("Idempotency-Key"))
		require.NoError(t, r.ParseForm())
		require.Equal(t, "1050", r.PostForm.Get("amount"))
		require.Equal(t, "usd", r.PostForm.Get("currency"))
		require.Equal(t, "true", r.PostForm.Get("automatic_payment_methods[enabled]"))
		require.Equal(t, "42", r.PostForm.Get("metadata[transaction_id]"))
		require.Equal(t, "a@example.com", r.PostForm.Get("receipt_email"))
		_, _ = w.Write([]byte(`{"id":"pi_1","client_secret":"pi_1_secret","status":"requires_payment_method","amount":1050,"currency":"usd"}`))
	})

	intent, err := client.CreateIntent(context.Background(), gateway.IntentRequest{
		Amount:         money.Money{Amount: 1050, Currency: "USD"},
		Description:    "Coffee",
		ReceiptEmail:   "a@example.com",
		Metadata:       map[string]string{gateway.MetadataTransactionID: "42"},
		IdempotencyKey: "pos:k1",
	})
	require.NoError(t, err)
	require.Equal(t, "pi_1", intent.Ref)
	require.Equal(t, "pi_1_secret", intent.ClientSecret)
	require.Equal(t, money.Money{Amount: 1050, Currency: "USD"}, intent.Amount)
}

func TestCreateIntentClassifiesFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{name: "card_error", status: http.StatusPaymentRequired, body: `{"error":{"type":"card_error","code":"card_declined","decline_code":"insufficient_funds"}}`, want: gateway.ErrDeclined},
		{name: "invalid_request", status: http.StatusBadRequest, body: `{"error":{"type":"invalid_request_error","code":"parameter_invalid_integer"}}`, want: gateway.ErrRejected},
		{name: "server_error", status: http.StatusBadGateway, body: `{}`, want: gateway.ErrUnavailable},
		{name: "rate_limited", status: http.StatusTooManyRequests, body: `{"error":{"type":"rate_limit_error"}}`, want: gateway.ErrUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := client.CreateIntent(context.Background(), gateway.IntentRequest{Amount: money.Money{Amount: 100, Currency: "USD"}})
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestCreateIntentTimeoutIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()
	client := NewClient(Config{SecretKey: "sk_test", BaseURL: server.URL, Timeout: 20 * time.Millisecond}, nil, zap.NewNop(), nil)

	_, err := client.CreateIntent(context.Background(), gateway.IntentRequest{Amount: money.Money{Amount: 100, Currency: "USD"}})
	require.ErrorIs(t, err, gateway.ErrUnavailable)
}

func TestMissingSecretKey(t *testing.T) {
	client := NewClient(Config{}, nil, zap.NewNop(), nil)
	_, err := client.CreateIntent(context.Background(), gateway.IntentRequest{})
	require.ErrorIs(t, err, gateway.ErrNotConfigured)
}

func TestRetrieveIntentReadsExpandedCharge(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/v1/payment_intents/pi_9", r.URL.Path)
		require.Equal(t, "latest_charge", r.URL.Query().Get("expand[]"))
		_, _ = w.Write([]byte(`{"id":"pi_9","status":"succeeded","amount":500,"currency":"kes",
			"latest_charge":{"id":"ch_1","payment_method_details":{"card":{"last4":"4242","brand":"visa"}}}}`))
	})

	intent, err := client.RetrieveIntent(context.Background(), "pi_9")
	require.NoError(t, err)
	require.Equal(t, gateway.IntentSucceeded, intent.Status)
	require.Equal(t, "4242", intent.CardLast4)
	require.Equal(t, "visa", intent.CardBrand)
	require.Equal(t, "KES", intent.Amount.Currency)
}

func TestCreateRefund(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/refunds", r.URL.Path)
		require.Equal(t, "refund:42", r.Header.Get("Idempotency-Key"))
		require.NoError(t, r.ParseForm())
		require.Equal(t, "pi_1", r.PostForm.Get("payment_intent"))
		require.Equal(t, "400", r.PostForm.Get("amount"))
		_, _ = w.Write([]byte(`{"id":"re_1","amount":400,"status":"succeeded"}`))
	})

	refund, err := client.CreateRefund(context.Background(), gateway.RefundRequest{IntentRef: "pi_1", Amount: 400, IdempotencyKey: "refund:42"})
	require.NoError(t, err)
	require.Equal(t, gateway.Refund{Ref: "re_1", Amount: 400, Status: "succeeded"}, refund)
}

func TestCreateRefundFailedStatusIsRejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"re_2","amount":400,"status":"failed"}`))
	})

	_, err := client.CreateRefund(context.Background(), gateway.RefundRequest{IntentRef: "pi_1"})
	require.ErrorIs(t, err, gateway.ErrRejected)
}

func TestCreateCheckoutSession(t *testing.T) {
	expires := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "payment", r.PostForm.Get("mode"))
		require.Equal(t, "Payment", r.PostForm.Get("line_items[0][price_data][product_data][name]"))
		require.Equal(t, "2500", r.PostForm.Get("line_items[0][price_data][unit_amount]"))
		require.Equal(t, "77", r.PostForm.Get("metadata[payment_link_id]"))
		require.Equal(t, "77", r.PostForm.Get("payment_intent_data[metadata][payment_link_id]"))
		require.Equal(t, "1767323045", r.PostForm.Get("expires_at"))
		_, _ = w.Write([]byte(`{"id":"cs_1","url":"https://checkout.stripe.com/c/cs_1","expires_at":1767323045}`))
	})

	session, err := client.CreateCheckoutSession(context.Background(), gateway.CheckoutRequest{
		Amount:     money.Money{Amount: 2500, Currency: "KES"},
		ExpiresAt:  expires,
		SuccessURL: "https://pos.example/ok",
		CancelURL:  "https://pos.example/cancel",
		Metadata:   map[string]string{gateway.MetadataPaymentLinkID: "77"},
	})
	require.NoError(t, err)
	require.Equal(t, "cs_1", session.Ref)
	require.True(t, expires.Equal(session.ExpiresAt))
}
