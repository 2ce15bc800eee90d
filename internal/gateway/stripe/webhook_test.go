package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/smallbiznis/paydesk/internal/clock"
	"github.com/smallbiznis/paydesk/internal/gateway"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test"

func newTestVerifier(now time.Time) *Verifier {
	return NewVerifier(Config{WebhookSecret: testSecret}, clock.NewFakeClock(now))
}

func TestVerifyEventSignature(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	payload := []byte(`{"id":"evt_1","type":"customer.created","created":1700000000,"data":{"object":{}}}`)
	verifier := newTestVerifier(now)

	event, err := verifier.VerifyEvent(payload, buildStripeSignatureHeader(testSecret, payload, now.Unix()))
	require.NoError(t, err)
	require.IsType(t, gateway.Unhandled{}, event)
	require.Equal(t, "customer.created", event.Envelope().Type)

	cases := map[string]string{
		"missing":      "",
		"wrong_secret": buildStripeSignatureHeader("wrong", payload, now.Unix()),
		"stale":        buildStripeSignatureHeader(testSecret, payload, now.Add(-10*time.Minute).Unix()),
		"garbage":      "t=abc",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := verifier.VerifyEvent(payload, header)
			require.ErrorIs(t, err, gateway.ErrInvalidSignature)
		})
	}
}

func TestVerifyEventUsesExactBytes(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	payload := []byte(`{"id":"evt_1","type":"charge.refunded"}`)
	header := buildStripeSignatureHeader(testSecret, payload, now.Unix())

	tampered := []byte(`{"id":"evt_1", "type":"charge.refunded"}`)
	_, err := newTestVerifier(now).VerifyEvent(tampered, header)
	require.ErrorIs(t, err, gateway.ErrInvalidSignature)
}

func TestVerifyEventMalformed(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	payload := []byte(`{"type":"payment_intent.succeeded"}`)

	_, err := newTestVerifier(now).VerifyEvent(payload, buildStripeSignatureHeader(testSecret, payload, now.Unix()))
	require.ErrorIs(t, err, gateway.ErrMalformedPayload)
}

func TestParseEventVariants(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		check   func(t *testing.T, event gateway.Event)
	}{
		{
			name: "payment_intent.succeeded",
			payload: `{"id":"evt_pi","type":"payment_intent.succeeded","created":1700000000,"data":{"object":{
				"id":"pi_1","amount":2500,"amount_received":2500,"currency":"usd","metadata":{"transaction_id":"42"},
				"charges":{"data":[{"id":"ch_1","payment_method_details":{"card":{"last4":"4242","brand":"visa"}}}]}}}}`,
			check: func(t *testing.T, event gateway.Event) {
				succeeded, ok := event.(gateway.PaymentSucceeded)
				require.True(t, ok)
				require.Equal(t, "pi_1", succeeded.IntentRef)
				require.Equal(t, int64(2500), succeeded.Amount)
				require.Equal(t, "USD", succeeded.Currency)
				require.Equal(t, "4242", succeeded.CardLast4)
				require.Equal(t, "42", succeeded.Metadata[gateway.MetadataTransactionID])
			},
		},
		{
			name: "payment_intent.payment_failed",
			payload: `{"id":"evt_f","type":"payment_intent.payment_failed","data":{"object":{
				"id":"pi_2","last_payment_error":{"code":"card_declined","message":"Your card was declined."}}}}`,
			check: func(t *testing.T, event gateway.Event) {
				failed, ok := event.(gateway.PaymentFailed)
				require.True(t, ok)
				require.Equal(t, "card_declined", failed.FailureCode)
			},
		},
		{
			name: "checkout.session.completed",
			payload: `{"id":"evt_cs","type":"checkout.session.completed","data":{"object":{
				"id":"cs_1","payment_intent":"pi_3","payment_status":"paid","amount_total":900,"currency":"kes",
				"metadata":{"payment_link_id":"77"},"customer_details":{"email":"b@example.com","phone":"+254700000000"}}}}`,
			check: func(t *testing.T, event gateway.Event) {
				completed, ok := event.(gateway.CheckoutCompleted)
				require.True(t, ok)
				require.Equal(t, "cs_1", completed.SessionRef)
				require.Equal(t, "pi_3", completed.IntentRef)
				require.Equal(t, "paid", completed.PaymentStatus)
				require.Equal(t, "b@example.com", completed.CustomerEmail)
			},
		},
		{
			name: "charge.refunded",
			payload: `{"id":"evt_r","type":"charge.refunded","data":{"object":{
				"id":"ch_1","payment_intent":"pi_1","amount":5000,"amount_refunded":1200,"currency":"usd",
				"refunds":{"data":[{"id":"re_1","amount":1200,"status":"succeeded"}]}}}}`,
			check: func(t *testing.T, event gateway.Event) {
				refunded, ok := event.(gateway.ChargeRefunded)
				require.True(t, ok)
				require.Equal(t, "pi_1", refunded.IntentRef)
				require.Equal(t, int64(1200), refunded.AmountRefunded)
				require.Equal(t, "re_1", refunded.RefundRef)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			event, err := parseEvent([]byte(tc.payload))
			require.NoError(t, err)
			tc.check(t, event)
		})
	}
}

func buildStripeSignatureHeader(secret string, payload []byte, timestamp int64) string {
	signedPayload := fmt.Sprintf("%d.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signedPayload))
	signature := hex.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("t=%d,v1=%s", timestamp, signature)
}
