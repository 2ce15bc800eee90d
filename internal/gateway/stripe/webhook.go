package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/paydesk/internal/clock"
	"github.com/smallbiznis/paydesk/internal/gateway"
)

// Verifier checks Stripe-Signature headers and decodes events.
type Verifier struct {
	secret    string
	tolerance time.Duration
	clock     clock.Clock
}

func NewVerifier(cfg Config, clk clock.Clock) *Verifier {
	cfg = cfg.withDefaults()
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Verifier{
		secret:    cfg.WebhookSecret,
		tolerance: cfg.SignatureTolerance,
		clock:     clk,
	}
}

func (v *Verifier) Provider() string { return providerName }

// VerifyEvent authenticates payload against header over the exact raw bytes
// and decodes it. Nothing is parsed before the signature checks out.
func (v *Verifier) VerifyEvent(payload []byte, header string) (gateway.Event, error) {
	if v.secret == "" {
		return nil, gateway.ErrNotConfigured
	}
	if err := v.verify(payload, header); err != nil {
		return nil, err
	}
	return parseEvent(payload)
}

func (v *Verifier) verify(payload []byte, header string) error {
	header = strings.TrimSpace(header)
	if header == "" {
		return gateway.ErrInvalidSignature
	}
	timestamp, signatures, err := parseStripeSignature(header)
	if err != nil {
		return gateway.ErrInvalidSignature
	}

	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return gateway.ErrInvalidSignature
	}
	age := v.clock.Now().Sub(time.Unix(unix, 0))
	if age > v.tolerance || age < -v.tolerance {
		return gateway.ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(v.secret))
	_, _ = mac.Write([]byte(timestamp))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}
	return gateway.ErrInvalidSignature
}

func parseStripeSignature(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return timestamp, signatures, nil
}

func parseEvent(payload []byte) (gateway.Event, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, gateway.ErrMalformedPayload
	}
	event.ID = strings.TrimSpace(event.ID)
	event.Type = strings.TrimSpace(event.Type)
	if event.ID == "" || event.Type == "" {
		return nil, gateway.ErrMalformedPayload
	}
	meta := gateway.Envelope{ID: event.ID, Type: event.Type, Created: unixTime(event.Created)}

	switch event.Type {
	case gateway.TypePaymentSucceeded:
		var intent stripePaymentIntent
		if err := decodeObject(event, &intent); err != nil || intent.ID == "" {
			return nil, gateway.ErrMalformedPayload
		}
		amount := intent.AmountReceived
		if amount <= 0 {
			amount = intent.Amount
		}
		last4, brand := intent.card()
		return gateway.PaymentSucceeded{
			Meta:      meta,
			IntentRef: intent.ID,
			Amount:    amount,
			Currency:  strings.ToUpper(strings.TrimSpace(intent.Currency)),
			CardLast4: last4,
			CardBrand: brand,
			Metadata:  intent.Metadata,
		}, nil
	case gateway.TypePaymentFailed:
		var intent stripePaymentIntent
		if err := decodeObject(event, &intent); err != nil || intent.ID == "" {
			return nil, gateway.ErrMalformedPayload
		}
		failed := gateway.PaymentFailed{
			Meta:      meta,
			IntentRef: intent.ID,
			Metadata:  intent.Metadata,
		}
		if intent.LastPaymentError != nil {
			failed.FailureCode = intent.LastPaymentError.Code
			failed.FailureMessage = intent.LastPaymentError.Message
		}
		return failed, nil
	case gateway.TypeCheckoutCompleted:
		var session stripeCheckoutSession
		if err := decodeObject(event, &session); err != nil || session.ID == "" {
			return nil, gateway.ErrMalformedPayload
		}
		completed := gateway.CheckoutCompleted{
			Meta:          meta,
			SessionRef:    session.ID,
			PaymentStatus: session.PaymentStatus,
			Amount:        session.AmountTotal,
			Currency:      strings.ToUpper(strings.TrimSpace(session.Currency)),
			Metadata:      session.Metadata,
		}
		if session.PaymentIntent != nil {
			completed.IntentRef = strings.TrimSpace(*session.PaymentIntent)
		}
		if session.CustomerDetails != nil {
			completed.CustomerEmail = session.CustomerDetails.Email
			completed.CustomerPhone = session.CustomerDetails.Phone
		}
		return completed, nil
	case gateway.TypeChargeRefunded:
		var charge stripeCharge
		if err := decodeObject(event, &charge); err != nil || charge.ID == "" {
			return nil, gateway.ErrMalformedPayload
		}
		refunded := gateway.ChargeRefunded{
			Meta:           meta,
			ChargeRef:      charge.ID,
			IntentRef:      strings.TrimSpace(charge.PaymentIntent),
			AmountRefunded: charge.AmountRefunded,
			Currency:       strings.ToUpper(strings.TrimSpace(charge.Currency)),
			Metadata:       charge.Metadata,
		}
		if len(charge.Refunds.Data) > 0 {
			refunded.RefundRef = charge.Refunds.Data[0].ID
		}
		return refunded, nil
	default:
		return gateway.Unhandled{Meta: meta}, nil
	}
}

func decodeObject(event stripeEvent, out any) error {
	if len(event.Data.Object) == 0 {
		return gateway.ErrMalformedPayload
	}
	return json.Unmarshal(event.Data.Object, out)
}

func unixTime(value int64) time.Time {
	if value == 0 {
		return time.Time{}
	}
	return time.Unix(value, 0).UTC()
}
