package stripe

import (
	"encoding/json"
	"strings"
)

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripeCard struct {
	Last4 string `json:"last4"`
	Brand string `json:"brand"`
}

type stripeCharge struct {
	ID                   string `json:"id"`
	PaymentIntent        string `json:"payment_intent"`
	Amount               int64  `json:"amount"`
	AmountRefunded       int64  `json:"amount_refunded"`
	Currency             string `json:"currency"`
	PaymentMethodDetails struct {
		Card *stripeCard `json:"card"`
	} `json:"payment_method_details"`
	Refunds struct {
		Data []stripeRefund `json:"data"`
	} `json:"refunds"`
	Metadata map[string]string `json:"metadata"`
}

type stripePaymentIntent struct {
	ID               string            `json:"id"`
	ClientSecret     string            `json:"client_secret"`
	Status           string            `json:"status"`
	Amount           int64             `json:"amount"`
	AmountReceived   int64             `json:"amount_received"`
	Currency         string            `json:"currency"`
	Created          int64             `json:"created"`
	Metadata         map[string]string `json:"metadata"`
	LatestCharge     json.RawMessage   `json:"latest_charge"`
	LastPaymentError *stripeError      `json:"last_payment_error"`
	Charges          struct {
		Data []stripeCharge `json:"data"`
	} `json:"charges"`
}

// card returns masked card details from either the expanded latest charge
// or the legacy charges list.
func (pi stripePaymentIntent) card() (string, string) {
	raw := strings.TrimSpace(string(pi.LatestCharge))
	if strings.HasPrefix(raw, "{") {
		var charge stripeCharge
		if err := json.Unmarshal(pi.LatestCharge, &charge); err == nil && charge.PaymentMethodDetails.Card != nil {
			return charge.PaymentMethodDetails.Card.Last4, charge.PaymentMethodDetails.Card.Brand
		}
	}
	for _, charge := range pi.Charges.Data {
		if charge.PaymentMethodDetails.Card != nil {
			return charge.PaymentMethodDetails.Card.Last4, charge.PaymentMethodDetails.Card.Brand
		}
	}
	return "", ""
}

type stripeCheckoutSession struct {
	ID              string            `json:"id"`
	URL             string            `json:"url"`
	ExpiresAt       int64             `json:"expires_at"`
	PaymentIntent   *string           `json:"payment_intent"`
	PaymentStatus   string            `json:"payment_status"`
	AmountTotal     int64             `json:"amount_total"`
	Currency        string            `json:"currency"`
	Metadata        map[string]string `json:"metadata"`
	CustomerDetails *struct {
		Email string `json:"email"`
		Phone string `json:"phone"`
	} `json:"customer_details"`
}

type stripeRefund struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
	Status string `json:"status"`
}

type stripeError struct {
	Type        string `json:"type"`
	Code        string `json:"code"`
	DeclineCode string `json:"decline_code"`
	Message     string `json:"message"`
}

type stripeErrorResponse struct {
	Error stripeError `json:"error"`
}
