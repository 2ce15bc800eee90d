package gateway

import "time"

// Event is one verified processor notification. The set of implementations
// is closed; anything not modelled arrives as Unhandled.
type Event interface {
	Envelope() Envelope
	isEvent()
}

type Envelope struct {
	ID      string
	Type    string
	Created time.Time
}

const (
	TypePaymentSucceeded  = "payment_intent.succeeded"
	TypePaymentFailed     = "payment_intent.payment_failed"
	TypeCheckoutCompleted = "checkout.session.completed"
	TypeChargeRefunded    = "charge.refunded"
)

type PaymentSucceeded struct {
	Meta      Envelope
	IntentRef string
	Amount    int64
	Currency  string
	CardLast4 string
	CardBrand string
	Metadata  map[string]string
}

type PaymentFailed struct {
	Meta           Envelope
	IntentRef      string
	FailureCode    string
	FailureMessage string
	Metadata       map[string]string
}

type CheckoutCompleted struct {
	Meta          Envelope
	SessionRef    string
	IntentRef     string
	PaymentStatus string
	Amount        int64
	Currency      string
	CustomerEmail string
	CustomerPhone string
	Metadata      map[string]string
}

type ChargeRefunded struct {
	Meta           Envelope
	ChargeRef      string
	IntentRef      string
	RefundRef      string
	AmountRefunded int64
	Currency       string
	Metadata       map[string]string
}

type Unhandled struct {
	Meta Envelope
}

func (e PaymentSucceeded) Envelope() Envelope  { return e.Meta }
func (e PaymentFailed) Envelope() Envelope     { return e.Meta }
func (e CheckoutCompleted) Envelope() Envelope { return e.Meta }
func (e ChargeRefunded) Envelope() Envelope    { return e.Meta }
func (e Unhandled) Envelope() Envelope         { return e.Meta }

func (PaymentSucceeded) isEvent()  {}
func (PaymentFailed) isEvent()     {}
func (CheckoutCompleted) isEvent() {}
func (ChargeRefunded) isEvent()    {}
func (Unhandled) isEvent()         {}
