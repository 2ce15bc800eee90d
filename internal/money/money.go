// Package money represents monetary amounts as integer minor units plus an
// ISO 4217 currency code. Floating point never touches an amount; decimal
// conversion happens only when rendering for humans.
package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidCurrency  = errors.New("invalid_currency")
	ErrNegativeAmount   = errors.New("negative_amount")
	ErrCurrencyMismatch = errors.New("currency_mismatch")
)

// Money is an amount in the currency's smallest unit (cents for USD).
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// minorExponent lists currencies whose minor unit is not 1/100.
var minorExponent = map[string]int32{
	"JPY": 0,
	"KRW": 0,
	"BHD": 3,
	"KWD": 3,
}

var symbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"KES": "KSh ",
}

func New(amount int64, currency string) (Money, error) {
	code, err := NormalizeCurrency(currency)
	if err != nil {
		return Money{}, err
	}
	if amount < 0 {
		return Money{}, ErrNegativeAmount
	}
	return Money{Amount: amount, Currency: code}, nil
}

// NormalizeCurrency upper-cases and validates a three letter code.
func NormalizeCurrency(currency string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if len(code) != 3 {
		return "", ErrInvalidCurrency
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return "", ErrInvalidCurrency
		}
	}
	return code, nil
}

func (m Money) IsPositive() bool {
	return m.Amount > 0
}

func (m Money) Exponent() int32 {
	if exp, ok := minorExponent[m.Currency]; ok {
		return exp
	}
	return 2
}

// Cmp compares two amounts of the same currency.
func (m Money) Cmp(other Money) (int, error) {
	if m.Currency != other.Currency {
		return 0, ErrCurrencyMismatch
	}
	switch {
	case m.Amount < other.Amount:
		return -1, nil
	case m.Amount > other.Amount:
		return 1, nil
	default:
		return 0, nil
	}
}

// Decimal returns the major-unit value, e.g. 1050 USD -> 10.50.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Amount, -m.Exponent())
}

// Display renders the amount for receipts and SMS, e.g. "$1,234.50".
func (m Money) Display() string {
	formatted := groupThousands(m.Decimal().StringFixed(m.Exponent()))
	if symbol, ok := symbols[m.Currency]; ok {
		return symbol + formatted
	}
	return m.Currency + " " + formatted
}

func (m Money) String() string {
	return m.Decimal().StringFixed(m.Exponent()) + " " + m.Currency
}

func groupThousands(value string) string {
	sign := ""
	if strings.HasPrefix(value, "-") {
		sign = "-"
		value = value[1:]
	}
	whole, frac, hasFrac := strings.Cut(value, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if hasFrac {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return sign + b.String()
}
