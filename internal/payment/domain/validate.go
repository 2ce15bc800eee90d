package domain

import (
	"strings"
	"unicode/utf8"

	"github.com/smallbiznis/paydesk/internal/config"
	"github.com/smallbiznis/paydesk/internal/money"
	"github.com/smallbiznis/paydesk/internal/providers/sms"
)

const MaxDescriptionLength = 500

// Validate checks req against policy and returns the normalized amount.
func (req CreatePaymentRequest) Validate(policy config.PaymentPolicy) (money.Money, error) {
	if !req.Amount.IsPositive() {
		return money.Money{}, invalid("amount", "must be positive")
	}
	if req.Amount.Amount > policy.MaxAmount {
		return money.Money{}, invalid("amount", "exceeds the maximum")
	}
	currency, err := money.NormalizeCurrency(req.Amount.Currency)
	if err != nil || !policy.AllowsCurrency(currency) {
		return money.Money{}, invalid("currency", "is not accepted")
	}
	if utf8.RuneCountInString(strings.TrimSpace(req.Description)) > MaxDescriptionLength {
		return money.Money{}, invalid("description", "is too long")
	}
	if email := strings.TrimSpace(req.Customer.Email); email != "" && !strings.Contains(email, "@") {
		return money.Money{}, invalid("customer_email", "is not an email address")
	}
	if phone := strings.TrimSpace(req.Customer.Phone); phone != "" && !sms.ValidPhone(phone) {
		return money.Money{}, invalid("customer_phone", "is not a phone number")
	}
	if len(req.IdempotencyKey) > 255 {
		return money.Money{}, invalid("idempotency_key", "is too long")
	}
	return money.Money{Amount: req.Amount.Amount, Currency: currency}, nil
}
