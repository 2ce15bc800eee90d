package sms

import (
	"regexp"
	"strings"
)

// NormalizePhone returns phone in +<country><number> form. Numbers without a
// country code are assumed to belong to defaultCountry.
func NormalizePhone(phone, defaultCountry string) string {
	phone = strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(phone))
	if phone == "" || strings.HasPrefix(phone, "+") {
		return phone
	}
	defaultCountry = strings.TrimPrefix(strings.TrimSpace(defaultCountry), "+")
	switch {
	case defaultCountry != "" && strings.HasPrefix(phone, "0"):
		return "+" + defaultCountry + phone[1:]
	default:
		return "+" + phone
	}
}

var phonePattern = regexp.MustCompile(`^\+?[0-9 \-]{10,15}$`)

// ValidPhone reports whether phone looks like a dialable number.
func ValidPhone(phone string) bool {
	return phonePattern.MatchString(strings.TrimSpace(phone))
}
