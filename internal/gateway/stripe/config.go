package stripe

import (
	"strings"
	"time"

	"github.com/smallbiznis/paydesk/internal/config"
)

const (
	defaultBaseURL   = "https://api.stripe.com"
	defaultTimeout   = 12 * time.Second
	defaultTolerance = 5 * time.Minute
	providerName     = "stripe"
)

// Config is passed explicitly to the client; nothing is read from globals.
type Config struct {
	SecretKey          string
	WebhookSecret      string
	BaseURL            string
	Timeout            time.Duration
	SignatureTolerance time.Duration
}

func ConfigFrom(cfg config.Config) Config {
	return Config{
		SecretKey:          cfg.Stripe.SecretKey,
		WebhookSecret:      cfg.Stripe.WebhookSecret,
		BaseURL:            cfg.Stripe.BaseURL,
		Timeout:            cfg.Stripe.Timeout,
		SignatureTolerance: cfg.Stripe.SignatureTolerance,
	}
}

func (c Config) withDefaults() Config {
	c.SecretKey = strings.TrimSpace(c.SecretKey)
	c.WebhookSecret = strings.TrimSpace(c.WebhookSecret)
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.SignatureTolerance <= 0 {
		c.SignatureTolerance = defaultTolerance
	}
	return c
}
