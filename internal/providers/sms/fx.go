package sms

import (
	"github.com/smallbiznis/paydesk/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.sms",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) Provider {
	if cfg.SMS.APIKey == "" {
		log.Warn("africa's talking not configured; sms disabled")
		return &DisabledProvider{}
	}
	return NewAfricasTalking(Config{
		Username:       cfg.SMS.Username,
		APIKey:         cfg.SMS.APIKey,
		SenderID:       cfg.SMS.SenderID,
		BaseURL:        cfg.SMS.BaseURL,
		DefaultCountry: cfg.SMS.DefaultCountryCode,
		Timeout:        cfg.SMS.Timeout,
	}, nil, log)
}
