package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PaymentPolicy holds the merchant rules that operators tune without a restart.
type PaymentPolicy struct {
	AllowedCurrencies []string      `mapstructure:"allowedCurrencies"`
	MaxAmount         int64         `mapstructure:"maxAmount"`
	LinkExpiry        time.Duration `mapstructure:"linkExpiry"`
	LinkMinExpiry     time.Duration `mapstructure:"linkMinExpiry"`
	LinkMaxExpiry     time.Duration `mapstructure:"linkMaxExpiry"`
	ReceiptFooter     string        `mapstructure:"receiptFooter"`
}

// PolicySource returns the policy in force at call time.
type PolicySource interface {
	Get() PaymentPolicy
}

func DefaultPaymentPolicy() PaymentPolicy {
	return PaymentPolicy{
		AllowedCurrencies: []string{"USD", "KES", "EUR", "GBP"},
		MaxAmount:         99_999_999,
		LinkExpiry:        24 * time.Hour,
		LinkMinExpiry:     30 * time.Minute,
		LinkMaxExpiry:     24 * time.Hour,
		ReceiptFooter:     "Thank you for your business!",
	}
}

// AllowsCurrency reports whether currency is on the allow-list.
func (p PaymentPolicy) AllowsCurrency(currency string) bool {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	for _, allowed := range p.AllowedCurrencies {
		if strings.ToUpper(strings.TrimSpace(allowed)) == currency {
			return true
		}
	}
	return false
}

type PolicyHolder struct {
	current atomic.Value // holds PaymentPolicy
}

// StaticPolicy wraps a fixed policy, mostly for tests and tools.
func StaticPolicy(p PaymentPolicy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(p)
	return holder
}

func NewPolicyHolder(cfg Config, log *zap.Logger) (*PolicyHolder, PolicySource, error) {
	log = log.Named("config.policy")
	v := viper.New()

	if cfg.PaymentPolicyPath != "" {
		v.SetConfigFile(cfg.PaymentPolicyPath)
	} else {
		v.SetConfigName("payment_policy")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/paydesk")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("PAYDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPaymentPolicy()
	v.SetDefault("payment.allowedCurrencies", defaults.AllowedCurrencies)
	v.SetDefault("payment.maxAmount", defaults.MaxAmount)
	v.SetDefault("payment.linkExpiry", defaults.LinkExpiry)
	v.SetDefault("payment.linkMinExpiry", defaults.LinkMinExpiry)
	v.SetDefault("payment.linkMaxExpiry", defaults.LinkMaxExpiry)
	v.SetDefault("payment.receiptFooter", defaults.ReceiptFooter)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, nil, fmt.Errorf("read payment policy: %w", err)
		}
		fileLoaded = false
	}

	var policy PaymentPolicy
	if err := v.UnmarshalKey("payment", &policy); err != nil {
		return nil, nil, err
	}
	if err := validatePolicy(policy); err != nil {
		return nil, nil, err
	}

	holder := StaticPolicy(policy)

	if fileLoaded {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated PaymentPolicy
			if err := v.UnmarshalKey("payment", &updated); err != nil {
				log.Warn("payment policy reload failed", zap.Error(err))
				return
			}
			if err := validatePolicy(updated); err != nil {
				log.Warn("invalid payment policy ignored", zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("payment policy reloaded", zap.String("file", e.Name))
		})
	}

	return holder, holder, nil
}

func (h *PolicyHolder) Get() PaymentPolicy {
	return h.current.Load().(PaymentPolicy)
}

func validatePolicy(p PaymentPolicy) error {
	if len(p.AllowedCurrencies) == 0 {
		return errors.New("payment.allowedCurrencies cannot be empty")
	}
	for _, c := range p.AllowedCurrencies {
		if len(strings.TrimSpace(c)) != 3 {
			return fmt.Errorf("payment.allowedCurrencies: invalid code %q", c)
		}
	}
	if p.MaxAmount <= 0 {
		return errors.New("payment.maxAmount must be positive")
	}
	if p.LinkMinExpiry <= 0 || p.LinkMaxExpiry < p.LinkMinExpiry {
		return errors.New("payment.linkMinExpiry/linkMaxExpiry out of range")
	}
	if p.LinkExpiry < p.LinkMinExpiry || p.LinkExpiry > p.LinkMaxExpiry {
		return errors.New("payment.linkExpiry must lie within the min/max window")
	}
	return nil
}
