package scheduler

import (
	"time"

	"github.com/smallbiznis/paydesk/internal/config"
)

// Config controls scheduler intervals.
type Config struct {
	PurgeInterval time.Duration
	JobTimeout    time.Duration
}

func DefaultConfig() Config {
	return Config{
		PurgeInterval: time.Hour,
		JobTimeout:    5 * time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{PurgeInterval: cfg.Idempotency.PurgeInterval}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.PurgeInterval <= 0 {
		c.PurgeInterval = defaults.PurgeInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}
