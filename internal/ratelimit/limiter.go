package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/paydesk/internal/config"
	"go.uber.org/zap"
)

// Scope names a rate limited operation.
type Scope string

const (
	ScopePayment Scope = "payment"
	ScopeResend  Scope = "resend_sms"
)

const keyFormat = "paydesk:ratelimit:%s:%s"

type policy struct {
	rate  float64
	burst int
}

// Limiter applies per-client token buckets to the scopes it knows. A nil or
// disabled Limiter allows everything.
type Limiter struct {
	bucket   Bucket
	policies map[Scope]policy
}

func NewLimiter(cfg config.Config, client *redis.Client, log *zap.Logger) (*Limiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}
	if client == nil {
		log.Warn("rate limiting enabled without redis; requests are not limited")
		return nil, nil
	}
	return newLimiter(NewTokenBucket(client), limitCfg)
}

func newLimiter(bucket Bucket, limitCfg config.RateLimitConfig) (*Limiter, error) {
	if limitCfg.PaymentRate <= 0 || limitCfg.PaymentBurst <= 0 {
		return nil, errors.New("payment rate limit must be positive")
	}
	if limitCfg.ResendRate <= 0 || limitCfg.ResendBurst <= 0 {
		return nil, errors.New("resend rate limit must be positive")
	}
	return &Limiter{
		bucket: bucket,
		policies: map[Scope]policy{
			ScopePayment: {rate: limitCfg.PaymentRate, burst: limitCfg.PaymentBurst},
			ScopeResend:  {rate: limitCfg.ResendRate, burst: limitCfg.ResendBurst},
		},
	}, nil
}

// NewWithBucket builds an enabled limiter over an arbitrary bucket.
func NewWithBucket(bucket Bucket, limitCfg config.RateLimitConfig) (*Limiter, error) {
	return newLimiter(bucket, limitCfg)
}

func (l *Limiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *Limiter) Allow(ctx context.Context, scope Scope, client string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	p, ok := l.policies[scope]
	if !ok {
		return &RateLimitResult{Allowed: true}, nil
	}
	client = strings.TrimSpace(client)
	if client == "" {
		client = "unknown"
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyFormat, scope, client), p.rate, p.burst)
}
