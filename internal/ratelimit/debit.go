package ratelimit

import (
	"context"
	"fmt"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/credits/internal/config"
	"go.uber.org/zap"
)

const keyDebitTenant = "credits:debit:tenant:%s"

// DebitLimiter throttles debit authorizations per tenant. A nil limiter
// allows everything.
type DebitLimiter struct {
	bucket *TokenBucket
	limit  Bucket
}

// NewDebitLimiter returns nil when rate limiting is off or redis is absent.
func NewDebitLimiter(cfg config.Config, client *redis.Client, log *zap.Logger) (*DebitLimiter, error) {
	if !cfg.RateLimit.Enabled {
		return nil, nil
	}
	if client == nil {
		log.Warn("debit rate limit enabled without redis, limiter disabled")
		return nil, nil
	}

	limit := Bucket{Rate: cfg.RateLimit.DebitTenantRate, Burst: cfg.RateLimit.DebitTenantBurst}
	if err := limit.validate(); err != nil {
		return nil, fmt.Errorf("debit tenant rate limit: %w", err)
	}

	log.Info("debit rate limit enabled",
		zap.Float64("rate", limit.Rate),
		zap.Int("burst", limit.Burst),
	)
	return &DebitLimiter{bucket: NewTokenBucket(client), limit: limit}, nil
}

func (l *DebitLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *DebitLimiter) AllowTenant(ctx context.Context, tenantID string) (Decision, error) {
	if !l.Enabled() {
		return Decision{Allowed: true}, nil
	}
	return l.bucket.Take(ctx, fmt.Sprintf(keyDebitTenant, tenantID), l.limit)
}
