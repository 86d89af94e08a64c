package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/freightpay/internal/config"
	"github.com/smallbiznis/freightpay/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyWebhookProvider = "webhook:provider:%s"

type WebhookLimiterParams struct {
	fx.In

	Config  config.Config
	Log     *zap.Logger
	Bucket  *TokenBucket     `optional:"true"`
	Metrics *metrics.Metrics `optional:"true"`
}

// WebhookLimiter throttles inbound provider callbacks per provider. A nil or
// disabled limiter allows everything.
type WebhookLimiter struct {
	bucket  *TokenBucket
	log     *zap.Logger
	metrics *metrics.Metrics
	rate    float64
	burst   int
}

func NewWebhookLimiter(p WebhookLimiterParams) *WebhookLimiter {
	cfg := p.Config.RateLimit
	if !cfg.Enabled || p.Bucket == nil || cfg.WebhookRate <= 0 || cfg.WebhookBurst <= 0 {
		return nil
	}
	return &WebhookLimiter{
		bucket:  p.Bucket,
		log:     p.Log.Named("ratelimit.webhook"),
		metrics: p.Metrics,
		rate:    cfg.WebhookRate,
		burst:   cfg.WebhookBurst,
	}
}

func (l *WebhookLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Allow fails open when redis errors.
func (l *WebhookLimiter) Allow(ctx context.Context, provider string) (bool, time.Duration) {
	if !l.Enabled() {
		return true, 0
	}
	key := fmt.Sprintf(keyWebhookProvider, strings.ToLower(strings.TrimSpace(provider)))
	res, err := l.bucket.Allow(ctx, key, l.rate, l.burst)
	if err != nil {
		l.log.Warn("webhook rate limit check failed", zap.String("provider", provider), zap.Error(err))
		return true, 0
	}
	if !res.Allowed {
		l.metrics.RecordRateLimited("webhook")
	}
	return res.Allowed, res.RetryAfter
}
