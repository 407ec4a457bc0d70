package redis

import (
	"context"
	"log/slog"
	"time"

	"github.com/pscheid92/chatrelay/internal/metrics"
	goredis "github.com/redis/go-redis/v9"
)

const rateLimitTimeout = 250 * time.Millisecond

// RateLimiter is the fixed-window limiter shared by all instances. Any Redis failure allows the
// event.
type RateLimiter struct {
	rdb    *goredis.Client
	max    int
	window time.Duration
}

func NewRateLimiter(rdb *goredis.Client, max int, window time.Duration) *RateLimiter {
	return &RateLimiter{rdb: rdb, max: max, window: window}
}

func (l *RateLimiter) Allow(ctx context.Context, origin string) bool {
	ctx, cancel := context.WithTimeout(ctx, rateLimitTimeout)
	defer cancel()

	allowed, err := fixedWindowScript.Run(ctx, l.rdb, []string{rateLimitKey(origin)}, l.max, l.window.Milliseconds()).Int()
	if err != nil {
		metrics.RateLimitDecisions.WithLabelValues("redis", "fail_open").Inc()
		slog.WarnContext(ctx, "Rate limit check failed, allowing", "origin", origin, "error", err)
		return true
	}

	if allowed == 1 {
		metrics.RateLimitDecisions.WithLabelValues("redis", "allowed").Inc()
		return true
	}
	metrics.RateLimitDecisions.WithLabelValues("redis", "denied").Inc()
	return false
}

func rateLimitKey(origin string) string {
	return "rate_limit:" + origin
}
