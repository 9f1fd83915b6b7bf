package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/vitalpulse/internal/adapter/metrics"
)

// NewClient connects to redisURL (e.g. "redis://localhost:6379/0") and verifies the
// connection. Every command passes a circuit breaker; a non-nil m also instruments it.
func NewClient(ctx context.Context, redisURL string, m *metrics.StoreMetrics) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	rdb := goredis.NewClient(opts)
	if m != nil {
		rdb.AddHook(&metricsHook{metrics: m})
	}
	rdb.AddHook(newCircuitBreakerHook(m))

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}

// HealthCheck returns a readiness probe for rdb.
func HealthCheck(rdb *goredis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}
