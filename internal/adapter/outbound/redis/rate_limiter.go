package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/payrecon/server/internal/port/outbound"
	"github.com/redis/go-redis/v9"
)

const rateLimitKeyPrefix = "payrecon:ratelimit:"

// rateCounter implements outbound.RateCounterPort with a fixed window counter.
type rateCounter struct {
	client redis.UniversalClient
}

// NewRateCounter creates a new rate counter adapter.
func NewRateCounter(client redis.UniversalClient) outbound.RateCounterPort {
	return &rateCounter{client: client}
}

func (r *rateCounter) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	fullKey := rateLimitKeyPrefix + key

	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, fullKey)
		// NX keeps the window anchored at the first attempt.
		pipe.ExpireNX(ctx, fullKey, window)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("increment %s: %w", fullKey, err)
	}
	return incr.Val(), nil
}

// Compile-time check
var _ outbound.RateCounterPort = (*rateCounter)(nil)
