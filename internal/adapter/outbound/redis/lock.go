package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/payrecon/server/internal/port/outbound"
	"github.com/redis/go-redis/v9"
)

const lockKeyPrefix = "payrecon:lock:"

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// distributedLock implements outbound.DistributedLockPort.
type distributedLock struct {
	client redis.UniversalClient
}

// NewDistributedLock creates a new redis lock adapter.
func NewDistributedLock(client redis.UniversalClient) outbound.DistributedLockPort {
	return &distributedLock{client: client}
}

func (l *distributedLock) Acquire(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, bool, error) {
	key := lockKeyPrefix + name
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil && err != redis.Nil {
			return fmt.Errorf("release lock %s: %w", name, err)
		}
		return nil
	}
	return release, true, nil
}

// Compile-time check
var _ outbound.DistributedLockPort = (*distributedLock)(nil)
