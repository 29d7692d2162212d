package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisTickLocker implements TickLocker with a Redis SET NX lease so only
// one instance in a deployment runs a given tick. The lease expires on its
// own if the holder dies mid-tick.
type RedisTickLocker struct {
	client redis.Cmdable
	key    string
	token  string
	ttl    time.Duration
}

func NewRedisTickLocker(client redis.Cmdable, key string, ttl time.Duration) *RedisTickLocker {
	return &RedisTickLocker{
		client: client,
		key:    key,
		token:  uuid.NewString(),
		ttl:    ttl,
	}
}

func (l *RedisTickLocker) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("tick lock setnx: %w", err)
	}
	return ok, nil
}

// releaseScript deletes the lock only if this instance still holds it, so
// an expired lease re-acquired by another instance is never clobbered.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

func (l *RedisTickLocker) Release(ctx context.Context) {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil {
		zap.L().Warn("tick lock release failed", zap.Error(err))
	}
}
