package queue

import (
	"context"
	"fmt"
	"sync"
	"time"
	"tle_zone_grader/internal/common"
	"tle_zone_grader/internal/platform/logger"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript deletes the lock only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
else
    return 0
end
`)

// RedisLocker is a per-key mutex shared by every process using the same Redis.
// Locks expire after ttl so a crashed holder cannot wedge a key.
type RedisLocker struct {
	rdb           *redis.Client
	prefix        string
	ttl           time.Duration
	retryInterval time.Duration
}

func NewRedisLocker(rdb *redis.Client, prefix string, ttl time.Duration) *RedisLocker {
	return &RedisLocker{rdb: rdb, prefix: prefix, ttl: ttl, retryInterval: 25 * time.Millisecond}
}

// Lock blocks until the key is free or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := l.prefix + key
	token := uuid.NewString()
	for {
		ok, err := l.rdb.SetNX(ctx, lockKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", common.ErrLockNotAcquired, lockKey, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", common.ErrLockNotAcquired, lockKey, ctx.Err())
		case <-time.After(l.retryInterval):
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// the caller's ctx may already be cancelled; the release must still go out
			relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			deleted, err := releaseScript.Run(relCtx, l.rdb, []string{lockKey}, token).Int64()
			if err != nil {
				logger.Error(ctx, "failed to release lock", zap.String("key", lockKey), zap.Error(err))
			} else if deleted == 0 {
				logger.Warn(ctx, "lock expired before release", zap.String("key", lockKey))
			}
		})
	}, nil
}

// LocalLocker is the in-process equivalent of RedisLocker for single-instance
// deployments and tests.
type LocalLocker struct {
	slots *xsync.MapOf[string, chan struct{}]
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: xsync.NewMapOf[string, chan struct{}]()}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	slot, _ := l.slots.LoadOrCompute(key, func() chan struct{} { return make(chan struct{}, 1) })
	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %v", common.ErrLockNotAcquired, key, ctx.Err())
	}
	var once sync.Once
	return func() { once.Do(func() { <-slot }) }, nil
}
