package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"tle_zone_grader/internal/common"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

func newRedisLocker(t *testing.T, ttl time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisLocker(rdb, "progress_lock:", ttl), mr
}

func TestLockersSerializeSameKey(t *testing.T) {
	redisLocker, _ := newRedisLocker(t, 10*time.Second)
	lockers := map[string]locker{
		"redis": redisLocker,
		"local": NewLocalLocker(),
	}
	for name, l := range lockers {
		t.Run(name, func(t *testing.T) {
			var inside, maxInside atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					unlock, err := l.Lock(context.Background(), "user-1")
					require.NoError(t, err)
					n := inside.Add(1)
					if n > maxInside.Load() {
						maxInside.Store(n)
					}
					time.Sleep(2 * time.Millisecond)
					inside.Add(-1)
					unlock()
				}()
			}
			wg.Wait()
			require.EqualValues(t, 1, maxInside.Load())
		})
	}
}

func TestLockersRespectContext(t *testing.T) {
	redisLocker, _ := newRedisLocker(t, 10*time.Second)
	lockers := map[string]locker{
		"redis": redisLocker,
		"local": NewLocalLocker(),
	}
	for name, l := range lockers {
		t.Run(name, func(t *testing.T) {
			unlock, err := l.Lock(context.Background(), "user-2")
			require.NoError(t, err)
			defer unlock()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
			defer cancel()
			_, err = l.Lock(ctx, "user-2")
			require.ErrorIs(t, err, common.ErrLockNotAcquired)

			// other keys are independent
			unlockOther, err := l.Lock(context.Background(), "user-3")
			require.NoError(t, err)
			unlockOther()
		})
	}
}

func TestRedisLockReleaseKeepsForeignToken(t *testing.T) {
	l, mr := newRedisLocker(t, time.Second)

	unlock, err := l.Lock(context.Background(), "user-4")
	require.NoError(t, err)

	// first holder's lease runs out and someone else takes the key
	mr.FastForward(2 * time.Second)
	unlockSecond, err := l.Lock(context.Background(), "user-4")
	require.NoError(t, err)
	owner, err := mr.Get("progress_lock:user-4")
	require.NoError(t, err)

	unlock()
	still, err := mr.Get("progress_lock:user-4")
	require.NoError(t, err)
	require.Equal(t, owner, still)

	unlockSecond()
	require.False(t, mr.Exists("progress_lock:user-4"))
}

func TestUnlockIsIdempotent(t *testing.T) {
	l := NewLocalLocker()
	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	unlock()
	unlock()

	unlock2, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	unlock2()
}
