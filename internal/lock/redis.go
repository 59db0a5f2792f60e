package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyPrefix      = "timelog:lock:"
	minRetryDelay  = 10 * time.Millisecond
	maxRetryDelay  = 500 * time.Millisecond
	releaseTimeout = 2 * time.Second
)

// release deletes the key only while it still holds our token
var release = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker holds timeline locks as Redis keys with an expiry, so a
// crashed writer cannot block a timeline for longer than the TTL
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger *zap.Logger
}

var _ Locker = (*RedisLocker)(nil)

// NewRedisLocker creates a locker whose keys expire after ttl
func NewRedisLocker(client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *RedisLocker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocker{client: client, ttl: ttl, logger: logger}
}

func (l *RedisLocker) Lock(ctx context.Context, timelineID string) (func(), error) {
	key := keyPrefix + timelineID
	token := uuid.NewString()
	delay := minRetryDelay

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrLockNotAcquired, timelineID, ctx.Err())
			}
			return nil, fmt.Errorf("failed to acquire lock for timeline %s: %w", timelineID, err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: %s: %v", ErrLockNotAcquired, timelineID, ctx.Err())
		case <-timer.C:
		}
		delay = min(delay*2, maxRetryDelay)
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.unlock(key, token) })
	}, nil
}

func (l *RedisLocker) unlock(key, token string) {
	// The caller's context may already be done; release on a fresh one.
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()

	if err := release.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
		l.logger.Warn("lock_release_failed",
			zap.String("key", key),
			zap.Error(err),
		)
	}
}
