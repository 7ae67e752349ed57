package provision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/simplesurance/classportal/internal/logfields"
	"github.com/simplesurance/classportal/internal/portalerr"
)

const (
	redisLockKeyPrefix       = "classportal:provision-lock:"
	DefRedisLockPollInterval = 250 * time.Millisecond
)

// releaseScript deletes the key only if it still contains the token of the
// lock owner.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker is a Locker that is shared by all instances using the same
// redis server.
// A lock expires after its TTL, the TTL must be longer than the pipeline
// timeout.
type RedisLocker struct {
	clt          *redis.Client
	ttl          time.Duration
	pollInterval time.Duration
	logger       *zap.Logger
}

func NewRedisLocker(clt *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{
		clt:          clt,
		ttl:          ttl,
		pollInterval: DefRedisLockPollInterval,
		logger:       zap.L().Named(loggerName).Named("redis_locker"),
	}
}

func (l *RedisLocker) tryAcquire(ctx context.Context, key string) (func(), bool, error) {
	token := uuid.NewString()
	redisKey := redisLockKeyPrefix + key

	ok, err := l.clt.SetNX(ctx, redisKey, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis setnx %s: %w", redisKey, err)
	}

	if !ok {
		return nil, false, nil
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := releaseScript.Run(ctx, l.clt, []string{redisKey}, token).Err()
		if err != nil && !errors.Is(err, redis.Nil) {
			l.logger.Warn(
				"releasing redis lock failed, lock expires after ttl",
				logfields.Event("redis_lock_release_failed"),
				zap.String("lock_key", redisKey),
				zap.Duration("ttl", l.ttl),
				zap.Error(err),
			)
		}
	}, true, nil
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		release, ok, err := l.tryAcquire(ctx, key)
		if err != nil {
			return nil, err
		}

		if ok {
			return release, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string) (func(), error) {
	release, ok, err := l.tryAcquire(ctx, key)
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, fmt.Errorf("%s: %w", key, portalerr.ErrLockContention)
	}

	return release, nil
}

// NewRedisClient returns a client for the redis server at addr, it fails if
// the server does not respond to a ping.
func NewRedisClient(addr string) (*redis.Client, error) {
	clt := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := clt.Ping(ctx).Err(); err != nil {
		_ = clt.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}

	return clt, nil
}
