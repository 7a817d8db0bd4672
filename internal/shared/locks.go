package shared

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ArchiveSweepLockKey guards concurrent archival sweeps.
const ArchiveSweepLockKey = "pharmacy:archive:sweep:lock"

// ErrLockHeld is returned when another holder owns the lock.
var ErrLockHeld = errors.New("lock held by another process")

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker implements short lived mutual exclusion on top of SET NX PX.
type RedisLocker struct {
	client redis.UniversalClient
}

// NewRedisLocker constructs a locker backed by client.
func NewRedisLocker(client redis.UniversalClient) *RedisLocker {
	return &RedisLocker{client: client}
}

// Acquire takes key for ttl and returns a release func. ErrLockHeld is
// returned when the key is already taken.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	if l == nil || l.client == nil {
		return func(context.Context) error { return nil }, nil
	}
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.client, []string{key}, token).Err()
	}, nil
}
