package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisLockerExclusive(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := NewRedisLocker(client)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, ArchiveSweepLockKey, time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, ArchiveSweepLockKey, time.Minute)
	require.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, release(ctx))
	require.False(t, mr.Exists(ArchiveSweepLockKey))

	release, err = locker.Acquire(ctx, ArchiveSweepLockKey, time.Minute)
	require.NoError(t, err)
	require.NoError(t, release(ctx))
}

func TestRedisLockerExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := NewRedisLocker(client)
	ctx := context.Background()

	stale, err := locker.Acquire(ctx, ArchiveSweepLockKey, time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	release, err := locker.Acquire(ctx, ArchiveSweepLockKey, time.Minute)
	require.NoError(t, err)

	// the stale holder must not drop the new owner's lock
	require.NoError(t, stale(ctx))
	require.True(t, mr.Exists(ArchiveSweepLockKey))
	require.NoError(t, release(ctx))
}

func TestNilLockerIsNoop(t *testing.T) {
	var locker *RedisLocker
	release, err := locker.Acquire(context.Background(), "k", time.Second)
	require.NoError(t, err)
	require.NoError(t, release(context.Background()))
}
