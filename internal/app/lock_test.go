package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLockStore keeps keys with their expiry and interprets the two lease scripts.
type fakeLockStore struct {
	mu     sync.Mutex
	values map[string]string
	ttls   map[string]time.Duration
	err    error
}

func newFakeLockStore() *fakeLockStore {
	return &fakeLockStore{values: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (f *fakeLockStore) SetNX(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	if _, ok := f.values[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.values[key] = value.(string)
	f.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (f *fakeLockStore) Eval(_ context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := keys[0]
	if f.values[key] != args[0].(string) {
		return redis.NewCmdResult(int64(0), nil)
	}
	switch {
	case strings.Contains(script, "PEXPIRE"):
		f.ttls[key] = time.Duration(args[1].(int64)) * time.Millisecond
	case strings.Contains(script, "DEL"):
		delete(f.values, key)
		delete(f.ttls, key)
	}
	return redis.NewCmdResult(int64(1), nil)
}

func (f *fakeLockStore) expire(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.values, key)
	delete(f.ttls, key)
}

func TestRedisLocker_ExclusiveUntilReleased(t *testing.T) {
	store := newFakeLockStore()
	locker := &RedisLocker{store: store}
	ctx := context.Background()

	first, ok, err := locker.TryLock(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Minute, store.ttls["sweep"])

	_, ok, err = locker.TryLock(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	first.Release(ctx)

	_, ok, err = locker.TryLock(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLocker_Extend(t *testing.T) {
	store := newFakeLockStore()
	locker := &RedisLocker{store: store}
	ctx := context.Background()

	lease, ok, err := locker.TryLock(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, lease.Extend(ctx, 3*time.Minute))
	assert.Equal(t, 3*time.Minute, store.ttls["sweep"])
}

func TestRedisLocker_ExpiredLeaseCannotTouchNewHolder(t *testing.T) {
	store := newFakeLockStore()
	locker := &RedisLocker{store: store}
	ctx := context.Background()

	stale, ok, err := locker.TryLock(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	store.expire("sweep")
	_, ok, err = locker.TryLock(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	assert.ErrorIs(t, stale.Extend(ctx, time.Minute), ErrLeaseLost)
	stale.Release(ctx)

	_, ok, err = locker.TryLock(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "a stale release must not free the current holder's key")
}

func TestRedisLocker_StoreError(t *testing.T) {
	store := newFakeLockStore()
	store.err = errors.New("connection refused")
	locker := &RedisLocker{store: store}

	_, ok, err := locker.TryLock(context.Background(), "sweep", time.Minute)
	assert.Error(t, err)
	assert.False(t, ok)
}
