package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLeaseLost is returned by Lease.Extend once another holder owns the key.
var ErrLeaseLost = errors.New("lease lost")

// Lease is a held lock. It expires on its own after its ttl unless extended.
type Lease interface {
	Extend(ctx context.Context, ttl time.Duration) error
	Release(ctx context.Context)
}

// Locker hands out short leases so that only one replica runs a job at a time.
type Locker interface {
	// TryLock returns ok=false when someone else holds key.
	TryLock(ctx context.Context, key string, ttl time.Duration) (lease Lease, ok bool, err error)
}

// LocalLocker always grants the lease. It is used when there is no Redis.
type LocalLocker struct{}

func (LocalLocker) TryLock(context.Context, string, time.Duration) (Lease, bool, error) {
	return localLease{}, true, nil
}

type localLease struct{}

func (localLease) Extend(context.Context, time.Duration) error { return nil }
func (localLease) Release(context.Context)                     {}

// The scripts touch the key only while it still holds our token.
const (
	releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`
	extendScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`
)

// lockStore is the part of the Redis client the locker needs.
type lockStore interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// RedisLocker takes leases with SET NX PX.
type RedisLocker struct {
	store lockStore
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{store: client}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (Lease, bool, error) {
	token := uuid.NewString()

	ok, err := l.store.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	return &redisLease{store: l.store, key: key, token: token}, true, nil
}

type redisLease struct {
	store lockStore
	key   string
	token string
}

func (l *redisLease) Extend(ctx context.Context, ttl time.Duration) error {
	n, err := l.store.Eval(ctx, extendScript, []string{l.key}, l.token, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("extend lock %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrLeaseLost
	}
	return nil
}

func (l *redisLease) Release(ctx context.Context) {
	_ = l.store.Eval(ctx, releaseScript, []string{l.key}, l.token).Err()
}
