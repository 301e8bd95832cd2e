package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultLockTTL = 10 * time.Minute

// Lock keeps two cron workers from releasing the same stale operation or
// exporting the same usage window twice.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Refresher is implemented by locks whose lease can be extended between
// jobs. Refresh reports false once another worker owns the lock.
type Refresher interface {
	Refresh(ctx context.Context) (bool, error)
}

type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
}

// RedisLock is a lease held in a single redis key. The value is a random
// owner token so a worker whose lease expired cannot release its successor's.
type RedisLock struct {
	client redisStore
	key    string
	ttl    time.Duration
	owner  string
}

func NewRedisLock(client redisStore, key string, ttl time.Duration) (*RedisLock, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{client: client, key: key, ttl: ttl}, nil
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	owner := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, owner, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if ok {
		l.owner = owner
	}
	return ok, nil
}

// Refresh pushes the lease out by another TTL while this worker still owns it.
func (l *RedisLock) Refresh(ctx context.Context) (bool, error) {
	held, err := l.held(ctx)
	if err != nil || !held {
		return false, err
	}
	ok, err := l.client.Expire(ctx, l.key, l.ttl)
	if err != nil {
		return false, fmt.Errorf("extend %s: %w", l.key, err)
	}
	if !ok {
		l.owner = ""
	}
	return ok, nil
}

func (l *RedisLock) Release(ctx context.Context) error {
	held, err := l.held(ctx)
	if err != nil || !held {
		return err
	}
	if err := l.client.Del(ctx, l.key); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	l.owner = ""
	return nil
}

func (l *RedisLock) held(ctx context.Context) (bool, error) {
	if l.owner == "" {
		return false, nil
	}
	value, err := l.client.Get(ctx, l.key)
	if errors.Is(err, redis.Nil) {
		l.owner = ""
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read owner of %s: %w", l.key, err)
	}
	if value != l.owner {
		l.owner = ""
		return false, nil
	}
	return true, nil
}
