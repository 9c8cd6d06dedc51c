// Package lock provides a best-effort mutual exclusion used to keep periodic
// maintenance to one replica per tick.
package lock

import (
	"context"
	"fmt"
	"time"

	"asset-pipeline/internal/config"

	goredis "github.com/redis/go-redis/v9"
)

const (
	keyPrefix   = "asset-pipeline:lock:"
	dialTimeout = 5 * time.Second
	pingTimeout = 5 * time.Second
)

type Locker interface {
	// Acquire reports whether this caller now holds key until ttl elapses.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// RedisLock holds a key with SET NX PX. The lock is never released early;
// it simply expires, which is enough for tick-scoped work.
type RedisLock struct {
	rdb   *goredis.Client
	owner string
}

func NewRedisLock(rdb *goredis.Client, owner string) *RedisLock {
	return &RedisLock{rdb: rdb, owner: owner}
}

func (l *RedisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, keyPrefix+key, l.owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	return ok, nil
}

// Noop always grants the lock. Used when no Redis is configured, which is
// correct for single-replica deployments.
type Noop struct{}

func (Noop) Acquire(context.Context, string, time.Duration) (bool, error) {
	return true, nil
}

// Connect returns a Redis-backed locker, or Noop when no address is set.
// The returned close func is always safe to call.
func Connect(cfg config.RedisConfig, owner string) (Locker, func() error, error) {
	if cfg.Addr == "" {
		return Noop{}, func() error { return nil }, nil
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: dialTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}

	return NewRedisLock(rdb, owner), rdb.Close, nil
}
