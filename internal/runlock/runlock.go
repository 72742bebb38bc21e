// Package runlock keeps two pipeline runs from overlapping across hosts.
package runlock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrHeld is returned when another process owns the lock.
var ErrHeld = eris.New("runlock: lock held by another run")

// Locker is a mutual-exclusion lease.
type Locker interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
	Extend(ctx context.Context) error
}

var (
	releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

	extendScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0`)
)

// RedisLock is a SET NX lease with an owner token, released and extended
// only by its owner.
type RedisLock struct {
	client redis.UniversalClient
	key    string
	token  string
	ttl    time.Duration
}

// NewRedisLock returns a lock on "lock:<name>".
func NewRedisLock(client redis.UniversalClient, name string, ttl time.Duration) *RedisLock {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return &RedisLock{
		client: client,
		key:    "lock:" + name,
		token:  hex.EncodeToString(b),
		ttl:    ttl,
	}
}

// Acquire reports whether the lease was taken.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, eris.Wrapf(err, "runlock: acquire %s", l.key)
	}
	return ok, nil
}

// Release deletes the key if this lock still owns it.
func (l *RedisLock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil {
		return eris.Wrapf(err, "runlock: release %s", l.key)
	}
	return nil
}

// Extend resets the TTL. It fails once the lease was lost.
func (l *RedisLock) Extend(ctx context.Context) error {
	n, err := extendScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return eris.Wrapf(err, "runlock: extend %s", l.key)
	}
	if n == 0 {
		return eris.Errorf("runlock: lease on %s lost", l.key)
	}
	return nil
}

// Noop always succeeds. It is used when no Redis URL is configured.
type Noop struct{}

func (Noop) Acquire(context.Context) (bool, error) { return true, nil }
func (Noop) Release(context.Context) error         { return nil }
func (Noop) Extend(context.Context) error          { return nil }

// New returns a Redis lock for redisURL, or Noop when it is empty.
// The returned close func releases the Redis client.
func New(redisURL, name string, ttl time.Duration) (Locker, func() error, error) {
	if redisURL == "" {
		return Noop{}, func() error { return nil }, nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, eris.Wrap(err, "runlock: parse redis url")
	}
	client := redis.NewClient(opts)
	return NewRedisLock(client, name, ttl), client.Close, nil
}

// Hold runs fn while owning l, extending the lease every interval.
// It returns ErrHeld without calling fn when the lease is taken.
func Hold(ctx context.Context, l Locker, interval time.Duration, fn func(ctx context.Context) error) error {
	ok, err := l.Acquire(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrHeld
	}
	defer func() {
		// Release even when ctx was cancelled.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := l.Release(rctx); err != nil {
			zap.L().Warn("run lock release failed", zap.Error(err))
		}
	}()

	if interval <= 0 {
		return fn(ctx)
	}

	hctx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-hctx.Done():
				return
			case <-t.C:
				if err := l.Extend(hctx); err != nil && hctx.Err() == nil {
					zap.L().Error("run lock extend failed", zap.Error(err))
				}
			}
		}
	}()
	return fn(ctx)
}
