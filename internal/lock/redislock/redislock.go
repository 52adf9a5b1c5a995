// Package redislock implements a lease lock on a single Redis key. A holder
// that calls TryAcquire again before the lease ends renews it.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "orderflow:lock:"

var acquireScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
if redis.call("SET", KEYS[1], ARGV[1], "NX", "PX", ARGV[2]) then
	return 1
end
return 0
`)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Option func(l *Locker)

func WithPrefix(prefix string) Option {
	return func(l *Locker) {
		l.prefix = prefix
	}
}

type Locker struct {
	client redis.Scripter
	prefix string
}

func New(client redis.Scripter, opts ...Option) *Locker {
	l := &Locker{
		client: client,
		prefix: defaultPrefix,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// TryAcquire takes the lock for holderID or renews it when holderID already
// owns it. It reports false when someone else holds the lease.
func (l *Locker) TryAcquire(ctx context.Context, name, holderID string, ttl time.Duration) (bool, error) {
	if ttl < time.Millisecond {
		return false, errors.New("redislock: ttl must be at least 1ms")
	}

	n, err := acquireScript.Run(ctx, l.client, []string{l.key(name)}, holderID, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("redislock: acquire %s: %w", name, err)
	}

	return n == 1, nil
}

// Release drops the lock if holderID still owns it.
func (l *Locker) Release(ctx context.Context, name, holderID string) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key(name)}, holderID).Err(); err != nil {
		return fmt.Errorf("redislock: release %s: %w", name, err)
	}

	return nil
}

func (l *Locker) key(name string) string {
	return l.prefix + name
}
