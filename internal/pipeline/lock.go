package pipeline

import (
	"context"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/engagement-transform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/pkg/redis"
)

// Locker serialises runs across processes. Acquire returns ErrLockHeld when
// another run holds the lock.
type Locker interface {
	Acquire(ctx context.Context) (release func(context.Context) error, err error)
}

// RedisLocker holds a SET NX PX lock for the duration of a run.
type RedisLocker struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisLocker creates a locker on key. ttl bounds how long a crashed run
// can block the next one.
func NewRedisLocker(client *redis.Client, key string, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, key: key, ttl: ttl}
}

// Acquire takes the lock or returns ErrLockHeld. The returned func releases it.
func (l *RedisLocker) Acquire(ctx context.Context) (func(context.Context) error, error) {
	lock, err := l.client.TryLock(ctx, l.key, l.ttl)
	if err != nil {
		return nil, err
	}
	if lock == nil {
		return nil, apperrors.ErrLockHeld
	}
	return lock.Release, nil
}
