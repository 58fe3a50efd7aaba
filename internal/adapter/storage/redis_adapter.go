package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	lockKeyPrefix        = "lock:order:"
	idempotencyKeyPrefix = "idem:"
	idempotencyKeyTTL    = 24 * time.Hour

	defaultLockTTL   = 10 * time.Second
	lockRetryBackoff = 20 * time.Millisecond
)

// Deletes the lock only if it still holds our token, so an expired holder
// never frees a lock taken over by someone else.
var releaseLockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// Pushes the expiry forward only while the lock still holds our token.
var extendLockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

type RedisAdapter struct {
	client  *redis.Client
	lockTTL time.Duration
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client, lockTTL: defaultLockTTL}
}

// WithLockTTL bounds how long a crashed holder can keep an order locked.
func (r *RedisAdapter) WithLockTTL(ttl time.Duration) *RedisAdapter {
	r.lockTTL = ttl
	return r
}

// Lock spins on SET NX PX until it owns the order or ctx ends. The TTL is
// renewed every third of its length until unlock, so a slow gateway call
// cannot outlive the lock; only a crashed holder lets it expire.
func (r *RedisAdapter) Lock(ctx context.Context, orderID string) (func(), error) {
	key := lockKeyPrefix + orderID
	token := uuid.New().String()

	for {
		ok, err := r.client.SetNX(ctx, key, token, r.lockTTL).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryBackoff):
		}
	}

	done := make(chan struct{})
	go r.keepLock(key, token, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			// Release even if the caller's context is already cancelled.
			releaseLockScript.Run(context.Background(), r.client, []string{key}, token)
		})
	}, nil
}

func (r *RedisAdapter) keepLock(key, token string, done <-chan struct{}) {
	ticker := time.NewTicker(max(r.lockTTL/3, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			n, err := extendLockScript.Run(context.Background(), r.client, []string{key}, token, r.lockTTL.Milliseconds()).Int()
			if err == nil && n == 0 {
				// Lost the lock; nothing left to renew.
				return
			}
		}
	}
}

func (r *RedisAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	return r.client.Del(ctx, idempotencyKeyPrefix+key).Err()
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, idempotencyKeyPrefix+key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

// Ping is used by the health check.
func (r *RedisAdapter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
