package roleadmin

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Defaults for RedisLocker.
const (
	DefaultLockTTL       = 10 * time.Second
	DefaultLockRetry     = 25 * time.Millisecond
	DefaultLockKeyPrefix = "roleadmin:lock:"
)

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript resets the TTL only if the key still holds our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker is a Locker shared by every process using the same Redis.
// Each name maps to a key set with NX and a TTL, so a crashed holder cannot block
// a name for longer than the TTL. While the lock is held the TTL is renewed every
// third of its length, so a slow mutation keeps its names.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

// RedisLockerOption configures a RedisLocker.
type RedisLockerOption func(*RedisLocker)

// WithLockTTL sets how long a lock survives without being released.
func WithLockTTL(ttl time.Duration) RedisLockerOption {
	return func(l *RedisLocker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithLockRetry sets the polling interval while waiting for a held lock.
func WithLockRetry(d time.Duration) RedisLockerOption {
	return func(l *RedisLocker) {
		if d > 0 {
			l.retry = d
		}
	}
}

// WithLockKeyPrefix sets the key prefix.
func WithLockKeyPrefix(prefix string) RedisLockerOption {
	return func(l *RedisLocker) {
		l.prefix = prefix
	}
}

// NewRedisLocker creates a distributed per-name locker.
func NewRedisLocker(client redis.UniversalClient, opts ...RedisLockerOption) *RedisLocker {
	l := &RedisLocker{
		client: client,
		prefix: DefaultLockKeyPrefix,
		ttl:    DefaultLockTTL,
		retry:  DefaultLockRetry,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock acquires every name in sorted order, polling until ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, names ...string) (func(), error) {
	token := uuid.NewString()
	keys := make([]string, 0, len(names))

	for _, name := range lockOrder(names) {
		key := l.prefix + name
		if err := l.acquire(ctx, key, token); err != nil {
			l.release(keys, token)
			return nil, err
		}
		keys = append(keys, key)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(keys, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			l.release(keys, token)
		})
	}, nil
}

// keepAlive extends every held key until stop is closed. A key taken over by another
// holder after an expiry is left alone.
func (l *RedisLocker) keepAlive(keys []string, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := l.ttl / 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			for _, key := range keys {
				_ = extendScript.Run(ctx, l.client, []string{key}, token, l.ttl.Milliseconds()).Err()
			}
			cancel()
		}
	}
}

func (l *RedisLocker) acquire(ctx context.Context, key, token string) error {
	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// release runs on a fresh context so that a cancelled caller still frees its keys.
func (l *RedisLocker) release(keys []string, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), l.ttl)
	defer cancel()

	for i := len(keys) - 1; i >= 0; i-- {
		_ = releaseScript.Run(ctx, l.client, []string{keys[i]}, token).Err()
	}
}
