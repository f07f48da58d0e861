package roleadmin

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockOrder(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, lockOrder([]string{"b", "a", "b"}))
	assert.Empty(t, lockOrder(nil))
}

func TestKeyedLockerSerializesName(t *testing.T) {
	l := NewKeyedLocker()
	ctx := context.Background()

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "A")
			if !assert.NoError(t, err) {
				return
			}
			n := inside.Add(1)
			for {
				cur := maxInside.Load()
				if n <= cur || maxInside.CompareAndSwap(cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
	assert.Zero(t, l.Len())
}

func TestKeyedLockerIndependentNames(t *testing.T) {
	l := NewKeyedLocker()
	ctx := context.Background()

	unlockA, err := l.Lock(ctx, "A")
	require.NoError(t, err)
	defer unlockA()

	timeout, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	unlockB, err := l.Lock(timeout, "B")
	require.NoError(t, err)
	unlockB()

	assert.Equal(t, 1, l.Len())
}

func TestKeyedLockerContextCancel(t *testing.T) {
	l := NewKeyedLocker()
	unlock, err := l.Lock(context.Background(), "A")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "A")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock() // idempotent
	assert.Zero(t, l.Len())
}

func TestKeyedLockerMultiNameReleasesPartial(t *testing.T) {
	l := NewKeyedLocker()
	unlockB, err := l.Lock(context.Background(), "B")
	require.NoError(t, err)

	// A is taken first, then waiting on B times out and A must be released
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "B", "A")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	unlockA, err := l.Lock(context.Background(), "A")
	require.NoError(t, err)
	unlockA()
	unlockB()
	assert.Zero(t, l.Len())
}

func TestKeyedLockerOppositeOrderNoDeadlock(t *testing.T) {
	l := NewKeyedLocker()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := range 20 {
		names := []string{"A", "B"}
		if i%2 == 1 {
			names = []string{"B", "A"}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, names...)
			if assert.NoError(t, err) {
				unlock()
			}
		}()
	}
	wg.Wait()
	assert.Zero(t, l.Len())
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLockerAcquireRelease(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewRedisLocker(client, WithLockTTL(time.Minute), WithLockKeyPrefix("test:"))

	unlock, err := l.Lock(context.Background(), "Field Tech", "Technician")
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:Field Tech"))
	assert.True(t, mr.Exists("test:Technician"))
	assert.Equal(t, time.Minute, mr.TTL("test:Field Tech"))

	unlock()
	assert.False(t, mr.Exists("test:Field Tech"))
	assert.False(t, mr.Exists("test:Technician"))
}

func TestRedisLockerContention(t *testing.T) {
	_, client := newTestRedis(t)
	l := NewRedisLocker(client, WithLockRetry(5*time.Millisecond))

	unlock, err := l.Lock(context.Background(), "A")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "A")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	acquired := make(chan struct{})
	go func() {
		u, err := l.Lock(context.Background(), "A")
		if assert.NoError(t, err) {
			u()
		}
		close(acquired)
	}()
	time.Sleep(20 * time.Millisecond)
	unlock()

	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("waiter did not acquire released lock")
	}
}

func TestRedisLockerPartialFailureReleases(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewRedisLocker(client, WithLockRetry(5*time.Millisecond))

	require.NoError(t, mr.Set(DefaultLockKeyPrefix+"B", "someone-else"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := l.Lock(ctx, "A", "B")
	require.Error(t, err)

	assert.False(t, mr.Exists(DefaultLockKeyPrefix+"A"))
	got, err := mr.Get(DefaultLockKeyPrefix + "B")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestRedisLockerExpiredLockNotStolenBack(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewRedisLocker(client, WithLockTTL(time.Second))

	unlock, err := l.Lock(context.Background(), "A")
	require.NoError(t, err)

	// the holder stalls past the TTL and another process takes the name
	mr.FastForward(2 * time.Second)
	require.False(t, mr.Exists(DefaultLockKeyPrefix+"A"))
	other, err := l.Lock(context.Background(), "A")
	require.NoError(t, err)

	// the stale release must not free the new holder's key
	unlock()
	assert.True(t, mr.Exists(DefaultLockKeyPrefix+"A"))

	other()
	assert.False(t, mr.Exists(DefaultLockKeyPrefix+"A"))
}

func TestRedisLockerRenewsWhileHeld(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewRedisLocker(client, WithLockTTL(300*time.Millisecond))
	key := DefaultLockKeyPrefix + "A"

	unlock, err := l.Lock(context.Background(), "A")
	require.NoError(t, err)

	// most of the TTL is gone, but the holder is still working
	mr.FastForward(250 * time.Millisecond)
	require.Eventually(t, func() bool {
		return mr.TTL(key) > 100*time.Millisecond
	}, 2*time.Second, 10*time.Millisecond)

	mr.FastForward(200 * time.Millisecond)
	assert.True(t, mr.Exists(key))

	unlock()
	assert.False(t, mr.Exists(key))
}

func TestRedisLockerRenewalSkipsTakenKey(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewRedisLocker(client, WithLockTTL(90*time.Millisecond))
	key := DefaultLockKeyPrefix + "A"

	unlock, err := l.Lock(context.Background(), "A")
	require.NoError(t, err)
	defer unlock()

	// expired and taken by someone else without a TTL
	mr.FastForward(time.Second)
	require.NoError(t, mr.Set(key, "someone-else"))

	time.Sleep(100 * time.Millisecond)
	got, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
	assert.Zero(t, mr.TTL(key))
}

func TestServiceWithRedisLocker(t *testing.T) {
	_, client := newTestRedis(t)
	svc, _ := newTestService(t, WithLocker(NewRedisLocker(client, WithLockRetry(time.Millisecond))))
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.SaveRole(ctx, "Field Tech", fieldTechConfig(), testActor)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, auditCount(t, svc, "Field Tech"))
}

func TestConnectRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := ConnectRedis(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	assert.True(t, mr.Exists("k"))

	_, err = ConnectRedis(context.Background(), "not a url")
	assert.Error(t, err)

	addr := mr.Addr()
	mr.Close()
	_, err = ConnectRedis(context.Background(), "redis://"+addr)
	assert.Error(t, err)
}
