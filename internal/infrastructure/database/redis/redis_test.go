package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/stock-reservation/internal/pkg/idempotency"
	"github.com/your-org/stock-reservation/internal/pkg/lock"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestLockerAcquireRelease(t *testing.T) {
	ctx := context.Background()
	mr, client := newClient(t)
	locker := NewLocker(client)

	lease, err := locker.Acquire(ctx, "inventory:lock:p1", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, mr.Exists("lock:inventory:lock:p1"))
	assert.Equal(t, 30*time.Second, mr.TTL("lock:inventory:lock:p1"))

	_, err = locker.Acquire(ctx, "inventory:lock:p1", 30*time.Second)
	assert.ErrorIs(t, err, lock.ErrBusy)

	released, err := locker.Release(ctx, lease)
	require.NoError(t, err)
	assert.True(t, released)
	assert.False(t, mr.Exists("lock:inventory:lock:p1"))
}

func TestLockerForeignTokenCannotRelease(t *testing.T) {
	ctx := context.Background()
	_, client := newClient(t)
	locker := NewLocker(client)

	lease, err := locker.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	forged := *lease
	forged.Token = "not-mine"
	released, err := locker.Release(ctx, &forged)
	require.NoError(t, err)
	assert.False(t, released)

	_, err = locker.Acquire(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, lock.ErrBusy, "the real holder still owns the key")
}

func TestLockerExpiredLeaseDoesNotFreeNewOwner(t *testing.T) {
	ctx := context.Background()
	mr, client := newClient(t)
	locker := NewLocker(client)

	old, err := locker.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	current, err := locker.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	released, err := locker.Release(ctx, old)
	require.NoError(t, err)
	assert.False(t, released)
	assert.True(t, mr.Exists("lock:k"))

	released, err = locker.Release(ctx, current)
	require.NoError(t, err)
	assert.True(t, released)
}

func TestLockerConcurrentAcquireHasOneWinner(t *testing.T) {
	ctx := context.Background()
	_, client := newClient(t)
	locker := NewLocker(client)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := locker.Acquire(ctx, "hot", time.Minute); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestLockerWithGuard(t *testing.T) {
	ctx := context.Background()
	mr, client := newClient(t)
	guard := &lock.Guard{Locker: NewLocker(client), Options: lock.Options{TTL: time.Minute}}

	err := guard.Do(ctx, "scoped", func(context.Context) error {
		assert.True(t, mr.Exists("lock:scoped"))
		return nil
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists("lock:scoped"))
}

func TestLockerRedisDown(t *testing.T) {
	mr, client := newClient(t)
	mr.Close()

	_, err := NewLocker(client).Acquire(context.Background(), "k", time.Second)
	require.Error(t, err)
	assert.NotErrorIs(t, err, lock.ErrBusy)
}

func TestIdempotencyStore(t *testing.T) {
	ctx := context.Background()
	mr, client := newClient(t)
	store := NewIdempotencyStore(client, 24*time.Hour)

	exists, err := store.Exists(ctx, "payment:o1")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = store.Get(ctx, "payment:o1")
	assert.ErrorIs(t, err, idempotency.ErrNotFound)

	saved, err := store.Save(ctx, "payment:o1", "first")
	require.NoError(t, err)
	assert.True(t, saved)

	saved, err = store.Save(ctx, "payment:o1", "second")
	require.NoError(t, err)
	assert.False(t, saved, "first write wins")

	value, err := store.Get(ctx, "payment:o1")
	require.NoError(t, err)
	assert.Equal(t, "first", value)
	assert.Equal(t, 24*time.Hour, mr.TTL("idempotency:payment:o1"))

	mr.FastForward(25 * time.Hour)
	exists, err = store.Exists(ctx, "payment:o1")
	require.NoError(t, err)
	assert.False(t, exists)
}
