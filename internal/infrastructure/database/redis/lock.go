// internal/infrastructure/database/redis/lock.go
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/your-org/stock-reservation/internal/pkg/lock"
)

const lockPrefix = "lock:"

// releaseScript deletes the key only if it still holds the caller's token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker implements lock.Locker with SET NX PX and a compare-and-delete script
type Locker struct {
	client *redis.Client
}

// NewLocker creates a Redis backed locker
func NewLocker(client *redis.Client) *Locker {
	return &Locker{client: client}
}

// Acquire implements lock.Locker
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*lock.Lease, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, lockPrefix+key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis set nx: %w", err)
	}
	if !ok {
		return nil, lock.ErrBusy
	}
	return &lock.Lease{
		Key:       key,
		Token:     token,
		ExpiresAt: time.Now().Add(ttl),
	}, nil
}

// Release implements lock.Locker
func (l *Locker) Release(ctx context.Context, lease *lock.Lease) (bool, error) {
	if lease == nil {
		return false, nil
	}
	deleted, err := releaseScript.Run(ctx, l.client, []string{lockPrefix + lease.Key}, lease.Token).Int()
	if err != nil {
		return false, fmt.Errorf("redis release script: %w", err)
	}
	return deleted == 1, nil
}
