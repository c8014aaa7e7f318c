// internal/infrastructure/database/redis/idempotency.go
package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/your-org/stock-reservation/internal/pkg/idempotency"
)

const idempotencyPrefix = "idempotency:"

// IdempotencyStore implements idempotency.Store with SET NX EX
type IdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewIdempotencyStore creates a store whose records live for ttl
func NewIdempotencyStore(client *redis.Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{client: client, ttl: ttl}
}

// Exists implements idempotency.Store
func (s *IdempotencyStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, idempotencyPrefix+key).Result()
	return n > 0, err
}

// Save implements idempotency.Store; only the first writer of a key succeeds
func (s *IdempotencyStore) Save(ctx context.Context, key, result string) (bool, error) {
	return s.client.SetNX(ctx, idempotencyPrefix+key, result, s.ttl).Result()
}

// Get implements idempotency.Store
func (s *IdempotencyStore) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, idempotencyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", idempotency.ErrNotFound
	}
	return value, err
}
