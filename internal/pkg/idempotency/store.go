// Package idempotency collapses redelivered events into a single side effect.
// Keys are business correlation ids (order ids), not transport message ids.
package idempotency

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned by Get when no record exists for the key
var ErrNotFound = errors.New("idempotency record not found")

// Store is a key to result cache with expiration. Save is first-writer-wins.
type Store interface {
	Exists(ctx context.Context, key string) (bool, error)
	Save(ctx context.Context, key, result string) (bool, error)
	Get(ctx context.Context, key string) (string, error)
}

type record struct {
	result    string
	expiresAt time.Time
}

// MemoryStore is an in-process Store for tests and single-instance runs
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]record
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore creates an in-process store whose entries live for ttl
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		records: make(map[string]record),
		ttl:     ttl,
		now:     time.Now,
	}
}

// SetClock replaces the time source
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Exists implements Store
func (s *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Save implements Store
func (s *MemoryStore) Save(ctx context.Context, key, result string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.live(key); ok {
		return false, nil
	}
	s.records[key] = record{result: result, expiresAt: s.now().Add(s.ttl)}
	return true, nil
}

// Get implements Store
func (s *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.live(key)
	if !ok {
		return "", ErrNotFound
	}
	return rec.result, nil
}

// live returns the unexpired record for key, evicting it when stale. Caller holds mu.
func (s *MemoryStore) live(key string) (record, bool) {
	rec, ok := s.records[key]
	if !ok {
		return record{}, false
	}
	if !s.now().Before(rec.expiresAt) {
		delete(s.records, key)
		return record{}, false
	}
	return rec, true
}
