package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLocker is an in-process Locker with the same token-ownership and expiry
// contract as the Redis implementation. It only excludes callers sharing the value.
type MemoryLocker struct {
	mu     sync.Mutex
	leases map[string]Lease
	now    func() time.Time
}

// NewMemoryLocker creates an empty in-process locker
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		leases: make(map[string]Lease),
		now:    time.Now,
	}
}

// SetClock replaces the time source, letting tests expire leases deterministically
func (m *MemoryLocker) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Acquire implements Locker
func (m *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if existing, ok := m.leases[key]; ok && now.Before(existing.ExpiresAt) {
		return nil, ErrBusy
	}

	lease := Lease{
		Key:       key,
		Token:     uuid.NewString(),
		ExpiresAt: now.Add(ttl),
	}
	m.leases[key] = lease
	return &lease, nil
}

// Release implements Locker
func (m *MemoryLocker) Release(_ context.Context, lease *Lease) (bool, error) {
	if lease == nil {
		return false, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.leases[lease.Key]
	if !ok {
		return false, nil
	}
	if !m.now().Before(existing.ExpiresAt) {
		delete(m.leases, lease.Key)
		return false, nil
	}
	if existing.Token != lease.Token {
		return false, nil
	}

	delete(m.leases, lease.Key)
	return true, nil
}

// Held reports whether key currently has an unexpired lease
func (m *MemoryLocker) Held(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.leases[key]
	return ok && m.now().Before(existing.ExpiresAt)
}
