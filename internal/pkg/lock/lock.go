// Package lock defines the lease-based mutual exclusion used to serialize
// mutations of shared rows across service instances.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrBusy is returned when an unexpired lease already exists for the key
var ErrBusy = errors.New("lock is held by another owner")

// Lease is a time-bounded grant for one key. Only the holder of Token may release it.
type Lease struct {
	Key       string
	Token     string
	ExpiresAt time.Time
}

// Locker is a best-effort distributed lock. Acquire never queues: a held key
// fails immediately with ErrBusy. Release is compare-and-delete on the token and
// reports whether the caller still owned the lease.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error)
	Release(ctx context.Context, lease *Lease) (bool, error)
}

// Event is reported to a Guard observer for every lock interaction
type Event string

const (
	EventAcquired Event = "acquired"
	EventBusy     Event = "busy"
	EventLost     Event = "lost"
	EventError    Event = "error"
)

// Options controls scoped acquisition
type Options struct {
	TTL           time.Duration // lease lifetime, the crash safety net
	Wait          time.Duration // how long to keep trying a busy key; zero fails fast
	RetryInterval time.Duration
}

const releaseTimeout = 5 * time.Second

// AcquireError reports that the work never ran because the lease was not obtained
type AcquireError struct {
	Key string
	Err error
}

func (e *AcquireError) Error() string {
	return fmt.Sprintf("acquire lock %s: %v", e.Key, e.Err)
}

func (e *AcquireError) Unwrap() error {
	return e.Err
}

// Guard runs work while holding a lease and releases it on every exit path
type Guard struct {
	Locker  Locker
	Options Options
	Logger  logrus.FieldLogger
	Observe func(key string, event Event)
}

// Do acquires key, runs fn, and releases the lease even when fn fails, panics,
// or ctx is cancelled. Acquisition failures are returned as *AcquireError.
func (g *Guard) Do(ctx context.Context, key string, fn func(ctx context.Context) error) (err error) {
	lease, err := g.acquire(ctx, key)
	if err != nil {
		if errors.Is(err, ErrBusy) {
			g.observe(key, EventBusy)
		} else {
			g.observe(key, EventError)
		}
		return err
	}
	g.observe(key, EventAcquired)

	defer func() {
		// the caller's context may already be cancelled; the lease must still go
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()

		released, relErr := g.Locker.Release(releaseCtx, lease)
		switch {
		case relErr != nil:
			g.observe(key, EventError)
			g.logger().WithError(relErr).WithField("lock_key", key).Error("Failed to release lock")
		case !released:
			g.observe(key, EventLost)
			g.logger().WithField("lock_key", key).Warn("Lock lease expired before release; work may have overlapped another holder")
		default:
			g.logger().WithField("lock_key", key).Debug("Lock released")
		}
	}()

	return fn(ctx)
}

func (g *Guard) acquire(ctx context.Context, key string) (*Lease, error) {
	var deadline time.Time
	if g.Options.Wait > 0 {
		deadline = time.Now().Add(g.Options.Wait)
	}

	for {
		lease, err := g.Locker.Acquire(ctx, key, g.Options.TTL)
		if err == nil {
			return lease, nil
		}
		if !errors.Is(err, ErrBusy) || deadline.IsZero() || time.Now().After(deadline) {
			return nil, &AcquireError{Key: key, Err: err}
		}

		timer := time.NewTimer(g.Options.RetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, &AcquireError{Key: key, Err: ctx.Err()}
		case <-timer.C:
		}
	}
}

func (g *Guard) observe(key string, event Event) {
	if g.Observe != nil {
		g.Observe(key, event)
	}
}

func (g *Guard) logger() logrus.FieldLogger {
	if g.Logger == nil {
		return logrus.StandardLogger()
	}
	return g.Logger
}
