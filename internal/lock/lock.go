// Package lock guards a catalog source against concurrent runs.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrHeld is returned when another run holds the lock.
var ErrHeld = errors.New("lock is held by another run")

// Lease is a held lock.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker acquires named leases that expire after ttl.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// Noop grants every lease. It is used when no shared lock backend is configured.
type Noop struct{}

// Acquire implements Locker.
func (Noop) Acquire(context.Context, string, time.Duration) (Lease, error) {
	return noopLease{}, nil
}

type noopLease struct{}

func (noopLease) Release(context.Context) error { return nil }
