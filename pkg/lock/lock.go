// Package lock provides the per-instance mutual exclusion used by runs,
// resets and removals.
package lock

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrLocked is returned by TryAcquire when another holder owns the key.
	ErrLocked = errors.New("lock is held")
	// ErrLost is returned by Extend when the key expired or changed hands.
	ErrLost = errors.New("lock was lost")
)

// Locker hands out exclusive, non-blocking locks by key.
type Locker interface {
	// TryAcquire takes the lock for key or fails with ErrLocked.
	TryAcquire(ctx context.Context, key string) (Lease, error)
}

// Lease is a held lock. Release is idempotent.
type Lease interface {
	Release(ctx context.Context) error
	// Extend pushes the expiry of the lease one TTL into the future.
	Extend(ctx context.Context) error
	// TTL is the lifetime granted by each acquire or extend. Zero means the
	// lease never expires.
	TTL() time.Duration
}

// InstanceKey is the lock key guarding an application instance.
func InstanceKey(instanceID string) string {
	return "instance:" + instanceID
}
