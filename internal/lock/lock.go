package lock

import (
	"context"
	"errors"
)

// ErrLockNotAcquired is returned when the timeline lock is still held by
// another writer when the context ends
var ErrLockNotAcquired = errors.New("timeline lock not acquired")

// Locker serializes writers of one timeline. Lock blocks until the lock is
// held or ctx ends; the returned func releases it and is safe to call twice.
type Locker interface {
	Lock(ctx context.Context, timelineID string) (func(), error)
}
