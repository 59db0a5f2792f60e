package lock

import (
	"context"
	"fmt"
	"sync"
)

// MemoryLocker is an in-process Locker for the CLI and tests
type MemoryLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

var _ Locker = (*MemoryLocker)(nil)

// NewMemoryLocker creates an empty in-process locker
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{slots: make(map[string]chan struct{})}
}

func (l *MemoryLocker) slot(timelineID string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch, ok := l.slots[timelineID]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[timelineID] = ch
	}
	return ch
}

func (l *MemoryLocker) Lock(ctx context.Context, timelineID string) (func(), error) {
	ch := l.slot(timelineID)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %v", ErrLockNotAcquired, timelineID, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-ch })
	}, nil
}
