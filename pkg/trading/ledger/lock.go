package ledger

import (
	"context"
	"sync"
)

// UserLock serializes ledger mutations per user. Each user gets a
// one-slot semaphore that is dropped once nobody holds or waits on it.
type UserLock struct {
	mu    sync.Mutex
	locks map[string]*userSlot
}

type userSlot struct {
	ch   chan struct{}
	refs int
}

// NewUserLock creates a new per-user lock
func NewUserLock() *UserLock {
	return &UserLock{
		locks: make(map[string]*userSlot),
	}
}

// Lock blocks until userID's slot is free or ctx is done. The returned
// func releases the slot.
func (l *UserLock) Lock(ctx context.Context, userID string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.locks[userID]
	if !ok {
		slot = &userSlot{ch: make(chan struct{}, 1)}
		l.locks[userID] = slot
	}
	slot.refs++
	l.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-slot.ch
				l.drop(userID, slot)
			})
		}, nil
	case <-ctx.Done():
		l.drop(userID, slot)
		return nil, ctx.Err()
	}
}

func (l *UserLock) drop(userID string, slot *userSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	slot.refs--
	if slot.refs == 0 {
		delete(l.locks, userID)
	}
}

// Held returns the number of users with a held or awaited slot
func (l *UserLock) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
