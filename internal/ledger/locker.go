package ledger

import (
	"context"
	"fmt"
	"sync"

	"spendtracker/internal/core"
)

// Locker serializes ledger mutations per user. Entries are reference counted
// and dropped once no goroutine holds or waits for them.
type Locker struct {
	mu    sync.Mutex
	locks map[int64]*userLock
}

type userLock struct {
	sem  chan struct{}
	refs int
}

func NewLocker() *Locker {
	return &Locker{locks: make(map[int64]*userLock)}
}

// Lock blocks until userID's lock is held or ctx is done. The returned
// function releases the lock and is safe to call more than once.
func (l *Locker) Lock(ctx context.Context, userID int64) (func(), error) {
	l.mu.Lock()
	ul, ok := l.locks[userID]
	if !ok {
		ul = &userLock{sem: make(chan struct{}, 1)}
		l.locks[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	select {
	case ul.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(userID, ul)
		return nil, fmt.Errorf("%w: wait for ledger lock: %w", core.ErrUnavailable, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-ul.sem
			l.release(userID, ul)
		})
	}, nil
}

func (l *Locker) release(userID int64, ul *userLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ul.refs--
	if ul.refs == 0 {
		delete(l.locks, userID)
	}
}

// Len reports how many users currently have a lock entry.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
