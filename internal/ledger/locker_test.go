package ledger

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendtracker/internal/core"
)

func TestLocker_SerializesSameUser(t *testing.T) {
	locker := NewLocker()
	var (
		inside  int32
		maxSeen int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), 42)
			if err != nil {
				t.Error(err)
				return
			}
			defer unlock()
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxSeen)
				if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxSeen)
	assert.Zero(t, locker.Len(), "entries are released when idle")
}

func TestLocker_DifferentUsersDoNotBlock(t *testing.T) {
	locker := NewLocker()
	unlockA, err := locker.Lock(context.Background(), 1)
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := locker.Lock(ctx, 2)
	require.NoError(t, err)
	unlockB()
}

func TestLocker_HonoursContext(t *testing.T) {
	locker := NewLocker()
	unlock, err := locker.Lock(context.Background(), 7)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, 7)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, core.IsRetryable(err))

	unlock()
	unlock()
	assert.Zero(t, locker.Len())
}
