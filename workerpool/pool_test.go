package workerpool

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFireAsyncNeverBlocksAndBackpressures(t *testing.T) {
	pool := New(1, 2, nil)

	block := make(chan struct{})
	started := make(chan struct{}, 1)

	// First task occupies the single worker until we let it go.
	require.True(t, pool.FireAsync(func() {
		started <- struct{}{}
		<-block
	}))

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("first task never started")
	}

	// Queue has capacity 2; these two should queue behind the running task.
	require.True(t, pool.FireAsync(func() {}))
	require.True(t, pool.FireAsync(func() {}))

	// Queue is now full and the worker is still busy: the fourth submission
	// must return false immediately.
	require.False(t, pool.FireAsync(func() {}))

	close(block)
}

func TestFireAsyncRunsQueuedTasks(t *testing.T) {
	pool := New(2, 4, nil)

	var completed int64
	for i := 0; i < 6; i++ {
		pool.FireAsync(func() {
			atomic.AddInt64(&completed, 1)
		})
	}

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&completed) >= 2
	}, 3*time.Second, 10*time.Millisecond)
}

func TestFireAsyncRecoversPanickingTasks(t *testing.T) {
	pool := New(1, 1, nil)

	var ran int64
	require.True(t, pool.FireAsync(func() {
		panic("boom")
	}))
	require.True(t, pool.FireAsync(func() {
		atomic.AddInt64(&ran, 1)
	}))

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&ran) == 1
	}, time.Second, 10*time.Millisecond)
}
