package workerspool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_WaitToStart(t *testing.T) {
	pool := New()
	pool.SetMaxParallelism(2)

	var count atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		pool.WaitToStart(func() {
			defer wg.Done()
			count.Add(1)
		})
	}
	wg.Wait()
	assert.EqualValues(t, 4, count.Load())
}

func TestPool_WaitToStart_Disabled(t *testing.T) {
	pool := New()
	pool.SetMaxParallelism(0)
	assert.False(t, pool.IsEnabled())

	var count atomic.Int32
	pool.WaitToStart(func() { count.Add(1) })
	assert.EqualValues(t, 1, count.Load(), "disabled pool must run the task inline")
}

func TestPool_WaitToStart_Unlimited(t *testing.T) {
	pool := New()
	pool.SetMaxParallelism(-1)
	assert.True(t, pool.IsUnlimited())

	var wg sync.WaitGroup
	var count atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		pool.WaitToStart(func() {
			defer wg.Done()
			count.Add(1)
		})
	}
	wg.Wait()
	assert.EqualValues(t, 8, count.Load())
}

func TestPool_StartIfAvailable(t *testing.T) {
	pool := New()
	pool.SetMaxParallelism(1)

	release := make(chan struct{})
	started := pool.StartIfAvailable(func() { <-release })
	require.True(t, started)

	// The cap is goroutineToParallelismRatio*1 == 2 running tasks: a second
	// one still fits, after which the pool is saturated and a third does not.
	secondStarted := pool.StartIfAvailable(func() { <-release })
	require.True(t, secondStarted)
	thirdStarted := pool.StartIfAvailable(func() {})
	assert.False(t, thirdStarted)

	close(release)
}

func TestPool_EnsureCapacity(t *testing.T) {
	pool := New()
	pool.SetMaxParallelism(1)

	pool.EnsureCapacity(5)
	assert.GreaterOrEqual(t, pool.MaxParallelism(), 3)

	// Growing to a smaller requirement must never shrink the pool.
	before := pool.MaxParallelism()
	pool.EnsureCapacity(1)
	assert.Equal(t, before, pool.MaxParallelism())
}

func TestPool_EnsureCapacity_UnlimitedOrDisabled(t *testing.T) {
	pool := New()
	pool.SetMaxParallelism(-1)
	pool.EnsureCapacity(100)
	assert.Equal(t, -1, pool.MaxParallelism())

	pool.SetMaxParallelism(0)
	pool.EnsureCapacity(100)
	assert.Equal(t, 0, pool.MaxParallelism())
}

func TestPool_ManyLongRunningTasks(t *testing.T) {
	// Regression test for the inter-op usage pattern (spec.md §4.4): a
	// handful of long-lived tasks dispatched one at a time from a single
	// goroutine must not deadlock the dispatcher.
	pool := New()
	pool.SetMaxParallelism(1)
	const numStreams = 6
	pool.EnsureCapacity(numStreams)

	var wg sync.WaitGroup
	for i := 0; i < numStreams; i++ {
		wg.Add(1)
		pool.WaitToStart(func() {
			defer wg.Done()
			time.Sleep(time.Millisecond)
		})
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for long-running tasks to complete")
	}
}
