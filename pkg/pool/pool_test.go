package pool

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInvalidSize(t *testing.T) {
	p, err := New(0)
	assert.Nil(t, p)
	assert.True(t, errors.Is(err, ErrInvalidSize))

	_, err = New(-3)
	assert.True(t, errors.Is(err, ErrInvalidSize))
}

func TestExecuteEveryJobOnce(t *testing.T) {
	for _, size := range []int{1, 4, 16} {
		p, err := New(size)
		require.NoError(t, err)

		const m = 2000
		counts := make([]int32, m)
		wg := sync.WaitGroup{}
		wg.Add(m)
		for i := 0; i < m; i++ {
			i := i
			require.NoError(t, p.Execute(func() {
				defer wg.Done()
				atomic.AddInt32(&counts[i], 1)
			}))
		}
		wg.Wait()
		p.Shutdown()

		for i, c := range counts {
			assert.EqualValuesf(t, 1, c, "job %d ran %d times with size %d", i, c, size)
		}
		assert.EqualValues(t, m, p.Completed())
	}
}

func TestConcurrencyBoundedBySize(t *testing.T) {
	const size = 3
	p, err := New(size)
	require.NoError(t, err)

	var active, peak int32
	wg := sync.WaitGroup{}
	for i := 0; i < 30; i++ {
		wg.Add(1)
		require.NoError(t, p.Execute(func() {
			defer wg.Done()
			n := atomic.AddInt32(&active, 1)
			for {
				old := atomic.LoadInt32(&peak)
				if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&active, -1)
		}))
	}
	wg.Wait()
	p.Shutdown()

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(size))
}

func TestExecuteAfterShutdown(t *testing.T) {
	p, err := New(2)
	require.NoError(t, err)
	p.Shutdown()

	ran := false
	err = p.Execute(func() { ran = true })
	assert.True(t, errors.Is(err, ErrPoolShutdown))
	assert.True(t, p.IsShutdown())
	assert.False(t, ran)

	// idempotent
	p.Shutdown()
}

func TestExecuteNilJob(t *testing.T) {
	p, err := New(1)
	require.NoError(t, err)
	defer p.Shutdown()

	assert.True(t, errors.Is(p.Execute(nil), ErrNilJob))
}

func TestShutdownWaitsForRunningAndDropsQueued(t *testing.T) {
	p, err := New(1)
	require.NoError(t, err)

	started := make(chan struct{})
	release := make(chan struct{})
	var finished, queuedRan int32

	require.NoError(t, p.Execute(func() {
		close(started)
		<-release
		atomic.StoreInt32(&finished, 1)
	}))
	<-started

	for i := 0; i < 5; i++ {
		require.NoError(t, p.Execute(func() {
			atomic.AddInt32(&queuedRan, 1)
		}))
	}
	assert.Equal(t, 5, p.Pending())
	assert.Equal(t, 1, p.Running())

	done := make(chan struct{})
	go func() {
		p.Shutdown()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("shutdown returned while a job was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-done

	assert.EqualValues(t, 1, atomic.LoadInt32(&finished))
	assert.EqualValues(t, 0, atomic.LoadInt32(&queuedRan))
	assert.Equal(t, 0, p.Pending())

	// nothing runs after teardown
	time.Sleep(10 * time.Millisecond)
	assert.EqualValues(t, 0, atomic.LoadInt32(&queuedRan))
}

func TestPanicDoesNotKillWorker(t *testing.T) {
	p, err := New(1)
	require.NoError(t, err)

	wg := sync.WaitGroup{}
	wg.Add(2)
	require.NoError(t, p.Execute(func() {
		defer wg.Done()
		panic("job panic")
	}))
	var ran int32
	require.NoError(t, p.Execute(func() {
		defer wg.Done()
		atomic.StoreInt32(&ran, 1)
	}))
	wg.Wait()
	p.Shutdown()

	assert.EqualValues(t, 1, ran)
	assert.EqualValues(t, 1, p.Panics())
	assert.EqualValues(t, 2, p.Completed())
}

func TestFIFOWithSingleWorker(t *testing.T) {
	p, err := New(1)
	require.NoError(t, err)

	var order []int
	mu := sync.Mutex{}
	wg := sync.WaitGroup{}
	for i := 0; i < 50; i++ {
		i := i
		wg.Add(1)
		require.NoError(t, p.Execute(func() {
			defer wg.Done()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}))
	}
	wg.Wait()
	p.Shutdown()

	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestDoFunc(t *testing.T) {
	type object struct {
		Age int
	}
	objects := []*object{{}, {}, {}, {}}
	err := DoFunc(2, func(o *object) {
		o.Age = 1
	}, objects...)
	require.NoError(t, err)
	for _, o := range objects {
		assert.Equal(t, 1, o.Age)
	}

	var sum int64
	require.NoError(t, DoFunc(10, func(v int) {
		atomic.AddInt64(&sum, int64(v))
	}, 1, 2, 3, 4, 5))
	assert.EqualValues(t, 15, sum)

	assert.NoError(t, DoFunc(3, func(string) {}))
	assert.Error(t, DoFunc[string](3, nil, "a"))
}
