package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGate_InvalidSize(t *testing.T) {
	_, err := NewGate(0)
	assert.ErrorIs(t, err, ErrInvalidConcurrency)
}

func TestGate_BoundsConcurrency(t *testing.T) {
	gate, err := NewGate(DefaultConcurrency)
	require.NoError(t, err)

	var current, peak atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := gate.Do(context.Background(), func(ctx context.Context) error {
				n := current.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				current.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int64(DefaultConcurrency))
	stats := gate.Stats()
	assert.Equal(t, int64(40), stats.Total)
	assert.Zero(t, stats.InFlight)
	assert.Zero(t, stats.Waiting)
}

func TestGate_FIFO(t *testing.T) {
	gate, err := NewGate(1)
	require.NoError(t, err)
	require.NoError(t, gate.Acquire(context.Background()))

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if !assert.NoError(t, gate.Acquire(context.Background())) {
				return
			}
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			gate.Release()
		}(i)
		// Wait for the goroutine to queue before starting the next one.
		require.Eventually(t, func() bool {
			return gate.Stats().Waiting == int64(i+1)
		}, time.Second, time.Millisecond)
		time.Sleep(5 * time.Millisecond)
	}

	gate.Release()
	wg.Wait()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestGate_CanceledWaiterLeavesQueue(t *testing.T) {
	gate, err := NewGate(1)
	require.NoError(t, err)
	require.NoError(t, gate.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err = gate.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, gate.Stats().Waiting)

	gate.Release()
	require.NoError(t, gate.Acquire(context.Background()), "slot should be free after cancellation")
	gate.Release()
}

func TestGate_DoPropagatesError(t *testing.T) {
	gate, err := NewGate(2)
	require.NoError(t, err)

	want := assert.AnError
	got := gate.Do(context.Background(), func(ctx context.Context) error { return want })
	assert.Equal(t, want, got)
	assert.Zero(t, gate.Stats().InFlight, "slot released after failure")
}
