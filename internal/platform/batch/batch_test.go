package batch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEachIsolatesFailures(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6}
	var seen atomic.Int64
	var mu sync.Mutex
	failed := []int{}

	failures, err := Each(context.Background(), 3, items, func(_ context.Context, n int) error {
		seen.Add(1)
		if n%2 == 0 {
			return errors.New("even")
		}
		return nil
	}, func(n int, _ error) {
		mu.Lock()
		failed = append(failed, n)
		mu.Unlock()
	})

	require.NoError(t, err)
	assert.Equal(t, 3, failures)
	assert.Equal(t, int64(6), seen.Load())
	assert.ElementsMatch(t, []int{2, 4, 6}, failed)
}

func TestEachRespectsLimit(t *testing.T) {
	var running, peak atomic.Int64
	items := make([]int, 20)

	_, err := Each(context.Background(), 2, items, func(context.Context, int) error {
		cur := running.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		running.Add(-1)
		return nil
	}, nil)

	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int64(2))
}

func TestEachStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int64
	_, err := Each(ctx, 1, []int{1, 2, 3}, func(context.Context, int) error {
		calls.Add(1)
		return nil
	}, nil)

	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls.Load())
}
