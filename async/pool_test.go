package async_test

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stealthrocket/fiber/async"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPool(t *testing.T, workers int) *async.Pool {
	t.Helper()
	p, err := async.NewPool(context.Background(), workers, async.WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)
	return p
}

func TestPoolLimit(t *testing.T) {
	const workers = 3
	p := newPool(t, workers)

	var running, peak atomic.Int32
	gate := make(chan struct{})
	futures := make([]*async.Future[int], 10)
	started := make(chan struct{}, len(futures))

	for i := range futures {
		futures[i] = async.Submit(p, func(context.Context) (int, error) {
			n := running.Add(1)
			defer running.Add(-1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			started <- struct{}{}
			<-gate
			return i * i, nil
		})
	}

	for range workers {
		<-started
	}
	close(gate)
	require.NoError(t, p.Close())

	assert.LessOrEqual(t, peak.Load(), int32(workers))
	for i, f := range futures {
		v, err := f.Result()
		require.NoError(t, err)
		assert.Equal(t, i*i, v)
	}
}

func TestPoolClosed(t *testing.T) {
	p := newPool(t, 1)
	require.NoError(t, p.Close())

	f := async.Submit(p, func(context.Context) (int, error) { return 1, nil })
	require.True(t, f.Done())
	_, err := f.Result()
	require.ErrorIs(t, err, async.ErrClosed)
}

func TestPoolCancelQueuedTask(t *testing.T) {
	p := newPool(t, 1)
	gate := make(chan struct{})
	started := make(chan struct{})

	first := async.Submit(p, func(context.Context) (int, error) {
		close(started)
		<-gate
		return 1, nil
	})
	<-started
	second := async.Submit(p, func(context.Context) (int, error) {
		return 2, nil
	})

	second.Cancel()
	close(gate)
	require.NoError(t, p.Close())

	v, err := first.Result()
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	_, err = second.Result()
	require.ErrorIs(t, err, async.ErrCanceled)
}

func TestPoolPanic(t *testing.T) {
	p := newPool(t, 2)

	f := async.Submit(p, func(context.Context) (int, error) { panic("boom") })
	ok := async.Submit(p, func(context.Context) (int, error) { return 1, nil })

	err := p.Close()
	require.ErrorIs(t, err, async.ErrPanic)

	_, err = f.Result()
	require.ErrorIs(t, err, async.ErrPanic)
	v, err := ok.Result()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestPoolShutdown(t *testing.T) {
	p := newPool(t, 1)
	started := make(chan struct{})

	f := async.Submit(p, func(ctx context.Context) (int, error) {
		close(started)
		<-ctx.Done()
		return 0, context.Cause(ctx)
	})
	<-started

	require.NoError(t, p.Shutdown())
	_, err := f.Result()
	require.ErrorIs(t, err, async.ErrClosed)
}

func TestNewPoolInvalidWorkers(t *testing.T) {
	_, err := async.NewPool(context.Background(), 0)
	require.ErrorIs(t, err, async.ErrInvalidWorkers)
}
