package async_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stealthrocket/fiber"
	"github.com/stealthrocket/fiber/async"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFutureComplete(t *testing.T) {
	f := async.NewFuture[int]()
	require.False(t, f.Done())

	_, err := f.Result()
	require.ErrorIs(t, err, async.ErrPending)

	calls := 0
	f.OnDone(func() { calls++ })
	cancel := f.OnDone(func() { calls += 10 })
	cancel()
	require.Equal(t, 1, f.Callbacks())

	require.True(t, f.Complete(42, nil))
	require.False(t, f.Complete(7, nil))
	require.False(t, f.Cancel())

	v, err := f.Result()
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, calls)
	assert.False(t, f.Canceled())
	assert.Zero(t, f.Callbacks())

	f.OnDone(func() { calls++ })
	assert.Equal(t, 2, calls, "callback registered after completion runs immediately")
}

func TestFutureCancel(t *testing.T) {
	started := make(chan struct{})
	f := async.Go(context.Background(), func(ctx context.Context) (string, error) {
		close(started)
		<-ctx.Done()
		return "late", ctx.Err()
	})
	<-started

	require.True(t, f.Cancel())
	<-f.Chan()

	v, err := f.Result()
	require.ErrorIs(t, err, async.ErrCanceled)
	assert.Empty(t, v)
	assert.True(t, f.Canceled())
}

func TestGoPanic(t *testing.T) {
	f := async.Go(context.Background(), func(context.Context) (int, error) {
		panic("boom")
	})

	_, err := f.Wait(context.Background())
	require.ErrorIs(t, err, async.ErrPanic)
	assert.Contains(t, err.Error(), "boom")
}

func TestFutureWaitContext(t *testing.T) {
	f := async.NewFuture[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAwaitFromFiber(t *testing.T) {
	s := fiber.NewScheduler(fiber.WithLogger(slog.New(slog.DiscardHandler)))
	defer s.Close()

	release := make(chan struct{})
	future := async.Go(context.Background(), func(context.Context) (int, error) {
		<-release
		return 42, nil
	})

	var got int
	var gotErr error
	f := s.New(func() {
		got, gotErr = fiber.Await(future).Result()
	})
	require.True(t, f.IsWaiting())

	s.Tick()
	require.True(t, f.IsWaiting(), "fiber resumed before completion")

	close(release)
	<-future.Chan()
	require.True(t, f.IsWaiting(), "completion resumed the fiber outside of a tick")

	// The notification may reach the scheduler shortly after the future is
	// marked done.
	deadline := time.Now().Add(5 * time.Second)
	for !f.IsFinished() && time.Now().Before(deadline) {
		s.Tick()
		time.Sleep(time.Millisecond)
	}
	require.True(t, f.IsFinished())
	require.NoError(t, gotErr)
	assert.Equal(t, 42, got)
}

func TestAwaitCanceledFuture(t *testing.T) {
	s := fiber.NewScheduler(fiber.WithLogger(slog.New(slog.DiscardHandler)))
	defer s.Close()

	future := async.NewFuture[int]()
	var got *async.Future[int]
	f := s.New(func() { got = fiber.Await(future) })
	require.True(t, f.IsWaiting())

	require.True(t, future.Cancel())
	require.True(t, f.IsWaiting(), "cancellation resumed the fiber outside of a tick")

	s.Tick()
	require.True(t, f.IsFinished())
	assert.Same(t, future, got)
	assert.True(t, got.Canceled())
	_, err := got.Result()
	assert.ErrorIs(t, err, async.ErrCanceled)
	assert.Zero(t, future.Callbacks())
}

func TestCloseFiberAwaitingFuture(t *testing.T) {
	s := fiber.NewScheduler(fiber.WithLogger(slog.New(slog.DiscardHandler)))
	defer s.Close()

	future := async.NewFuture[struct{}]()
	f := s.New(func() { fiber.Await(future) })
	require.Equal(t, 1, future.Callbacks())

	require.NoError(t, f.Close())
	assert.Zero(t, future.Callbacks())
	assert.True(t, errors.Is(f.Err(), fiber.ErrClosed))

	future.Complete(struct{}{}, nil)
	s.Tick()
	assert.Zero(t, s.Len())
}
