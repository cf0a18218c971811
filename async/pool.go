package async

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Pool runs tasks on a bounded number of goroutines.
//
// Submitting never blocks: tasks beyond the worker limit wait for a slot on
// their own goroutine, so a pool can be fed from the goroutine running a fiber
// scheduler.
type Pool struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	sem    *semaphore.Weighted
	group  errgroup.Group
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithLogger sets the logger reporting task panics. The default is
// slog.Default().
func WithLogger(logger *slog.Logger) PoolOption {
	return func(p *Pool) { p.logger = logger }
}

// NewPool creates a pool running at most workers tasks at a time. Canceling
// ctx cancels the tasks of the pool.
func NewPool(ctx context.Context, workers int, opts ...PoolOption) (*Pool, error) {
	if workers <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWorkers, workers)
	}
	ctx, cancel := context.WithCancelCause(ctx)
	p := &Pool{
		ctx:    ctx,
		cancel: cancel,
		sem:    semaphore.NewWeighted(int64(workers)),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Submit schedules fn on p and returns the future of its result.
//
// Canceling the future cancels the context passed to fn, or drops the task if
// it did not start yet. Submitting to a closed pool returns a future failed
// with ErrClosed.
func Submit[T any](p *Pool, fn func(context.Context) (T, error)) *Future[T] {
	f := NewFuture[T]()
	ctx, stop := context.WithCancel(p.ctx)
	f.stop = stop

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		stop()
		var zero T
		f.Complete(zero, ErrClosed)
		return f
	}

	p.group.Go(func() error {
		defer stop()
		if err := p.sem.Acquire(ctx, 1); err != nil {
			var zero T
			f.Complete(zero, context.Cause(ctx))
			return nil
		}
		defer p.sem.Release(1)

		v, err := run(ctx, fn)
		f.Complete(v, err)
		if errors.Is(err, ErrPanic) {
			p.logger.Error("async: task panicked", "err", err)
			return err
		}
		return nil
	})
	return f
}

// Close stops accepting tasks and waits for the submitted ones to finish. It
// returns the error of the first task which panicked.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	err := p.group.Wait()
	p.cancel(ErrClosed)
	return err
}

// Shutdown is like Close but cancels the context of the running tasks first.
func (p *Pool) Shutdown() error {
	p.cancel(ErrClosed)
	return p.Close()
}
