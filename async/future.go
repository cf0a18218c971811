// Package async runs work on goroutines and exposes its results as futures
// that fibers can await.
//
// Futures are the only values shared between the goroutine owning a fiber
// scheduler and the worker goroutines: workers complete them, and the
// scheduler learns about completions through OnDone callbacks.
//
//	f := async.Go(ctx, func(ctx context.Context) ([]byte, error) {
//		return fetch(ctx, url)
//	})
//	body, err := fiber.Await(f).Result()
package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"slices"
	"sync"
)

// Future is the result of an asynchronous computation. A future is done once
// it was completed or canceled; its result never changes afterwards.
//
// The methods of Future are safe for concurrent use.
type Future[T any] struct {
	mu        sync.Mutex
	done      chan struct{}
	value     T
	err       error
	canceled  bool
	stop      context.CancelFunc
	callbacks []*callback
}

type callback struct{ fn func() }

// NewFuture returns a future which is not done.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Go runs fn on a new goroutine and returns the future of its result.
//
// The context passed to fn is canceled when the future is canceled. A panic in
// fn completes the future with an error wrapping ErrPanic.
func Go[T any](ctx context.Context, fn func(context.Context) (T, error)) *Future[T] {
	ctx, stop := context.WithCancel(ctx)
	f := NewFuture[T]()
	f.stop = stop
	go func() {
		defer stop()
		v, err := run(ctx, fn)
		f.Complete(v, err)
	}()
	return f
}

func run[T any](ctx context.Context, fn func(context.Context) (T, error)) (v T, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v\n%s", ErrPanic, p, debug.Stack())
		}
	}()
	return fn(ctx)
}

// Complete sets the result of the future. It reports whether the call
// completed the future, which is false if it was already done.
func (f *Future[T]) Complete(v T, err error) bool {
	return f.resolve(v, err, false)
}

// Cancel marks the future as done with ErrCanceled, and cancels the context of
// the computation started by Go. It reports whether the call canceled the
// future, which is false if it was already done.
func (f *Future[T]) Cancel() bool {
	var zero T
	return f.resolve(zero, ErrCanceled, true)
}

func (f *Future[T]) resolve(v T, err error, canceled bool) bool {
	f.mu.Lock()
	select {
	case <-f.done:
		f.mu.Unlock()
		return false
	default:
	}
	f.value, f.err, f.canceled = v, err, canceled
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	stop := f.stop
	f.mu.Unlock()

	if canceled && stop != nil {
		stop()
	}
	for _, cb := range callbacks {
		cb.fn()
	}
	return true
}

// Done reports whether the future was completed or canceled.
func (f *Future[T]) Done() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Canceled reports whether the future was canceled.
func (f *Future[T]) Canceled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.canceled
}

// Result returns the result of the future. Before the future is done, it
// returns the zero value and ErrPending.
func (f *Future[T]) Result() (T, error) {
	if !f.Done() {
		var zero T
		return zero, ErrPending
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.err
}

// Wait blocks until the future is done or ctx is canceled. Fibers must use
// fiber.Await instead, which lets other fibers run in the meantime.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.Result()
	case <-ctx.Done():
		var zero T
		return zero, context.Cause(ctx)
	}
}

// Chan returns a channel closed when the future is done.
func (f *Future[T]) Chan() <-chan struct{} { return f.done }

// OnDone registers fn to be called once the future is done, on the goroutine
// completing it. If the future is already done, fn is called immediately.
// The returned function unregisters fn if it was not called yet.
func (f *Future[T]) OnDone(fn func()) (cancel func()) {
	f.mu.Lock()
	if f.Done() {
		f.mu.Unlock()
		fn()
		return func() {}
	}
	cb := &callback{fn: fn}
	f.callbacks = append(f.callbacks, cb)
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if i := slices.Index(f.callbacks, cb); i >= 0 {
			f.callbacks = slices.Delete(f.callbacks, i, i+1)
		}
	}
}

// Callbacks returns the number of callbacks waiting for the future.
func (f *Future[T]) Callbacks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.callbacks)
}
