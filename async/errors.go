package async

import "errors"

var (
	// ErrPending is returned by Result for futures which are not done.
	ErrPending = errors.New("async: result pending")

	// ErrCanceled is the error of canceled futures.
	ErrCanceled = errors.New("async: canceled")

	// ErrPanic is wrapped by the error of futures whose computation panicked.
	ErrPanic = errors.New("async: panic")

	// ErrClosed is the error of futures submitted to a closed pool.
	ErrClosed = errors.New("async: pool closed")

	// ErrInvalidWorkers is returned by NewPool when the worker count is not
	// positive.
	ErrInvalidWorkers = errors.New("async: invalid number of workers")
)
