package fiber

import (
	"errors"
	"fmt"
)

var (
	// ErrRunning is returned by Close when the fiber is executing, either
	// directly or because it resumed another fiber that is executing now.
	ErrRunning = errors.New("fiber: cannot close a running fiber")

	// ErrClosed is the error reported by Err for fibers that were closed
	// before their entry function returned.
	ErrClosed = errors.New("fiber: closed")

	// ErrInvalidStackSize is returned by SetDefaultStackSize when the value
	// cannot be represented as a stack size.
	ErrInvalidStackSize = errors.New("fiber: invalid stack size")

	// ErrInvalidInterval is returned by Run when the tick interval is not
	// positive.
	ErrInvalidInterval = errors.New("fiber: invalid tick interval")
)

// PanicError is the error reported when the entry function of a fiber
// panics. The fiber finishes, and the panic is raised again in the goroutine
// that resumed it, unless that goroutine was running Tick.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("fiber: panic: %v", e.Value)
}

// Unwrap returns the panic value if it is an error.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}
