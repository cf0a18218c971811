package fiber

import (
	"fmt"
	"sync/atomic"

	"fortio.org/safecast"
)

var defaultStackSize atomic.Uint32

// DefaultStackSize returns the stack size, in bytes, used for fibers created
// without WithStackSize. Zero means the platform default.
func DefaultStackSize() int {
	return int(defaultStackSize.Load())
}

// SetDefaultStackSize sets the stack size used for fibers created from now
// on. Fibers that already exist keep the size they were created with. A size
// of zero selects the platform default.
//
// The setting is process-wide and safe for concurrent use.
func SetDefaultStackSize(n int) error {
	size, err := safecast.Conv[uint32](n)
	if err != nil {
		return fmt.Errorf("%w: %d: %w", ErrInvalidStackSize, n, err)
	}
	defaultStackSize.Store(size)
	return nil
}
