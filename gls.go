package fiber

import (
	"sync"

	"github.com/petermattis/goid"
)

// goroutine local storage; the map contains one entry for each goroutine that
// is currently executing the entry function of a fiber, keyed by goroutine id.
//
// Fibers of different schedulers may run in parallel on their own goroutines,
// which is why the map is guarded by a mutex even though each scheduler is
// single threaded.
var (
	gmutex sync.RWMutex
	gstate map[int64]*fiber
)

func loadFiber(g int64) *fiber {
	gmutex.RLock()
	f := gstate[g]
	gmutex.RUnlock()
	return f
}

func storeFiber(g int64, f *fiber) {
	gmutex.Lock()
	if gstate == nil {
		gstate = make(map[int64]*fiber)
	}
	gstate[g] = f
	gmutex.Unlock()
}

func clearFiber(g int64) {
	gmutex.Lock()
	delete(gstate, g)
	gmutex.Unlock()
}

// currentFiber returns the fiber executing on the calling goroutine, or nil.
func currentFiber() *fiber {
	return loadFiber(goid.Get())
}
