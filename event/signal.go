// Package event provides signals: ordered lists of callbacks invoked
// synchronously each time a value is emitted.
//
// Signals are the event sources that fibers wait on with fiber.WaitEvent and
// fiber.Receive, and they back the state-change notifications of fibers.
//
//	var ready event.Signal[string]
//	disconnect := ready.Connect(func(name string) { log.Println(name, "ready") })
//	defer disconnect()
//	ready.Emit("db")
package event

import (
	"slices"
	"sync"
)

// Signal is a list of callbacks receiving values of type T.
//
// Connecting and disconnecting is safe from any goroutine. Emit calls the
// callbacks on the emitting goroutine, in the order they were connected;
// callbacks connected or disconnected during an emission take effect for the
// next one, except that a disconnected callback is never called afterwards.
//
// The zero value is ready to use. A Signal must not be copied after first use.
type Signal[T any] struct {
	mu    sync.Mutex
	slots []*slot[T]
}

type slot[T any] struct {
	fn        func(T)
	once      bool
	connected bool
}

// Connect registers fn to be called on every emission. The returned function
// disconnects it; calling it more than once has no effect.
func (s *Signal[T]) Connect(fn func(T)) (disconnect func()) {
	return s.connect(fn, false)
}

// OnceValue registers fn to be called on the next emission only.
func (s *Signal[T]) OnceValue(fn func(T)) (cancel func()) {
	return s.connect(fn, true)
}

// Once registers fn to be called on the next emission only, ignoring the
// emitted value. It makes a Signal usable as a fiber.Source.
func (s *Signal[T]) Once(fn func()) (cancel func()) {
	return s.connect(func(T) { fn() }, true)
}

// Emit calls the connected callbacks with v. One-shot callbacks are removed
// before any callback runs.
func (s *Signal[T]) Emit(v T) {
	s.mu.Lock()
	if len(s.slots) == 0 {
		s.mu.Unlock()
		return
	}
	slots := make([]*slot[T], len(s.slots))
	copy(slots, s.slots)
	s.slots = slices.DeleteFunc(s.slots, func(x *slot[T]) bool { return x.once })
	s.mu.Unlock()

	for _, x := range slots {
		if s.take(x) {
			x.fn(v)
		}
	}
}

// Len returns the number of connected callbacks.
func (s *Signal[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}

func (s *Signal[T]) connect(fn func(T), once bool) func() {
	if fn == nil {
		panic("event: nil callback")
	}
	x := &slot[T]{fn: fn, once: once, connected: true}
	s.mu.Lock()
	s.slots = append(s.slots, x)
	s.mu.Unlock()
	return func() { s.disconnect(x) }
}

func (s *Signal[T]) disconnect(x *slot[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !x.connected {
		return
	}
	x.connected = false
	if i := slices.Index(s.slots, x); i >= 0 {
		s.slots = slices.Delete(s.slots, i, i+1)
	}
}

// take reports whether x may be called for the emission in progress. One-shot
// slots are disconnected by the first take.
func (s *Signal[T]) take(x *slot[T]) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok := x.connected
	if x.once {
		x.connected = false
	}
	return ok
}
