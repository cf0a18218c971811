package fiber

import (
	"time"

	"github.com/stealthrocket/fiber/event"
)

// Yield suspends the current fiber until the next tick of its scheduler.
//
// Like all the functions suspending fibers, Yield panics when called on a
// goroutine where no fiber is executing.
func Yield() { WaitFor(NextTick()) }

// Sleep suspends the current fiber until d has elapsed. The fiber resumes on
// a tick, at the earliest the one after the call, even if d is zero.
func Sleep(d time.Duration) { WaitFor(Timer(d)) }

// Poll suspends the current fiber until pred returns true. The predicate is
// called on the first tick after each interval elapsed, or on every tick if
// interval is zero or shorter than the tick interval.
func Poll(pred func() bool, interval time.Duration) { WaitFor(PollEvery(pred, interval)) }

// Await suspends the current fiber until f is done, and returns f so the
// caller can read its result. It returns immediately if f is already done.
//
//	v, err := fiber.Await(async.Go(ctx, load)).Result()
func Await[F Future](f F) F {
	self := current()
	if !f.Done() {
		self.wait(Completion(f))
	}
	return f
}

// WaitEvent suspends the current fiber until src fires. The fiber resumes
// inside the call that fired the event.
func WaitEvent(src Source) { WaitFor(Event(src)) }

// Receive suspends the current fiber until sig emits a value, and returns the
// value. It returns the zero value if the fiber was woken by other means.
func Receive[T any](sig *event.Signal[T]) T {
	var v T
	WaitEvent(SourceFunc(func(wake func()) func() {
		return sig.OnceValue(func(x T) {
			v = x
			wake()
		})
	}))
	return v
}

// YieldForever suspends the current fiber until it is explicitly woken.
func YieldForever() { WaitFor(Forever()) }

// WaitFor suspends the current fiber until c fires or the fiber is woken.
//
// If Arm panics, the fiber does not suspend and the panic propagates to the
// caller of WaitFor.
func WaitFor(c Condition) {
	current().wait(c)
}

func current() *fiber {
	if f := currentFiber(); f != nil {
		return f
	}
	panic("fiber: yield called outside of a fiber")
}
