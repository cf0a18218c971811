package fiber

import (
	"fmt"
	"runtime/debug"

	"github.com/petermattis/goid"

	"github.com/stealthrocket/fiber/event"
)

// State is the lifecycle state of a fiber.
//
// Fibers move from Idle to Running when they start, between Running and
// Waiting each time they yield and resume, and from Running to Finished when
// their entry function returns. Closing a fiber that is not running moves it
// to Finished as well.
type State uint8

const (
	// StateIdle is the state of a fiber that has not started yet.
	StateIdle State = iota
	// StateRunning is the state of a fiber that is executing. When fibers
	// are nested, a running fiber may be blocked resuming another one.
	StateRunning
	// StateWaiting is the state of a fiber that yielded and waits to be woken.
	StateWaiting
	// StateFinished is the terminal state.
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateWaiting:
		return "waiting"
	case StateFinished:
		return "finished"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Fiber is a handle to a cooperative task created by a Scheduler.
//
// The methods of a fiber must be called from the goroutine that owns its
// scheduler, or from a fiber of that scheduler. Fiber values must not be
// copied: with WithReleaseDropped, the scheduler closes a waiting fiber once
// the last *Fiber pointing to it was garbage collected.
type Fiber struct {
	*fiber
}

type fiber struct {
	sched     *Scheduler
	id        ID
	name      string
	state     State
	entry     func()
	stackSize int
	ctx       Context
	err       error
	waits     uint64
	closing   bool

	running  event.Signal[struct{}]
	waiting  event.Signal[struct{}]
	finished event.Signal[struct{}]
	changed  event.Signal[State]
}

// FiberOption configures a fiber created by Scheduler.New.
type FiberOption func(*fiber)

// WithName sets a name reported in logs and snapshots.
func WithName(name string) FiberOption {
	return func(f *fiber) { f.name = name }
}

// WithStackSize overrides the default stack size of the fiber.
func WithStackSize(n int) FiberOption {
	return func(f *fiber) { f.stackSize = n }
}

// WithStateChange connects fn to the state changes of the fiber before it
// starts, so fn also sees the transition out of StateIdle.
func WithStateChange(fn func(State)) FiberOption {
	return func(f *fiber) { f.changed.Connect(fn) }
}

// ID returns the identifier of the fiber in its scheduler.
func (f *fiber) ID() ID { return f.id }

// Name returns the name set with WithName.
func (f *fiber) Name() string { return f.name }

// StackSize returns the stack size the fiber was created with.
func (f *fiber) StackSize() int { return f.stackSize }

// State returns the current state of the fiber.
func (f *fiber) State() State { return f.state }

// IsRunning reports whether the fiber is running.
func (f *fiber) IsRunning() bool { return f.state == StateRunning }

// IsWaiting reports whether the fiber is waiting to be woken.
func (f *fiber) IsWaiting() bool { return f.state == StateWaiting }

// IsFinished reports whether the fiber finished.
func (f *fiber) IsFinished() bool { return f.state == StateFinished }

// Err returns why a finished fiber did not return normally: a *PanicError if
// its entry function panicked, ErrClosed if it was closed. It returns nil in
// every other case.
func (f *fiber) Err() error { return f.err }

// Wake resumes a waiting fiber.
//
// The pending wake condition is discarded and the fiber continues from the
// point where it yielded. Wake returns when the fiber yields again or
// finishes. If the fiber panics, the panic is raised again by Wake as a
// *PanicError.
//
// Waking a fiber that is not waiting has no effect. A fiber that is still in
// the middle of suspending, for instance when Wake is called by one of its
// OnWaiting observers, resumes on the next tick instead.
func (f *fiber) Wake() {
	if f.state != StateWaiting {
		return
	}
	s := f.sched
	if s.running.Contains(f.id) {
		if e := s.waiting[f.id]; e != nil {
			e.fired = true
		}
		return
	}
	if err := s.resume(f); err != nil {
		panic(err)
	}
}

// Close destroys a fiber that is not running.
//
// The pending wake condition of a waiting fiber is discarded and its stack is
// unwound: deferred calls run, but the call that yielded never returns. The
// fiber then finishes with ErrClosed. If a deferred call panics, Close returns
// the *PanicError.
//
// Closing a finished fiber has no effect. Closing a running fiber returns
// ErrRunning.
func (f *fiber) Close() error {
	switch f.state {
	case StateFinished:
		return nil
	case StateRunning:
		return ErrRunning
	}
	s := f.sched
	if s.running.Contains(f.id) {
		return ErrRunning
	}
	s.cancel(f)
	f.closing = true
	if f.ctx != nil {
		s.running.Push(f.id)
		f.ctx.Destroy()
		s.running.Pop()
	}
	if f.err == nil {
		f.err = ErrClosed
	}
	s.logger.Debug("fiber closed", "fiber", f.id, "name", f.name)
	return f.finish()
}

// OnStateChange registers fn to be called with the new state on every
// transition. The returned function unregisters it.
func (f *fiber) OnStateChange(fn func(State)) (disconnect func()) {
	return f.changed.Connect(fn)
}

// OnRunning registers fn to be called each time the fiber starts or resumes.
func (f *fiber) OnRunning(fn func()) (disconnect func()) {
	return f.running.Connect(func(struct{}) { fn() })
}

// OnWaiting registers fn to be called each time the fiber yields.
func (f *fiber) OnWaiting(fn func()) (disconnect func()) {
	return f.waiting.Connect(func(struct{}) { fn() })
}

// OnFinished registers fn to be called when the fiber finishes.
func (f *fiber) OnFinished(fn func()) (disconnect func()) {
	return f.finished.Connect(func(struct{}) { fn() })
}

// main is the entry point of the execution context.
func (f *fiber) main() {
	g := goid.Get()
	storeFiber(g, f)
	defer clearFiber(g)

	defer func() {
		if p := recover(); p != nil {
			f.err = &PanicError{Value: p, Stack: debug.Stack()}
		}
	}()

	f.entry()
}

// wait suspends the fiber until c fires or the fiber is woken. It runs on the
// goroutine of the fiber.
func (f *fiber) wait(c Condition) {
	if f.closing {
		panic("fiber: cannot yield from a fiber that is being closed")
	}
	f.sched.register(f, c)
	f.ctx.Suspend()
}

// finish releases the context and the arena slot of the fiber.
func (f *fiber) finish() error {
	s := f.sched
	if f.ctx != nil {
		f.ctx.Destroy()
		f.ctx = nil
	}
	f.entry = nil
	s.fibers.Delete(f.id)
	f.setState(StateFinished)
	s.logger.Debug("fiber finished", "fiber", f.id, "name", f.name, "err", f.err)
	if err, ok := f.err.(*PanicError); ok {
		return err
	}
	return nil
}

func (f *fiber) setState(state State) {
	f.state = state
	var sig *event.Signal[struct{}]
	switch state {
	case StateRunning:
		sig = &f.running
	case StateWaiting:
		sig = &f.waiting
	case StateFinished:
		sig = &f.finished
	}
	if sig != nil {
		f.sched.protect(f, "observer", func() { sig.Emit(struct{}{}) })
	}
	f.sched.protect(f, "observer", func() { f.changed.Emit(state) })
}
