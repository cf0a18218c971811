package fiber

import "runtime"

// Backend creates the execution contexts that fibers run on.
//
// The scheduler only ever uses a context from one goroutine at a time, so
// implementations do not need to synchronize beyond the handoff performed by
// SwitchInto and Suspend.
type Backend interface {
	// NewContext creates a context which executes entry on its own stack.
	// The entry function does not start until the first call to SwitchInto.
	//
	// A stack size of zero selects the platform default. Backends which cannot
	// size stacks may treat the value as a hint.
	NewContext(entry func(), stackSize int) Context
}

// Context is an execution context created by a Backend.
type Context interface {
	// SwitchInto transfers execution into the context. It returns when the
	// context calls Suspend or when its entry function returns.
	SwitchInto()

	// Suspend transfers execution back to the caller of SwitchInto. It must
	// only be called from the context itself, and returns when the context is
	// switched into again.
	Suspend()

	// Finished reports whether the entry function has returned.
	Finished() bool

	// Destroy releases the context. A suspended context is unwound: deferred
	// calls of its entry function run, but Suspend never returns.
	//
	// Destroy is idempotent.
	Destroy()
}

// GoroutineBackend runs each context on a dedicated goroutine. Control moves
// between the goroutine calling SwitchInto and the context goroutine through
// an unbuffered channel, so exactly one of them executes at any time.
//
// Goroutine stacks grow on demand; the stack size passed to NewContext is
// recorded but not enforced. Exhausting the maximum goroutine stack is fatal
// to the process.
type GoroutineBackend struct{}

// NewContext satisfies the Backend interface.
func (GoroutineBackend) NewContext(entry func(), stackSize int) Context {
	return &goroutineContext{
		entry:     entry,
		stackSize: stackSize,
		next:      make(chan struct{}),
	}
}

type goroutineContext struct {
	entry     func()
	stackSize int
	next      chan struct{}
	started   bool
	stop      bool
	done      bool
}

func (c *goroutineContext) SwitchInto() {
	if c.done {
		return
	}
	if !c.started {
		c.started = true
		go c.run()
	}
	c.next <- struct{}{}
	<-c.next
}

func (c *goroutineContext) Suspend() {
	if c.stop {
		panic("fiber: cannot suspend a context that is being destroyed")
	}
	c.next <- struct{}{}
	<-c.next
	if c.stop {
		runtime.Goexit()
	}
}

func (c *goroutineContext) Finished() bool { return c.done }

func (c *goroutineContext) Destroy() {
	if c.done {
		return
	}
	if !c.started {
		c.done = true
		return
	}
	c.stop = true
	c.SwitchInto()
}

func (c *goroutineContext) run() {
	defer func() {
		c.done = true
		close(c.next)
	}()

	<-c.next

	if !c.stop {
		c.entry()
	}
}
