package fiber

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"fortio.org/safecast"
)

// Scheduler owns a set of fibers and resumes them when their wake conditions
// fire.
//
// A scheduler is single threaded: all its methods, and the methods of its
// fibers, must be called from the goroutine that calls Tick, or from one of
// its fibers. The exceptions are Waker.Notify and the release of dropped
// fibers, which go through a mutex-guarded inbox drained at each tick.
//
// Programs which host fibers on several goroutines create one scheduler per
// goroutine; schedulers share nothing.
//
// The scheduler keeps every fiber alive until it finishes, even when the
// program dropped its *Fiber handle: a fiber waiting forever then holds its
// goroutine and event subscriptions until it is closed with (*Fiber).Close
// or Scheduler.Close. WithReleaseDropped makes the scheduler close such
// fibers itself.
type Scheduler struct {
	clock   Clock
	backend Backend
	logger  *slog.Logger
	onPanic PanicHandler
	dropped bool

	fibers  arena
	pending []*entry
	waiting map[ID]*entry
	running runStack
	seq     uint64
	ticks   uint64
	ticking bool

	mu    sync.Mutex
	inbox []message
}

// entry is the registration of a waiting fiber. An entry is done once the
// fiber resumed or was closed; done entries are compacted at the end of each
// tick.
type entry struct {
	id    ID
	seq   uint64
	cond  Condition
	fired bool
	done  bool
}

type messageKind uint8

const (
	notify messageKind = iota
	release
)

type message struct {
	kind messageKind
	id   ID
	seq  uint64
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the clock used to evaluate timers and poll intervals.
func WithClock(clock Clock) Option {
	return func(s *Scheduler) { s.clock = clock }
}

// WithBackend sets the backend creating the execution contexts of fibers.
// The default is GoroutineBackend.
func WithBackend(backend Backend) Option {
	return func(s *Scheduler) { s.backend = backend }
}

// WithLogger sets the logger of the scheduler. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// WithPanicHandler installs a function receiving the panics recovered by the
// scheduler. The default handler logs them at the error level.
func WithPanicHandler(h PanicHandler) Option {
	return func(s *Scheduler) { s.onPanic = h }
}

// WithReleaseDropped makes the scheduler close waiting fibers once the
// program dropped every reference to their *Fiber handle. The fiber is closed
// on the first tick after the garbage collector noticed.
//
// By default the scheduler keeps fibers alive until they finish, so fibers
// may be started without retaining their handle.
func WithReleaseDropped() Option {
	return func(s *Scheduler) { s.dropped = true }
}

// PanicHandler receives panics that the scheduler recovered without
// propagating them: fiber panics while resuming from Tick, and panics of
// conditions and state observers.
type PanicHandler func(PanicInfo)

// PanicInfo describes a recovered panic.
type PanicInfo struct {
	Fiber ID
	Name  string
	// Where is "fiber", "condition" or "observer".
	Where string
	Value any
	Stack []byte
}

// NewScheduler creates a scheduler.
func NewScheduler(opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:   systemClock{},
		backend: GoroutineBackend{},
		logger:  slog.Default(),
		waiting: make(map[ID]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// New creates a fiber executing fn and starts it.
//
// fn runs synchronously: New returns once the fiber yields for the first time
// or finishes. If fn panics before yielding, the fiber finishes and New raises
// the panic again as a *PanicError.
func (s *Scheduler) New(fn func(), opts ...FiberOption) *Fiber {
	if fn == nil {
		panic("fiber: nil entry function")
	}
	f := &fiber{sched: s, entry: fn, stackSize: DefaultStackSize()}
	for _, opt := range opts {
		opt(f)
	}
	if _, err := safecast.Conv[uint32](f.stackSize); err != nil {
		panic(fmt.Errorf("%w: %d: %w", ErrInvalidStackSize, f.stackSize, err))
	}
	f.id = s.fibers.Insert(f)

	h := &Fiber{fiber: f}
	if s.dropped {
		runtime.AddCleanup(h, s.release, f.id)
	}

	s.logger.Debug("fiber created", "fiber", f.id, "name", f.name, "stack_size", f.stackSize)

	f.ctx = s.backend.NewContext(f.main, f.stackSize)
	f.setState(StateRunning)
	if err := s.switchInto(f); err != nil {
		panic(err)
	}
	return h
}

// Tick runs one iteration of the scheduler.
//
// Every condition registered before the call is evaluated once, in
// registration order, and the fibers whose condition fired are resumed. A
// fiber yielding during the tick is not considered before the next one.
//
// Panics of fibers, conditions and observers are recovered and reported to the
// panic handler; a condition which panicked never fires again, leaving the
// fiber waiting until it is woken or closed.
func (s *Scheduler) Tick() {
	if s.ticking {
		panic("fiber: Tick called during a tick")
	}
	if s.running.Len() > 0 {
		panic("fiber: Tick called from a fiber")
	}
	s.ticking = true
	defer func() { s.ticking = false }()

	s.ticks++
	s.drain()

	now := s.clock.Now()
	batch := slices.Clone(s.pending)
	resumed := 0

	for _, e := range batch {
		if e.done {
			continue
		}
		f := s.fibers.Get(e.id)
		if f == nil {
			e.done = true
			continue
		}
		if !e.fired && !s.ready(f, e, now) {
			continue
		}
		if e.done { // the condition resumed the fiber itself
			continue
		}
		resumed++
		if err := s.resume(f); err != nil {
			s.report(f, "fiber", err.(*PanicError))
		}
	}

	s.pending = slices.DeleteFunc(s.pending, func(e *entry) bool { return e.done })

	if resumed > 0 {
		s.logger.Debug("tick", "tick", s.ticks, "resumed", resumed, "pending", len(s.waiting))
	}
}

// Run calls Tick at every interval until ctx is canceled, and returns the
// cause of the cancellation.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInterval, interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Close closes every fiber of the scheduler. It returns ErrRunning when called
// from a fiber, and otherwise the panics raised while unwinding fibers.
func (s *Scheduler) Close() error {
	if s.running.Len() > 0 {
		return ErrRunning
	}
	var live []*fiber
	s.fibers.Each(func(f *fiber) { live = append(live, f) })

	var errs []error
	for _, f := range live {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.pending = slices.DeleteFunc(s.pending, func(e *entry) bool { return e.done })
	return errors.Join(errs...)
}

// Len returns the number of fibers which have not finished.
func (s *Scheduler) Len() int { return s.fibers.Len() }

// Pending returns the number of fibers waiting for their condition.
func (s *Scheduler) Pending() int { return len(s.waiting) }

// Ticks returns the number of calls to Tick so far.
func (s *Scheduler) Ticks() uint64 { return s.ticks }

// Current returns the ID of the fiber executing, if any.
func (s *Scheduler) Current() (ID, bool) { return s.running.Top() }

// Waker requests the resumption of a waiting fiber on behalf of its condition.
// A waker only applies to the wait it was created for: once the fiber resumed,
// for whatever reason, the waker has no effect.
type Waker struct {
	sched *Scheduler
	id    ID
	seq   uint64
}

// Wake resumes the fiber immediately, like (*Fiber).Wake. It must be called
// from the goroutine that owns the scheduler.
//
// Unlike (*Fiber).Wake, a panic of the fiber is not raised again in the
// caller: it is reported to the panic handler of the scheduler.
func (w Waker) Wake() {
	if w.sched != nil {
		w.sched.wake(w.id, w.seq)
	}
}

// Notify marks the condition fired so the fiber resumes on the next tick. It
// is safe to call from any goroutine.
func (w Waker) Notify() {
	if w.sched != nil {
		w.sched.post(message{kind: notify, id: w.id, seq: w.seq})
	}
}

func (s *Scheduler) wake(id ID, seq uint64) {
	e := s.waiting[id]
	if e == nil || e.seq != seq {
		return
	}
	f := s.fibers.Get(id)
	if f == nil {
		return
	}
	if s.running.Contains(id) {
		// The fiber is still suspending, for instance the condition fired
		// from Arm.
		e.fired = true
		return
	}
	// The caller fired an event and is not responsible for the fiber: its
	// panics are reported like those of fibers resumed by Tick.
	if err := s.resume(f); err != nil {
		s.report(f, "fiber", err.(*PanicError))
	}
}

func (s *Scheduler) post(m message) {
	s.mu.Lock()
	s.inbox = append(s.inbox, m)
	s.mu.Unlock()
}

// release is the cleanup attached to fiber handles by WithReleaseDropped. It
// runs on a runtime goroutine once the handle became unreachable.
func (s *Scheduler) release(id ID) {
	s.post(message{kind: release, id: id})
}

func (s *Scheduler) drain() {
	s.mu.Lock()
	inbox := s.inbox
	s.inbox = nil
	s.mu.Unlock()

	for _, m := range inbox {
		switch m.kind {
		case notify:
			if e := s.waiting[m.id]; e != nil && e.seq == m.seq {
				e.fired = true
			}
		case release:
			f := s.fibers.Get(m.id)
			if f == nil || f.state != StateWaiting {
				continue
			}
			s.logger.Debug("releasing dropped fiber", "fiber", f.id, "name", f.name)
			if err := f.Close(); err != nil {
				if p, ok := err.(*PanicError); ok {
					s.report(f, "fiber", p)
				}
			}
		}
	}
}

// register records that f waits for c. It runs on the goroutine of f, before
// the fiber suspends.
func (s *Scheduler) register(f *fiber, c Condition) {
	s.seq++
	e := &entry{id: f.id, seq: s.seq, cond: c}
	s.waiting[f.id] = e
	s.pending = append(s.pending, e)

	armed := false
	defer func() {
		if !armed {
			delete(s.waiting, f.id)
			e.done = true
		}
	}()
	c.Arm(s.clock.Now(), Waker{sched: s, id: f.id, seq: e.seq})
	armed = true

	f.waits++
	f.setState(StateWaiting)
}

// cancel discards the pending condition of f without resuming it.
func (s *Scheduler) cancel(f *fiber) {
	e := s.waiting[f.id]
	if e == nil {
		return
	}
	delete(s.waiting, f.id)
	e.done = true
	s.protect(f, "condition", e.cond.Disarm)
}

func (s *Scheduler) resume(f *fiber) error {
	s.cancel(f)
	f.setState(StateRunning)
	return s.switchInto(f)
}

// switchInto executes f until it yields or returns. It returns the
// *PanicError of a fiber whose entry function panicked.
func (s *Scheduler) switchInto(f *fiber) error {
	s.running.Push(f.id)
	f.ctx.SwitchInto()
	s.running.Pop()

	if !f.ctx.Finished() {
		return nil
	}
	return f.finish()
}

func (s *Scheduler) ready(f *fiber, e *entry, now time.Time) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			s.report(f, "condition", &PanicError{Value: p, Stack: debug.Stack()})
			s.logger.Warn("condition disabled after panic", "fiber", f.id, "name", f.name, "condition", describe(e.cond))
			s.protect(f, "condition", e.cond.Disarm)
			e.cond = Forever()
			ok = false
		}
	}()
	return e.cond.Ready(now)
}

// protect calls fn and reports the panic it raises, if any.
func (s *Scheduler) protect(f *fiber, where string, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			s.report(f, where, &PanicError{Value: p, Stack: debug.Stack()})
		}
	}()
	fn()
}

func (s *Scheduler) report(f *fiber, where string, p *PanicError) {
	info := PanicInfo{
		Fiber: f.id,
		Name:  f.name,
		Where: where,
		Value: p.Value,
		Stack: p.Stack,
	}
	if s.onPanic == nil {
		s.logger.Error("fiber: recovered panic",
			"fiber", info.Fiber,
			"name", info.Name,
			"where", info.Where,
			"panic", info.Value,
			"stack", string(info.Stack))
		return
	}
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("fiber: panic handler panicked", "panic", p)
		}
	}()
	s.onPanic(info)
}

func describe(c Condition) string {
	if s, ok := c.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", c)
}
