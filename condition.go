package fiber

import (
	"fmt"
	"time"
)

// Condition decides when a waiting fiber resumes.
//
// A condition is created when a fiber yields and is discarded as soon as the
// fiber resumes, whatever caused the resumption. The scheduler calls Arm once
// when the fiber starts waiting, Ready on every tick that follows, and Disarm
// once when the condition is discarded. All three are called on the goroutine
// that owns the scheduler.
type Condition interface {
	// Arm is called when the fiber starts waiting. Conditions fired by an
	// external push subscribe to their source here and use the waker to
	// request resumption.
	Arm(now time.Time, w Waker)

	// Ready reports whether the fiber should resume on the current tick.
	Ready(now time.Time) bool

	// Disarm releases everything acquired by Arm.
	Disarm()
}

// Future is the contract of an asynchronous result that a fiber can await.
// *async.Future satisfies it.
type Future interface {
	// Done reports whether the result is available or was canceled.
	Done() bool

	// OnDone registers fn to be called once the future is done. It may be
	// called from any goroutine, and immediately if the future is already
	// done. The returned function unregisters fn.
	OnDone(fn func()) (cancel func())
}

// Source is the contract of an external event that a fiber can wait on.
// *event.Signal satisfies it.
type Source interface {
	// Once registers fn to be called the next time the event fires. The
	// returned function unregisters fn.
	Once(fn func()) (cancel func())
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(fn func()) (cancel func())

// Once calls f(fn).
func (f SourceFunc) Once(fn func()) func() { return f(fn) }

// NextTick returns a condition that fires on the next tick.
func NextTick() Condition { return nextTick{} }

// Timer returns a condition that fires on the first tick at which d has
// elapsed since the fiber started waiting. The fiber always waits for at
// least one tick, even if d is zero or negative.
func Timer(d time.Duration) Condition { return &timer{delay: d} }

// PollEvery returns a condition that calls pred on the first tick after each
// interval elapsed, and fires when it returns true. An interval of zero polls
// on every tick.
func PollEvery(pred func() bool, interval time.Duration) Condition {
	if pred == nil {
		panic("fiber: nil poll predicate")
	}
	return &poll{pred: pred, interval: interval}
}

// Completion returns a condition that fires on the tick following the
// completion or cancellation of f. Completions may be signaled from any
// goroutine.
func Completion(f Future) Condition { return &completion{future: f} }

// Event returns a condition that resumes the fiber as soon as src fires.
// The fiber resumes synchronously, inside the call that fired the event,
// which must happen on the goroutine that owns the scheduler.
func Event(src Source) Condition { return &eventCondition{source: src} }

// Forever returns a condition that never fires. Only Wake resumes a fiber
// waiting on it.
func Forever() Condition { return forever{} }

type nextTick struct{}

func (nextTick) Arm(time.Time, Waker) {}
func (nextTick) Ready(time.Time) bool { return true }
func (nextTick) Disarm() {}
func (nextTick) String() string { return "next-tick" }

type timer struct {
	delay    time.Duration
	deadline time.Time
}

func (t *timer) Arm(now time.Time, _ Waker) { t.deadline = now.Add(t.delay) }
func (t *timer) Ready(now time.Time) bool { return !now.Before(t.deadline) }
func (t *timer) Disarm() {}
func (t *timer) String() string { return fmt.Sprintf("timer(%s)", t.delay) }

type poll struct {
	pred     func() bool
	interval time.Duration
	last     time.Time
}

func (p *poll) Arm(now time.Time, _ Waker) { p.last = now }

func (p *poll) Ready(now time.Time) bool {
	if now.Sub(p.last) < p.interval {
		return false
	}
	p.last = now
	return p.pred()
}

func (p *poll) Disarm() {}

func (p *poll) String() string {
	if p.interval <= 0 {
		return "poll"
	}
	return fmt.Sprintf("poll(%s)", p.interval)
}

type completion struct {
	future Future
	cancel func()
}

func (c *completion) Arm(_ time.Time, w Waker) { c.cancel = c.future.OnDone(w.Notify) }
func (c *completion) Ready(time.Time) bool { return false }
func (c *completion) String() string { return "completion" }

func (c *completion) Disarm() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

type eventCondition struct {
	source Source
	cancel func()
}

func (e *eventCondition) Arm(_ time.Time, w Waker) { e.cancel = e.source.Once(w.Wake) }
func (e *eventCondition) Ready(time.Time) bool { return false }
func (e *eventCondition) String() string { return "event" }

func (e *eventCondition) Disarm() {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}

type forever struct{}

func (forever) Arm(time.Time, Waker) {}
func (forever) Ready(time.Time) bool { return false }
func (forever) Disarm() {}
func (forever) String() string { return "forever" }
