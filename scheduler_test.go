package fiber

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestRun(t *testing.T) {
	s := newTestScheduler(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := s.New(func() {
		Yield()
		Yield()
		cancel()
	})

	if err := s.Run(ctx, time.Millisecond); !errors.Is(err, context.Canceled) {
		t.Errorf("wrong error: want=%v got=%v", context.Canceled, err)
	}
	if !f.IsFinished() || s.Ticks() < 3 {
		t.Errorf("fiber did not run to completion: state=%s ticks=%d", f.State(), s.Ticks())
	}
}

func TestRunInvalidInterval(t *testing.T) {
	s := newTestScheduler(t)
	if err := s.Run(context.Background(), 0); !errors.Is(err, ErrInvalidInterval) {
		t.Errorf("wrong error: want=%v got=%v", ErrInvalidInterval, err)
	}
}

func TestReleaseDropped(t *testing.T) {
	s := newTestScheduler(t, WithReleaseDropped())
	unwound := make(chan struct{})

	func() {
		s.New(func() {
			defer close(unwound)
			YieldForever()
		})
	}()
	kept := s.New(YieldForever)

	deadline := time.Now().Add(5 * time.Second)
	for {
		runtime.GC()
		s.Tick()
		select {
		case <-unwound:
			if s.Len() != 1 || !kept.IsWaiting() {
				t.Errorf("wrong fibers released: len=%d kept=%s", s.Len(), kept.State())
			}
			return
		default:
		}
		if time.Now().After(deadline) {
			t.Fatal("dropped fiber was not released")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSnapshot(t *testing.T) {
	s := newTestScheduler(t)

	s.New(func() { Sleep(time.Second) }, WithName("sleeper"))
	s.New(func() {
		Yield()
		Poll(func() bool { return false }, 100*time.Millisecond)
	}, WithName("poller"), WithStackSize(4096))
	s.New(func() {}, WithName("done"))
	s.Tick()

	snap := s.Snapshot()
	want := Snapshot{
		Time:    s.clock.Now(),
		Ticks:   1,
		Pending: 2,
		Fibers: []Status{
			{Name: "sleeper", State: StateWaiting, Condition: "timer(1s)", Waits: 1},
			{Name: "poller", State: StateWaiting, Condition: "poll(100ms)", StackSize: 4096, Waits: 2},
		},
	}
	if diff := cmp.Diff(want, snap, cmpopts.IgnoreFields(Status{}, "ID")); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestTickCompactsEntries(t *testing.T) {
	s := newTestScheduler(t)
	fibers := make([]*Fiber, 10)
	for i := range fibers {
		fibers[i] = s.New(YieldForever)
	}
	for _, f := range fibers[:5] {
		f.Wake()
	}
	s.Tick()

	if n := len(s.pending); n != 5 {
		t.Errorf("resumed entries not compacted: want=5 got=%d", n)
	}
	if n := s.Pending(); n != 5 {
		t.Errorf("wrong pending count: want=5 got=%d", n)
	}
}

type countingBackend struct {
	GoroutineBackend
	contexts int
	sizes    []int
}

func (b *countingBackend) NewContext(entry func(), stackSize int) Context {
	b.contexts++
	b.sizes = append(b.sizes, stackSize)
	return b.GoroutineBackend.NewContext(entry, stackSize)
}

func TestBackend(t *testing.T) {
	backend := &countingBackend{}
	s := newTestScheduler(t, WithBackend(backend))

	s.New(Yield, WithStackSize(8192))
	s.New(func() {})
	s.Tick()

	if backend.contexts != 2 {
		t.Errorf("wrong number of contexts: want=2 got=%d", backend.contexts)
	}
	if diff := cmp.Diff([]int{8192, 0}, backend.sizes); diff != "" {
		t.Errorf("stack sizes mismatch (-want +got):\n%s", diff)
	}
}

func TestGoroutineContextDestroyIdle(t *testing.T) {
	called := false
	c := GoroutineBackend{}.NewContext(func() { called = true }, 0)
	c.Destroy()
	c.SwitchInto()

	if called || !c.Finished() {
		t.Errorf("destroyed context ran: called=%t finished=%t", called, c.Finished())
	}
}
