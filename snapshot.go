package fiber

import "time"

// Status is the state of one fiber at the time a snapshot was taken.
type Status struct {
	ID    ID
	Name  string
	State State
	// Condition describes what a waiting fiber waits for, for instance
	// "timer(1s)". It is empty for fibers which are not waiting.
	Condition string
	StackSize int
	// Waits counts how many times the fiber yielded.
	Waits uint64
}

// Snapshot is a point-in-time view of a scheduler.
type Snapshot struct {
	Time    time.Time
	Ticks   uint64
	Pending int
	Fibers  []Status
}

// Snapshot returns the status of the fibers which have not finished, in
// the order of their ID slots.
func (s *Scheduler) Snapshot() Snapshot {
	snap := Snapshot{
		Time:    s.clock.Now(),
		Ticks:   s.ticks,
		Pending: len(s.waiting),
		Fibers:  make([]Status, 0, s.fibers.Len()),
	}
	s.fibers.Each(func(f *fiber) {
		st := Status{
			ID:        f.id,
			Name:      f.name,
			State:     f.state,
			StackSize: f.stackSize,
			Waits:     f.waits,
		}
		if e := s.waiting[f.id]; e != nil {
			st.Condition = describe(e.cond)
		}
		snap.Fibers = append(snap.Fibers, st)
	})
	return snap
}
