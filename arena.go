package fiber

import "fmt"

// ID identifies a fiber within its scheduler.
//
// An ID combines the index of the arena slot holding the fiber with the
// generation of that slot. Slots are reused once a fiber finishes, but their
// generation changes, so a stale ID never resolves to a different fiber.
// The zero ID is never assigned.
type ID uint64

func makeID(index, gen uint32) ID { return ID(uint64(index)<<32 | uint64(gen)) }

func (id ID) index() uint32 { return uint32(id >> 32) }

func (id ID) generation() uint32 { return uint32(id) }

func (id ID) String() string {
	return fmt.Sprintf("%d.%d", id.index(), id.generation())
}

// arena is a sparse collection of live fibers.
type arena struct {
	slots []slot
	free  []uint32
	count int
}

type slot struct {
	gen uint32
	f   *fiber
}

// Insert stores f in a free slot and returns its ID.
func (a *arena) Insert(f *fiber) ID {
	var i uint32
	if n := len(a.free); n > 0 {
		i = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		i = uint32(len(a.slots))
		a.slots = append(a.slots, slot{})
	}
	s := &a.slots[i]
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	s.f = f
	a.count++
	return makeID(i, s.gen)
}

// Get returns the fiber for id, or nil if the slot was freed or reused.
func (a *arena) Get(id ID) *fiber {
	i := id.index()
	if id == 0 || int(i) >= len(a.slots) {
		return nil
	}
	s := &a.slots[i]
	if s.gen != id.generation() {
		return nil
	}
	return s.f
}

// Delete frees the slot of id. Deleting a stale ID has no effect.
func (a *arena) Delete(id ID) {
	if a.Get(id) == nil {
		return
	}
	i := id.index()
	a.slots[i].f = nil
	a.free = append(a.free, i)
	a.count--
}

// Len returns the number of live fibers.
func (a *arena) Len() int { return a.count }

// Each calls fn for each live fiber in slot order.
func (a *arena) Each(fn func(*fiber)) {
	for i := range a.slots {
		if f := a.slots[i].f; f != nil {
			fn(f)
		}
	}
}
