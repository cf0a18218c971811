package fiber

// runStack tracks the fibers that are executing on a scheduler. The fiber on
// top of the stack is the one whose goroutine holds the baton; fibers below it
// are Running but blocked in a call that resumed another fiber.
type runStack struct {
	ids []ID
}

// Push records that execution is about to switch into the fiber.
func (s *runStack) Push(id ID) {
	s.ids = append(s.ids, id)
}

// Pop removes the topmost fiber after execution switched back out of it.
func (s *runStack) Pop() {
	if len(s.ids) == 0 {
		panic("fiber: pop from an empty run stack")
	}
	s.ids = s.ids[:len(s.ids)-1]
}

// Top returns the fiber currently executing, if any.
func (s *runStack) Top() (ID, bool) {
	if len(s.ids) == 0 {
		return 0, false
	}
	return s.ids[len(s.ids)-1], true
}

// Contains reports whether the fiber is on the stack.
func (s *runStack) Contains(id ID) bool {
	for _, x := range s.ids {
		if x == id {
			return true
		}
	}
	return false
}

// Len returns the nesting depth.
func (s *runStack) Len() int { return len(s.ids) }
