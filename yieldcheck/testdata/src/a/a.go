package a

import (
	"context"
	"time"

	"github.com/stealthrocket/fiber"
)

func init() {
	fiber.Yield() // want `fiber.Yield called from the host loop in init, outside of any fiber`
}

func loop(s *fiber.Scheduler) {
	s.New(func() {
		fiber.Sleep(time.Second)
		helper()
		s.Tick() // want `\(\*fiber.Scheduler\).Tick called from a fiber`
	})

	go func() {
		fiber.YieldForever() // want `fiber.YieldForever called from a goroutine; goroutines are not fibers`
	}()

	for {
		s.Tick()
		fiber.Poll(func() bool { return true }, 0) // want `fiber.Poll called from the host loop in loop, outside of any fiber`
	}
}

func serve(s *fiber.Scheduler) error {
	s.New(func() {
		s.New(func() {
			fiber.Yield()
		})
		if err := s.Run(context.Background(), time.Millisecond); err != nil { // want `\(\*fiber.Scheduler\).Run called from a fiber`
			panic(err)
		}
	})
	return s.Run(context.Background(), time.Millisecond)
}

// helper is only called from fibers, and is not reported.
func helper() {
	fiber.Yield()
	fiber.WaitFor(nil)
}

type future struct{}

func (future) Done() bool { return true }

func await(s *fiber.Scheduler) {
	s.Tick()
	fiber.Await(future{}) // want `fiber.Await called from the host loop in await, outside of any fiber`
}
