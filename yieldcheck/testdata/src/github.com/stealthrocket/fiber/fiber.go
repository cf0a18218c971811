// Package fiber declares the subset of the fiber API that the yieldcheck
// tests exercise.
package fiber

import (
	"context"
	"time"
)

type Scheduler struct{}

type Fiber struct{}

type Future interface{ Done() bool }

type Condition interface{}

type Source interface{}

func NewScheduler() *Scheduler { return nil }

func (s *Scheduler) New(fn func()) *Fiber { return nil }

func (s *Scheduler) Tick() {}

func (s *Scheduler) Run(ctx context.Context, interval time.Duration) error { return nil }

func (f *Fiber) Wake() {}

func Yield() {}

func Sleep(time.Duration) {}

func Poll(func() bool, time.Duration) {}

func Await[F Future](f F) F { return f }

func WaitEvent(Source) {}

func WaitFor(Condition) {}

func YieldForever() {}
