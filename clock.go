package fiber

import "time"

// Clock supplies the time used to evaluate timers and poll intervals.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
