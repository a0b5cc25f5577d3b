package autolock

import "time"

// Stopper cancels a scheduled action.
type Stopper interface {
	Stop() bool
}

// Clock abstracts time so the timer can be driven deterministically in tests.
type Clock interface {
	Now() time.Time
	AfterFunc(delay time.Duration, action func()) Stopper
}

type systemClock struct{}

// SystemClock returns a Clock backed by the time package.
func SystemClock() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) AfterFunc(delay time.Duration, action func()) Stopper {
	return time.AfterFunc(delay, action)
}
