package engine

import "time"

// Clock abstracts "now" so tests can drive the registry sweep through
// arbitrary instants without sleeping.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }
