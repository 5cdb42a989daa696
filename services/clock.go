package services

import "time"

// Clock is swapped in tests that need to move time forward.
type Clock func() time.Time

func SystemClock() time.Time {
	return time.Now().UTC()
}
