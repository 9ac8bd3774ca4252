package application

import (
	"math/rand"
	"time"
)

// DelayFunc picks a pause in [min, max].
type DelayFunc func(min, max time.Duration) time.Duration

// RandomDelay draws uniformly from [min, max] using the auto-seeded global
// source, so consecutive pauses are never a fixed interval.
func RandomDelay(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}

	return min + time.Duration(rand.Int63n(int64(max-min)+1))
}
