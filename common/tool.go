package common

import (
	"time"
)

// Elapsed returns the time since start in microseconds.
func Elapsed(start time.Time) uint32 {
	return uint32(time.Since(start).Microseconds())
}
