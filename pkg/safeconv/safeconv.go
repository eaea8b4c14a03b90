// Package safeconv converts between numeric types without silent overflow.
package safeconv

import (
	"math"
	"time"
)

// SecondsToDuration converts fractional seconds to a Duration rounded to the
// nanosecond. Values beyond the Duration range saturate; NaN yields zero.
func SecondsToDuration(seconds float64) time.Duration {
	nanos := math.Round(seconds * float64(time.Second))

	switch {
	case math.IsNaN(nanos):
		return 0
	case nanos >= math.MaxInt64:
		return time.Duration(math.MaxInt64)
	case nanos <= math.MinInt64:
		return time.Duration(math.MinInt64)
	default:
		return time.Duration(nanos)
	}
}

// NonNegativeUint64 converts v to uint64, clamping negatives to zero.
func NonNegativeUint64(v int64) uint64 {
	if v < 0 {
		return 0
	}

	return uint64(v)
}
