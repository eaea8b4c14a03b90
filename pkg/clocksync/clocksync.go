// Package clocksync correlates the streaming layer's device clock with wall-clock time.
package clocksync

import (
	"errors"
	"fmt"
	"time"

	"github.com/Sumatoshi-tech/markrec/pkg/safeconv"
	"github.com/Sumatoshi-tech/markrec/pkg/stream"
)

// ErrSampleBeforeAnchor indicates a device timestamp earlier than the session anchor.
var ErrSampleBeforeAnchor = errors.New("sample precedes session anchor")

// Anchor pairs a wall-clock instant with the device clock reading taken right after it.
type Anchor struct {
	Wall   time.Time `json:"wall"`
	Device float64   `json:"device"`
}

// WallClock returns the current wall time. It is a seam for tests.
type WallClock func() time.Time

// Capture reads both clocks back-to-back. One anchor is captured per session.
func Capture(device stream.DeviceClock, wall WallClock) Anchor {
	if wall == nil {
		wall = time.Now
	}

	now := wall()

	return Anchor{Wall: now, Device: device()}
}

// Offset returns ts minus the anchor's device reading. A negative result
// yields ErrSampleBeforeAnchor together with the raw offset.
func Offset(ts float64, anchor Anchor) (float64, error) {
	offset := ts - anchor.Device
	if offset < 0 {
		return offset, fmt.Errorf("%w: %.6fs early", ErrSampleBeforeAnchor, -offset)
	}

	return offset, nil
}

// ToWallClock maps a device timestamp onto the wall clock.
func ToWallClock(ts float64, anchor Anchor) (time.Time, error) {
	offset, err := Offset(ts, anchor)
	if err != nil {
		return time.Time{}, err
	}

	return anchor.Wall.Add(safeconv.SecondsToDuration(offset)), nil
}
