package export

import (
	"sort"
	"time"

	"github.com/Sumatoshi-tech/markrec/pkg/clocksync"
	"github.com/Sumatoshi-tech/markrec/pkg/safeconv"
	"github.com/Sumatoshi-tech/markrec/pkg/stream"
)

// WallClockLayout formats the sidecar's wall-clock column.
const WallClockLayout = "2006-01-02 03:04:05.000000 PM"

// Row is one exported marker.
type Row struct {
	WallClock   string
	Source      string
	Message     string
	DeviceClock float64
	Offset      float64
}

// BuildRows sorts samples by device time and translates them against anchor.
// Samples that precede the anchor are returned as flagged and left out of rows.
func BuildRows(samples []stream.Sample, anchor clocksync.Anchor, loc *time.Location) ([]Row, []stream.Sample) {
	if loc == nil {
		loc = time.Local
	}

	sorted := make([]stream.Sample, len(samples))
	copy(sorted, samples)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })

	rows := make([]Row, 0, len(sorted))

	var flagged []stream.Sample

	for _, sample := range sorted {
		wall, err := clocksync.ToWallClock(sample.Timestamp, anchor)
		if err != nil {
			flagged = append(flagged, sample)

			continue
		}

		rows = append(rows, Row{
			WallClock:   wall.In(loc).Format(WallClockLayout),
			Source:      sample.SourceKey,
			Message:     sample.Message(),
			DeviceClock: sample.Timestamp,
			Offset:      sample.Timestamp - anchor.Device,
		})
	}

	return rows, flagged
}

// FlaggedRows translates samples that precede anchor. Offsets stay negative
// and the wall clock is extrapolated backwards from the anchor.
func FlaggedRows(samples []stream.Sample, anchor clocksync.Anchor, loc *time.Location) []Row {
	if loc == nil {
		loc = time.Local
	}

	rows := make([]Row, 0, len(samples))

	for _, sample := range samples {
		offset := sample.Timestamp - anchor.Device

		rows = append(rows, Row{
			WallClock:   anchor.Wall.Add(safeconv.SecondsToDuration(offset)).In(loc).Format(WallClockLayout),
			Source:      sample.SourceKey,
			Message:     sample.Message(),
			DeviceClock: sample.Timestamp,
			Offset:      offset,
		})
	}

	return rows
}
