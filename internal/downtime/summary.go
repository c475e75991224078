package downtime

import (
	"math"
	"time"
)

// Current device status labels for the summary table.
const (
	CurrentOnline  = "Online"
	CurrentOffline = "Offline"
)

// DeviceSummary is the one-row-per-device rollup of resolved intervals.
// Devices with no intervals in the filtered window do not get a row.
type DeviceSummary struct {
	Device          string
	CurrentStatus   string
	OngoingCount    int
	LastOfflineAt   time.Time
	LastOnlineAt    *time.Time
	TotalEvents     int
	TotalSeconds    float64
	TotalDuration   string
	CurrentSeconds  *float64
	CurrentDuration string
}

// summarize reduces one device's resolved intervals to a summary row.
// Intervals must be in ascending offline-time order and non-empty.
func summarize(device string, intervals []Interval, aggregateAt time.Time) DeviceSummary {
	last := intervals[len(intervals)-1]

	var total float64
	ongoing := 0
	for _, iv := range intervals {
		total += iv.Seconds
		if iv.IsOngoing() {
			ongoing++
		}
	}

	sum := DeviceSummary{
		Device:        device,
		CurrentStatus: CurrentOnline,
		OngoingCount:  ongoing,
		LastOfflineAt: last.OfflineAt,
		LastOnlineAt:  last.OnlineAt,
		TotalEvents:   len(intervals),
		TotalSeconds:  math.Round(total),
	}

	if ongoing > 0 {
		sum.CurrentStatus = CurrentOffline
		current := math.Round(clampSeconds(aggregateAt.Sub(last.OfflineAt)))
		sum.CurrentSeconds = &current
		sum.CurrentDuration = FormatSeconds(current)

		// The aggregate instant is sampled after the resolve instant, so the
		// still-accruing outage can outgrow the summed total. The total must
		// never read smaller than the current outage.
		if current > sum.TotalSeconds {
			sum.TotalSeconds = current
		}
	}

	sum.TotalDuration = FormatSeconds(sum.TotalSeconds)
	return sum
}
