package downtime

import "time"

// IntervalStatus is the internal three-way classification of an interval.
type IntervalStatus string

const (
	Completed    IntervalStatus = "Completed"
	Ongoing      IntervalStatus = "Ongoing"
	Intermediate IntervalStatus = "Intermediate"
)

// Interval is one offline-to-(possibly absent)-online span for a device.
// The extractor creates it, the resolver finalizes status and duration, and
// nothing mutates it after that.
type Interval struct {
	Device    string
	OfflineAt time.Time
	OnlineAt  *time.Time
	Seconds   float64
	Duration  string
	Status    IntervalStatus
	// DisplayStatus folds Intermediate into Completed for presentation;
	// Status keeps the three-way split for aggregation.
	DisplayStatus IntervalStatus
}

// IsOngoing reports whether the device had not returned online as of the
// analysis instant. The aggregator counts on the internal status, not the
// display label.
func (iv Interval) IsOngoing() bool {
	return iv.Status == Ongoing
}

// extractIntervals emits one raw interval per offline event in a device
// sequence. Provisional status comes from the immediate neighbors:
// Completed when the next event is online, Ongoing when the previous event
// was online, Intermediate otherwise.
func extractIntervals(device string, seq []sequencedEvent) []Interval {
	var out []Interval
	for _, e := range seq {
		if e.Status != StatusOffline {
			continue
		}

		iv := Interval{Device: device, OfflineAt: e.At}
		switch {
		case e.hasNext && e.next == StatusOnline:
			onlineAt := e.nextAt
			iv.OnlineAt = &onlineAt
			iv.Status = Completed
			iv.Seconds = clampSeconds(onlineAt.Sub(e.At))
		case e.hasPrev && e.prev == StatusOnline:
			iv.Status = Ongoing
		default:
			iv.Status = Intermediate
		}
		out = append(out, iv)
	}
	return out
}

// resolveIntervals reconciles provisional classifications and finalizes every
// duration against the shared resolve instant.
func resolveIntervals(intervals []Interval, resolveAt time.Time) {
	for i := range intervals {
		iv := &intervals[i]

		// An online bound is authoritative even when an unknown reading sat
		// between the offline event and the recovery.
		if iv.OnlineAt != nil && iv.Status == Ongoing {
			iv.Status = Completed
		}

		iv.Seconds = iv.resolveSeconds(resolveAt)
		iv.Duration = FormatSeconds(iv.Seconds)

		iv.DisplayStatus = Completed
		if iv.Status == Ongoing {
			iv.DisplayStatus = Ongoing
		}
	}
}

// resolveSeconds applies the three-branch duration rule: completed intervals
// use their online bound, intervals with a known later online time use that,
// and open-ended intervals accrue until the resolve instant.
func (iv *Interval) resolveSeconds(resolveAt time.Time) float64 {
	switch {
	case iv.Status == Completed:
		return clampSeconds(iv.OnlineAt.Sub(iv.OfflineAt))
	case iv.OnlineAt != nil:
		return clampSeconds(iv.OnlineAt.Sub(iv.OfflineAt))
	default:
		return clampSeconds(resolveAt.Sub(iv.OfflineAt))
	}
}

func clampSeconds(d time.Duration) float64 {
	if d < 0 {
		return 0
	}
	return d.Seconds()
}
