package downtime

import (
	"strings"
	"time"
)

// NormalizeOptions narrows the record set before status assignment. Zero
// values disable each filter.
type NormalizeOptions struct {
	// WindowStart and WindowEnd bound the kept instants inclusively.
	WindowStart time.Time
	WindowEnd   time.Time
	// Devices, when non-empty, keeps only the named devices.
	Devices []string
}

// Stats counts what Normalize kept and dropped. Drops are policy, not errors.
type Stats struct {
	Rows            int
	Events          int
	DroppedBadTime  int
	FilteredChannel int
	FilteredWindow  int
	FilteredDevice  int
}

// Normalize turns raw records into canonical events.
//
// A record with an empty device, time, or label field fails the whole call
// with a MissingFieldError. A non-empty timestamp that does not parse drops
// just that record. Records whose label is not on the encoding channel are
// excluded before status assignment.
func Normalize(records []Record, opts NormalizeOptions) ([]Event, Stats, error) {
	var deviceSet map[string]struct{}
	if len(opts.Devices) > 0 {
		deviceSet = make(map[string]struct{}, len(opts.Devices))
		for _, d := range opts.Devices {
			deviceSet[strings.TrimSpace(d)] = struct{}{}
		}
	}

	stats := Stats{Rows: len(records)}
	events := make([]Event, 0, len(records))

	for i, rec := range records {
		device := strings.TrimSpace(rec.Device)
		timeText := strings.TrimSpace(rec.Time)
		label := strings.TrimSpace(rec.Label)

		switch {
		case device == "":
			return nil, stats, &MissingFieldError{Field: "device", Row: i}
		case timeText == "":
			return nil, stats, &MissingFieldError{Field: "record_time", Row: i}
		case label == "":
			return nil, stats, &MissingFieldError{Field: "type", Row: i}
		}

		at, err := ParseRecordTime(timeText)
		if err != nil {
			stats.DroppedBadTime++
			continue
		}

		if !onEncodingChannel(label) {
			stats.FilteredChannel++
			continue
		}

		if (!opts.WindowStart.IsZero() && at.Before(opts.WindowStart)) ||
			(!opts.WindowEnd.IsZero() && at.After(opts.WindowEnd)) {
			stats.FilteredWindow++
			continue
		}

		if deviceSet != nil {
			if _, ok := deviceSet[device]; !ok {
				stats.FilteredDevice++
				continue
			}
		}

		events = append(events, Event{Device: device, At: at, Status: statusOf(label), Label: label})
	}

	stats.Events = len(events)
	return events, stats, nil
}
