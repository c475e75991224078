// Package downtime reduces per-device status observations to discrete
// downtime intervals and per-device rollup summaries.
package downtime

import (
	"fmt"
	"strings"
	"time"
)

// Status of a single normalized observation.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
	StatusUnknown Status = "unknown"
)

// Record is one raw row as supplied by an ingestion collaborator. Records are
// transient: they never outlive normalization.
type Record struct {
	Device string
	Time   string
	Label  string
}

// Event is one canonical (device, instant, status) observation. Label keeps
// the raw channel label the status was derived from.
type Event struct {
	Device string
	At     time.Time
	Status Status
	Label  string
}

// MissingFieldError reports a raw record that cannot enter the pipeline
// because a required field is empty.
type MissingFieldError struct {
	Field string
	Row   int
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("record %d is missing required field %q", e.Row, e.Field)
}

// Record timestamps are day-first and timezone-naive.
var recordTimeLayouts = []string{
	"02-01-2006 15:04:05",
	"02-01-2006 15:04",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02-01-2006",
	"02/01/2006",
}

// ParseRecordTime parses a day-first record timestamp.
func ParseRecordTime(text string) (time.Time, error) {
	s := strings.TrimSpace(text)
	for _, layout := range recordTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized record time %q", s)
}

// statusOf maps a type label to a status. The offline test runs after the
// online test and overwrites it, so a label carrying both reads as offline.
func statusOf(label string) Status {
	l := strings.ToLower(label)
	status := StatusUnknown
	if strings.Contains(l, "online") {
		status = StatusOnline
	}
	if strings.Contains(l, "offline") {
		status = StatusOffline
	}
	return status
}

// onEncodingChannel reports whether a label belongs to the monitored channel.
func onEncodingChannel(label string) bool {
	return strings.Contains(strings.ToLower(label), "encoding")
}
