package downtime

import (
	"sort"
	"time"
)

// sequencedEvent is an event annotated with its neighbors inside its own
// device sequence. Neighbor context never crosses devices.
type sequencedEvent struct {
	Event
	prev    Status
	next    Status
	nextAt  time.Time
	hasPrev bool
	hasNext bool
}

// deviceSequences groups events by device and orders each group ascending by
// timestamp. The sort is stable so input order breaks ties.
func deviceSequences(events []Event) map[string][]sequencedEvent {
	grouped := make(map[string][]Event)
	for _, e := range events {
		grouped[e.Device] = append(grouped[e.Device], e)
	}

	out := make(map[string][]sequencedEvent, len(grouped))
	for device, group := range grouped {
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].At.Before(group[j].At)
		})

		seq := make([]sequencedEvent, len(group))
		for i, e := range group {
			se := sequencedEvent{Event: e}
			if i > 0 {
				se.prev = group[i-1].Status
				se.hasPrev = true
			}
			if i < len(group)-1 {
				se.next = group[i+1].Status
				se.nextAt = group[i+1].At
				se.hasNext = true
			}
			seq[i] = se
		}
		out[device] = seq
	}
	return out
}
