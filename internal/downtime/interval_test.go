package downtime

import (
	"testing"
	"time"
)

func sequencedFor(t *testing.T, device string, events []Event) []sequencedEvent {
	t.Helper()
	seq, ok := deviceSequences(events)[device]
	if !ok {
		t.Fatalf("expected a sequence for %q", device)
	}
	return seq
}

func TestExtractIntervals_PairsOfflineWithNextOnline(t *testing.T) {
	seq := sequencedFor(t, "cam-1", []Event{
		{Device: "cam-1", At: at(10, 0), Status: StatusOnline},
		{Device: "cam-1", At: at(10, 5), Status: StatusOffline},
		{Device: "cam-1", At: at(10, 12), Status: StatusOnline},
	})

	intervals := extractIntervals("cam-1", seq)
	if len(intervals) != 1 {
		t.Fatalf("expected 1 interval, got %d", len(intervals))
	}
	iv := intervals[0]
	if !iv.OfflineAt.Equal(at(10, 5)) {
		t.Fatalf("expected offline at 10:05, got %v", iv.OfflineAt)
	}
	if iv.OnlineAt == nil || !iv.OnlineAt.Equal(at(10, 12)) {
		t.Fatalf("expected online at 10:12, got %v", iv.OnlineAt)
	}
	if iv.Status != Completed {
		t.Fatalf("expected Completed, got %v", iv.Status)
	}
	if iv.Seconds != 420 {
		t.Fatalf("expected 420 seconds, got %v", iv.Seconds)
	}
}

func TestExtractIntervals_OngoingTail(t *testing.T) {
	seq := sequencedFor(t, "cam-1", []Event{
		{Device: "cam-1", At: at(9, 0), Status: StatusOnline},
		{Device: "cam-1", At: at(9, 30), Status: StatusOffline},
	})

	intervals := extractIntervals("cam-1", seq)
	if len(intervals) != 1 {
		t.Fatalf("expected 1 interval, got %d", len(intervals))
	}
	if intervals[0].Status != Ongoing {
		t.Fatalf("expected Ongoing, got %v", intervals[0].Status)
	}
	if intervals[0].OnlineAt != nil {
		t.Fatalf("expected no online bound, got %v", intervals[0].OnlineAt)
	}
}

func TestExtractIntervals_IntermediateCases(t *testing.T) {
	cases := []struct {
		name   string
		events []Event
		want   int
	}{
		{
			name: "consecutive offlines",
			events: []Event{
				{Device: "cam-1", At: at(9, 0), Status: StatusOffline},
				{Device: "cam-1", At: at(9, 10), Status: StatusOffline},
				{Device: "cam-1", At: at(9, 20), Status: StatusOnline},
			},
			// The first offline has an offline successor; only the second pairs up.
			want: 2,
		},
		{
			name: "offline is the first event",
			events: []Event{
				{Device: "cam-1", At: at(9, 0), Status: StatusOffline},
			},
			want: 1,
		},
		{
			name: "unknown reading before recovery",
			events: []Event{
				{Device: "cam-1", At: at(9, 0), Status: StatusOnline},
				{Device: "cam-1", At: at(9, 10), Status: StatusOffline},
				{Device: "cam-1", At: at(9, 15), Status: StatusUnknown},
				{Device: "cam-1", At: at(9, 20), Status: StatusOnline},
			},
			want: 1,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seq := sequencedFor(t, "cam-1", tc.events)
			intervals := extractIntervals("cam-1", seq)
			if len(intervals) != tc.want {
				t.Fatalf("expected %d intervals, got %d", tc.want, len(intervals))
			}
		})
	}

	// Consecutive offlines: the earlier one is neither completed nor a live tail.
	seq := sequencedFor(t, "cam-1", cases[0].events)
	intervals := extractIntervals("cam-1", seq)
	if intervals[0].Status != Intermediate {
		t.Fatalf("expected Intermediate for the first offline, got %v", intervals[0].Status)
	}
	if intervals[1].Status != Completed {
		t.Fatalf("expected Completed for the paired offline, got %v", intervals[1].Status)
	}

	// An offline with no predecessor at all is Intermediate, not Ongoing.
	seq = sequencedFor(t, "cam-1", cases[1].events)
	if got := extractIntervals("cam-1", seq)[0].Status; got != Intermediate {
		t.Fatalf("expected Intermediate for a leading offline, got %v", got)
	}

	// An unknown reading between offline and recovery blocks the pairing,
	// leaving an Ongoing interval without an online bound.
	seq = sequencedFor(t, "cam-1", cases[2].events)
	if got := extractIntervals("cam-1", seq)[0]; got.Status != Ongoing || got.OnlineAt != nil {
		t.Fatalf("expected unbounded Ongoing, got %+v", got)
	}
}

func TestResolveIntervals_ReclassifiesBoundedOngoing(t *testing.T) {
	online := at(9, 20)
	intervals := []Interval{{
		Device:    "cam-1",
		OfflineAt: at(9, 10),
		OnlineAt:  &online,
		Status:    Ongoing,
	}}

	resolveIntervals(intervals, at(12, 0))

	if intervals[0].Status != Completed {
		t.Fatalf("expected a bounded interval to resolve Completed, got %v", intervals[0].Status)
	}
	if intervals[0].Seconds != 600 {
		t.Fatalf("expected 600 seconds from the online bound, got %v", intervals[0].Seconds)
	}
	if intervals[0].Duration != "00:10:00" {
		t.Fatalf("expected 00:10:00, got %q", intervals[0].Duration)
	}
	if intervals[0].DisplayStatus != Completed {
		t.Fatalf("expected Completed display status, got %v", intervals[0].DisplayStatus)
	}
}

func TestResolveIntervals_OngoingAccruesToResolveInstant(t *testing.T) {
	intervals := []Interval{{
		Device:    "cam-1",
		OfflineAt: at(9, 30),
		Status:    Ongoing,
	}}

	resolveIntervals(intervals, at(10, 0))

	if intervals[0].Seconds != 1800 {
		t.Fatalf("expected 1800 seconds, got %v", intervals[0].Seconds)
	}
	if intervals[0].Duration != "00:30:00" {
		t.Fatalf("expected 00:30:00, got %q", intervals[0].Duration)
	}
	if intervals[0].DisplayStatus != Ongoing {
		t.Fatalf("expected Ongoing display status, got %v", intervals[0].DisplayStatus)
	}
}

func TestResolveIntervals_IntermediateFoldsIntoCompletedForDisplay(t *testing.T) {
	intervals := []Interval{{
		Device:    "cam-1",
		OfflineAt: at(9, 0),
		Status:    Intermediate,
	}}

	resolveIntervals(intervals, at(9, 45))

	if intervals[0].Status != Intermediate {
		t.Fatalf("expected internal status to stay Intermediate, got %v", intervals[0].Status)
	}
	if intervals[0].DisplayStatus != Completed {
		t.Fatalf("expected Intermediate to display as Completed, got %v", intervals[0].DisplayStatus)
	}
	if intervals[0].Seconds != 2700 {
		t.Fatalf("expected 2700 seconds to the resolve instant, got %v", intervals[0].Seconds)
	}
}

func TestResolveIntervals_ClampsClockSkewToZero(t *testing.T) {
	intervals := []Interval{{
		Device:    "cam-1",
		OfflineAt: at(11, 0),
		Status:    Ongoing,
	}}

	// Resolve instant earlier than the offline event.
	resolveIntervals(intervals, at(10, 0))

	if intervals[0].Seconds != 0 {
		t.Fatalf("expected skewed duration clamped to 0, got %v", intervals[0].Seconds)
	}
	if intervals[0].Duration != "00:00:00" {
		t.Fatalf("expected 00:00:00, got %q", intervals[0].Duration)
	}
}
