package downtime

import (
	"testing"
	"time"
)

func TestSummarize_AllRecovered(t *testing.T) {
	online := at(10, 12)
	intervals := []Interval{{
		Device:    "cam-1",
		OfflineAt: at(10, 5),
		OnlineAt:  &online,
		Seconds:   420,
		Status:    Completed,
	}}

	sum := summarize("cam-1", intervals, at(12, 0))

	if sum.CurrentStatus != CurrentOnline {
		t.Fatalf("expected Online, got %q", sum.CurrentStatus)
	}
	if sum.OngoingCount != 0 {
		t.Fatalf("expected 0 ongoing, got %d", sum.OngoingCount)
	}
	if sum.TotalEvents != 1 {
		t.Fatalf("expected 1 event, got %d", sum.TotalEvents)
	}
	if sum.TotalSeconds != 420 {
		t.Fatalf("expected total 420, got %v", sum.TotalSeconds)
	}
	if sum.TotalDuration != "00:07:00" {
		t.Fatalf("expected 00:07:00, got %q", sum.TotalDuration)
	}
	if sum.CurrentSeconds != nil {
		t.Fatalf("expected no current outage, got %v", *sum.CurrentSeconds)
	}
	if sum.CurrentDuration != "" {
		t.Fatalf("expected empty current duration, got %q", sum.CurrentDuration)
	}
	if sum.LastOnlineAt == nil || !sum.LastOnlineAt.Equal(online) {
		t.Fatalf("expected last online at 10:12, got %v", sum.LastOnlineAt)
	}
}

func TestSummarize_OngoingOutage(t *testing.T) {
	intervals := []Interval{{
		Device:    "cam-1",
		OfflineAt: at(9, 30),
		Seconds:   1800,
		Status:    Ongoing,
	}}

	sum := summarize("cam-1", intervals, at(10, 0))

	if sum.CurrentStatus != CurrentOffline {
		t.Fatalf("expected Offline, got %q", sum.CurrentStatus)
	}
	if sum.OngoingCount != 1 {
		t.Fatalf("expected 1 ongoing, got %d", sum.OngoingCount)
	}
	if sum.CurrentSeconds == nil || *sum.CurrentSeconds != 1800 {
		t.Fatalf("expected current 1800, got %v", sum.CurrentSeconds)
	}
	if sum.CurrentDuration != "00:30:00" {
		t.Fatalf("expected 00:30:00, got %q", sum.CurrentDuration)
	}
	if sum.TotalSeconds < 1800 {
		t.Fatalf("expected total to cover the live outage, got %v", sum.TotalSeconds)
	}
	if sum.LastOnlineAt != nil {
		t.Fatalf("expected no last online time, got %v", sum.LastOnlineAt)
	}
}

func TestSummarize_TotalNeverBelowCurrent(t *testing.T) {
	// Interval resolved at 10:00:00, summary aggregated five seconds later.
	intervals := []Interval{{
		Device:    "cam-1",
		OfflineAt: at(9, 30),
		Seconds:   1800,
		Status:    Ongoing,
	}}
	aggregateAt := at(10, 0).Add(5 * time.Second)

	sum := summarize("cam-1", intervals, aggregateAt)

	if sum.CurrentSeconds == nil || *sum.CurrentSeconds != 1805 {
		t.Fatalf("expected current 1805, got %v", sum.CurrentSeconds)
	}
	if sum.TotalSeconds != 1805 {
		t.Fatalf("expected total lifted to 1805, got %v", sum.TotalSeconds)
	}
	if sum.TotalDuration != "00:30:05" {
		t.Fatalf("expected 00:30:05, got %q", sum.TotalDuration)
	}
}

func TestSummarize_LastFieldsComeFromLatestInterval(t *testing.T) {
	firstOnline := at(8, 10)
	secondOnline := at(9, 45)
	intervals := []Interval{
		{Device: "cam-1", OfflineAt: at(8, 0), OnlineAt: &firstOnline, Seconds: 600, Status: Completed},
		{Device: "cam-1", OfflineAt: at(9, 30), OnlineAt: &secondOnline, Seconds: 900, Status: Completed},
	}

	sum := summarize("cam-1", intervals, at(12, 0))

	if !sum.LastOfflineAt.Equal(at(9, 30)) {
		t.Fatalf("expected last offline 09:30, got %v", sum.LastOfflineAt)
	}
	if sum.LastOnlineAt == nil || !sum.LastOnlineAt.Equal(secondOnline) {
		t.Fatalf("expected last online 09:45, got %v", sum.LastOnlineAt)
	}
	if sum.TotalEvents != 2 {
		t.Fatalf("expected 2 events, got %d", sum.TotalEvents)
	}
	if sum.TotalSeconds != 1500 {
		t.Fatalf("expected total 1500, got %v", sum.TotalSeconds)
	}
}

func TestSummarize_RoundsFractionalTotals(t *testing.T) {
	online := at(10, 1)
	intervals := []Interval{
		{Device: "cam-1", OfflineAt: at(10, 0), OnlineAt: &online, Seconds: 0.4, Status: Completed},
		{Device: "cam-1", OfflineAt: at(10, 2), OnlineAt: &online, Seconds: 0.4, Status: Completed},
	}

	sum := summarize("cam-1", intervals, at(12, 0))

	if sum.TotalSeconds != 1 {
		t.Fatalf("expected fractional sum rounded to 1, got %v", sum.TotalSeconds)
	}
}
