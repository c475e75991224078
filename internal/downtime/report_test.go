package downtime

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"
)

func frozenClock(instant time.Time) func() time.Time {
	return func() time.Time { return instant }
}

func buildFromRecords(t *testing.T, records []Record, opts Options) *Report {
	t.Helper()
	events, _, err := Normalize(records, NormalizeOptions{})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	report, err := NewBuilder(opts).Build(context.Background(), events)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return report
}

func TestBuild_RecoveredOutage(t *testing.T) {
	report := buildFromRecords(t, []Record{
		{Device: "D1", Time: "01-11-2023 10:00:00", Label: "encoding online"},
		{Device: "D1", Time: "01-11-2023 10:05:00", Label: "encoding offline"},
		{Device: "D1", Time: "01-11-2023 10:12:00", Label: "encoding online"},
	}, Options{Now: frozenClock(at(12, 0))})

	if len(report.Intervals) != 1 {
		t.Fatalf("expected 1 interval, got %d", len(report.Intervals))
	}
	iv := report.Intervals[0]
	if iv.Device != "D1" || !iv.OfflineAt.Equal(at(10, 5)) {
		t.Fatalf("expected D1 offline at 10:05, got %+v", iv)
	}
	if iv.OnlineAt == nil || !iv.OnlineAt.Equal(at(10, 12)) {
		t.Fatalf("expected online at 10:12, got %v", iv.OnlineAt)
	}
	if iv.Status != Completed || iv.Seconds != 420 || iv.Duration != "00:07:00" {
		t.Fatalf("expected Completed 420s, got %+v", iv)
	}

	if len(report.Summaries) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(report.Summaries))
	}
	sum := report.Summaries[0]
	if sum.CurrentStatus != CurrentOnline || sum.OngoingCount != 0 {
		t.Fatalf("expected Online with no ongoing outage, got %+v", sum)
	}
	if sum.TotalEvents != 1 || sum.TotalSeconds != 420 {
		t.Fatalf("expected 1 event totalling 420s, got %+v", sum)
	}
}

func TestBuild_OngoingOutage(t *testing.T) {
	report := buildFromRecords(t, []Record{
		{Device: "D2", Time: "01-11-2023 09:00:00", Label: "encoding online"},
		{Device: "D2", Time: "01-11-2023 09:30:00", Label: "encoding offline"},
	}, Options{Now: frozenClock(at(10, 0))})

	iv := report.Intervals[0]
	if iv.Status != Ongoing || iv.OnlineAt != nil {
		t.Fatalf("expected unbounded Ongoing interval, got %+v", iv)
	}
	if iv.Seconds != 1800 || iv.Duration != "00:30:00" {
		t.Fatalf("expected 1800s, got %+v", iv)
	}

	sum := report.Summaries[0]
	if sum.CurrentStatus != CurrentOffline || sum.OngoingCount != 1 {
		t.Fatalf("expected Offline with 1 ongoing outage, got %+v", sum)
	}
	if sum.CurrentSeconds == nil || *sum.CurrentSeconds != 1800 {
		t.Fatalf("expected current 1800, got %v", sum.CurrentSeconds)
	}
	if sum.TotalSeconds < 1800 {
		t.Fatalf("expected total to cover the live outage, got %v", sum.TotalSeconds)
	}
}

func TestBuild_OrdersDevicesAndIntervals(t *testing.T) {
	report := buildFromRecords(t, []Record{
		{Device: "cam-b", Time: "01-11-2023 09:00:00", Label: "encoding offline"},
		{Device: "cam-a", Time: "01-11-2023 10:00:00", Label: "encoding offline"},
		{Device: "cam-a", Time: "01-11-2023 08:00:00", Label: "encoding offline"},
	}, Options{Now: frozenClock(at(12, 0))})

	if len(report.Intervals) != 3 {
		t.Fatalf("expected 3 intervals, got %d", len(report.Intervals))
	}
	if report.Intervals[0].Device != "cam-a" || !report.Intervals[0].OfflineAt.Equal(at(8, 0)) {
		t.Fatalf("expected cam-a 08:00 first, got %+v", report.Intervals[0])
	}
	if report.Intervals[1].Device != "cam-a" || !report.Intervals[1].OfflineAt.Equal(at(10, 0)) {
		t.Fatalf("expected cam-a 10:00 second, got %+v", report.Intervals[1])
	}
	if report.Intervals[2].Device != "cam-b" {
		t.Fatalf("expected cam-b last, got %+v", report.Intervals[2])
	}

	if len(report.Summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(report.Summaries))
	}
	if report.Summaries[0].Device != "cam-a" || report.Summaries[1].Device != "cam-b" {
		t.Fatalf("expected summaries ordered by device, got %+v", report.Summaries)
	}
}

func TestBuild_DeterministicAcrossRuns(t *testing.T) {
	records := []Record{
		{Device: "cam-c", Time: "01-11-2023 09:00:00", Label: "encoding offline"},
		{Device: "cam-a", Time: "01-11-2023 09:05:00", Label: "encoding online"},
		{Device: "cam-a", Time: "01-11-2023 09:10:00", Label: "encoding offline"},
		{Device: "cam-b", Time: "01-11-2023 09:15:00", Label: "encoding offline"},
		{Device: "cam-b", Time: "01-11-2023 09:25:00", Label: "encoding online"},
	}
	opts := Options{Now: frozenClock(at(10, 0)), Workers: 2}

	first := buildFromRecords(t, records, opts)
	second := buildFromRecords(t, records, opts)

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical reports across runs:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestBuild_SharedInstantsKeepTotalsConsistent(t *testing.T) {
	// A clock that moves between samples. Both instants are taken before
	// fan-out, so the summary sees a current outage five seconds past the
	// resolved interval and lifts the total to match.
	instants := []time.Time{at(10, 0), at(10, 0).Add(5 * time.Second)}
	calls := 0
	clock := func() time.Time {
		instant := instants[calls]
		calls++
		return instant
	}

	report := buildFromRecords(t, []Record{
		{Device: "D2", Time: "01-11-2023 09:00:00", Label: "encoding online"},
		{Device: "D2", Time: "01-11-2023 09:30:00", Label: "encoding offline"},
	}, Options{Now: clock})

	if calls != 2 {
		t.Fatalf("expected exactly 2 clock samples, got %d", calls)
	}
	if report.Intervals[0].Seconds != 1800 {
		t.Fatalf("expected interval resolved at the first instant, got %v", report.Intervals[0].Seconds)
	}
	sum := report.Summaries[0]
	if sum.CurrentSeconds == nil || *sum.CurrentSeconds != 1805 {
		t.Fatalf("expected current 1805, got %v", sum.CurrentSeconds)
	}
	if sum.TotalSeconds != 1805 {
		t.Fatalf("expected total lifted to current, got %v", sum.TotalSeconds)
	}
}

func TestBuild_EmptyInput(t *testing.T) {
	report, err := NewBuilder(Options{Now: frozenClock(at(10, 0))}).Build(context.Background(), nil)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(report.Intervals) != 0 || len(report.Summaries) != 0 {
		t.Fatalf("expected empty report, got %+v", report)
	}
}

func TestBuild_DeviceWithoutOfflineEventsHasNoSummary(t *testing.T) {
	report := buildFromRecords(t, []Record{
		{Device: "healthy", Time: "01-11-2023 09:00:00", Label: "encoding online"},
		{Device: "flaky", Time: "01-11-2023 09:30:00", Label: "encoding offline"},
	}, Options{Now: frozenClock(at(10, 0))})

	if len(report.Summaries) != 1 || report.Summaries[0].Device != "flaky" {
		t.Fatalf("expected only flaky to be summarized, got %+v", report.Summaries)
	}
}

func TestBuild_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewBuilder(Options{}).Build(ctx, []Event{
		{Device: "cam-1", At: at(9, 0), Status: StatusOffline},
	})
	if err == nil {
		t.Fatalf("expected context error")
	}
}

func TestValidate_RejectsCompletedWithoutOnlineBound(t *testing.T) {
	report := &Report{
		Intervals: []Interval{{Device: "cam-1", OfflineAt: at(9, 0), Status: Completed}},
		Summaries: []DeviceSummary{{Device: "cam-1", CurrentStatus: CurrentOnline, TotalEvents: 1}},
	}

	err := report.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "completed without an online time") {
		t.Fatalf("unexpected validation message: %v", err)
	}
}

func TestValidate_RejectsEventCountMismatch(t *testing.T) {
	online := at(9, 10)
	report := &Report{
		Intervals: []Interval{{Device: "cam-1", OfflineAt: at(9, 0), OnlineAt: &online, Seconds: 600, Status: Completed}},
		Summaries: []DeviceSummary{{Device: "cam-1", CurrentStatus: CurrentOnline, TotalEvents: 2, TotalSeconds: 600}},
	}

	if err := report.Validate(); err == nil {
		t.Fatalf("expected validation error for mismatched event count")
	}
}
