package downtime

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Options tunes a report build.
type Options struct {
	// Now supplies the analysis clock. Defaults to time.Now; tests freeze it.
	Now func() time.Time
	// Workers bounds the per-device fan-out.
	Workers int
}

// Builder runs the downtime pipeline over normalized events.
type Builder struct {
	now     func() time.Time
	workers int
}

func NewBuilder(opts Options) *Builder {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 8
	}
	return &Builder{now: now, workers: workers}
}

// Report holds the two terminal tables of one pipeline run. Intervals are
// ordered by (device, offline time, input order); summaries by device.
type Report struct {
	ResolvedAt   time.Time
	AggregatedAt time.Time
	Intervals    []Interval
	Summaries    []DeviceSummary
}

// Build sequences the events, extracts and resolves intervals, and aggregates
// summaries. Device groups are processed by a worker pool; both analysis
// instants are sampled back to back before fan-out so every group shares them.
func (b *Builder) Build(ctx context.Context, events []Event) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resolveAt := b.now()
	aggregateAt := b.now()

	sequences := deviceSequences(events)
	devices := make([]string, 0, len(sequences))
	for d := range sequences {
		devices = append(devices, d)
	}
	sort.Strings(devices)

	type deviceResult struct {
		intervals []Interval
		summary   *DeviceSummary
	}
	results := make([]deviceResult, len(devices))

	workers := b.workers
	if workers > len(devices) {
		workers = len(devices)
	}

	jobs := make(chan int)
	wg := sync.WaitGroup{}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				device := devices[idx]
				intervals := extractIntervals(device, sequences[device])
				resolveIntervals(intervals, resolveAt)

				r := deviceResult{intervals: intervals}
				if len(intervals) > 0 {
					s := summarize(device, intervals, aggregateAt)
					r.summary = &s
				}
				results[idx] = r
			}
		}()
	}

	for idx := range devices {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return nil, ctx.Err()
		case jobs <- idx:
		}
	}
	close(jobs)
	wg.Wait()

	report := &Report{
		ResolvedAt:   resolveAt,
		AggregatedAt: aggregateAt,
		Intervals:    make([]Interval, 0, len(events)),
		Summaries:    make([]DeviceSummary, 0, len(devices)),
	}
	for _, r := range results {
		report.Intervals = append(report.Intervals, r.intervals...)
		if r.summary != nil {
			report.Summaries = append(report.Summaries, *r.summary)
		}
	}

	if err := report.Validate(); err != nil {
		return nil, err
	}
	return report, nil
}

// Validate checks the cross-table invariants. A non-nil error is a pipeline
// defect, not a data condition.
func (r *Report) Validate() error {
	perDevice := make(map[string]int)
	for i := range r.Intervals {
		iv := &r.Intervals[i]
		if iv.Status == Completed && iv.OnlineAt == nil {
			return fmt.Errorf("interval %d (device %q): completed without an online time", i, iv.Device)
		}
		if iv.Seconds < 0 {
			return fmt.Errorf("interval %d (device %q): negative duration %.3f", i, iv.Device, iv.Seconds)
		}
		perDevice[iv.Device]++
	}

	for _, s := range r.Summaries {
		if got := perDevice[s.Device]; s.TotalEvents != got {
			return fmt.Errorf("summary for %q: total events %d, interval table has %d", s.Device, s.TotalEvents, got)
		}
		if s.OngoingCount > s.TotalEvents {
			return fmt.Errorf("summary for %q: ongoing count %d exceeds total events %d", s.Device, s.OngoingCount, s.TotalEvents)
		}
		if s.OngoingCount > 0 {
			if s.CurrentSeconds == nil {
				return fmt.Errorf("summary for %q: ongoing but no current downtime", s.Device)
			}
			if s.TotalSeconds < *s.CurrentSeconds {
				return fmt.Errorf("summary for %q: total %.0fs below current %.0fs", s.Device, s.TotalSeconds, *s.CurrentSeconds)
			}
			if s.CurrentStatus != CurrentOffline {
				return fmt.Errorf("summary for %q: ongoing but status %q", s.Device, s.CurrentStatus)
			}
		} else if s.CurrentStatus != CurrentOnline {
			return fmt.Errorf("summary for %q: nothing ongoing but status %q", s.Device, s.CurrentStatus)
		}
	}
	return nil
}
