package reportworker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"encwatch/core-go/internal/downtime"
	"encwatch/core-go/internal/metrics"
	"encwatch/core-go/internal/sqlcgen"
)

// Queries is the minimal DB interface the report worker needs.
//
// NOTE: core-go uses sqlc for DB access. *sqlcgen.Queries satisfies this.
type Queries interface {
	ClaimNextReportRun(ctx context.Context, stats map[string]any) (sqlcgen.ReportRun, error)
	UpdateReportRun(ctx context.Context, arg sqlcgen.UpdateReportRunParams) (sqlcgen.ReportRun, error)
	InsertReportRunLog(ctx context.Context, arg sqlcgen.InsertReportRunLogParams) error
	ListObservations(ctx context.Context, arg sqlcgen.ListObservationsParams) ([]sqlcgen.Observation, error)
	InsertReportInterval(ctx context.Context, arg sqlcgen.InsertReportIntervalParams) error
	InsertReportSummary(ctx context.Context, arg sqlcgen.InsertReportSummaryParams) error
}

type Worker struct {
	log          zerolog.Logger
	q            Queries
	pollInterval time.Duration
	maxRuntime   time.Duration
	buildWorkers int
	now          func() time.Time
	metrics      *metrics.Metrics
}

type Options struct {
	PollInterval time.Duration
	MaxRuntime   time.Duration
	BuildWorkers int
	// Now supplies the analysis instant for runs without an as_of parameter.
	Now func() time.Time
}

func New(log zerolog.Logger, q Queries, opts Options, m *metrics.Metrics) *Worker {
	pi := opts.PollInterval
	if pi <= 0 {
		pi = 400 * time.Millisecond
	}
	mr := opts.MaxRuntime
	if mr <= 0 {
		mr = 30 * time.Second
	}
	bw := opts.BuildWorkers
	if bw <= 0 {
		bw = 8
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Worker{
		log:          log,
		q:            q,
		pollInterval: pi,
		maxRuntime:   mr,
		buildWorkers: bw,
		now:          now,
		metrics:      m,
	}
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.q == nil {
		return
	}

	timer := time.NewTimer(w.pollInterval)
	defer timer.Stop()

	var consecutiveFailures int
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		for {
			processed, err := w.runOnce(ctx)
			if err != nil {
				consecutiveFailures++
				break
			}
			consecutiveFailures = 0
			if !processed {
				break
			}
		}

		timer.Reset(backoffDuration(w.pollInterval, consecutiveFailures))
	}
}

func backoffDuration(base time.Duration, failures int) time.Duration {
	if base <= 0 {
		base = 400 * time.Millisecond
	}
	if failures <= 0 {
		return base
	}

	// Exponential-ish backoff: base * 2^failures, capped.
	if failures > 6 {
		failures = 6
	}
	d := base * time.Duration(1<<failures)
	if d > 10*time.Second {
		return 10 * time.Second
	}
	return d
}

func (w *Worker) runOnce(ctx context.Context) (bool, error) {
	// Claim a run.
	run, err := w.q.ClaimNextReportRun(ctx, map[string]any{
		"stage": "running",
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		w.log.Error().Err(err).Msg("report worker failed to claim next run")
		return false, err
	}

	if w.metrics != nil {
		w.metrics.IncReportRun()
	}
	start := time.Now()
	defer func() {
		if w.metrics != nil {
			w.metrics.ObserveReportRunDuration(time.Since(start))
		}
	}()

	w.log.Info().Str("run_id", run.ID).Msg("report run claimed")

	execCtx, cancel := context.WithTimeout(ctx, w.maxRuntime)
	defer cancel()

	if err := w.q.InsertReportRunLog(execCtx, sqlcgen.InsertReportRunLogParams{
		RunID:   run.ID,
		Level:   "info",
		Message: "report run started",
	}); err != nil {
		w.log.Warn().Err(err).Str("run_id", run.ID).Msg("failed to write report start log")
	}

	params, err := parseRunParams(run.Params)
	if err != nil {
		_ = w.q.InsertReportRunLog(execCtx, sqlcgen.InsertReportRunLogParams{
			RunID:   run.ID,
			Level:   "error",
			Message: "invalid report parameters: " + err.Error(),
		})
		_ = w.failRun(execCtx, run.ID, "invalid report parameters: "+err.Error(), nil)
		return true, err
	}

	observations, err := w.q.ListObservations(execCtx, sqlcgen.ListObservationsParams{
		WindowStart: params.windowStart,
		WindowEnd:   params.windowEnd,
		Devices:     params.devices,
	})
	if err != nil {
		_ = w.failRun(execCtx, run.ID, "load observations: "+err.Error(), params.statsSeed())
		return true, err
	}

	_ = w.q.InsertReportRunLog(execCtx, sqlcgen.InsertReportRunLogParams{
		RunID:   run.ID,
		Level:   "info",
		Message: fmt.Sprintf("observations loaded: %d", len(observations)),
	})

	events := make([]downtime.Event, len(observations))
	for i, o := range observations {
		events[i] = downtime.Event{
			Device: o.DeviceName,
			At:     o.ObservedAt,
			Status: downtime.Status(o.Status),
		}
	}

	clock := w.now
	if params.asOf != nil {
		asOf := *params.asOf
		clock = func() time.Time { return asOf }
	}
	builder := downtime.NewBuilder(downtime.Options{
		Now:     clock,
		Workers: w.buildWorkers,
	})

	report, err := builder.Build(execCtx, events)
	if err != nil {
		_ = w.q.InsertReportRunLog(execCtx, sqlcgen.InsertReportRunLogParams{
			RunID:   run.ID,
			Level:   "error",
			Message: "report build failed: " + err.Error(),
		})
		_ = w.failRun(execCtx, run.ID, err.Error(), params.statsSeed())
		return true, err
	}

	for _, iv := range report.Intervals {
		if err := w.q.InsertReportInterval(execCtx, sqlcgen.InsertReportIntervalParams{
			RunID:         run.ID,
			Device:        iv.Device,
			OfflineAt:     iv.OfflineAt,
			OnlineAt:      iv.OnlineAt,
			Seconds:       iv.Seconds,
			Duration:      iv.Duration,
			Status:        string(iv.Status),
			DisplayStatus: string(iv.DisplayStatus),
		}); err != nil {
			_ = w.failRun(execCtx, run.ID, "store interval: "+err.Error(), params.statsSeed())
			return true, err
		}
	}

	for _, s := range report.Summaries {
		if err := w.q.InsertReportSummary(execCtx, summaryParams(run.ID, s)); err != nil {
			_ = w.failRun(execCtx, run.ID, "store summary: "+err.Error(), params.statsSeed())
			return true, err
		}
	}

	completedAt := time.Now()
	stats := params.statsSeed()
	stats["stage"] = "completed"
	stats["observations"] = len(observations)
	stats["intervals"] = len(report.Intervals)
	stats["devices_affected"] = len(report.Summaries)
	stats["resolved_at"] = report.ResolvedAt.UTC().Format(time.RFC3339Nano)
	stats["aggregated_at"] = report.AggregatedAt.UTC().Format(time.RFC3339Nano)
	if _, err := w.q.UpdateReportRun(execCtx, sqlcgen.UpdateReportRunParams{
		ID:          run.ID,
		Status:      "succeeded",
		Stats:       stats,
		CompletedAt: &completedAt,
		LastError:   nil,
	}); err != nil {
		w.log.Error().Err(err).Str("run_id", run.ID).Msg("failed to mark report run succeeded")

		_ = w.failRun(execCtx, run.ID, err.Error(), params.statsSeed())
		return true, err
	}

	if err := w.q.InsertReportRunLog(execCtx, sqlcgen.InsertReportRunLogParams{
		RunID:   run.ID,
		Level:   "info",
		Message: "report run completed",
	}); err != nil {
		w.log.Warn().Err(err).Str("run_id", run.ID).Msg("failed to write report completion log")
	}

	return true, nil
}

func (w *Worker) failRun(ctx context.Context, runID string, errMsg string, stats map[string]any) error {
	if stats == nil {
		stats = map[string]any{}
	}
	stats["stage"] = "failed"
	stats["runtime_budget_ms"] = int(w.maxRuntime.Milliseconds())

	// If the provided context is already canceled/deadlined, still try to mark the run failed
	// with a short background context so we don't leave it stuck in "running".
	if ctx == nil || ctx.Err() != nil {
		bg, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		ctx = bg
	}

	completedAt := time.Now()
	lastErr := errMsg
	_, err := w.q.UpdateReportRun(ctx, sqlcgen.UpdateReportRunParams{
		ID:          runID,
		Status:      "failed",
		Stats:       stats,
		CompletedAt: &completedAt,
		LastError:   &lastErr,
	})
	if err != nil {
		w.log.Error().Err(err).Str("run_id", runID).Msg("failed to mark report run failed")
		return err
	}

	_ = w.q.InsertReportRunLog(ctx, sqlcgen.InsertReportRunLogParams{
		RunID:   runID,
		Level:   "error",
		Message: "report run failed: " + errMsg,
	})

	return nil
}

func summaryParams(runID string, s downtime.DeviceSummary) sqlcgen.InsertReportSummaryParams {
	arg := sqlcgen.InsertReportSummaryParams{
		RunID:         runID,
		Device:        s.Device,
		CurrentStatus: s.CurrentStatus,
		OngoingCount:  int32(s.OngoingCount),
		LastOfflineAt: s.LastOfflineAt,
		LastOnlineAt:  s.LastOnlineAt,
		TotalEvents:   int32(s.TotalEvents),
		TotalSeconds:  s.TotalSeconds,
		TotalDuration: s.TotalDuration,
	}
	if s.CurrentSeconds != nil {
		cs := *s.CurrentSeconds
		cd := s.CurrentDuration
		arg.CurrentSeconds = &cs
		arg.CurrentDuration = &cd
	}
	return arg
}
