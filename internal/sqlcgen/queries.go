package sqlcgen

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX matches the minimal interface needed from pgxpool.Pool or pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgx.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

const insertObservation = `-- name: InsertObservation :exec
INSERT INTO observations (device_name, observed_at, status, raw_label, source)
VALUES ($1, $2, $3, $4, $5)
`

type InsertObservationParams struct {
	DeviceName string
	ObservedAt time.Time
	Status     string
	RawLabel   string
	Source     string
}

func (q *Queries) InsertObservation(ctx context.Context, arg InsertObservationParams) error {
	_, err := q.db.Exec(ctx, insertObservation, arg.DeviceName, arg.ObservedAt, arg.Status, arg.RawLabel, arg.Source)
	return err
}

const listObservations = `-- name: ListObservations :many
SELECT id, device_name, observed_at, status, raw_label, source, ingested_at
FROM observations
WHERE ($1::timestamptz IS NULL OR observed_at >= $1)
  AND ($2::timestamptz IS NULL OR observed_at <= $2)
  AND (COALESCE(cardinality($3::text[]), 0) = 0 OR device_name = ANY($3::text[]))
ORDER BY device_name ASC, observed_at ASC, id ASC
`

type ListObservationsParams struct {
	WindowStart *time.Time
	WindowEnd   *time.Time
	Devices     []string
}

func (q *Queries) ListObservations(ctx context.Context, arg ListObservationsParams) ([]Observation, error) {
	rows, err := q.db.Query(ctx, listObservations, arg.WindowStart, arg.WindowEnd, arg.Devices)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Observation
	for rows.Next() {
		var i Observation
		if err := rows.Scan(
			&i.ID,
			&i.DeviceName,
			&i.ObservedAt,
			&i.Status,
			&i.RawLabel,
			&i.Source,
			&i.IngestedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listDevices = `-- name: ListDevices :many
SELECT name, first_seen_at, last_seen_at, last_status
FROM devices
ORDER BY name ASC
`

func (q *Queries) ListDevices(ctx context.Context) ([]Device, error) {
	rows, err := q.db.Query(ctx, listDevices)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Device
	for rows.Next() {
		var i Device
		if err := rows.Scan(&i.Name, &i.FirstSeenAt, &i.LastSeenAt, &i.LastStatus); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const upsertDeviceSeen = `-- name: UpsertDeviceSeen :one
INSERT INTO devices (name, first_seen_at, last_seen_at, last_status)
VALUES ($1, $2, $2, $3)
ON CONFLICT (name) DO UPDATE
SET first_seen_at = LEAST(devices.first_seen_at, EXCLUDED.first_seen_at),
    last_seen_at = GREATEST(devices.last_seen_at, EXCLUDED.last_seen_at),
    last_status = CASE
      WHEN EXCLUDED.last_seen_at >= devices.last_seen_at THEN EXCLUDED.last_status
      ELSE devices.last_status
    END
RETURNING name, first_seen_at, last_seen_at, last_status
`

type UpsertDeviceSeenParams struct {
	Name   string
	SeenAt time.Time
	Status string
}

// UpsertDeviceSeen records a sighting. Out-of-order sightings never move
// last_seen_at or last_status backwards.
func (q *Queries) UpsertDeviceSeen(ctx context.Context, arg UpsertDeviceSeenParams) (Device, error) {
	row := q.db.QueryRow(ctx, upsertDeviceSeen, arg.Name, arg.SeenAt, arg.Status)
	var i Device
	err := row.Scan(&i.Name, &i.FirstSeenAt, &i.LastSeenAt, &i.LastStatus)
	return i, err
}

const insertReportRun = `-- name: InsertReportRun :one
INSERT INTO report_runs (status, params, stats)
VALUES ($1, COALESCE($2, '{}'::jsonb), COALESCE($3, '{}'::jsonb))
RETURNING id, status, params, stats, created_at, started_at, completed_at, last_error
`

type InsertReportRunParams struct {
	Status string
	Params map[string]any
	Stats  map[string]any
}

func (q *Queries) InsertReportRun(ctx context.Context, arg InsertReportRunParams) (ReportRun, error) {
	row := q.db.QueryRow(ctx, insertReportRun, arg.Status, arg.Params, arg.Stats)
	var i ReportRun
	err := row.Scan(
		&i.ID,
		&i.Status,
		&i.Params,
		&i.Stats,
		&i.CreatedAt,
		&i.StartedAt,
		&i.CompletedAt,
		&i.LastError,
	)
	return i, err
}

const claimNextReportRun = `-- name: ClaimNextReportRun :one
WITH next AS (
  SELECT id
  FROM report_runs
  WHERE status = 'queued'
  ORDER BY created_at ASC
  LIMIT 1
  FOR UPDATE SKIP LOCKED
)
UPDATE report_runs rr
SET status = 'running',
    started_at = now(),
    stats = COALESCE($1, rr.stats),
    completed_at = NULL,
    last_error = NULL
FROM next
WHERE rr.id = next.id
RETURNING rr.id, rr.status, rr.params, rr.stats, rr.created_at, rr.started_at, rr.completed_at, rr.last_error
`

func (q *Queries) ClaimNextReportRun(ctx context.Context, stats map[string]any) (ReportRun, error) {
	row := q.db.QueryRow(ctx, claimNextReportRun, stats)
	var i ReportRun
	err := row.Scan(
		&i.ID,
		&i.Status,
		&i.Params,
		&i.Stats,
		&i.CreatedAt,
		&i.StartedAt,
		&i.CompletedAt,
		&i.LastError,
	)
	return i, err
}

const updateReportRun = `-- name: UpdateReportRun :one
UPDATE report_runs
SET status = $2,
    stats = COALESCE($3, stats),
    completed_at = $4,
    last_error = $5
WHERE id = $1
RETURNING id, status, params, stats, created_at, started_at, completed_at, last_error
`

type UpdateReportRunParams struct {
	ID          string
	Status      string
	Stats       map[string]any
	CompletedAt *time.Time
	LastError   *string
}

func (q *Queries) UpdateReportRun(ctx context.Context, arg UpdateReportRunParams) (ReportRun, error) {
	row := q.db.QueryRow(ctx, updateReportRun, arg.ID, arg.Status, arg.Stats, arg.CompletedAt, arg.LastError)
	var i ReportRun
	err := row.Scan(
		&i.ID,
		&i.Status,
		&i.Params,
		&i.Stats,
		&i.CreatedAt,
		&i.StartedAt,
		&i.CompletedAt,
		&i.LastError,
	)
	return i, err
}

const getReportRun = `-- name: GetReportRun :one
SELECT id, status, params, stats, created_at, started_at, completed_at, last_error
FROM report_runs
WHERE id = $1
`

func (q *Queries) GetReportRun(ctx context.Context, id string) (ReportRun, error) {
	row := q.db.QueryRow(ctx, getReportRun, id)
	var i ReportRun
	err := row.Scan(
		&i.ID,
		&i.Status,
		&i.Params,
		&i.Stats,
		&i.CreatedAt,
		&i.StartedAt,
		&i.CompletedAt,
		&i.LastError,
	)
	return i, err
}

const getLatestReportRun = `-- name: GetLatestReportRun :one
SELECT id, status, params, stats, created_at, started_at, completed_at, last_error
FROM report_runs
ORDER BY created_at DESC
LIMIT 1
`

func (q *Queries) GetLatestReportRun(ctx context.Context) (ReportRun, error) {
	row := q.db.QueryRow(ctx, getLatestReportRun)
	var i ReportRun
	err := row.Scan(
		&i.ID,
		&i.Status,
		&i.Params,
		&i.Stats,
		&i.CreatedAt,
		&i.StartedAt,
		&i.CompletedAt,
		&i.LastError,
	)
	return i, err
}

const insertReportRunLog = `-- name: InsertReportRunLog :exec
INSERT INTO report_run_logs (run_id, level, message)
VALUES ($1, $2, $3)
`

type InsertReportRunLogParams struct {
	RunID   string
	Level   string
	Message string
}

func (q *Queries) InsertReportRunLog(ctx context.Context, arg InsertReportRunLogParams) error {
	_, err := q.db.Exec(ctx, insertReportRunLog, arg.RunID, arg.Level, arg.Message)
	return err
}

const listReportRunLogs = `-- name: ListReportRunLogs :many
SELECT id, run_id, level, message, created_at
FROM report_run_logs
WHERE
	run_id = $1
	AND ($2::timestamptz IS NULL OR (created_at < $2 OR (created_at = $2 AND id < $3::bigint)))
ORDER BY created_at DESC, id DESC
LIMIT $4
`

type ListReportRunLogsParams struct {
	RunID           string
	BeforeCreatedAt *time.Time
	BeforeID        *int64
	Limit           int32
}

func (q *Queries) ListReportRunLogs(ctx context.Context, arg ListReportRunLogsParams) ([]ReportRunLog, error) {
	rows, err := q.db.Query(ctx, listReportRunLogs, arg.RunID, arg.BeforeCreatedAt, arg.BeforeID, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ReportRunLog
	for rows.Next() {
		var i ReportRunLog
		if err := rows.Scan(&i.ID, &i.RunID, &i.Level, &i.Message, &i.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const insertReportInterval = `-- name: InsertReportInterval :exec
INSERT INTO report_intervals (
  run_id,
  device,
  offline_at,
  online_at,
  seconds,
  duration,
  status,
  display_status
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`

type InsertReportIntervalParams struct {
	RunID         string
	Device        string
	OfflineAt     time.Time
	OnlineAt      *time.Time
	Seconds       float64
	Duration      string
	Status        string
	DisplayStatus string
}

func (q *Queries) InsertReportInterval(ctx context.Context, arg InsertReportIntervalParams) error {
	_, err := q.db.Exec(ctx, insertReportInterval,
		arg.RunID,
		arg.Device,
		arg.OfflineAt,
		arg.OnlineAt,
		arg.Seconds,
		arg.Duration,
		arg.Status,
		arg.DisplayStatus,
	)
	return err
}

const listReportIntervals = `-- name: ListReportIntervals :many
SELECT id, run_id, device, offline_at, online_at, seconds, duration, status, display_status
FROM report_intervals
WHERE run_id = $1
ORDER BY device ASC, offline_at ASC, id ASC
`

func (q *Queries) ListReportIntervals(ctx context.Context, runID string) ([]ReportInterval, error) {
	rows, err := q.db.Query(ctx, listReportIntervals, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ReportInterval
	for rows.Next() {
		var i ReportInterval
		if err := rows.Scan(
			&i.ID,
			&i.RunID,
			&i.Device,
			&i.OfflineAt,
			&i.OnlineAt,
			&i.Seconds,
			&i.Duration,
			&i.Status,
			&i.DisplayStatus,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const insertReportSummary = `-- name: InsertReportSummary :exec
INSERT INTO report_summaries (
  run_id,
  device,
  current_status,
  ongoing_count,
  last_offline_at,
  last_online_at,
  total_events,
  total_seconds,
  total_duration,
  current_seconds,
  current_duration
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
`

type InsertReportSummaryParams struct {
	RunID           string
	Device          string
	CurrentStatus   string
	OngoingCount    int32
	LastOfflineAt   time.Time
	LastOnlineAt    *time.Time
	TotalEvents     int32
	TotalSeconds    float64
	TotalDuration   string
	CurrentSeconds  *float64
	CurrentDuration *string
}

func (q *Queries) InsertReportSummary(ctx context.Context, arg InsertReportSummaryParams) error {
	_, err := q.db.Exec(ctx, insertReportSummary,
		arg.RunID,
		arg.Device,
		arg.CurrentStatus,
		arg.OngoingCount,
		arg.LastOfflineAt,
		arg.LastOnlineAt,
		arg.TotalEvents,
		arg.TotalSeconds,
		arg.TotalDuration,
		arg.CurrentSeconds,
		arg.CurrentDuration,
	)
	return err
}

const listReportSummaries = `-- name: ListReportSummaries :many
SELECT run_id, device, current_status, ongoing_count, last_offline_at, last_online_at,
       total_events, total_seconds, total_duration, current_seconds, current_duration
FROM report_summaries
WHERE run_id = $1
ORDER BY device ASC
`

func (q *Queries) ListReportSummaries(ctx context.Context, runID string) ([]ReportSummary, error) {
	rows, err := q.db.Query(ctx, listReportSummaries, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ReportSummary
	for rows.Next() {
		var i ReportSummary
		if err := rows.Scan(
			&i.RunID,
			&i.Device,
			&i.CurrentStatus,
			&i.OngoingCount,
			&i.LastOfflineAt,
			&i.LastOnlineAt,
			&i.TotalEvents,
			&i.TotalSeconds,
			&i.TotalDuration,
			&i.CurrentSeconds,
			&i.CurrentDuration,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
