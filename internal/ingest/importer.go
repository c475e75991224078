package ingest

import (
	"context"
	"io"

	"github.com/rs/zerolog"

	"encwatch/core-go/internal/downtime"
	"encwatch/core-go/internal/metrics"
	"encwatch/core-go/internal/sqlcgen"
)

// Queries is the minimal DB interface the importer needs.
type Queries interface {
	InsertObservation(ctx context.Context, arg sqlcgen.InsertObservationParams) error
	UpsertDeviceSeen(ctx context.Context, arg sqlcgen.UpsertDeviceSeenParams) (sqlcgen.Device, error)
}

type Importer struct {
	log     zerolog.Logger
	q       Queries
	metrics *metrics.Metrics
}

func NewImporter(log zerolog.Logger, q Queries, m *metrics.Metrics) *Importer {
	return &Importer{log: log, q: q, metrics: m}
}

// Result reports one import: the normalization tallies plus rows stored.
type Result struct {
	downtime.Stats
	Inserted int
}

// ImportReader normalizes a CSV stream and stores the surviving events as
// observations, then refreshes the device registry from the newest event per
// device. source tags the rows ("csv", "mqtt", "probe", "api").
func (imp *Importer) ImportReader(ctx context.Context, r io.Reader, source string) (Result, error) {
	records, err := ReadRecords(r)
	if err != nil {
		return Result{}, err
	}
	return imp.ImportRecords(ctx, records, source)
}

// ImportRecords is ImportReader for callers that already hold raw records.
func (imp *Importer) ImportRecords(ctx context.Context, records []downtime.Record, source string) (Result, error) {
	events, stats, err := downtime.Normalize(records, downtime.NormalizeOptions{})
	if err != nil {
		return Result{Stats: stats}, err
	}

	res := Result{Stats: stats}
	latest := make(map[string]downtime.Event)

	for _, e := range events {
		if err := imp.q.InsertObservation(ctx, sqlcgen.InsertObservationParams{
			DeviceName: e.Device,
			ObservedAt: e.At,
			Status:     string(e.Status),
			RawLabel:   e.Label,
			Source:     source,
		}); err != nil {
			return res, err
		}
		res.Inserted++

		if prev, ok := latest[e.Device]; !ok || e.At.After(prev.At) {
			latest[e.Device] = e
		}
	}

	for _, e := range latest {
		if _, err := imp.q.UpsertDeviceSeen(ctx, sqlcgen.UpsertDeviceSeenParams{
			Name:   e.Device,
			SeenAt: e.At,
			Status: string(e.Status),
		}); err != nil {
			return res, err
		}
	}

	if imp.metrics != nil {
		imp.metrics.AddObservationsIngested(source, res.Inserted)
		imp.metrics.AddRecordsDropped("bad_time", stats.DroppedBadTime)
		imp.metrics.AddRecordsDropped("other_channel", stats.FilteredChannel)
	}

	imp.log.Info().
		Str("source", source).
		Int("rows", stats.Rows).
		Int("inserted", res.Inserted).
		Int("dropped_bad_time", stats.DroppedBadTime).
		Int("filtered_channel", stats.FilteredChannel).
		Msg("observations imported")

	return res, nil
}
