package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"encwatch/core-go/internal/downtime"
	"encwatch/core-go/internal/ingest"
)

func (h *Handler) handleImportObservations(w http.ResponseWriter, r *http.Request) {
	if !h.ensureImporter(w) {
		return
	}

	res, err := h.importer.ImportReader(r.Context(), r.Body, "api")
	if err != nil {
		var colErr *ingest.MissingColumnError
		var fieldErr *downtime.MissingFieldError
		switch {
		case errors.As(err, &colErr):
			h.writeError(w, http.StatusBadRequest, "missing_column", colErr.Error(), map[string]any{"column": colErr.Column})
		case errors.As(err, &fieldErr):
			h.writeError(w, http.StatusBadRequest, "missing_field", fieldErr.Error(), map[string]any{"row": fieldErr.Row, "field": fieldErr.Field})
		default:
			h.log.Error().Err(err).Msg("observation import failed")
			h.writeError(w, http.StatusInternalServerError, "import_failed", "failed to import observations", nil)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"rows":     res.Rows,
		"inserted": res.Inserted,
		"dropped": map[string]any{
			"bad_time":        res.DroppedBadTime,
			"other_channel":   res.FilteredChannel,
			"outside_window":  res.FilteredWindow,
			"filtered_device": res.FilteredDevice,
		},
	})
}

// handlePreviewReport runs the whole pipeline synchronously on the posted
// CSV without touching storage, so the service is useful with no database.
func (h *Handler) handlePreviewReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	opts := downtime.NormalizeOptions{}
	if raw := q.Get("window_start"); raw != "" {
		t, err := downtime.ParseRecordTime(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "validation_failed", "window_start: "+err.Error(), nil)
			return
		}
		opts.WindowStart = t
	}
	if raw := q.Get("window_end"); raw != "" {
		t, err := downtime.ParseRecordTime(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "validation_failed", "window_end: "+err.Error(), nil)
			return
		}
		opts.WindowEnd = t
	}
	if !opts.WindowStart.IsZero() && !opts.WindowEnd.IsZero() && opts.WindowEnd.Before(opts.WindowStart) {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "window_end precedes window_start", nil)
		return
	}
	for _, raw := range q["devices"] {
		for _, d := range strings.Split(raw, ",") {
			if d = strings.TrimSpace(d); d != "" {
				opts.Devices = append(opts.Devices, d)
			}
		}
	}

	builderOpts := downtime.Options{}
	if raw := q.Get("as_of"); raw != "" {
		t, err := downtime.ParseRecordTime(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "validation_failed", "as_of: "+err.Error(), nil)
			return
		}
		builderOpts.Now = func() time.Time { return t }
	}

	records, err := ingest.ReadRecords(r.Body)
	if err != nil {
		var colErr *ingest.MissingColumnError
		if errors.As(err, &colErr) {
			h.writeError(w, http.StatusBadRequest, "missing_column", colErr.Error(), map[string]any{"column": colErr.Column})
			return
		}
		h.writeError(w, http.StatusBadRequest, "invalid_csv", err.Error(), nil)
		return
	}

	events, stats, err := downtime.Normalize(records, opts)
	if err != nil {
		var fieldErr *downtime.MissingFieldError
		if errors.As(err, &fieldErr) {
			h.writeError(w, http.StatusBadRequest, "missing_field", fieldErr.Error(), map[string]any{"row": fieldErr.Row, "field": fieldErr.Field})
			return
		}
		h.writeError(w, http.StatusBadRequest, "validation_failed", err.Error(), nil)
		return
	}

	rep, err := downtime.NewBuilder(builderOpts).Build(r.Context(), events)
	if err != nil {
		h.log.Error().Err(err).Msg("report preview failed")
		h.writeError(w, http.StatusInternalServerError, "report_failed", "failed to build report", nil)
		return
	}

	intervals := make([]reportInterval, 0, len(rep.Intervals))
	for _, iv := range rep.Intervals {
		intervals = append(intervals, reportInterval{
			Device:        iv.Device,
			OfflineAt:     iv.OfflineAt,
			OnlineAt:      iv.OnlineAt,
			Seconds:       iv.Seconds,
			Duration:      iv.Duration,
			Status:        string(iv.Status),
			DisplayStatus: string(iv.DisplayStatus),
		})
	}

	summaries := make([]reportSummary, 0, len(rep.Summaries))
	for _, s := range rep.Summaries {
		row := reportSummary{
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
			row.CurrentSeconds = &cs
			row.CurrentDuration = &cd
		}
		summaries = append(summaries, row)
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"resolved_at":   rep.ResolvedAt,
		"aggregated_at": rep.AggregatedAt,
		"stats": map[string]any{
			"rows":            stats.Rows,
			"events":          stats.Events,
			"bad_time":        stats.DroppedBadTime,
			"other_channel":   stats.FilteredChannel,
			"outside_window":  stats.FilteredWindow,
			"filtered_device": stats.FilteredDevice,
		},
		"intervals": intervals,
		"summaries": summaries,
	})
}
