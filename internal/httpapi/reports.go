package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"encwatch/core-go/internal/downtime"
	"encwatch/core-go/internal/sqlcgen"
)

type reportCreate struct {
	WindowStart *string  `json:"window_start,omitempty"`
	WindowEnd   *string  `json:"window_end,omitempty"`
	Devices     []string `json:"devices,omitempty"`
	AsOf        *string  `json:"as_of,omitempty"`
}

type reportRun struct {
	ID          string         `json:"id"`
	Status      string         `json:"status"`
	Params      map[string]any `json:"params"`
	Stats       map[string]any `json:"stats"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	LastError   *string        `json:"last_error,omitempty"`
}

func toReportRun(r sqlcgen.ReportRun) reportRun {
	return reportRun{
		ID:          r.ID,
		Status:      r.Status,
		Params:      r.Params,
		Stats:       r.Stats,
		CreatedAt:   r.CreatedAt,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		LastError:   r.LastError,
	}
}

type reportInterval struct {
	Device        string     `json:"device"`
	OfflineAt     time.Time  `json:"offline_at"`
	OnlineAt      *time.Time `json:"online_at,omitempty"`
	Seconds       float64    `json:"seconds"`
	Duration      string     `json:"duration"`
	Status        string     `json:"status"`
	DisplayStatus string     `json:"display_status"`
}

type reportSummary struct {
	Device          string     `json:"device"`
	CurrentStatus   string     `json:"current_status"`
	OngoingCount    int32      `json:"ongoing_count"`
	LastOfflineAt   time.Time  `json:"last_offline_at"`
	LastOnlineAt    *time.Time `json:"last_online_at,omitempty"`
	TotalEvents     int32      `json:"total_events"`
	TotalSeconds    float64    `json:"total_seconds"`
	TotalDuration   string     `json:"total_duration"`
	CurrentSeconds  *float64   `json:"current_seconds,omitempty"`
	CurrentDuration *string    `json:"current_duration,omitempty"`
}

type reportLogLine struct {
	ID        int64     `json:"id"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// reportParams validates the request and builds the jsonb params document
// the worker will read. Window bounds and as_of arrive in the day-first
// record format and are stored as RFC 3339.
func reportParams(req reportCreate) (map[string]any, error) {
	params := map[string]any{}

	var start, end time.Time
	if req.WindowStart != nil {
		t, err := downtime.ParseRecordTime(*req.WindowStart)
		if err != nil {
			return nil, fmt.Errorf("window_start: %w", err)
		}
		start = t
		params["window_start"] = t.UTC().Format(time.RFC3339)
	}
	if req.WindowEnd != nil {
		t, err := downtime.ParseRecordTime(*req.WindowEnd)
		if err != nil {
			return nil, fmt.Errorf("window_end: %w", err)
		}
		end = t
		params["window_end"] = t.UTC().Format(time.RFC3339)
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return nil, errors.New("window_end precedes window_start")
	}

	devices := make([]string, 0, len(req.Devices))
	for _, d := range req.Devices {
		if d = strings.TrimSpace(d); d != "" {
			devices = append(devices, d)
		}
	}
	if len(devices) > 0 {
		params["devices"] = devices
	}

	if req.AsOf != nil {
		t, err := downtime.ParseRecordTime(*req.AsOf)
		if err != nil {
			return nil, fmt.Errorf("as_of: %w", err)
		}
		params["as_of"] = t.UTC().Format(time.RFC3339)
	}

	return params, nil
}

func (h *Handler) handleCreateReport(w http.ResponseWriter, r *http.Request) {
	var req reportCreate
	if r.ContentLength != 0 {
		if err := decodeJSONStrict(r, &req); err != nil {
			h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
			return
		}
	}

	params, err := reportParams(req)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", err.Error(), nil)
		return
	}

	if !h.ensureReports(w) {
		return
	}

	run, err := h.reports.InsertReportRun(r.Context(), sqlcgen.InsertReportRunParams{
		Status: "queued",
		Params: params,
		Stats:  map[string]any{"stage": "queued"},
	})
	if err != nil {
		h.log.Error().Err(err).Msg("queue report run failed")
		h.writeError(w, http.StatusInternalServerError, "db_error", "failed to queue report run", nil)
		return
	}

	h.writeJSON(w, http.StatusAccepted, toReportRun(run))
}

func (h *Handler) handleGetReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.ensureReports(w) {
		return
	}

	run, err := h.reports.GetReportRun(r.Context(), id)
	if err != nil {
		h.writeReportLookupError(w, err, id)
		return
	}

	h.writeJSON(w, http.StatusOK, toReportRun(run))
}

func (h *Handler) handleGetLatestReport(w http.ResponseWriter, r *http.Request) {
	if !h.ensureReports(w) {
		return
	}

	run, err := h.reports.GetLatestReportRun(r.Context())
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			h.writeError(w, http.StatusNotFound, "not_found", "no report runs yet", nil)
			return
		}
		h.log.Error().Err(err).Msg("get latest report run failed")
		h.writeError(w, http.StatusInternalServerError, "db_error", "failed to fetch latest report run", nil)
		return
	}

	h.writeJSON(w, http.StatusOK, toReportRun(run))
}

func (h *Handler) writeReportLookupError(w http.ResponseWriter, err error, id string) {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		h.writeError(w, http.StatusNotFound, "not_found", "report run not found", map[string]any{"id": id})
	case isInvalidUUID(err):
		h.writeError(w, http.StatusBadRequest, "invalid_id", "report run id is not a valid uuid", map[string]any{"id": id})
	default:
		h.log.Error().Err(err).Str("id", id).Msg("get report run failed")
		h.writeError(w, http.StatusInternalServerError, "db_error", "failed to fetch report run", nil)
	}
}

func (h *Handler) handleListReportIntervals(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.ensureReports(w) {
		return
	}

	if _, err := h.reports.GetReportRun(r.Context(), id); err != nil {
		h.writeReportLookupError(w, err, id)
		return
	}

	rows, err := h.reports.ListReportIntervals(r.Context(), id)
	if err != nil {
		h.log.Error().Err(err).Str("id", id).Msg("list report intervals failed")
		h.writeError(w, http.StatusInternalServerError, "db_error", "failed to list report intervals", nil)
		return
	}

	resp := make([]reportInterval, 0, len(rows))
	for _, iv := range rows {
		resp = append(resp, reportInterval{
			Device:        iv.Device,
			OfflineAt:     iv.OfflineAt,
			OnlineAt:      iv.OnlineAt,
			Seconds:       iv.Seconds,
			Duration:      iv.Duration,
			Status:        iv.Status,
			DisplayStatus: iv.DisplayStatus,
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleListReportSummaries(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.ensureReports(w) {
		return
	}

	if _, err := h.reports.GetReportRun(r.Context(), id); err != nil {
		h.writeReportLookupError(w, err, id)
		return
	}

	rows, err := h.reports.ListReportSummaries(r.Context(), id)
	if err != nil {
		h.log.Error().Err(err).Str("id", id).Msg("list report summaries failed")
		h.writeError(w, http.StatusInternalServerError, "db_error", "failed to list report summaries", nil)
		return
	}

	resp := make([]reportSummary, 0, len(rows))
	for _, s := range rows {
		resp = append(resp, reportSummary{
			Device:          s.Device,
			CurrentStatus:   s.CurrentStatus,
			OngoingCount:    s.OngoingCount,
			LastOfflineAt:   s.LastOfflineAt,
			LastOnlineAt:    s.LastOnlineAt,
			TotalEvents:     s.TotalEvents,
			TotalSeconds:    s.TotalSeconds,
			TotalDuration:   s.TotalDuration,
			CurrentSeconds:  s.CurrentSeconds,
			CurrentDuration: s.CurrentDuration,
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleListReportLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.ensureReports(w) {
		return
	}

	arg := sqlcgen.ListReportRunLogsParams{RunID: id, Limit: 100}

	q := r.URL.Query()
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeError(w, http.StatusBadRequest, "validation_failed", "limit must be a positive integer", nil)
			return
		}
		if n > 500 {
			n = 500
		}
		arg.Limit = int32(n)
	}
	// Cursor values round-trip from created_at/id of the previous page.
	if raw := q.Get("before_created_at"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "validation_failed", "before_created_at must be RFC 3339", nil)
			return
		}
		arg.BeforeCreatedAt = &t
	}
	if raw := q.Get("before_id"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "validation_failed", "before_id must be an integer", nil)
			return
		}
		arg.BeforeID = &n
	}

	if _, err := h.reports.GetReportRun(r.Context(), id); err != nil {
		h.writeReportLookupError(w, err, id)
		return
	}

	rows, err := h.reports.ListReportRunLogs(r.Context(), arg)
	if err != nil {
		h.log.Error().Err(err).Str("id", id).Msg("list report run logs failed")
		h.writeError(w, http.StatusInternalServerError, "db_error", "failed to list report run logs", nil)
		return
	}

	resp := make([]reportLogLine, 0, len(rows))
	for _, line := range rows {
		resp = append(resp, reportLogLine{
			ID:        line.ID,
			Level:     line.Level,
			Message:   line.Message,
			CreatedAt: line.CreatedAt,
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}
