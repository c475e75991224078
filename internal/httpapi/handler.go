package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"encwatch/core-go/internal/db"
	"encwatch/core-go/internal/ingest"
	"encwatch/core-go/internal/metrics"
	"encwatch/core-go/internal/sqlcgen"
)

// The storage seams the handlers go through. *sqlcgen.Queries satisfies the
// query interfaces; *ingest.Importer satisfies importSink.
type deviceQueries interface {
	ListDevices(ctx context.Context) ([]sqlcgen.Device, error)
}

type reportQueries interface {
	InsertReportRun(ctx context.Context, arg sqlcgen.InsertReportRunParams) (sqlcgen.ReportRun, error)
	GetReportRun(ctx context.Context, id string) (sqlcgen.ReportRun, error)
	GetLatestReportRun(ctx context.Context) (sqlcgen.ReportRun, error)
	ListReportIntervals(ctx context.Context, runID string) ([]sqlcgen.ReportInterval, error)
	ListReportSummaries(ctx context.Context, runID string) ([]sqlcgen.ReportSummary, error)
	ListReportRunLogs(ctx context.Context, arg sqlcgen.ListReportRunLogsParams) ([]sqlcgen.ReportRunLog, error)
}

type importSink interface {
	ImportReader(ctx context.Context, r io.Reader, source string) (ingest.Result, error)
}

type Handler struct {
	log     zerolog.Logger
	pool    *db.Pool
	metrics *metrics.Metrics

	devices  deviceQueries
	reports  reportQueries
	importer importSink
}

func NewHandler(log zerolog.Logger, pool *db.Pool, m *metrics.Metrics) *Handler {
	h := &Handler{log: log, pool: pool, metrics: m}
	if pool != nil {
		q := pool.Queries()
		h.devices = q
		h.reports = q
		h.importer = ingest.NewImporter(log, q, m)
	}
	return h
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(echoRequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Use(h.accessLog)

	// Health
	r.Get("/healthz", h.handleHealthz)
	r.Get("/readyz", h.handleReadyZ)
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())

	// API
	r.Route("/api", func(r chi.Router) {
		r.Route("/v1", func(r chi.Router) {
			r.Get("/devices", h.handleListDevices)

			r.Post("/observations/import", h.handleImportObservations)

			r.Route("/reports", func(r chi.Router) {
				r.Post("/", h.handleCreateReport)
				r.Post("/preview", h.handlePreviewReport)
				r.Get("/latest", h.handleGetLatestReport)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.handleGetReport)
					r.Get("/intervals", h.handleListReportIntervals)
					r.Get("/summary", h.handleListReportSummaries)
					r.Get("/logs", h.handleListReportLogs)
				})
			})
		})
	})

	return r
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		h.metrics.ObserveHTTPRequest(r.Method, route, ww.Status(), elapsed)

		h.log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Int64("duration_ms", elapsed.Milliseconds()).
			Msg("http_request")
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, msg string, details map[string]any) {
	resp := map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": msg,
		},
	}
	if details != nil {
		resp["error"].(map[string]any)["details"] = details
	}
	h.writeJSON(w, status, resp)
}

func decodeJSONStrict(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return errors.New("unexpected extra data after JSON body")
		}
		return err
	}
	return nil
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleReadyZ(w http.ResponseWriter, r *http.Request) {
	// Databaseless deployments serve previews only; they are still ready.
	if h.pool == nil {
		h.writeJSON(w, http.StatusOK, map[string]any{"ready": true, "storage": false})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.pool.Ping(ctx); err != nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not ready", map[string]any{"error": err.Error()})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"ready": true, "storage": true})
}

func (h *Handler) ensureDevices(w http.ResponseWriter) bool {
	if h.devices == nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not configured", nil)
		return false
	}
	return true
}

func (h *Handler) ensureReports(w http.ResponseWriter) bool {
	if h.reports == nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not configured", nil)
		return false
	}
	return true
}

func (h *Handler) ensureImporter(w http.ResponseWriter) bool {
	if h.importer == nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not configured", nil)
		return false
	}
	return true
}

func isInvalidUUID(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "22P02"
	}
	return false
}

type device struct {
	Name        string    `json:"name"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	LastStatus  string    `json:"last_status"`
}

func toDevice(d sqlcgen.Device) device {
	return device{
		Name:        d.Name,
		FirstSeenAt: d.FirstSeenAt,
		LastSeenAt:  d.LastSeenAt,
		LastStatus:  d.LastStatus,
	}
}

func (h *Handler) handleListDevices(w http.ResponseWriter, r *http.Request) {
	if !h.ensureDevices(w) {
		return
	}

	rows, err := h.devices.ListDevices(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("list devices failed")
		h.writeError(w, http.StatusInternalServerError, "db_error", "failed to list devices", nil)
		return
	}

	resp := make([]device, 0, len(rows))
	for _, d := range rows {
		resp = append(resp, toDevice(d))
	}

	h.writeJSON(w, http.StatusOK, resp)
}
