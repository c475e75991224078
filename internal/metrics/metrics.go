package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes application metrics that are safe to scrape via Prometheus.
type Metrics struct {
	registry              *prometheus.Registry
	httpRequests          *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec
	reportRunsTotal       prometheus.Counter
	reportRunDuration     prometheus.Histogram
	observationsIngested  *prometheus.CounterVec
	recordsDropped        *prometheus.CounterVec
	probeTransitionsTotal *prometheus.CounterVec
}

// New creates a fresh Metrics registry with HTTP, ingest, report, and probe
// metrics registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "encwatch",
		Name:      "http_requests_total",
		Help:      "Count of HTTP requests processed by core-go",
	}, []string{"method", "path", "status"})

	httpRequestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "encwatch",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests served by core-go",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	reportRunsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "encwatch",
		Name:      "report_runs_total",
		Help:      "Total number of report runs processed",
	})

	reportRunDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "encwatch",
		Name:      "report_run_duration_seconds",
		Help:      "Duration of report runs from claim to completion",
		Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	})

	observationsIngested := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "encwatch",
		Name:      "observations_ingested_total",
		Help:      "Count of observations stored, by ingest source",
	}, []string{"source"})

	recordsDropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "encwatch",
		Name:      "records_dropped_total",
		Help:      "Count of raw records dropped during normalization, by reason",
	}, []string{"reason"})

	probeTransitionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "encwatch",
		Name:      "probe_transitions_total",
		Help:      "Count of reachability transitions recorded by the SNMP prober",
	}, []string{"status"})

	registry.MustRegister(
		httpRequests,
		httpRequestDuration,
		reportRunsTotal,
		reportRunDuration,
		observationsIngested,
		recordsDropped,
		probeTransitionsTotal,
	)

	return &Metrics{
		registry:              registry,
		httpRequests:          httpRequests,
		httpRequestDuration:   httpRequestDuration,
		reportRunsTotal:       reportRunsTotal,
		reportRunDuration:     reportRunDuration,
		observationsIngested:  observationsIngested,
		recordsDropped:        recordsDropped,
		probeTransitionsTotal: probeTransitionsTotal,
	}
}

// ObserveHTTPRequest records a single HTTP request/response cycle.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"path":   path,
		"status": strconv.Itoa(status),
	}
	m.httpRequests.With(labels).Inc()
	m.httpRequestDuration.With(labels).Observe(duration.Seconds())
}

// IncReportRun increments the report run counter.
func (m *Metrics) IncReportRun() {
	if m == nil {
		return
	}
	m.reportRunsTotal.Inc()
}

// ObserveReportRunDuration observes a report run duration.
func (m *Metrics) ObserveReportRunDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.reportRunDuration.Observe(duration.Seconds())
}

// AddObservationsIngested counts stored observations for one ingest source.
func (m *Metrics) AddObservationsIngested(source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.observationsIngested.WithLabelValues(source).Add(float64(n))
}

// AddRecordsDropped counts records dropped during normalization.
func (m *Metrics) AddRecordsDropped(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.recordsDropped.WithLabelValues(reason).Add(float64(n))
}

// IncProbeTransition counts one recorded reachability transition.
func (m *Metrics) IncProbeTransition(status string) {
	if m == nil {
		return
	}
	m.probeTransitionsTotal.WithLabelValues(status).Inc()
}

// Handler exposes the Prometheus registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics unavailable"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
