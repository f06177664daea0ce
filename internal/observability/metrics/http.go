package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPServerMetrics owns the gateway registry: HTTP traffic plus staging,
// submission and proxy outcomes.
type HTTPServerMetrics struct {
	registry *prometheus.Registry
	service  string

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	stagingRejectedTotal *prometheus.CounterVec
	submissionsTotal     *prometheus.CounterVec
	submissionDuration   *prometheus.HistogramVec
	submissionFiles      *prometheus.HistogramVec
	proxyRequestsTotal   *prometheus.CounterVec
	activeSessions       prometheus.GaugeFunc
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dug",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dug",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "dug",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	stagingRejectedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dug",
			Subsystem: "staging",
			Name:      "rejected_files_total",
			Help:      "Files dropped at staging time by reason.",
		},
		[]string{"service", "reason"},
	)
	submissionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dug",
			Subsystem: "submission",
			Name:      "batches_total",
			Help:      "Submitted batches by outcome.",
		},
		[]string{"service", "status"},
	)
	submissionDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dug",
			Subsystem: "submission",
			Name:      "duration_seconds",
			Help:      "Batch submission duration in seconds by outcome.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"service", "status"},
	)
	submissionFiles := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dug",
			Subsystem: "submission",
			Name:      "batch_files",
			Help:      "Number of files per submitted batch.",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 40, 50},
		},
		[]string{"service"},
	)
	proxyRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dug",
			Subsystem: "proxy",
			Name:      "requests_total",
			Help:      "Upload proxy requests by mode and resulting status.",
		},
		[]string{"service", "mode", "status"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		stagingRejectedTotal,
		submissionsTotal,
		submissionDuration,
		submissionFiles,
		proxyRequestsTotal,
	)

	return &HTTPServerMetrics{
		registry:             registry,
		service:              service,
		requestTotal:         requestTotal,
		requestDuration:      requestDuration,
		requestInFlight:      requestInFlight,
		stagingRejectedTotal: stagingRejectedTotal,
		submissionsTotal:     submissionsTotal,
		submissionDuration:   submissionDuration,
		submissionFiles:      submissionFiles,
		proxyRequestsTotal:   proxyRequestsTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// TrackSessions exposes the live session count through fn. Only the first
// call registers the gauge.
func (m *HTTPServerMetrics) TrackSessions(fn func() int) {
	if m.activeSessions != nil {
		return
	}
	m.activeSessions = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace:   "dug",
			Subsystem:   "staging",
			Name:        "active_sessions",
			Help:        "Number of live staging sessions.",
			ConstLabels: prometheus.Labels{"service": m.service},
		},
		func() float64 { return float64(fn()) },
	)
	m.registry.MustRegister(m.activeSessions)
}

func (m *HTTPServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			m.service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(m.service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// knownPaths are the fixed routes. Any other path that matches no templated
// route shares the otherPath label.
var knownPaths = map[string]struct{}{
	"/":                     {},
	"/healthz":              {},
	"/api/upload":           {},
	"/ui/files":             {},
	"/ui/files/remove-last": {},
	"/ui/submit":            {},
}

const otherPath = "other"

func normalizePath(path string) string {
	if _, ok := knownPaths[path]; ok {
		return path
	}
	switch {
	case strings.HasPrefix(path, "/ui/previews/"):
		return "/ui/previews/{token}"
	case strings.HasPrefix(path, "/ui/files/") && strings.HasSuffix(path, "/fields"):
		return "/ui/files/{id}/fields"
	case strings.HasPrefix(path, "/ui/files/") && strings.HasSuffix(path, "/remove"):
		return "/ui/files/{id}/remove"
	case strings.HasPrefix(path, "/static/"):
		return "/static/{asset}"
	default:
		return otherPath
	}
}

func (m *HTTPServerMetrics) RecordStagingRejected(reason string, count int) {
	if count <= 0 {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.stagingRejectedTotal.WithLabelValues(m.service, reason).Add(float64(count))
}

func (m *HTTPServerMetrics) RecordSubmission(status string, files int, duration time.Duration) {
	if status == "" {
		status = "unknown"
	}
	m.submissionsTotal.WithLabelValues(m.service, status).Inc()
	m.submissionDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())
	if files > 0 {
		m.submissionFiles.WithLabelValues(m.service).Observe(float64(files))
	}
}

func (m *HTTPServerMetrics) RecordProxyRequest(mode, status string) {
	if mode == "" {
		mode = "unknown"
	}
	if status == "" {
		status = "unknown"
	}
	m.proxyRequestsTotal.WithLabelValues(m.service, mode, status).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
