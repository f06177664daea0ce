package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics covers the delivered-batch audit consumer.
type WorkerMetrics struct {
	registry *prometheus.Registry

	eventsTotal    *prometheus.CounterVec
	eventDuration  *prometheus.HistogramVec
	eventsInFlight prometheus.Gauge
	deliveryLag    *prometheus.HistogramVec
	filesTotal     *prometheus.CounterVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	eventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dug",
			Subsystem: "worker",
			Name:      "upload_events_total",
			Help:      "Total handled upload events by status.",
		},
		[]string{"service", "status"},
	)
	eventDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dug",
			Subsystem: "worker",
			Name:      "upload_event_duration_seconds",
			Help:      "Upload event handling duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	eventsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "dug",
			Subsystem: "worker",
			Name:      "upload_events_in_flight",
			Help:      "Number of upload events being handled.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	deliveryLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dug",
			Subsystem: "worker",
			Name:      "delivery_lag_seconds",
			Help:      "Delay between backend delivery and event handling.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"service"},
	)
	filesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dug",
			Subsystem: "worker",
			Name:      "delivered_files_total",
			Help:      "Total files reported in delivered batches by proxy mode.",
		},
		[]string{"service", "mode"},
	)

	registry.MustRegister(eventsTotal, eventDuration, eventsInFlight, deliveryLag, filesTotal)

	return &WorkerMetrics{
		registry:       registry,
		eventsTotal:    eventsTotal,
		eventDuration:  eventDuration,
		eventsInFlight: eventsInFlight,
		deliveryLag:    deliveryLag,
		filesTotal:     filesTotal,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartEvent() {
	m.eventsInFlight.Inc()
}

func (m *WorkerMetrics) FinishEvent(service string, duration time.Duration, err error) {
	m.eventsInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.eventsTotal.WithLabelValues(service, status).Inc()
	m.eventDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveDelivery(service, mode string, files int, lag time.Duration) {
	if mode == "" {
		mode = "unknown"
	}
	if files > 0 {
		m.filesTotal.WithLabelValues(service, mode).Add(float64(files))
	}
	if lag >= 0 {
		m.deliveryLag.WithLabelValues(service).Observe(lag.Seconds())
	}
}
