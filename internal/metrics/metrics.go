package metrics

import (
	"net/http"
	"strconv"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shared_notes"

// Metrics holds Prometheus metrics for the server.
type Metrics struct {
	RequestCounter   *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight *prometheus.GaugeVec
	NoteOperations   *prometheus.CounterVec
	WebSocketClients prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics registers every collector on a fresh registry so several
// instances can coexist in one process.
func NewMetrics(subsystem string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		RequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
		RequestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "requests_in_flight",
				Help:      "Number of HTTP requests currently being processed",
			},
			[]string{"route"},
		),
		NoteOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "note_operations_total",
				Help:      "Shared note service operations by outcome",
			},
			[]string{"operation", "result"},
		),
		WebSocketClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "websocket_clients",
				Help:      "Number of registered websocket subscribers",
			},
		),
		registry: reg,
	}
}

func (m *Metrics) RecordNoteOperation(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.NoteOperations.WithLabelValues(op, result).Inc()
}

func (m *Metrics) ClientRegistered() {
	m.WebSocketClients.Inc()
}

func (m *Metrics) ClientUnregistered() {
	m.WebSocketClients.Dec()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware tracks every request by its mux route template so ids do not
// explode label cardinality.
func (m *Metrics) Middleware() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := routeName(r)

			m.RequestsInFlight.WithLabelValues(route).Inc()
			defer m.RequestsInFlight.WithLabelValues(route).Dec()

			stats := httpsnoop.CaptureMetrics(next, w, r)

			m.RequestDuration.WithLabelValues(route, r.Method).Observe(stats.Duration.Seconds())
			m.RequestCounter.WithLabelValues(route, r.Method, strconv.Itoa(stats.Code)).Inc()
		})
	}
}

func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}
