package api

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts ledger operations by outcome and records their latency.
// Each instance owns its registry so tests can build as many as they like.
type Metrics struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
}

// Operation results as recorded in the "result" label.
const (
	resultOK         = "ok"
	resultValidation = "validation"
	resultStorage    = "storage"
	resultIO         = "io"
	resultBadRequest = "invalid_request"
)

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "inventory_ledger",
				Name:      "operations_total",
				Help:      "Ledger operations by name and result.",
			},
			[]string{"op", "result"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "inventory_ledger",
				Name:      "operation_duration_seconds",
				Help:      "Ledger operation latency, including the view rebuild.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"op"},
		),
	}
	m.registry.MustRegister(m.operations, m.latency)
	return m
}

func (m *Metrics) observe(op, result string, started time.Time) {
	m.operations.WithLabelValues(op, result).Inc()
	m.latency.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
