// Package metrics exposes Prometheus metrics for the detection service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "roadwatch"

// Metrics holds the collectors on a private registry so tests and multiple
// service instances do not collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	requests         *prometheus.CounterVec
	detections       *prometheus.CounterVec
	duplicateFrames  prometheus.Counter
	inferenceSeconds prometheus.Histogram
	wsConnections    prometheus.Gauge
	ledgerFailures   prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Handled requests by endpoint and status code",
		}, []string{"endpoint", "code"}),
		detections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detections_total",
			Help:      "Detected objects by class",
		}, []string{"class"}),
		duplicateFrames: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_frames_total",
			Help:      "Frames skipped because their content was already counted",
		}),
		inferenceSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_duration_seconds",
			Help:      "Latency of detector calls",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		wsConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_connections",
			Help:      "Open WebSocket connections",
		}),
		ledgerFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_failures_total",
			Help:      "Ledger writes that failed",
		}),
	}
}

func (m *Metrics) ObserveRequest(endpoint string, code int) {
	m.requests.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
}

func (m *Metrics) ObserveDetections(classNames []string) {
	for _, name := range classNames {
		m.detections.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) ObserveDuplicateFrame() {
	m.duplicateFrames.Inc()
}

func (m *Metrics) ObserveInference(d time.Duration) {
	m.inferenceSeconds.Observe(d.Seconds())
}

func (m *Metrics) ConnectionOpened() { m.wsConnections.Inc() }
func (m *Metrics) ConnectionClosed() { m.wsConnections.Dec() }

func (m *Metrics) ObserveLedgerFailure() {
	m.ledgerFailures.Inc()
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
