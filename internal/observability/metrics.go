package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the bridge's Prometheus collectors. Each instance owns its
// registry so tests and multiple servers never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	ActiveConnections prometheus.Gauge
	AuthAttempts      *prometheus.CounterVec
	FramesReceived    *prometheus.CounterVec
	Dispatches        *prometheus.CounterVec
	Relays            *prometheus.CounterVec
}

// NewMetrics creates and registers the bridge collectors, including the
// standard Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mcbridge",
			Name:      "active_connections",
			Help:      "Authenticated game-side connections currently registered.",
		}),
		AuthAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mcbridge",
			Name:      "auth_attempts_total",
			Help:      "Authentication attempts by result.",
		}, []string{"result"}),
		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mcbridge",
			Name:      "frames_received_total",
			Help:      "Frames received from authenticated connections by envelope type.",
		}, []string{"type"}),
		Dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mcbridge",
			Name:      "dispatch_sends_total",
			Help:      "Per-connection dispatch sends by kind and result.",
		}, []string{"kind", "result"}),
		Relays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mcbridge",
			Name:      "relay_deliveries_total",
			Help:      "Chat-side relay deliveries by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ActiveConnections,
		m.AuthAttempts,
		m.FramesReceived,
		m.Dispatches,
		m.Relays,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry for inspection.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// Result labels a success/failure outcome.
func Result(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}
