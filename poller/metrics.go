package poller

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exports daemon snapshots as Prometheus gauges.
type Metrics struct {
	registry *prometheus.Registry

	running    prometheus.Gauge
	interrupts prometheus.Gauge
	rate       prometheus.Gauge
	runtime    prometheus.Gauge
}

// NewMetrics registers the daemon gauges on a private registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		running: factory.NewGauge(prometheus.GaugeOpts{
			Name: "opstart_daemon_running",
			Help: "Whether the profiling daemon is running (1) or not (0)",
		}),
		interrupts: factory.NewGauge(prometheus.GaugeOpts{
			Name: "opstart_daemon_interrupts",
			Help: "Sampling interrupts taken by the profiling daemon",
		}),
		rate: factory.NewGauge(prometheus.GaugeOpts{
			Name: "opstart_daemon_interrupts_per_second",
			Help: "Sampling interrupts per second over the last poll interval",
		}),
		runtime: factory.NewGauge(prometheus.GaugeOpts{
			Name: "opstart_daemon_runtime_seconds",
			Help: "Time the profiling daemon has been running",
		}),
	}
}

// Observe updates the gauges from a snapshot.
func (m *Metrics) Observe(s Snapshot) {
	if !s.Status.Running {
		m.running.Set(0)
		m.interrupts.Set(0)
		m.rate.Set(0)
		m.runtime.Set(0)
		return
	}
	m.running.Set(1)
	m.interrupts.Set(float64(s.Status.Interrupts))
	m.runtime.Set(s.Status.Runtime.Seconds())
	if s.HasRate {
		m.rate.Set(float64(s.Rate))
	}
}

// Registry returns the registry holding the gauges.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the gauges in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
