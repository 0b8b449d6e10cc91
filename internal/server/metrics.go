package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the Prometheus collectors updated by the engine and the listener.
// A nil *Metrics is valid and records nothing
type Metrics struct {
	cmdCount    *prometheus.CounterVec
	cmdDuration *prometheus.HistogramVec
	clients     prometheus.Gauge
}

// NewMetrics creates the collectors and registers them in reg
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		cmdCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lettuce_commands_total",
			Help: "Number of processed commands by name and outcome.",
		}, []string{"command", "status"}),
		cmdDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lettuce_command_duration_seconds",
			Help:    "Command execution latency.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10), // 10µs .. ~2.6s
		}, []string{"command"}),
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lettuce_connected_clients",
			Help: "Number of open client connections.",
		}),
	}

	for _, c := range []prometheus.Collector{m.cmdCount, m.cmdDuration, m.clients} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// observe records one executed command. Unregistered names share one label value
func (m *Metrics) observe(name string, failed bool, elapsed time.Duration) {
	if m == nil {
		return
	}

	if _, ok := commandRegistry[name]; !ok {
		name = "unknown"
	}

	status := "ok"
	if failed {
		status = "error"
	}

	m.cmdCount.WithLabelValues(name, status).Inc()
	m.cmdDuration.WithLabelValues(name).Observe(elapsed.Seconds())
}

func (m *Metrics) clientConnected() {
	if m != nil {
		m.clients.Inc()
	}
}

func (m *Metrics) clientDisconnected() {
	if m != nil {
		m.clients.Dec()
	}
}
