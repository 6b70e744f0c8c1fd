package twinstreams

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/twinstreams/metric"
	"github.com/c360/twinstreams/transport"
)

// clientMetrics covers what only the client itself knows: the connection
// state per channel. Bus, exchange and transport instruments live with
// their components.
type clientMetrics struct {
	connectionStatus *prometheus.GaugeVec
}

func newClientMetrics(name string, registrar metric.Registrar) *clientMetrics {
	m := &clientMetrics{
		connectionStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "client",
			Name:        "connection_status",
			Help:        "Connection state per channel: 1 when connected, 0 otherwise.",
			ConstLabels: prometheus.Labels{"client": name},
		}, []string{"channel"}),
	}
	_ = registrar.RegisterGaugeVec(name, "connection_status", m.connectionStatus)
	return m
}

func (m *clientMetrics) setStatus(channel string, status transport.Status) {
	if m == nil {
		return
	}
	v := 0.0
	if status == transport.StatusConnected {
		v = 1.0
	}
	m.connectionStatus.WithLabelValues(channel).Set(v)
}
