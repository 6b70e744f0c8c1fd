package websocket

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/twinstreams/metric"
)

// transportMetrics instruments the connection lifecycle and frame traffic
type transportMetrics struct {
	messagesSent     prometheus.Counter
	messagesReceived prometheus.Counter
	connectionsTotal prometheus.Counter
	connectionActive prometheus.Gauge
	reconnectsTotal  prometheus.Counter
	errorsTotal      *prometheus.CounterVec
}

func newMetrics(registrar metric.Registrar) *transportMetrics {
	if registrar == nil {
		return nil
	}

	constLabels := prometheus.Labels{"transport": "websocket"}

	m := &transportMetrics{
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "transport",
			Name:        "messages_sent_total",
			Help:        "Total envelopes written to the connection",
			ConstLabels: constLabels,
		}),

		messagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "transport",
			Name:        "messages_received_total",
			Help:        "Total envelopes read from the connection",
			ConstLabels: constLabels,
		}),

		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "transport",
			Name:        "connections_total",
			Help:        "Total successful connection handshakes",
			ConstLabels: constLabels,
		}),

		connectionActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "transport",
			Name:        "connection_active",
			Help:        "Whether a connection is currently established",
			ConstLabels: constLabels,
		}),

		reconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "transport",
			Name:        "reconnects_total",
			Help:        "Total reconnect attempts",
			ConstLabels: constLabels,
		}),

		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "transport",
			Name:        "errors_total",
			Help:        "Total transport errors by type",
			ConstLabels: constLabels,
		}, []string{"type"}),
	}

	_ = registrar.RegisterCounter("websocket", "messages_sent", m.messagesSent)
	_ = registrar.RegisterCounter("websocket", "messages_received", m.messagesReceived)
	_ = registrar.RegisterCounter("websocket", "connections_total", m.connectionsTotal)
	_ = registrar.RegisterGauge("websocket", "connection_active", m.connectionActive)
	_ = registrar.RegisterCounter("websocket", "reconnects_total", m.reconnectsTotal)
	_ = registrar.RegisterCounterVec("websocket", "errors_total", m.errorsTotal)

	return m
}
