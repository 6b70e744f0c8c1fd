package bus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/twinstreams/metric"
)

// busMetrics holds Prometheus metrics for one Bus
type busMetrics struct {
	envelopesReceived  prometheus.Counter
	envelopesDelivered *prometheus.CounterVec
	envelopesUnmatched prometheus.Counter
	responsesMatched   prometheus.Counter
	responsesDropped   *prometheus.CounterVec
	handlerPanics      prometheus.Counter
	queueDepth         prometheus.Gauge
	subscriptions      prometheus.Gauge
	pendingRequests    prometheus.Gauge
}

// newMetrics creates and registers Bus metrics
func newMetrics(registrar metric.Registrar, busName string) *busMetrics {
	if registrar == nil {
		return nil
	}

	m := &busMetrics{
		envelopesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "bus",
			Name:        "envelopes_received_total",
			Help:        "Total envelopes accepted into the dispatch queue",
			ConstLabels: prometheus.Labels{"bus": busName},
		}),

		envelopesDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "bus",
			Name:      "envelopes_delivered_total",
			Help:      "Total handler deliveries by criterion",
		}, []string{"bus", "criterion"}),

		envelopesUnmatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "bus",
			Name:        "envelopes_unmatched_total",
			Help:        "Total envelopes no subscription matched",
			ConstLabels: prometheus.Labels{"bus": busName},
		}),

		responsesMatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "bus",
			Name:        "responses_matched_total",
			Help:        "Total responses delivered to a pending request",
			ConstLabels: prometheus.Labels{"bus": busName},
		}),

		responsesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "bus",
			Name:      "responses_dropped_total",
			Help:      "Total responses dropped, by reason",
		}, []string{"bus", "reason"}),

		handlerPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "bus",
			Name:        "handler_panics_total",
			Help:        "Total recovered handler panics",
			ConstLabels: prometheus.Labels{"bus": busName},
		}),

		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "bus",
			Name:        "queue_depth",
			Help:        "Current inbound queue depth",
			ConstLabels: prometheus.Labels{"bus": busName},
		}),

		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "bus",
			Name:        "subscriptions_active",
			Help:        "Number of active subscriptions",
			ConstLabels: prometheus.Labels{"bus": busName},
		}),

		pendingRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "bus",
			Name:        "pending_requests",
			Help:        "Number of unsettled one-shot response waiters",
			ConstLabels: prometheus.Labels{"bus": busName},
		}),
	}

	_ = registrar.RegisterCounter(busName, "envelopes_received", m.envelopesReceived)
	_ = registrar.RegisterCounterVec(busName, "envelopes_delivered", m.envelopesDelivered)
	_ = registrar.RegisterCounter(busName, "envelopes_unmatched", m.envelopesUnmatched)
	_ = registrar.RegisterCounter(busName, "responses_matched", m.responsesMatched)
	_ = registrar.RegisterCounterVec(busName, "responses_dropped", m.responsesDropped)
	_ = registrar.RegisterCounter(busName, "handler_panics", m.handlerPanics)
	_ = registrar.RegisterGauge(busName, "queue_depth", m.queueDepth)
	_ = registrar.RegisterGauge(busName, "subscriptions_active", m.subscriptions)
	_ = registrar.RegisterGauge(busName, "pending_requests", m.pendingRequests)

	return m
}
