package correlation

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/twinstreams/metric"
)

const (
	outcomeOK         = "ok"
	outcomeRejected   = "rejected"
	outcomeTimeout    = "timeout"
	outcomeCanceled   = "canceled"
	outcomeSendFailed = "send_failed"
	outcomeClosed     = "closed"
)

// exchangeMetrics instruments the request/response path
type exchangeMetrics struct {
	requests *prometheus.CounterVec
	sends    prometheus.Counter
	duration prometheus.Histogram
	inFlight prometheus.Gauge
}

func newMetrics(registrar metric.Registrar, busName string) *exchangeMetrics {
	if registrar == nil {
		return nil
	}

	m := &exchangeMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "exchange",
			Name:        "requests_total",
			Help:        "Total requests by outcome",
			ConstLabels: prometheus.Labels{"bus": busName},
		}, []string{"outcome"}),

		sends: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "exchange",
			Name:        "sends_total",
			Help:        "Total fire-and-forget envelopes sent",
			ConstLabels: prometheus.Labels{"bus": busName},
		}),

		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "exchange",
			Name:        "request_duration_seconds",
			Help:        "Latency from send to settlement",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: prometheus.Labels{"bus": busName},
		}),

		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "exchange",
			Name:        "requests_in_flight",
			Help:        "Requests awaiting a response",
			ConstLabels: prometheus.Labels{"bus": busName},
		}),
	}

	_ = registrar.RegisterCounterVec(busName, "exchange_requests", m.requests)
	_ = registrar.RegisterCounter(busName, "exchange_sends", m.sends)
	_ = registrar.RegisterHistogram(busName, "exchange_request_duration", m.duration)
	_ = registrar.RegisterGauge(busName, "exchange_requests_in_flight", m.inFlight)

	return m
}
