// Package metric provides Prometheus-based metrics collection for the SDK.
//
// The package offers a collision-checked metrics registry that SDK components
// (dispatch buses, the request exchange, transport providers) register their
// instruments with. All metrics live in the "twinstreams" namespace with the
// component as a subsystem or label.
//
// Unlike a service platform, an SDK must stay a guest in its host process:
// the registry is private by default, never opens an HTTP endpoint, and never
// registers Go runtime or process collectors. The host application decides
// how to expose it:
//
//	registry := metric.NewRegistry()
//	client, err := twinstreams.New(cfg, twinstreams.WithMetrics(registry))
//	...
//	http.Handle("/metrics", promhttp.HandlerFor(
//	    registry.PrometheusRegistry(), promhttp.HandlerOpts{}))
//
// Components register their metrics under their component name, which allows
// several clients in one process as long as they carry distinct names, and
// lets a closing client unregister everything it owns.
package metric
