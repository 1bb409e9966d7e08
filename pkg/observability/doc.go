/*
Package observability exposes Prometheus metrics for the supervisor and the
lifecycle hooks that feed them.

Metrics are registered on a caller-supplied registerer so tests and embedded
uses do not share the global registry:

	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)
	hooks := observability.Combine(m.Hooks(), observability.LogHooks(logger))
*/
package observability
