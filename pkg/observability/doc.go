/*
Package observability turns engine lifecycle events into structured logs
and Prometheus metrics.

Both are exposed as domain.LifecycleHooks and can be combined:

	hooks := domain.CombineHooks(
		observability.LoggingHooks(logger),
		observability.NewMetrics(prometheus.DefaultRegisterer).Hooks(),
	)
*/
package observability
