// Package metrics defines the sinks receiving control loop observations.
// A MetricsSink records per-consumer decisions; sinks may additionally
// implement BudgetRecorder, CommandRecorder or TickRecorder. Concrete sinks
// live in infra/metrics and are built from configuration through the sink
// registry. NewMetricsSink returns a MultiSink when several are configured.
package metrics
