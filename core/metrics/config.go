package metrics

import "github.com/kilianp07/solarcharge/core/factory"

// Config defines settings for metrics sinks.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
	// PrometheusPort starts a standalone /metrics server when set and the
	// HTTP API is disabled.
	PrometheusPort string `json:"prometheus_port"`
}
