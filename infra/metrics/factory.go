package metrics

import (
	"errors"

	"github.com/kilianp07/solarcharge/core/factory"
	coremetrics "github.com/kilianp07/solarcharge/core/metrics"
)

// Sink types accepted in metrics.sinks.
const (
	SinkNop        = "nop"
	SinkPrometheus = "prometheus"
	SinkInflux     = "influx"
)

func init() {
	_ = coremetrics.RegisterMetricsSink(SinkNop, func(map[string]any) (coremetrics.MetricsSink, error) {
		return coremetrics.NopSink{}, nil
	})
	_ = coremetrics.RegisterMetricsSink(SinkPrometheus, newPromSink)
	_ = coremetrics.RegisterMetricsSink(SinkInflux, newInfluxSink)
}

func newPromSink(conf map[string]any) (coremetrics.MetricsSink, error) {
	if err := factory.Decode(conf, &struct{}{}); err != nil {
		return nil, err
	}
	return NewPromSink()
}

func newInfluxSink(conf map[string]any) (coremetrics.MetricsSink, error) {
	var c InfluxConfig
	if err := factory.Decode(conf, &c); err != nil {
		return nil, err
	}
	if c.URL == "" || c.Bucket == "" {
		return nil, errors.New("influx sink: url and bucket are required")
	}
	return NewInfluxSinkWithFallback(c), nil
}
