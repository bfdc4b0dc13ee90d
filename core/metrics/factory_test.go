package metrics_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/solarcharge/core/factory"
	metrics "github.com/kilianp07/solarcharge/core/metrics"
	_ "github.com/kilianp07/solarcharge/infra/metrics"
)

func TestSinkTypesBuiltins(t *testing.T) {
	assert.Subset(t, metrics.SinkTypes(), []string{"influx", "nop", "prometheus"})
}

func TestNewMetricsSinkDefaultsToNop(t *testing.T) {
	s, err := metrics.NewMetricsSink(nil)
	require.NoError(t, err)
	if _, ok := s.(metrics.NopSink); !ok {
		t.Fatalf("expected NopSink, got %T", s)
	}
}

func TestNewMetricsSinkSingle(t *testing.T) {
	s, err := metrics.NewMetricsSink([]factory.ModuleConfig{{Type: "nop"}})
	require.NoError(t, err)
	assert.IsType(t, metrics.NopSink{}, s)
}

func TestNewMetricsSinkFanOut(t *testing.T) {
	s, err := metrics.NewMetricsSink([]factory.ModuleConfig{{Type: "nop"}, {Type: "prometheus"}})
	require.NoError(t, err)
	m, ok := s.(*metrics.MultiSink)
	if !ok {
		t.Fatalf("expected MultiSink, got %T", s)
	}
	assert.Len(t, m.Sinks, 2)
	assert.NoError(t, m.RecordDecisions([]metrics.DecisionEvent{{ConsumerID: "car1", Action: "start", CurrentA: 6}}))
}

func TestNewMetricsSinkErrors(t *testing.T) {
	_, err := metrics.NewMetricsSink([]factory.ModuleConfig{{Type: "nop"}, {Type: "statsd"}})
	if !errors.Is(err, factory.ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
	assert.Contains(t, err.Error(), "metrics sink 1 (statsd)")

	_, err = metrics.NewMetricsSink([]factory.ModuleConfig{{Type: "influx", Conf: map[string]any{"url": "http://localhost:8086"}}})
	assert.ErrorContains(t, err, "bucket")

	_, err = metrics.NewMetricsSink([]factory.ModuleConfig{{Type: "prometheus", Conf: map[string]any{"port": 9100}}})
	assert.Error(t, err, "prometheus sink takes no settings")
}
