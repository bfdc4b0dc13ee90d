package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/kilianp07/solarcharge/core/metrics"
	"github.com/kilianp07/solarcharge/core/model"
)

func TestPromSinkRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, s.RecordDecisions([]coremetrics.DecisionEvent{
		{ConsumerID: "car1", Action: model.ActionStart, CurrentA: 10, PowerW: 6900},
		{ConsumerID: "car2", Action: model.ActionStop},
	}))
	require.NoError(t, s.RecordBudget(coremetrics.BudgetEvent{BudgetW: 4200}))
	require.NoError(t, s.RecordCommand(coremetrics.CommandEvent{ConsumerID: "car1", Action: model.ActionStart, Success: true, Latency: time.Second}))

	assert.Equal(t, 1.0, testutil.ToFloat64(s.decisions.WithLabelValues("car1", "start", "false")))
	assert.Equal(t, 10.0, testutil.ToFloat64(s.current.WithLabelValues("car1")))
	assert.Equal(t, 0.0, testutil.ToFloat64(s.current.WithLabelValues("car2")))
	assert.Equal(t, 4200.0, testutil.ToFloat64(s.budget))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.commands.WithLabelValues("car1", "start", "true")))
}

func TestPromSinkReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	s1, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	s2, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, s1.RecordBudget(coremetrics.BudgetEvent{BudgetW: 100}))
	assert.Equal(t, 100.0, testutil.ToFloat64(s2.budget))
}
