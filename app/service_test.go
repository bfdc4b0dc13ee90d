package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/solarcharge/config"
	"github.com/kilianp07/solarcharge/core/command"
	"github.com/kilianp07/solarcharge/core/control"
	"github.com/kilianp07/solarcharge/core/control/logging"
	"github.com/kilianp07/solarcharge/core/model"
	"github.com/kilianp07/solarcharge/infra/mqtt"
)

const targetsYAML = `targets:
  - id: weekday
    consumer_id: car1
    target_soc: 80
    time: "07:30"
    weekdays: mon,tue,wed,thu,fri
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	tf := filepath.Join(dir, "targets.yaml")
	require.NoError(t, os.WriteFile(tf, []byte(targetsYAML), 0o644))
	cfg := &config.Config{
		Targets: config.TargetsConfig{File: tf},
		Consumers: []config.ConsumerConfig{
			{ID: "car1", MaxCurrent: 16, ChargeMode: "max_power", CircuitID: "garage"},
			{ID: "car2", MaxCurrent: 16, ChargeMode: "manual", Priority: 1},
		},
		Circuits: []config.CircuitConfig{{ID: "garage", MaxCurrent: 48}},
		Logging:  config.LoggingConfig{Backend: config.LogBackendSQLite, Path: filepath.Join(dir, "decisions.db")},
	}
	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestBuildAndTick(t *testing.T) {
	control.ResetMetrics(nil)
	cfg := testConfig(t)
	cmd := mqtt.NewMockCommander()
	svc, err := build(cfg, cmd)
	require.NoError(t, err)
	defer func() { require.NoError(t, svc.Close()) }()

	require.NoError(t, svc.State.UpdatePluggedIn("car1", true, time.Now()))
	res, err := svc.Orchestrator.Tick(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Decisions, 2)
	assert.Equal(t, model.ActionStart, res.Decisions[0].Action)
	assert.Equal(t, model.ActionNone, res.Decisions[1].Action)

	calls := cmd.CallsFor("car1")
	require.Len(t, calls, 2)
	assert.Equal(t, command.ActionStart, calls[1].Action)
	assert.Empty(t, cmd.CallsFor("car2"))

	recs, err := svc.logs.Query(context.Background(), logging.LogQuery{ConsumerID: "car1"})
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	rr := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/targets/car1", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"weekday"`)
}

func TestBuildRejectsBadTargetsFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Targets.File = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := build(cfg, mqtt.NewMockCommander())
	assert.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	control.ResetMetrics(nil)
	cfg := testConfig(t)
	cfg.Control.Interval = 10 * time.Millisecond
	svc, err := build(cfg, mqtt.NewMockCommander())
	require.NoError(t, err)
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, svc.Run(ctx))
	_, ok := svc.Orchestrator.LastResult()
	assert.True(t, ok)
}
