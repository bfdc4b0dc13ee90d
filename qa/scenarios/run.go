package scenarios

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/kilianp07/solarcharge/core/allocation"
	"github.com/kilianp07/solarcharge/core/control"
	"github.com/kilianp07/solarcharge/core/forecast"
	"github.com/kilianp07/solarcharge/core/model"
	"github.com/kilianp07/solarcharge/core/schedule"
	"github.com/kilianp07/solarcharge/core/state"
	"github.com/kilianp07/solarcharge/core/targets"
	"github.com/kilianp07/solarcharge/infra/logger"
	"github.com/kilianp07/solarcharge/infra/mqtt"
)

// RunScenario executes every step and reports mismatches on t.
func RunScenario(t *testing.T, sc *Scenario) {
	t.Helper()
	cfg, err := sc.config()
	if err != nil {
		t.Fatalf("config: %v", err)
	}

	st := state.NewStore()
	for _, cc := range cfg.Consumers {
		c, err := cc.ToModel()
		if err != nil {
			t.Fatalf("consumer %s: %v", cc.ID, err)
		}
		if err := st.AddConsumer(c); err != nil {
			t.Fatalf("add consumer: %v", err)
		}
	}
	now := sc.Start
	for _, c := range sc.Consumers {
		if err := applyReadings(st, c.ID, c.Readings, now); err != nil {
			t.Fatalf("initial readings: %v", err)
		}
	}

	fc := forecast.NewMemoryStore(0)
	solar := make([]model.SolarSlice, 0, len(sc.Solar))
	for _, s := range sc.Solar {
		solar = append(solar, model.SolarSlice{ValidFrom: s.From, ValidTo: s.To, SurplusPower: s.Surplus})
	}
	fc.SetSolar(solar)

	ts, err := targets.NewMemoryStore()
	if err != nil {
		t.Fatalf("targets: %v", err)
	}
	cmd := mqtt.NewMockCommander()
	orch, err := control.NewOrchestrator(cfg.Control, control.Deps{
		State:     st,
		Targets:   ts,
		Resolver:  targets.NewResolver(ts, cfg.Targets.CatchUpWindow, logger.NopLogger{}),
		Forecast:  fc,
		Generator: schedule.NewGenerator(cfg.Schedule, logger.NopLogger{}),
		Allocator: allocation.NewCalculator(cfg.Allocation, logger.NopLogger{}),
		Commander: cmd,
		Budget:    cfg.Budget,
		Circuits:  cfg.CircuitLimits(),
		Logger:    logger.NopLogger{},
		Now:       func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}

	for i, step := range sc.Steps {
		now = now.Add(step.Advance)
		if step.Site != nil {
			if err := applySite(st, *step.Site, now); err != nil {
				t.Fatalf("step %d: site: %v", i, err)
			}
		}
		for id, r := range step.Readings {
			if err := applyReadings(st, id, r, now); err != nil {
				t.Fatalf("step %d: %v", i, err)
			}
		}
		for _, id := range step.Fail {
			cmd.FailIDs[id] = true
		}
		cmd.Reset()

		res, err := orch.Tick(context.Background())
		if err != nil {
			t.Fatalf("step %d: tick: %v", i, err)
		}
		for id, exp := range step.Expected {
			for _, msg := range check(res, cmd, id, exp) {
				t.Errorf("step %d consumer %s: %s", i, id, msg)
			}
		}
	}
}

func check(res control.TickResult, cmd *mqtt.MockCommander, id string, exp Expected) []string {
	var d *model.Decision
	for i := range res.Decisions {
		if res.Decisions[i].ConsumerID == id {
			d = &res.Decisions[i]
			break
		}
	}
	if d == nil {
		return []string{"no decision"}
	}
	var out []string
	if d.Action != exp.Action {
		out = append(out, fmt.Sprintf("action %s, want %s (reason %s)", d.Action, exp.Action, d.Reason))
	}
	if exp.Reason != "" && d.Reason != exp.Reason {
		out = append(out, fmt.Sprintf("reason %s, want %s", d.Reason, exp.Reason))
	}
	if exp.Current != nil && d.TargetCurrent != *exp.Current {
		out = append(out, fmt.Sprintf("current %.1f, want %.1f", d.TargetCurrent, *exp.Current))
	}
	if exp.Phases != 0 && d.TargetPhases != exp.Phases {
		out = append(out, fmt.Sprintf("phases %d, want %d", d.TargetPhases, exp.Phases))
	}
	if exp.Suppressed != nil && d.Suppressed != *exp.Suppressed {
		out = append(out, fmt.Sprintf("suppressed %t, want %t", d.Suppressed, *exp.Suppressed))
	}
	if _, failed := res.Errors[id]; failed != exp.Failed {
		out = append(out, fmt.Sprintf("failed %t, want %t", failed, exp.Failed))
	}
	if exp.Commands != nil {
		calls := cmd.CallsFor(id)
		got := make([]string, len(calls))
		for i, c := range calls {
			got[i] = string(c.Action)
		}
		if fmt.Sprint(got) != fmt.Sprint(exp.Commands) {
			out = append(out, fmt.Sprintf("commands %v, want %v", got, exp.Commands))
		}
	}
	return out
}

func applyReadings(st *state.Store, id string, r Readings, at time.Time) error {
	var err error
	set := func(e error) {
		if err == nil {
			err = e
		}
	}
	if r.PluggedIn != nil {
		set(st.UpdatePluggedIn(id, *r.PluggedIn, at))
	}
	if r.AtHome != nil {
		set(st.UpdateAtHome(id, *r.AtHome, at))
	}
	if r.SoC != nil {
		set(st.UpdateSoC(id, *r.SoC, at))
	}
	if r.Phases != nil {
		set(st.UpdatePhases(id, *r.Phases, at))
	}
	if r.Charging != nil {
		set(st.UpdateCharging(id, *r.Charging, at))
	}
	if r.Power != nil {
		set(st.UpdateChargingPower(id, *r.Power, at))
	}
	return err
}

func applySite(st *state.Store, s SiteDef, at time.Time) error {
	for _, f := range []struct {
		field state.SiteField
		v     *float64
	}{
		{state.SiteGridPower, s.GridPower},
		{state.SiteInverterPower, s.InverterPower},
		{state.SiteBatterySoC, s.BatterySoC},
		{state.SiteBatteryPower, s.BatteryPower},
	} {
		if f.v == nil {
			continue
		}
		if err := st.UpdateSite(f.field, *f.v, at); err != nil {
			return err
		}
	}
	return nil
}
