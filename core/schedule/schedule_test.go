package schedule

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/solarcharge/core/model"
	"github.com/kilianp07/solarcharge/core/targets"
	"github.com/kilianp07/solarcharge/infra/logger"
)

var now = time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)

func car(mode model.ChargeMode, soc float64) model.Consumer {
	return model.Consumer{
		ID: "car", MinCurrent: 6, MaxCurrent: 16, MaxPhases: 3,
		ChargeMode: mode, UsableEnergyKWh: 50, MinSoC: 20, MaxSoC: 100,
		SoC: model.NewTimestamped(soc, now),
	}
}

func gen() *Generator { return NewGenerator(Settings{}, logger.NopLogger{}) }

func target(id string, soc int, deadline time.Time) targets.RelevantTarget {
	return targets.RelevantTarget{
		Target:            model.ChargingTarget{ID: id, ConsumerID: "car", TargetSoC: soc},
		NextExecutionTime: deadline,
		Occurrence:        deadline,
	}
}

func h(n int) time.Duration { return time.Duration(n) * time.Hour }

func m(n int) time.Duration { return time.Duration(n) * time.Minute }

func forcedOnly(ss []model.ChargingSchedule) []model.ChargingSchedule {
	var out []model.ChargingSchedule
	for _, s := range ss {
		if !s.IsSolarOnly() {
			out = append(out, s)
		}
	}
	return out
}

func TestGenerateManual(t *testing.T) {
	p := gen().Generate(car(model.ChargeModeManual, 5), []targets.RelevantTarget{target("t", 80, now.Add(h(3)))}, Forecast{}, now)
	assert.Empty(t, p.Schedules)
}

func TestGenerateMaxPower(t *testing.T) {
	p := gen().Generate(car(model.ChargeModeMaxPower, 50), nil, Forecast{}, now)
	require.Len(t, p.Schedules, 1)
	s := p.Schedules[0]
	assert.Equal(t, now, s.ValidFrom)
	assert.Equal(t, now.Add(DefaultHorizon), s.ValidTo)
	assert.Equal(t, 11040, s.TargetMinPower)
	assert.Nil(t, s.OnlyChargeOnAtLeastSolarPower)
}

func TestMinSocDurationFormula(t *testing.T) {
	c := car(model.ChargeModePvAndMinSoc, 0)
	c.MinSoC = 42
	three := MinSocDuration(c, 3)
	one := MinSocDuration(c, 1)
	// 42% of 50 kWh at 16 A * 3 * 230 V
	assert.InDelta(t, 21000.0/11040.0*3600, three.Seconds(), 1e-3)
	assert.InDelta(t, 3*three.Seconds(), one.Seconds(), 1e-3)

	c.SoC = model.NewTimestamped(50.0, now)
	assert.Zero(t, MinSocDuration(c, 3))
}

func TestGenerateMinSocFromNow(t *testing.T) {
	c := car(model.ChargeModePvAndMinSoc, 10)
	solar := []model.SolarSlice{{ValidFrom: now, ValidTo: now.Add(h(4)), SurplusPower: 3000}}
	p := gen().Generate(c, nil, Forecast{Solar: solar}, now)

	d := MinSocDuration(c, 3)
	forced := forcedOnly(p.Schedules)
	require.Len(t, forced, 1)
	assert.Equal(t, now, forced[0].ValidFrom)
	assert.Equal(t, now.Add(d), forced[0].ValidTo)
	assert.Equal(t, 11040, forced[0].TargetMinPower)

	// remaining solar window is a gated slot
	require.Len(t, p.Schedules, 2)
	sol := p.Schedules[1]
	require.NotNil(t, sol.OnlyChargeOnAtLeastSolarPower)
	assert.Equal(t, 4140, *sol.OnlyChargeOnAtLeastSolarPower)
	assert.Equal(t, now.Add(d), sol.ValidFrom)
	assert.Equal(t, now.Add(h(4)), sol.ValidTo)
	assert.Equal(t, 0, sol.TargetMinPower)
	assert.Equal(t, 3000, sol.EstimatedSolarPower)
}

func TestGenerateStaleSoCPlansSolarOnly(t *testing.T) {
	c := car(model.ChargeModePvAndMinSoc, 10)
	c.SoC = model.NewTimestamped(10.0, now.Add(-h(48)))
	solar := []model.SolarSlice{{ValidFrom: now.Add(h(1)), ValidTo: now.Add(h(3)), SurplusPower: 3000}}
	g := NewGenerator(Settings{SoCFreshness: h(1)}, logger.NopLogger{})

	p := g.Generate(c, []targets.RelevantTarget{target("t", 80, now.Add(h(6)))}, Forecast{Solar: solar}, now)
	assert.Empty(t, forcedOnly(p.Schedules), "a two day old SoC must not force grid charging")
	require.Len(t, p.Schedules, 1)
	assert.True(t, p.Schedules[0].IsSolarOnly())

	c.SoC = model.NewTimestamped(10.0, now.Add(-m(30)))
	p = g.Generate(c, nil, Forecast{Solar: solar}, now)
	require.NotEmpty(t, forcedOnly(p.Schedules))
	assert.Equal(t, now, forcedOnly(p.Schedules)[0].ValidFrom)
}

func TestGeneratePvOnlyStaysInSolarHours(t *testing.T) {
	c := car(model.ChargeModePvOnly, 10)
	solar := []model.SolarSlice{
		{ValidFrom: now.Add(h(2)), ValidTo: now.Add(h(3)), SurplusPower: 2000},
		{ValidFrom: now.Add(h(3)), ValidTo: now.Add(h(4)), SurplusPower: 5000},
		{ValidFrom: now.Add(h(4)), ValidTo: now.Add(h(5)), SurplusPower: -100},
	}
	p := gen().Generate(c, []targets.RelevantTarget{target("t", 40, now.Add(h(10)))}, Forecast{Solar: solar}, now)
	for _, s := range p.Schedules {
		assert.False(t, s.ValidFrom.Before(now.Add(h(2))), "slot before solar hours: %+v", s)
		assert.False(t, s.ValidTo.After(now.Add(h(4))), "slot after solar hours: %+v", s)
	}
	forced := forcedOnly(p.Schedules)
	require.Len(t, forced, 2)
	// the largest surplus slice is used completely before the smaller one
	assert.Equal(t, now.Add(h(2)), forced[0].ValidFrom)
	assert.Equal(t, now.Add(h(3)), forced[1].ValidFrom)
	assert.Equal(t, now.Add(h(4)), forced[1].ValidTo)
	total := c.DurationAtMaxPower(c.EnergyToSoC(20), 3) + c.DurationAtMaxPower(c.EnergyToSoC(40), 3)
	assert.InDelta(t, total.Seconds(), TotalDuration(forced).Seconds(), 1e-6)
}

func TestGenerateInfeasibleTarget(t *testing.T) {
	ResetMetrics(nil)
	t.Cleanup(func() { ResetMetrics(nil) })
	reg := prometheus.NewRegistry()
	MustRegisterMetrics(reg)

	c := car(model.ChargeModePvAndMinSoc, 30)
	deadline := now.Add(h(2))
	p := gen().Generate(c, []targets.RelevantTarget{target("trip", 100, deadline)}, Forecast{}, now)
	assert.Equal(t, []string{"trip"}, p.Infeasible)
	require.Len(t, p.Schedules, 1)
	s := p.Schedules[0]
	assert.True(t, s.Infeasible)
	assert.Equal(t, now, s.ValidFrom)
	assert.Equal(t, deadline, s.ValidTo)
	assert.Equal(t, "trip", s.TargetID)
	assert.Equal(t, 1.0, testutil.ToFloat64(targetsInfeasible))
}

func TestGenerateLatestPlacementWithSolar(t *testing.T) {
	c := car(model.ChargeModePvAndMinSoc, 60)
	deadline := now.Add(h(10))
	solar := []model.SolarSlice{{ValidFrom: now.Add(h(1)), ValidTo: now.Add(h(5)), SurplusPower: 3000}}
	p := gen().Generate(c, []targets.RelevantTarget{target("t", 80, deadline)}, Forecast{Solar: solar}, now)

	d := c.DurationAtMaxPower(c.EnergyToSoC(80), 3)
	forced := forcedOnly(p.Schedules)
	require.Len(t, forced, 1)
	assert.Equal(t, deadline.Add(-d), forced[0].ValidFrom)
	assert.Equal(t, deadline, forced[0].ValidTo)
	assert.Len(t, p.Schedules, 2)
}

func TestGenerateSpreadWithoutSolar(t *testing.T) {
	c := car(model.ChargeModePvAndMinSoc, 60)
	deadline := now.Add(h(10))
	p := gen().Generate(c, []targets.RelevantTarget{target("t", 80, deadline)}, Forecast{}, now)
	require.Len(t, p.Schedules, 1)
	s := p.Schedules[0]
	assert.Equal(t, now, s.ValidFrom)
	assert.Equal(t, deadline, s.ValidTo)
	// 10 kWh over 10 h is below the minimum power
	assert.Equal(t, 4140, s.TargetMinPower)
}

func TestGenerateAutoPicksCheapest(t *testing.T) {
	c := car(model.ChargeModeAuto, 60)
	deadline := now.Add(h(6))
	var prices []model.PriceInterval
	for i, p := range []float64{0.30, 0.25, 0.15, 0.28, 0.10, 0.40} {
		prices = append(prices, model.PriceInterval{ValidFrom: now.Add(h(i)), ValidTo: now.Add(h(i + 1)), GridPrice: p})
	}
	p := gen().Generate(c, []targets.RelevantTarget{target("t", 80, deadline)}, Forecast{Prices: prices}, now)
	d := c.DurationAtMaxPower(c.EnergyToSoC(80), 3)
	require.Len(t, p.Schedules, 1)
	assert.Equal(t, now.Add(h(4)), p.Schedules[0].ValidFrom)
	assert.Equal(t, now.Add(h(4)).Add(d), p.Schedules[0].ValidTo)
}

func TestGenerateOverdueStartsNow(t *testing.T) {
	c := car(model.ChargeModePvAndMinSoc, 60)
	rt := target("t", 80, now)
	rt.Overdue = true
	rt.Occurrence = now.Add(-h(1))
	p := gen().Generate(c, []targets.RelevantTarget{rt}, Forecast{}, now)
	d := c.DurationAtMaxPower(c.EnergyToSoC(80), 3)
	require.Len(t, p.Schedules, 1)
	assert.Equal(t, now, p.Schedules[0].ValidFrom)
	assert.Equal(t, now.Add(d), p.Schedules[0].ValidTo)
	assert.Empty(t, p.Infeasible)
}

func TestGenerateIgnoresOtherConsumers(t *testing.T) {
	c := car(model.ChargeModePvAndMinSoc, 60)
	rt := target("t", 80, now.Add(h(1)))
	rt.Target.ConsumerID = "other"
	p := gen().Generate(c, []targets.RelevantTarget{rt}, Forecast{}, now)
	assert.Empty(t, p.Schedules)
}

func cs(from, to time.Duration) model.ChargingSchedule {
	return model.ChargingSchedule{ValidFrom: now.Add(from), ValidTo: now.Add(to), TargetMinPower: 1000}
}

func TestConcatenateTouching(t *testing.T) {
	out := ConcatenateChargeTimes([]model.ChargingSchedule{cs(h(1), h(2)), cs(0, h(1))})
	require.Len(t, out, 1)
	assert.Equal(t, now, out[0].ValidFrom)
	assert.Equal(t, now.Add(h(2)), out[0].ValidTo)
}

func TestConcatenateOverlapPreservesDuration(t *testing.T) {
	in := []model.ChargingSchedule{cs(0, h(2)), cs(h(1), h(3))}
	out := ConcatenateChargeTimes(in)
	require.Len(t, out, 1)
	assert.Equal(t, TotalDuration(in), TotalDuration(out))
	assert.Equal(t, now.Add(h(4)), out[0].ValidTo)
}

func TestConcatenateKeepsGapsAcrossMidnight(t *testing.T) {
	late := time.Date(2025, 6, 2, 22, 0, 0, 0, time.UTC)
	in := []model.ChargingSchedule{
		{ValidFrom: late, ValidTo: late.Add(m(90))},
		{ValidFrom: late.Add(m(150)), ValidTo: late.Add(h(3))},
	}
	out := ConcatenateChargeTimes(in)
	require.Len(t, out, 2)
	assert.Equal(t, TotalDuration(in), TotalDuration(out))
}

func TestConcatenateChain(t *testing.T) {
	in := []model.ChargingSchedule{cs(0, h(1)), cs(m(30), h(1)), cs(m(84), h(2)), cs(h(5), h(6))}
	out := ConcatenateChargeTimes(in)
	require.Len(t, out, 2)
	assert.Equal(t, TotalDuration(in), TotalDuration(out))
	assert.Equal(t, now.Add(m(126)), out[0].ValidTo)
	assert.Empty(t, ConcatenateChargeTimes(nil))
}

func TestConcatenateMergesGates(t *testing.T) {
	gate := 1000
	a := cs(0, h(1))
	a.OnlyChargeOnAtLeastSolarPower = &gate
	b := cs(h(1), h(2))
	b.TargetMinPower = 5000
	out := ConcatenateChargeTimes([]model.ChargingSchedule{a, b})
	require.Len(t, out, 1)
	assert.Nil(t, out[0].OnlyChargeOnAtLeastSolarPower)
	assert.Equal(t, 5000, out[0].TargetMinPower)
}

func TestPlanForcedEnergy(t *testing.T) {
	p := Plan{Schedules: []model.ChargingSchedule{cs(0, h(2)), cs(h(3), m(210))}}
	assert.InDelta(t, 2500, p.ForcedEnergy(), 1e-9)
}
