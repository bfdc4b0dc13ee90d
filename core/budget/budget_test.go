package budget

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kilianp07/solarcharge/core/model"
	"github.com/kilianp07/solarcharge/core/state"
)

func ip(v int) *int         { return &v }
func fp(v float64) *float64 { return &v }

func TestComputeGridOnly(t *testing.T) {
	assert.Equal(t, 1000, Compute(Input{GridOverage: ip(1000)}))
	assert.Equal(t, 700, Compute(Input{GridOverage: ip(1000), Buffer: 300}))
	assert.Equal(t, -200, Compute(Input{GridOverage: ip(100), Buffer: 300}))
}

func TestComputeFallsBackToInverter(t *testing.T) {
	assert.Equal(t, 3000, Compute(Input{InverterPower: ip(3000)}))
	assert.Equal(t, 0, Compute(Input{}))
}

func TestComputeBatteryAndClipping(t *testing.T) {
	in := Input{
		GridOverage:        ip(1000),
		InverterPower:      ip(11000),
		BatterySoC:         fp(60),
		BatteryPower:       ip(2000),
		BatteryMinSoC:      20,
		MaxInverterACPower: 10000,
	}
	// 1000 overage + 2000 battery - 1000 clipped
	assert.Equal(t, 2000, Compute(in))
}

func TestComputeBatteryBelowMin(t *testing.T) {
	in := Input{GridOverage: ip(500), BatterySoC: fp(10), BatteryMinSoC: 20, BatteryTargetChargePower: 1500}
	in.BatteryPower = ip(1000)
	assert.Equal(t, 500, Compute(in), "battery keeps power below its target")
	in.BatteryPower = ip(2500)
	assert.Equal(t, 1500, Compute(in), "only the excess over target is available")
}

func TestComputeMonotonicInBatteryPower(t *testing.T) {
	above := Input{GridOverage: ip(0), BatterySoC: fp(80), BatteryMinSoC: 20, BatteryTargetChargePower: 1000}
	below := above
	below.BatterySoC = fp(5)
	prevAbove, prevBelow := Compute(withBattery(above, -3000)), Compute(withBattery(below, -3000))
	for bp := -2900; bp <= 5000; bp += 100 {
		a, b := Compute(withBattery(above, bp)), Compute(withBattery(below, bp))
		assert.GreaterOrEqual(t, a, prevAbove)
		assert.GreaterOrEqual(t, b, prevBelow)
		if bp <= 1000 {
			assert.Equal(t, 0, b, "no battery power transferred below target at %d", bp)
		}
		prevAbove, prevBelow = a, b
	}
}

func withBattery(in Input, bp int) Input {
	in.BatteryPower = ip(bp)
	return in
}

func TestComputeDischargeAllowance(t *testing.T) {
	in := Input{GridOverage: ip(0), BatterySoC: fp(50), BatteryMinSoC: 20, DischargeAllowed: true, BatteryDischargePower: 2500}
	assert.Equal(t, 2500, Compute(in))
	in.BatterySoC = fp(20)
	assert.Equal(t, 0, Compute(in))
}

func TestFromSnapshotDropsStaleReadings(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	site := state.SiteTelemetry{
		GridPower:     model.NewTimestamped(800, now.Add(-time.Hour)),
		InverterPower: model.NewTimestamped(2500, now.Add(-10*time.Second)),
		BatterySoC:    model.NewTimestamped(70.0, now),
	}
	in := FromSnapshot(site, Settings{Buffer: 100, Freshness: time.Minute}, now, false)
	assert.Nil(t, in.GridOverage)
	if assert.NotNil(t, in.InverterPower) {
		assert.Equal(t, 2500, *in.InverterPower)
	}
	assert.Nil(t, in.BatteryPower, "unset reading is absent")
	assert.Equal(t, 2400, Compute(in))
}
