// Package budget turns site telemetry into the power available to consumers
// for one control tick.
package budget

import (
	"time"

	"github.com/kilianp07/solarcharge/core/state"
)

// Settings are the configured budget parameters.
type Settings struct {
	// Buffer is kept free of consumer load, in W.
	Buffer int `json:"buffer_w"`
	// BatteryMinSoC below which the home battery keeps its charge power.
	BatteryMinSoC float64 `json:"battery_min_soc"`
	// BatteryTargetChargePower the battery may keep while below min SoC, in W.
	BatteryTargetChargePower int `json:"battery_target_charge_power_w"`
	// MaxInverterACPower is the inverter AC limit, 0 disables clipping.
	MaxInverterACPower int `json:"max_inverter_ac_power_w"`
	// BatteryDischargePower is granted to consumers when a relevant target
	// allows discharging the home battery down to its minimum.
	BatteryDischargePower int `json:"battery_discharge_power_w"`
	// Freshness is the age beyond which a site reading counts as absent.
	Freshness time.Duration `json:"freshness"`
}

// Input carries one budget computation. Nil readings are absent.
type Input struct {
	GridOverage   *int
	InverterPower *int
	BatterySoC    *float64
	BatteryPower  *int

	Buffer                   int
	BatteryMinSoC            float64
	BatteryTargetChargePower int
	MaxInverterACPower       int

	// DischargeAllowed adds BatteryDischargePower while the battery is
	// above its minimum SoC.
	DischargeAllowed      bool
	BatteryDischargePower int
}

// Compute returns the signed power in W available to consumers. A negative
// result means net import beyond the buffer.
func Compute(in Input) int {
	result := 0
	switch {
	case in.GridOverage != nil:
		result = *in.GridOverage
	case in.InverterPower != nil:
		result = *in.InverterPower
	}
	result -= in.Buffer

	if in.BatteryPower != nil {
		bp := *in.BatteryPower
		if in.BatterySoC == nil || *in.BatterySoC >= in.BatteryMinSoC {
			result += bp
		} else if excess := bp - in.BatteryTargetChargePower; excess > 0 {
			result += excess
		}
	}

	if in.DischargeAllowed && in.BatterySoC != nil && *in.BatterySoC > in.BatteryMinSoC {
		result += in.BatteryDischargePower
	}

	if in.InverterPower != nil && in.MaxInverterACPower > 0 && *in.InverterPower > in.MaxInverterACPower {
		result -= *in.InverterPower - in.MaxInverterACPower
	}
	return result
}

// FromSnapshot builds an Input from site telemetry. Readings that are older
// than the configured freshness are treated as absent.
func FromSnapshot(site state.SiteTelemetry, s Settings, now time.Time, dischargeAllowed bool) Input {
	in := Input{
		Buffer:                   s.Buffer,
		BatteryMinSoC:            s.BatteryMinSoC,
		BatteryTargetChargePower: s.BatteryTargetChargePower,
		MaxInverterACPower:       s.MaxInverterACPower,
		DischargeAllowed:         dischargeAllowed,
		BatteryDischargePower:    s.BatteryDischargePower,
	}
	if site.GridPower.IsSet() && site.GridPower.IsRelevant(now, s.Freshness) {
		v := site.GridPower.Value
		in.GridOverage = &v
	}
	if site.InverterPower.IsSet() && site.InverterPower.IsRelevant(now, s.Freshness) {
		v := site.InverterPower.Value
		in.InverterPower = &v
	}
	if site.BatterySoC.IsSet() && site.BatterySoC.IsRelevant(now, s.Freshness) {
		v := site.BatterySoC.Value
		in.BatterySoC = &v
	}
	if site.BatteryPower.IsSet() && site.BatteryPower.IsRelevant(now, s.Freshness) {
		v := site.BatteryPower.Value
		in.BatteryPower = &v
	}
	return in
}
