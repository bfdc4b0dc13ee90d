package model

import (
	"fmt"
	"math"
	"time"
)

// Voltage is the nominal phase voltage used for all power/current conversions.
const Voltage = 230.0

// ConsumerKind distinguishes vehicles from charging-station connectors.
type ConsumerKind int

const (
	KindCar ConsumerKind = iota
	KindConnector
)

func (k ConsumerKind) String() string {
	switch k {
	case KindCar:
		return "car"
	case KindConnector:
		return "connector"
	default:
		return "unknown"
	}
}

// Consumer is a schedulable electricity draw: a car or a station connector.
// Device limits and charge settings come from configuration, the
// TimestampedValue fields are refreshed by telemetry.
type Consumer struct {
	ID        string
	Name      string
	Kind      ConsumerKind
	CircuitID string

	MinCurrent          float64 // A
	MaxCurrent          float64 // A
	MaxPhases           int
	CanSwitchPhases     bool
	PhaseSwitchCooldown time.Duration
	SwitchOnCurrent     float64 // A, 0 means MinCurrent
	SwitchOffCurrent    float64 // A, 0 means MinCurrent

	ChargeMode ChargeMode
	Priority   int // lower is served first

	// CurrentActuatedByVehicle is true when the car itself applies the
	// current setpoint instead of the station.
	CurrentActuatedByVehicle bool

	UsableEnergyKWh float64
	MinSoC          int // %
	MaxSoC          int // %

	SoC             TimestampedValue[float64]
	PluggedIn       TimestampedValue[bool]
	Phases          TimestampedValue[int]
	AtHome          TimestampedValue[bool]
	ChargingCurrent TimestampedValue[float64]
	ChargingPower   TimestampedValue[int]
	Charging        TimestampedValue[bool]

	LastCommand     Decision
	LastAdjustment  time.Time
	LastPhaseSwitch time.Time
}

// Validate checks the configured device limits.
func (c Consumer) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("consumer id is required")
	}
	if c.MinCurrent < 0 || c.MaxCurrent <= 0 {
		return fmt.Errorf("consumer %s: currents must be positive", c.ID)
	}
	if c.MinCurrent > c.MaxCurrent {
		return fmt.Errorf("consumer %s: min current %.1f above max current %.1f", c.ID, c.MinCurrent, c.MaxCurrent)
	}
	if c.MaxPhases < 1 || c.MaxPhases > 3 {
		return fmt.Errorf("consumer %s: max phases must be between 1 and 3", c.ID)
	}
	if c.MinSoC < 0 || c.MinSoC > 100 || c.MaxSoC < 0 || c.MaxSoC > 100 {
		return fmt.Errorf("consumer %s: soc limits must be between 0 and 100", c.ID)
	}
	return nil
}

// PowerFor converts a current on the given phase count into watts.
func PowerFor(current float64, phases int) float64 {
	if phases < 1 {
		phases = 1
	}
	return current * float64(phases) * Voltage
}

// CurrentFor converts watts into a per-phase current.
func CurrentFor(power float64, phases int) float64 {
	if phases < 1 {
		phases = 1
	}
	return power / (float64(phases) * Voltage)
}

// MaxPower is the power drawn at max current on all phases.
func (c Consumer) MaxPower() float64 {
	return PowerFor(c.MaxCurrent, c.MaxPhases)
}

// MinPower is the power drawn at min current on the given phase count.
func (c Consumer) MinPower(phases int) float64 {
	return PowerFor(c.MinCurrent, phases)
}

// EffectivePhases returns the reported phase count when it is fresh and
// plausible, else the configured maximum.
func (c Consumer) EffectivePhases(now time.Time, threshold time.Duration) int {
	if c.Phases.IsSet() && c.Phases.IsRelevant(now, threshold) && c.Phases.Value >= 1 && c.Phases.Value <= c.MaxPhases {
		return c.Phases.Value
	}
	return c.MaxPhases
}

// SwitchOn returns the current needed to start charging.
func (c Consumer) SwitchOn() float64 {
	return math.Max(c.SwitchOnCurrent, c.MinCurrent)
}

// SwitchOff returns the current below which an active session stops.
func (c Consumer) SwitchOff() float64 {
	if c.SwitchOffCurrent <= 0 {
		return c.MinCurrent
	}
	return math.Min(c.SwitchOffCurrent, c.MinCurrent)
}

// IsCharging reports whether the consumer is charging according to telemetry
// or, lacking it, to the last start command.
func (c Consumer) IsCharging() bool {
	if c.Charging.IsSet() {
		return c.Charging.Value
	}
	return c.LastCommand.Action == ActionStart
}

// EnergyToSoC returns the energy in Wh needed to go from the current SoC to
// the given SoC. Unknown capacity or SoC yields zero.
func (c Consumer) EnergyToSoC(target int) float64 {
	if c.UsableEnergyKWh <= 0 || !c.SoC.IsSet() {
		return 0
	}
	gap := float64(target) - c.SoC.Value
	if gap <= 0 {
		return 0
	}
	return gap / 100 * c.UsableEnergyKWh * 1000
}

// DurationAtMaxPower returns how long charging energyWh takes at max current
// on the given phase count.
func (c Consumer) DurationAtMaxPower(energyWh float64, phases int) time.Duration {
	if energyWh <= 0 {
		return 0
	}
	p := PowerFor(c.MaxCurrent, phases)
	if p <= 0 {
		return 0
	}
	return time.Duration(energyWh / p * float64(time.Hour))
}
