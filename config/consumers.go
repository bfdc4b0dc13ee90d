package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kilianp07/solarcharge/core/model"
)

// ConsumerConfig describes a car or station connector and its charge
// settings.
type ConsumerConfig struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	CircuitID string `json:"circuit_id"`

	MinCurrent          float64       `json:"min_current"`
	MaxCurrent          float64       `json:"max_current"`
	MaxPhases           int           `json:"max_phases"`
	CanSwitchPhases     bool          `json:"can_switch_phases"`
	PhaseSwitchCooldown time.Duration `json:"phase_switch_cooldown"`
	SwitchOnCurrent     float64       `json:"switch_on_current"`
	SwitchOffCurrent    float64       `json:"switch_off_current"`

	ChargeMode               string `json:"charge_mode"`
	Priority                 int    `json:"priority"`
	CurrentActuatedByVehicle bool   `json:"current_actuated_by_vehicle"`

	UsableEnergyKWh float64 `json:"usable_energy_kwh"`
	MinSoC          int     `json:"min_soc"`
	MaxSoC          int     `json:"max_soc"`
}

func (c *ConsumerConfig) SetDefaults() {
	if c.Kind == "" {
		c.Kind = "car"
	}
	if c.MaxPhases == 0 {
		c.MaxPhases = 3
	}
	if c.MinCurrent == 0 {
		c.MinCurrent = 6
	}
	if c.ChargeMode == "" {
		c.ChargeMode = model.ChargeModePvOnly.String()
	}
	if c.MaxSoC == 0 {
		c.MaxSoC = 100
	}
	if c.CanSwitchPhases && c.PhaseSwitchCooldown <= 0 {
		c.PhaseSwitchCooldown = 5 * time.Minute
	}
}

func (c ConsumerConfig) Validate() error {
	_, err := c.ToModel()
	return err
}

func parseKind(s string) (model.ConsumerKind, error) {
	switch strings.ToLower(s) {
	case "car", "":
		return model.KindCar, nil
	case "connector":
		return model.KindConnector, nil
	default:
		return 0, fmt.Errorf("unknown consumer kind %q", s)
	}
}

// ToModel converts the configuration into a consumer without telemetry.
func (c ConsumerConfig) ToModel() (model.Consumer, error) {
	kind, err := parseKind(c.Kind)
	if err != nil {
		return model.Consumer{}, fmt.Errorf("consumer %s: %w", c.ID, err)
	}
	mode, err := model.ParseChargeMode(c.ChargeMode)
	if err != nil {
		return model.Consumer{}, fmt.Errorf("consumer %s: %w", c.ID, err)
	}
	m := model.Consumer{
		ID:                       c.ID,
		Name:                     c.Name,
		Kind:                     kind,
		CircuitID:                c.CircuitID,
		MinCurrent:               c.MinCurrent,
		MaxCurrent:               c.MaxCurrent,
		MaxPhases:                c.MaxPhases,
		CanSwitchPhases:          c.CanSwitchPhases,
		PhaseSwitchCooldown:      c.PhaseSwitchCooldown,
		SwitchOnCurrent:          c.SwitchOnCurrent,
		SwitchOffCurrent:         c.SwitchOffCurrent,
		ChargeMode:               mode,
		Priority:                 c.Priority,
		CurrentActuatedByVehicle: c.CurrentActuatedByVehicle,
		UsableEnergyKWh:          c.UsableEnergyKWh,
		MinSoC:                   c.MinSoC,
		MaxSoC:                   c.MaxSoC,
	}
	if err := m.Validate(); err != nil {
		return model.Consumer{}, err
	}
	return m, nil
}

// CircuitConfig is a shared supply line. MaxCurrent caps the sum of the per
// phase currents of the consumers on it, whatever their phase count.
type CircuitConfig struct {
	ID         string  `json:"id"`
	MaxCurrent float64 `json:"max_current"`
}

func (c CircuitConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("circuit id is required")
	}
	if c.MaxCurrent <= 0 {
		return fmt.Errorf("circuit %s: max_current must be positive", c.ID)
	}
	return nil
}
