// Package scenarios replays scripted site and consumer readings through the
// control loop and checks the resulting decisions and commands.
package scenarios

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/solarcharge/config"
	"github.com/kilianp07/solarcharge/core/model"
)

// ConsumerDef is a configured consumer plus its initial readings.
type ConsumerDef struct {
	ID              string  `yaml:"id"`
	Mode            string  `yaml:"mode"`
	Priority        int     `yaml:"priority"`
	Circuit         string  `yaml:"circuit,omitempty"`
	MinCurrent      float64 `yaml:"min_current,omitempty"`
	MaxCurrent      float64 `yaml:"max_current"`
	MaxPhases       int     `yaml:"max_phases,omitempty"`
	CanSwitchPhases bool    `yaml:"can_switch_phases,omitempty"`
	UsableEnergyKWh float64 `yaml:"usable_energy_kwh,omitempty"`
	MinSoC          int     `yaml:"min_soc,omitempty"`

	Readings `yaml:",inline"`
}

func (c ConsumerDef) toConfig() config.ConsumerConfig {
	return config.ConsumerConfig{
		ID:              c.ID,
		CircuitID:       c.Circuit,
		MinCurrent:      c.MinCurrent,
		MaxCurrent:      c.MaxCurrent,
		MaxPhases:       c.MaxPhases,
		CanSwitchPhases: c.CanSwitchPhases,
		ChargeMode:      c.Mode,
		Priority:        c.Priority,
		UsableEnergyKWh: c.UsableEnergyKWh,
		MinSoC:          c.MinSoC,
	}
}

// Readings are consumer telemetry values; nil fields are not reported.
type Readings struct {
	PluggedIn *bool    `yaml:"plugged_in,omitempty"`
	AtHome    *bool    `yaml:"at_home,omitempty"`
	SoC       *float64 `yaml:"soc,omitempty"`
	Phases    *int     `yaml:"phases,omitempty"`
	Charging  *bool    `yaml:"charging,omitempty"`
	Power     *int     `yaml:"power,omitempty"`
}

// SiteDef carries site readings in W and %.
type SiteDef struct {
	GridPower     *float64 `yaml:"grid_power,omitempty"`
	InverterPower *float64 `yaml:"inverter_power,omitempty"`
	BatterySoC    *float64 `yaml:"battery_soc,omitempty"`
	BatteryPower  *float64 `yaml:"battery_power,omitempty"`
}

// SolarDef is one forecast surplus slice.
type SolarDef struct {
	From    time.Time `yaml:"from"`
	To      time.Time `yaml:"to"`
	Surplus int       `yaml:"surplus_w"`
}

// Expected describes the decision for one consumer. Unset fields are not
// checked.
type Expected struct {
	Action     model.Action `yaml:"action"`
	Reason     string       `yaml:"reason,omitempty"`
	Current    *float64     `yaml:"current,omitempty"`
	Phases     int          `yaml:"phases,omitempty"`
	Suppressed *bool        `yaml:"suppressed,omitempty"`
	// Commands lists the commander actions in call order.
	Commands []string `yaml:"commands,omitempty"`
	Failed   bool     `yaml:"failed,omitempty"`
}

// Step advances the clock, applies readings and runs one tick.
type Step struct {
	Advance  time.Duration       `yaml:"advance"`
	Site     *SiteDef            `yaml:"site,omitempty"`
	Readings map[string]Readings `yaml:"readings,omitempty"`
	// Fail makes every command to the listed consumers fail from this step.
	Fail     []string            `yaml:"fail,omitempty"`
	Expected map[string]Expected `yaml:"expected"`
}

// Scenario is one scripted run.
type Scenario struct {
	Name        string                 `yaml:"name"`
	Description string                 `yaml:"description,omitempty"`
	Start       time.Time              `yaml:"start"`
	BufferW     int                    `yaml:"buffer_w,omitempty"`
	Circuits    []config.CircuitConfig `yaml:"-"`
	CircuitDefs map[string]float64     `yaml:"circuits,omitempty"`
	Consumers   []ConsumerDef          `yaml:"consumers"`
	Solar       []SolarDef             `yaml:"solar,omitempty"`
	Steps       []Step                 `yaml:"steps"`
}

// Load reads a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if sc.Name == "" {
		return nil, fmt.Errorf("%s: scenario name is required", path)
	}
	if sc.Start.IsZero() {
		return nil, fmt.Errorf("%s: start time is required", path)
	}
	if len(sc.Steps) == 0 {
		return nil, fmt.Errorf("%s: no steps", path)
	}
	for id, limit := range sc.CircuitDefs {
		sc.Circuits = append(sc.Circuits, config.CircuitConfig{ID: id, MaxCurrent: limit})
	}
	return &sc, nil
}

func (sc *Scenario) config() (*config.Config, error) {
	cfg := &config.Config{Circuits: sc.Circuits}
	cfg.MQTT.Broker = "tcp://scenario:1883"
	cfg.Budget.Buffer = sc.BufferW
	for _, c := range sc.Consumers {
		cfg.Consumers = append(cfg.Consumers, c.toConfig())
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}
	return cfg, nil
}
