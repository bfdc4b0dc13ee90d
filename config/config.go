// Package config loads the service configuration from a yaml or json file
// with K_ prefixed environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/solarcharge/core/allocation"
	"github.com/kilianp07/solarcharge/core/budget"
	"github.com/kilianp07/solarcharge/core/control"
	"github.com/kilianp07/solarcharge/core/metrics"
	"github.com/kilianp07/solarcharge/core/schedule"
	"github.com/kilianp07/solarcharge/core/targets"
	"github.com/kilianp07/solarcharge/infra/mqtt"
)

type Config struct {
	MQTT       mqtt.Config         `json:"mqtt"`
	Control    control.Config      `json:"control"`
	Budget     budget.Settings     `json:"budget"`
	Allocation allocation.Settings `json:"allocation"`
	Schedule   schedule.Settings   `json:"schedule"`
	Targets    TargetsConfig       `json:"targets"`
	Consumers  []ConsumerConfig    `json:"consumers"`
	Circuits   []CircuitConfig     `json:"circuits"`
	Metrics    metrics.Config      `json:"metrics"`
	Log        LogConfig           `json:"log"`
	Logging    LoggingConfig       `json:"logging"`
	Telemetry  TelemetryConfig     `json:"telemetry"`
	Prices     PricesConfig        `json:"prices"`
	Sentry     SentryConfig        `json:"sentry"`
	HTTP       HTTPConfig          `json:"http"`
}

// TargetsConfig points to the charging target definitions.
type TargetsConfig struct {
	File          string        `json:"file"`
	CatchUpWindow time.Duration `json:"catch_up_window"`
}

func (c *TargetsConfig) SetDefaults() {
	if c.CatchUpWindow <= 0 {
		c.CatchUpWindow = targets.DefaultCatchUpWindow
	}
}

// HTTPConfig enables the read API and the /metrics endpoint.
type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Address string `json:"address"`
	// Token protects /api with a bearer token when set.
	Token string `json:"token"`
}

func (c *HTTPConfig) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills unset fields of every section.
func (c *Config) SetDefaults() {
	c.MQTT.SetDefaults()
	c.Control.SetDefaults()
	c.Targets.SetDefaults()
	c.Log.SetDefaults()
	c.Logging.SetDefaults()
	c.Telemetry.SetDefaults()
	c.Prices.SetDefaults()
	c.Sentry.SetDefaults()
	c.HTTP.SetDefaults()
	for i := range c.Consumers {
		c.Consumers[i].SetDefaults()
	}

	if c.Budget.Freshness <= 0 {
		c.Budget.Freshness = 2 * time.Minute
	}
	if c.Schedule.Horizon <= 0 {
		c.Schedule.Horizon = schedule.DefaultHorizon
	}
	if c.Schedule.PhaseFreshness <= 0 {
		c.Schedule.PhaseFreshness = 10 * time.Minute
	}
	if c.Schedule.SoCFreshness <= 0 {
		c.Schedule.SoCFreshness = time.Hour
	}
	a := &c.Allocation
	if a.PlugFreshness <= 0 {
		a.PlugFreshness = 10 * time.Minute
	}
	if a.PowerFreshness <= 0 {
		a.PowerFreshness = 2 * time.Minute
	}
	if a.PhaseFreshness <= 0 {
		a.PhaseFreshness = c.Schedule.PhaseFreshness
	}
	if a.StaleRetry <= 0 {
		a.StaleRetry = time.Minute
	}
	if a.MinAdjustmentInterval <= 0 {
		a.MinAdjustmentInterval = 2 * time.Minute
	}
}

// Validate checks every section and the references between consumers and
// circuits.
func (c *Config) Validate() error {
	if err := c.MQTT.Validate(); err != nil {
		return err
	}
	if c.Budget.Buffer < 0 || c.Budget.MaxInverterACPower < 0 {
		return fmt.Errorf("budget: buffer and inverter limit must not be negative")
	}
	if c.Budget.BatteryMinSoC < 0 || c.Budget.BatteryMinSoC > 100 {
		return fmt.Errorf("budget: battery_min_soc must be between 0 and 100")
	}
	circuits := make(map[string]bool, len(c.Circuits))
	for _, cc := range c.Circuits {
		if err := cc.Validate(); err != nil {
			return err
		}
		if circuits[cc.ID] {
			return fmt.Errorf("circuit %s defined twice", cc.ID)
		}
		circuits[cc.ID] = true
	}
	seen := make(map[string]bool, len(c.Consumers))
	for _, cc := range c.Consumers {
		if err := cc.Validate(); err != nil {
			return err
		}
		if seen[cc.ID] {
			return fmt.Errorf("consumer %s defined twice", cc.ID)
		}
		seen[cc.ID] = true
		if cc.CircuitID != "" && !circuits[cc.CircuitID] {
			return fmt.Errorf("consumer %s references unknown circuit %s", cc.ID, cc.CircuitID)
		}
	}
	if err := c.Log.Validate(); err != nil {
		return err
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	if err := c.Telemetry.Validate(); err != nil {
		return err
	}
	if err := c.Sentry.Validate(); err != nil {
		return err
	}
	return c.Prices.Validate()
}

// CircuitLimits maps circuit ids to their max current.
func (c *Config) CircuitLimits() map[string]float64 {
	out := make(map[string]float64, len(c.Circuits))
	for _, cc := range c.Circuits {
		out[cc.ID] = cc.MaxCurrent
	}
	return out
}
