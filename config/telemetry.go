package config

import (
	"fmt"
	"strings"
)

// TelemetryConfig holds the MQTT topics the ingestion manager subscribes to.
type TelemetryConfig struct {
	Enabled bool `json:"enabled"`
	// StatePrefix receives per consumer readings on <prefix>/<consumer_id>.
	StatePrefix string `json:"state_topic_prefix"`
	SiteTopic   string `json:"site_topic"`
	// ForecastPrefix receives <prefix>/prices and <prefix>/solar arrays.
	ForecastPrefix string `json:"forecast_topic_prefix"`
	QoS            byte   `json:"qos"`
}

// SetDefaults applies the default topic layout.
func (c *TelemetryConfig) SetDefaults() {
	if c.StatePrefix == "" {
		c.StatePrefix = "solarcharge/state"
	}
	if c.SiteTopic == "" {
		c.SiteTopic = "solarcharge/site"
	}
	if c.ForecastPrefix == "" {
		c.ForecastPrefix = "solarcharge/forecast"
	}
}

// Validate rejects wildcard prefixes and QoS values MQTT does not define.
func (c TelemetryConfig) Validate() error {
	for _, t := range []string{c.StatePrefix, c.SiteTopic, c.ForecastPrefix} {
		if strings.ContainsAny(t, "+#") {
			return fmt.Errorf("telemetry topic %q must not contain wildcards", t)
		}
	}
	if c.QoS > 2 {
		return fmt.Errorf("telemetry qos %d out of range", c.QoS)
	}
	return nil
}

// StateTopic returns the subscription filter for consumer readings.
func (c TelemetryConfig) StateTopic() string {
	return strings.TrimSuffix(c.StatePrefix, "/") + "/+"
}

// PricesTopic returns the topic price forecasts arrive on.
func (c TelemetryConfig) PricesTopic() string {
	return strings.TrimSuffix(c.ForecastPrefix, "/") + "/prices"
}

// SolarTopic returns the topic solar surplus forecasts arrive on.
func (c TelemetryConfig) SolarTopic() string {
	return strings.TrimSuffix(c.ForecastPrefix, "/") + "/solar"
}
