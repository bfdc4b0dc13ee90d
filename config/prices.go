package config

import (
	"fmt"
	"time"

	"github.com/kilianp07/solarcharge/auth"
)

const defaultPricesURL = "https://digital.iservices.rte-france.com/open_api/wholesale_market/v2/france_power_exchanges"

// PricesConfig configures the wholesale price poller.
type PricesConfig struct {
	Enabled bool      `json:"enabled"`
	BaseURL string    `json:"base_url"`
	Auth    auth.Conf `json:"auth"`

	PollInterval time.Duration `json:"poll_interval"`
	// LookAhead is how far past the current hour prices are requested.
	LookAhead time.Duration `json:"look_ahead"`
	Timeout   time.Duration `json:"timeout"`

	// SolarPrice is the price per kWh assigned to self-produced energy.
	SolarPrice float64 `json:"solar_price"`
	// GridFee is added per kWh on top of the wholesale price.
	GridFee float64 `json:"grid_fee"`

	MaxRetries uint64        `json:"max_retries"`
	RetryDelay time.Duration `json:"retry_delay"`
}

func (c *PricesConfig) SetDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = defaultPricesURL
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Hour
	}
	if c.LookAhead <= 0 {
		c.LookAhead = 48 * time.Hour
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 5 * time.Second
	}
}

func (c PricesConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("prices: %w", err)
	}
	if c.SolarPrice < 0 || c.GridFee < 0 {
		return fmt.Errorf("prices: solar_price and grid_fee must not be negative")
	}
	return nil
}
