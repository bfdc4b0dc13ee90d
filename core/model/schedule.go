package model

import "time"

// ChargingSchedule is a planned slot [ValidFrom, ValidTo) for one consumer.
// It is derived each tick and never persisted.
type ChargingSchedule struct {
	ConsumerID     string    `json:"consumer_id"`
	ValidFrom      time.Time `json:"valid_from"`
	ValidTo        time.Time `json:"valid_to"`
	TargetMinPower int       `json:"target_min_power"`
	// OnlyChargeOnAtLeastSolarPower gates the slot on solar power; nil
	// means grid power may be used.
	OnlyChargeOnAtLeastSolarPower *int   `json:"only_charge_on_at_least_solar_power,omitempty"`
	EstimatedSolarPower           int    `json:"estimated_solar_power"`
	TargetID                      string `json:"target_id,omitempty"`
	Infeasible                    bool   `json:"infeasible,omitempty"`
}

// Duration returns ValidTo - ValidFrom.
func (s ChargingSchedule) Duration() time.Duration { return s.ValidTo.Sub(s.ValidFrom) }

// Contains reports whether t lies within the half-open interval.
func (s ChargingSchedule) Contains(t time.Time) bool {
	return !t.Before(s.ValidFrom) && t.Before(s.ValidTo)
}

// IsSolarOnly reports whether the slot is gated on solar power.
func (s ChargingSchedule) IsSolarOnly() bool { return s.OnlyChargeOnAtLeastSolarPower != nil }

func (s ChargingSchedule) Bounds() (time.Time, time.Time) { return s.ValidFrom, s.ValidTo }

func (s ChargingSchedule) WithBounds(from, to time.Time) ChargingSchedule {
	s.ValidFrom, s.ValidTo = from, to
	return s
}

// PriceInterval carries the solar and grid price per kWh for [ValidFrom, ValidTo).
type PriceInterval struct {
	ValidFrom  time.Time `json:"valid_from"`
	ValidTo    time.Time `json:"valid_to"`
	SolarPrice float64   `json:"solar_price"`
	GridPrice  float64   `json:"grid_price"`
}

func (p PriceInterval) Bounds() (time.Time, time.Time) { return p.ValidFrom, p.ValidTo }

func (p PriceInterval) WithBounds(from, to time.Time) PriceInterval {
	p.ValidFrom, p.ValidTo = from, to
	return p
}

// SolarSlice is a forecast of the surplus power over [ValidFrom, ValidTo).
type SolarSlice struct {
	ValidFrom    time.Time `json:"valid_from"`
	ValidTo      time.Time `json:"valid_to"`
	SurplusPower int       `json:"surplus_power"`
}

func (s SolarSlice) Bounds() (time.Time, time.Time) { return s.ValidFrom, s.ValidTo }

func (s SolarSlice) WithBounds(from, to time.Time) SolarSlice {
	s.ValidFrom, s.ValidTo = from, to
	return s
}
