package model

import (
	"fmt"
	"strings"
)

// ChargeMode selects how a consumer is planned.
type ChargeMode int

const (
	ChargeModeManual ChargeMode = iota
	ChargeModeMaxPower
	ChargeModePvOnly
	ChargeModePvAndMinSoc
	ChargeModeAuto
)

var chargeModeNames = map[ChargeMode]string{
	ChargeModeManual:      "manual",
	ChargeModeMaxPower:    "max_power",
	ChargeModePvOnly:      "pv_only",
	ChargeModePvAndMinSoc: "pv_and_min_soc",
	ChargeModeAuto:        "auto",
}

// String returns the configuration name of the mode.
func (m ChargeMode) String() string {
	if s, ok := chargeModeNames[m]; ok {
		return s
	}
	return "unknown"
}

// ParseChargeMode converts a configuration name into a ChargeMode.
func ParseChargeMode(s string) (ChargeMode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for m, name := range chargeModeNames {
		if name == s {
			return m, nil
		}
	}
	return ChargeModeManual, fmt.Errorf("unknown charge mode %q", s)
}

// UsesMinSoc reports whether the mode charges below the minimum SoC
// regardless of solar surplus.
func (m ChargeMode) UsesMinSoc() bool {
	return m == ChargeModePvAndMinSoc || m == ChargeModeAuto
}

// IsSolarDriven is true for all modes that follow the solar forecast.
func (m ChargeMode) IsSolarDriven() bool {
	return m == ChargeModePvOnly || m == ChargeModePvAndMinSoc || m == ChargeModeAuto
}

// MarshalText encodes the mode by name for json and yaml.
func (m ChargeMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *ChargeMode) UnmarshalText(b []byte) error {
	v, err := ParseChargeMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
