package state

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/solarcharge/core/model"
)

// ErrUnknownConsumer is returned for updates addressed to unconfigured ids.
var ErrUnknownConsumer = errors.New("unknown consumer")

// SiteField names a site level telemetry reading.
type SiteField string

const (
	// SiteGridPower is the signed grid power, export positive.
	SiteGridPower     SiteField = "grid_power"
	SiteInverterPower SiteField = "inverter_power"
	SiteBatterySoC    SiteField = "battery_soc"
	// SiteBatteryPower is the home battery power, charging positive.
	SiteBatteryPower SiteField = "battery_power"
)

// SiteTelemetry holds the readings the power budget is computed from.
type SiteTelemetry struct {
	GridPower     model.TimestampedValue[int]     `json:"grid_power"`
	InverterPower model.TimestampedValue[int]     `json:"inverter_power"`
	BatterySoC    model.TimestampedValue[float64] `json:"battery_soc"`
	BatteryPower  model.TimestampedValue[int]     `json:"battery_power"`
}

// Snapshot is a consistent copy of the store taken at one instant. Consumers
// are ordered by priority, then id.
type Snapshot struct {
	Taken     time.Time        `json:"taken"`
	Consumers []model.Consumer `json:"consumers"`
	Site      SiteTelemetry    `json:"site"`
}

// Consumer looks up a consumer of the snapshot.
func (s Snapshot) Consumer(id string) (model.Consumer, bool) {
	for _, c := range s.Consumers {
		if c.ID == id {
			return c, true
		}
	}
	return model.Consumer{}, false
}

// IDs returns the consumer ids in snapshot order.
func (s Snapshot) IDs() []string {
	ids := make([]string, len(s.Consumers))
	for i, c := range s.Consumers {
		ids[i] = c.ID
	}
	return ids
}

// Store is the single writer side of consumer and site state. Telemetry
// producers write concurrently, the control loop reads snapshots.
type Store struct {
	mu        sync.RWMutex
	consumers map[string]*model.Consumer
	site      SiteTelemetry
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{consumers: make(map[string]*model.Consumer)}
}

// AddConsumer registers a configured consumer.
func (s *Store) AddConsumer(c model.Consumer) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.consumers[c.ID]; ok {
		return fmt.Errorf("consumer %s already registered", c.ID)
	}
	cp := c
	s.consumers[c.ID] = &cp
	return nil
}

func (s *Store) update(id string, fn func(c *model.Consumer)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.consumers[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConsumer, id)
	}
	fn(c)
	return nil
}

func (s *Store) UpdateSoC(id string, v float64, at time.Time) error {
	return s.update(id, func(c *model.Consumer) { c.SoC.Update(v, at) })
}

func (s *Store) UpdatePluggedIn(id string, v bool, at time.Time) error {
	return s.update(id, func(c *model.Consumer) { c.PluggedIn.Update(v, at) })
}

func (s *Store) UpdatePhases(id string, v int, at time.Time) error {
	return s.update(id, func(c *model.Consumer) { c.Phases.Update(v, at) })
}

func (s *Store) UpdateAtHome(id string, v bool, at time.Time) error {
	return s.update(id, func(c *model.Consumer) { c.AtHome.Update(v, at) })
}

func (s *Store) UpdateChargingCurrent(id string, v float64, at time.Time) error {
	return s.update(id, func(c *model.Consumer) { c.ChargingCurrent.Update(v, at) })
}

func (s *Store) UpdateChargingPower(id string, v int, at time.Time) error {
	return s.update(id, func(c *model.Consumer) { c.ChargingPower.Update(v, at) })
}

func (s *Store) UpdateCharging(id string, v bool, at time.Time) error {
	return s.update(id, func(c *model.Consumer) { c.Charging.Update(v, at) })
}

// SetChargeMode changes the charge mode of a consumer at runtime.
func (s *Store) SetChargeMode(id string, m model.ChargeMode) error {
	return s.update(id, func(c *model.Consumer) { c.ChargeMode = m })
}

// RecordCommand stores a decision that was successfully applied.
func (s *Store) RecordCommand(id string, d model.Decision, at time.Time) error {
	return s.update(id, func(c *model.Consumer) {
		if d.PhaseSwitch {
			c.LastPhaseSwitch = at
		}
		c.LastCommand = d
		c.LastAdjustment = at
	})
}

// UpdateSite stores a site reading.
func (s *Store) UpdateSite(field SiteField, v float64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch field {
	case SiteGridPower:
		s.site.GridPower.Update(int(v), at)
	case SiteInverterPower:
		s.site.InverterPower.Update(int(v), at)
	case SiteBatterySoC:
		s.site.BatterySoC.Update(v, at)
	case SiteBatteryPower:
		s.site.BatteryPower.Update(int(v), at)
	default:
		return fmt.Errorf("unknown site field %q", field)
	}
	return nil
}

// Snapshot copies the current state.
func (s *Store) Snapshot(now time.Time) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{Taken: now, Site: s.site, Consumers: make([]model.Consumer, 0, len(s.consumers))}
	for _, c := range s.consumers {
		snap.Consumers = append(snap.Consumers, *c)
	}
	SortByPriority(snap.Consumers)
	return snap
}

// SortByPriority orders consumers by ascending priority, ties by id.
func SortByPriority(cs []model.Consumer) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].Priority != cs[j].Priority {
			return cs[i].Priority < cs[j].Priority
		}
		return cs[i].ID < cs[j].ID
	})
}
