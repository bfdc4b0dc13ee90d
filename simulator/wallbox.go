// Package simulator emulates wallboxes with a plugged-in car. Each wallbox
// executes the commands published for it, acknowledges them and reports
// its readings on the telemetry topics.
package simulator

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/kilianp07/solarcharge/core/command"
	"github.com/kilianp07/solarcharge/core/model"
	infmqtt "github.com/kilianp07/solarcharge/infra/mqtt"
	"github.com/kilianp07/solarcharge/infra/telemetry"
)

// Wallbox is one simulated charge point.
type Wallbox struct {
	ID         string
	MaxCurrent float64
	MaxPhases  int
	Battery    *Battery

	mu        sync.Mutex
	pluggedIn bool
	charging  bool
	current   float64
	phases    int
	power     float64
}

// NewWallbox returns a plugged-in, idle wallbox.
func NewWallbox(id string, maxCurrent float64, maxPhases int, b *Battery) *Wallbox {
	if maxPhases < 1 || maxPhases > 3 {
		maxPhases = 3
	}
	return &Wallbox{
		ID:         id,
		MaxCurrent: maxCurrent,
		MaxPhases:  maxPhases,
		Battery:    b,
		pluggedIn:  true,
		phases:     maxPhases,
	}
}

// Apply executes one command.
func (w *Wallbox) Apply(p infmqtt.Payload) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch p.Action {
	case command.ActionStart:
		if !w.pluggedIn {
			return fmt.Errorf("%s: no vehicle plugged in", w.ID)
		}
		w.charging = true
	case command.ActionStop:
		w.charging = false
		w.power = 0
	case command.ActionSetCurrent:
		if p.Value < 0 {
			return fmt.Errorf("%s: negative current %.1f", w.ID, p.Value)
		}
		w.current = math.Min(p.Value, w.MaxCurrent)
	case command.ActionSetPhases:
		n := int(p.Value)
		if n < 1 || n > w.MaxPhases {
			return fmt.Errorf("%s: %d phases not supported", w.ID, n)
		}
		w.phases = n
	default:
		return fmt.Errorf("%s: unknown action %q", w.ID, p.Action)
	}
	return nil
}

// SetPluggedIn connects or disconnects the car. Unplugging stops charging.
func (w *Wallbox) SetPluggedIn(v bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pluggedIn = v
	if !v {
		w.charging = false
		w.power = 0
	}
}

// Step advances the simulation by dt. A full battery stops drawing power
// but the session stays active.
func (w *Wallbox) Step(dt time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.charging || w.Battery == nil {
		w.power = 0
		return
	}
	w.power = w.Battery.Charge(model.PowerFor(w.current, w.phases), dt)
}

// Readings returns the current state as telemetry messages.
func (w *Wallbox) Readings(at time.Time) ([]telemetry.ConsumerReading, error) {
	w.mu.Lock()
	fields := map[string]any{
		telemetry.FieldPluggedIn: w.pluggedIn,
		telemetry.FieldCharging:  w.charging && w.power > 0,
		telemetry.FieldCurrent:   w.current,
		telemetry.FieldPhases:    w.phases,
		telemetry.FieldPower:     math.Round(w.power),
	}
	w.mu.Unlock()
	if w.Battery != nil {
		fields[telemetry.FieldSoC] = math.Round(w.Battery.Level()*10) / 10
	}

	ts := at.Unix()
	out := make([]telemetry.ConsumerReading, 0, len(fields))
	for _, f := range []string{
		telemetry.FieldSoC, telemetry.FieldPluggedIn, telemetry.FieldCharging,
		telemetry.FieldCurrent, telemetry.FieldPhases, telemetry.FieldPower,
	} {
		v, ok := fields[f]
		if !ok {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		out = append(out, telemetry.ConsumerReading{ConsumerID: w.ID, Field: f, Value: raw, TS: &ts})
	}
	return out, nil
}
