// Package allocation converts aligned schedules and the power budget into
// per consumer start/stop decisions and current setpoints.
package allocation

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/kilianp07/solarcharge/core/align"
	"github.com/kilianp07/solarcharge/core/logger"
	"github.com/kilianp07/solarcharge/core/model"
	"github.com/kilianp07/solarcharge/core/state"
)

// ReasonManual marks consumers that are not controlled.
const ReasonManual = "manual"

// Settings configure freshness and command pacing.
type Settings struct {
	// PlugFreshness applies to plug state and geofence membership.
	PlugFreshness time.Duration `json:"plug_freshness"`
	// PowerFreshness applies to the consumer's reported charging power.
	PowerFreshness time.Duration `json:"power_freshness"`
	PhaseFreshness time.Duration `json:"phase_freshness"`
	// StaleRetry is added to now for decisions caused by stale input.
	StaleRetry            time.Duration `json:"stale_retry"`
	MinAdjustmentInterval time.Duration `json:"min_adjustment_interval"`
}

// Input is everything one allocation pass works on. It is not modified.
type Input struct {
	// Consumers in any order, they are processed by priority.
	Consumers []model.Consumer
	// Schedules are the aligned schedule segments per consumer id.
	Schedules map[string][]model.ChargingSchedule
	// Prices are the aligned price segments per consumer id.
	Prices map[string][]model.PriceInterval
	// Budget is the power available to consumers in W.
	Budget int
	// Circuits maps a circuit id to the max sum of per phase currents in A.
	Circuits map[string]float64
	Now      time.Time
}

// Calculator is the priority waterfall allocator.
type Calculator struct {
	settings Settings
	log      logger.Logger
}

// NewCalculator creates a calculator.
func NewCalculator(s Settings, log logger.Logger) *Calculator {
	return &Calculator{settings: s, log: log}
}

type pass struct {
	now       time.Time
	remaining float64
	grants    map[string][]float64
	circuits  map[string]float64
}

// Calculate returns one decision per consumer, in priority order.
func (c *Calculator) Calculate(in Input) []model.Decision {
	consumers := append([]model.Consumer(nil), in.Consumers...)
	state.SortByPriority(consumers)

	p := &pass{
		now:       in.Now,
		remaining: float64(in.Budget),
		grants:    make(map[string][]float64),
		circuits:  in.Circuits,
	}
	c.seedUncontrolled(p, consumers)
	out := make([]model.Decision, 0, len(consumers))
	for _, cons := range consumers {
		own := c.ownPower(cons, in.Now)
		d := c.decide(p, cons, in.Schedules[cons.ID], own)
		if d.Action != model.ActionNone {
			p.remaining -= d.Power() - own
		}
		c.suppress(&d, cons, in.Now)
		decisionsTotal.WithLabelValues(string(d.Action), d.Reason).Inc()
		c.log.Debugw("allocation decision", map[string]any{
			"consumer":   cons.ID,
			"action":     string(d.Action),
			"current":    d.TargetCurrent,
			"phases":     d.TargetPhases,
			"reason":     d.Reason,
			"suppressed": d.Suppressed,
			"remaining":  p.remaining,
		})
		out = append(out, d)
	}
	allocatedPower.Set(float64(in.Budget) - p.remaining)
	return out
}

func (c *Calculator) decide(p *pass, cons model.Consumer, schedules []model.ChargingSchedule, own float64) model.Decision {
	now := p.now
	if cons.ChargeMode == model.ChargeModeManual {
		return model.Decision{ConsumerID: cons.ID, Action: model.ActionNone, Reason: ReasonManual}
	}
	if d, ok := c.gate(cons, now); !ok {
		return d
	}
	seg, ok := align.Covering(schedules, now)
	if !ok {
		return stop(cons.ID, model.ReasonNoSchedule)
	}

	available := p.remaining + own
	charging := cons.IsCharging()
	minPh := cons.MaxPhases
	if cons.CanSwitchPhases {
		minPh = 1
	}
	reason := model.ReasonScheduled
	if seg.IsSolarOnly() {
		reason = model.ReasonSolar
		required := model.PowerFor(cons.SwitchOn(), minPh)
		if charging {
			required = model.PowerFor(cons.SwitchOff(), minPh)
		} else if g := float64(*seg.OnlyChargeOnAtLeastSolarPower); g > required {
			required = g
		}
		if available < required {
			return stop(cons.ID, model.ReasonNoSurplus)
		}
	}
	desired := math.Max(float64(seg.TargetMinPower), available)
	if desired <= 0 {
		return stop(cons.ID, model.ReasonNoSurplus)
	}

	d := model.Decision{ConsumerID: cons.ID, Action: model.ActionStart, Reason: reason}
	d.TargetPhases, d.PhaseSwitch, d.RetryAt = c.phases(cons, desired, now)
	d.TargetCurrent = clampCurrent(cons, model.CurrentFor(desired, d.TargetPhases))

	if cons.CircuitID != "" {
		if limit, ok := p.circuits[cons.CircuitID]; ok {
			used := floats.Sum(p.grants[cons.CircuitID])
			grant := math.Min(d.TargetCurrent, limit-used)
			if grant < cons.MinCurrent || grant <= 0 {
				circuitLimited.WithLabelValues(cons.CircuitID).Inc()
				return stop(cons.ID, model.ReasonCircuitLimit)
			}
			if grant < d.TargetCurrent {
				circuitLimited.WithLabelValues(cons.CircuitID).Inc()
				d.TargetCurrent = floorTenth(grant)
			}
			p.grants[cons.CircuitID] = append(p.grants[cons.CircuitID], d.TargetCurrent)
		}
	}
	return d
}

// seedUncontrolled books the current drawn by manual consumers on their
// circuit before any grant is made.
func (c *Calculator) seedUncontrolled(p *pass, consumers []model.Consumer) {
	for _, cons := range consumers {
		if cons.ChargeMode != model.ChargeModeManual || cons.CircuitID == "" {
			continue
		}
		if _, ok := p.circuits[cons.CircuitID]; !ok {
			continue
		}
		if drawn := c.drawnCurrent(cons, p.now); drawn > 0 {
			p.grants[cons.CircuitID] = append(p.grants[cons.CircuitID], drawn)
		}
	}
}

// drawnCurrent is the per phase current the consumer currently draws: the
// fresh reported value, else the last commanded one while charging.
func (c *Calculator) drawnCurrent(cons model.Consumer, now time.Time) float64 {
	if cons.ChargingCurrent.IsSet() && cons.ChargingCurrent.IsRelevant(now, c.settings.PowerFreshness) {
		return cons.ChargingCurrent.Value
	}
	if cons.IsCharging() && cons.LastCommand.Action == model.ActionStart {
		return cons.LastCommand.TargetCurrent
	}
	return 0
}

// gate checks the telemetry a decision depends on.
func (c *Calculator) gate(cons model.Consumer, now time.Time) (model.Decision, bool) {
	if !cons.PluggedIn.IsRelevant(now, c.settings.PlugFreshness) {
		return c.stale(cons, now), false
	}
	if !cons.PluggedIn.Value {
		return stop(cons.ID, model.ReasonNotPluggedIn), false
	}
	if cons.Kind == model.KindCar && cons.AtHome.IsSet() {
		if !cons.AtHome.IsRelevant(now, c.settings.PlugFreshness) {
			return c.stale(cons, now), false
		}
		if !cons.AtHome.Value {
			return stop(cons.ID, model.ReasonNotAtHome), false
		}
	}
	return model.Decision{}, true
}

func (c *Calculator) stale(cons model.Consumer, now time.Time) model.Decision {
	d := stop(cons.ID, model.ReasonStaleInput)
	d.RetryAt = now.Add(c.settings.StaleRetry)
	c.log.Warnf("consumer %s: stale telemetry, stopping until %s", cons.ID, d.RetryAt.Format(time.RFC3339))
	return d
}

// ownPower is the power the consumer currently draws, which is part of the
// budget it may keep.
func (c *Calculator) ownPower(cons model.Consumer, now time.Time) float64 {
	if cons.ChargingPower.IsSet() && cons.ChargingPower.IsRelevant(now, c.settings.PowerFreshness) {
		return float64(cons.ChargingPower.Value)
	}
	if cons.IsCharging() {
		return cons.LastCommand.Power()
	}
	return 0
}

// phases picks the phase count for the desired power, honoring the switch
// cooldown. RetryAt is set when a wanted switch is deferred.
func (c *Calculator) phases(cons model.Consumer, desired float64, now time.Time) (int, bool, time.Time) {
	current := cons.EffectivePhases(now, c.settings.PhaseFreshness)
	if !cons.Phases.IsSet() && cons.LastCommand.TargetPhases > 0 {
		current = cons.LastCommand.TargetPhases
	}
	if !cons.CanSwitchPhases {
		return current, false, time.Time{}
	}
	want := cons.MaxPhases
	if desired < cons.MinPower(cons.MaxPhases) {
		want = 1
	}
	if want == current {
		return current, false, time.Time{}
	}
	if !cons.LastPhaseSwitch.IsZero() {
		if until := cons.LastPhaseSwitch.Add(cons.PhaseSwitchCooldown); now.Before(until) {
			return current, false, until
		}
	}
	return want, true, time.Time{}
}

// suppress marks decisions repeating the last command within the minimum
// adjustment interval.
func (c *Calculator) suppress(d *model.Decision, cons model.Consumer, now time.Time) {
	if d.Action == model.ActionNone || cons.LastAdjustment.IsZero() || c.settings.MinAdjustmentInterval <= 0 {
		return
	}
	until := cons.LastAdjustment.Add(c.settings.MinAdjustmentInterval)
	if !now.Before(until) || !cons.LastCommand.SameCommand(*d) {
		return
	}
	d.Suppressed = true
	d.PhaseSwitch = false
	if d.RetryAt.IsZero() || until.Before(d.RetryAt) {
		d.RetryAt = until
	}
}

func stop(id, reason string) model.Decision {
	return model.Decision{ConsumerID: id, Action: model.ActionStop, Reason: reason}
}

func clampCurrent(cons model.Consumer, current float64) float64 {
	current = floorTenth(current)
	return math.Min(math.Max(current, cons.MinCurrent), cons.MaxCurrent)
}

// floorTenth rounds down to 0.1 A so small power jitter does not produce new
// setpoints.
func floorTenth(v float64) float64 {
	return math.Floor(v*10+1e-9) / 10
}
