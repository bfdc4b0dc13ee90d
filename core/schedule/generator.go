// Package schedule plans, per consumer, the time slots in which it should
// charge and the minimum power it should draw in each of them.
package schedule

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/kilianp07/solarcharge/core/logger"
	"github.com/kilianp07/solarcharge/core/model"
	"github.com/kilianp07/solarcharge/core/targets"
)

// DefaultHorizon is the planning window used when none is configured.
const DefaultHorizon = 24 * time.Hour

// Settings configure the generator.
type Settings struct {
	Horizon time.Duration `json:"horizon"`
	// PhaseFreshness is the age up to which reported phases are trusted.
	PhaseFreshness time.Duration `json:"phase_freshness"`
	// SoCFreshness is the age up to which a SoC reading drives forced
	// charging. An older reading counts as unknown. Zero trusts any age.
	SoCFreshness time.Duration `json:"soc_freshness"`
}

// Forecast is the forecast data available to the planner.
type Forecast struct {
	Prices []model.PriceInterval
	Solar  []model.SolarSlice
}

// Plan is the result of planning one consumer.
type Plan struct {
	Schedules []model.ChargingSchedule
	// Infeasible lists the ids of targets that cannot be met in time.
	Infeasible []string
}

// ForcedEnergy returns the energy in Wh planned at fixed minimum power.
func (p Plan) ForcedEnergy() float64 {
	powers := make([]float64, len(p.Schedules))
	hours := make([]float64, len(p.Schedules))
	for i, s := range p.Schedules {
		powers[i] = float64(s.TargetMinPower)
		hours[i] = s.Duration().Hours()
	}
	if len(powers) == 0 {
		return 0
	}
	return floats.Dot(powers, hours)
}

// Generator builds plans from charge mode, targets and forecasts.
type Generator struct {
	settings Settings
	log      logger.Logger
}

// NewGenerator returns a generator. A zero horizon uses DefaultHorizon.
func NewGenerator(s Settings, log logger.Logger) *Generator {
	if s.Horizon <= 0 {
		s.Horizon = DefaultHorizon
	}
	return &Generator{settings: s, log: log}
}

// Horizon is the planning window of the generator.
func (g *Generator) Horizon() time.Duration { return g.settings.Horizon }

// MinSocDuration returns how long the consumer must charge at max current on
// the given phases to reach its minimum SoC.
func MinSocDuration(c model.Consumer, phases int) time.Duration {
	if c.MinSoC <= 0 {
		return 0
	}
	return c.DurationAtMaxPower(c.EnergyToSoC(c.MinSoC), phases)
}

// Generate plans the consumer from now on. Targets of other consumers are
// ignored.
func (g *Generator) Generate(c model.Consumer, relevant []targets.RelevantTarget, fc Forecast, now time.Time) Plan {
	end := now.Add(g.settings.Horizon)
	if c.SoC.IsSet() && !c.SoC.IsRelevant(now, g.settings.SoCFreshness) {
		g.log.Warnf("consumer %s: SoC reading is %s old, planning solar only", c.ID, c.SoC.Age(now).Round(time.Second))
		c.SoC = model.TimestampedValue[float64]{}
	}
	phases := c.EffectivePhases(now, g.settings.PhaseFreshness)
	maxPower := int(model.PowerFor(c.MaxCurrent, phases))

	switch c.ChargeMode {
	case model.ChargeModeManual:
		return Plan{}
	case model.ChargeModeMaxPower:
		return Plan{Schedules: []model.ChargingSchedule{{
			ConsumerID:     c.ID,
			ValidFrom:      now,
			ValidTo:        end,
			TargetMinPower: maxPower,
		}}}
	}

	var plan Plan
	var forced []model.ChargingSchedule

	if d := MinSocDuration(c, phases); d > 0 {
		if c.ChargeMode.UsesMinSoc() {
			forced = append(forced, slot(c.ID, now, now.Add(d), maxPower))
		} else {
			forced = append(forced, solarPlacement(c.ID, fc.Solar, nil, now, end, d, maxPower, "")...)
		}
	}

	for _, rt := range relevant {
		if rt.Target.ConsumerID != c.ID {
			continue
		}
		slots, infeasible := g.placeTarget(c, rt, fc, forced, phases, maxPower, now)
		if infeasible {
			plan.Infeasible = append(plan.Infeasible, rt.Target.ID)
			targetsInfeasible.Inc()
			g.log.Warnf("target %s of consumer %s cannot be met before %s", rt.Target.ID, c.ID, rt.NextExecutionTime.Format(time.RFC3339))
		}
		forced = append(forced, slots...)
	}

	forced = ConcatenateChargeTimes(forced)
	plan.Schedules = append(forced, g.solarSlots(c, fc.Solar, forced, phases, now, end)...)
	sort.SliceStable(plan.Schedules, func(i, j int) bool {
		return plan.Schedules[i].ValidFrom.Before(plan.Schedules[j].ValidFrom)
	})
	schedulesGenerated.WithLabelValues(c.ChargeMode.String()).Add(float64(len(plan.Schedules)))
	g.log.Debugw("plan generated", map[string]any{
		"consumer":      c.ID,
		"mode":          c.ChargeMode.String(),
		"schedules":     len(plan.Schedules),
		"forced_energy": plan.ForcedEnergy(),
	})
	return plan
}

// placeTarget returns the forced slots serving one target and whether the
// target is infeasible.
func (g *Generator) placeTarget(c model.Consumer, rt targets.RelevantTarget, fc Forecast, taken []model.ChargingSchedule, phases, maxPower int, now time.Time) ([]model.ChargingSchedule, bool) {
	energy := c.EnergyToSoC(rt.Target.TargetSoC)
	if energy <= 0 {
		return nil, false
	}
	d := c.DurationAtMaxPower(energy, phases)
	deadline := rt.NextExecutionTime
	id := rt.Target.ID

	if rt.Overdue {
		return []model.ChargingSchedule{withTarget(slot(c.ID, now, now.Add(d), maxPower), id)}, false
	}
	if deadline.Sub(now) < d {
		s := withTarget(slot(c.ID, now, deadline, maxPower), id)
		s.Infeasible = true
		return []model.ChargingSchedule{s}, true
	}

	switch c.ChargeMode {
	case model.ChargeModePvOnly:
		slots := solarPlacement(c.ID, fc.Solar, taken, now, deadline, d, maxPower, id)
		if got := TotalDuration(slots); got < d {
			g.log.Debugf("target %s: forecast solar covers %s of %s", id, got, d)
		}
		return slots, false
	case model.ChargeModeAuto:
		if slots, ok := cheapest(c.ID, fc.Prices, now, deadline, d, maxPower, id); ok {
			return slots, false
		}
	}

	if favorableSolar(fc.Solar, now, deadline.Add(-d)) {
		return []model.ChargingSchedule{withTarget(slot(c.ID, deadline.Add(-d), deadline, maxPower), id)}, false
	}
	minPower := int(model.PowerFor(c.MinCurrent, minPhases(c, phases)))
	spread := int(math.Ceil(energy / deadline.Sub(now).Hours()))
	spread = max(spread, minPower)
	spread = min(spread, maxPower)
	return []model.ChargingSchedule{withTarget(slot(c.ID, now, deadline, spread), id)}, false
}

// solarSlots turns positive surplus forecast into gated slots outside the
// forced windows.
func (g *Generator) solarSlots(c model.Consumer, solar []model.SolarSlice, forced []model.ChargingSchedule, phases int, now, end time.Time) []model.ChargingSchedule {
	gate := int(model.PowerFor(c.MinCurrent, minPhases(c, phases)))
	var out []model.ChargingSchedule
	for _, sl := range solar {
		if sl.SurplusPower <= 0 {
			continue
		}
		from, to := clip(sl.ValidFrom, sl.ValidTo, now, end)
		if !to.After(from) {
			continue
		}
		for _, w := range subtract(from, to, forced) {
			minSolar := gate
			out = append(out, model.ChargingSchedule{
				ConsumerID:                    c.ID,
				ValidFrom:                     w.from,
				ValidTo:                       w.to,
				OnlyChargeOnAtLeastSolarPower: &minSolar,
				EstimatedSolarPower:           sl.SurplusPower,
			})
		}
	}
	return out
}

// solarPlacement fills d into positive surplus slices inside [from, to) not
// already taken, largest surplus first and earlier slices on ties.
func solarPlacement(consumerID string, solar []model.SolarSlice, taken []model.ChargingSchedule, from, to time.Time, d time.Duration, power int, targetID string) []model.ChargingSchedule {
	type cand struct {
		from, to time.Time
		surplus  int
	}
	var cands []cand
	for _, sl := range solar {
		if sl.SurplusPower <= 0 {
			continue
		}
		f, t := clip(sl.ValidFrom, sl.ValidTo, from, to)
		if !t.After(f) {
			continue
		}
		for _, w := range subtract(f, t, taken) {
			cands = append(cands, cand{w.from, w.to, sl.SurplusPower})
		}
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].surplus != cands[j].surplus {
			return cands[i].surplus > cands[j].surplus
		}
		return cands[i].from.Before(cands[j].from)
	})
	var out []model.ChargingSchedule
	remaining := d
	for _, c := range cands {
		if remaining <= 0 {
			break
		}
		take := min(c.to.Sub(c.from), remaining)
		s := slot(consumerID, c.from, c.from.Add(take), power)
		s.EstimatedSolarPower = c.surplus
		out = append(out, withTarget(s, targetID))
		remaining -= take
	}
	return out
}

// cheapest covers d with the cheapest grid price intervals before the
// deadline. It fails when prices do not cover enough of the window.
func cheapest(consumerID string, prices []model.PriceInterval, now, deadline time.Time, d time.Duration, power int, targetID string) ([]model.ChargingSchedule, bool) {
	type cand struct {
		from, to time.Time
		price    float64
	}
	var cands []cand
	for _, p := range prices {
		f, t := clip(p.ValidFrom, p.ValidTo, now, deadline)
		if t.After(f) {
			cands = append(cands, cand{f, t, p.GridPrice})
		}
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].price != cands[j].price {
			return cands[i].price < cands[j].price
		}
		return cands[i].from.Before(cands[j].from)
	})
	var out []model.ChargingSchedule
	remaining := d
	for _, c := range cands {
		if remaining <= 0 {
			break
		}
		take := min(c.to.Sub(c.from), remaining)
		out = append(out, withTarget(slot(consumerID, c.from, c.from.Add(take), power), targetID))
		remaining -= take
	}
	if remaining > 0 {
		return nil, false
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ValidFrom.Before(out[j].ValidFrom) })
	return out, true
}

// favorableSolar reports whether surplus is forecast between now and the
// latest start, leaving room for solar charging before the forced slot.
func favorableSolar(solar []model.SolarSlice, now, latestStart time.Time) bool {
	if !latestStart.After(now) {
		return false
	}
	for _, sl := range solar {
		if sl.SurplusPower <= 0 {
			continue
		}
		if f, t := clip(sl.ValidFrom, sl.ValidTo, now, latestStart); t.After(f) {
			return true
		}
	}
	return false
}

func minPhases(c model.Consumer, phases int) int {
	if c.CanSwitchPhases {
		return 1
	}
	return phases
}

func slot(consumerID string, from, to time.Time, power int) model.ChargingSchedule {
	return model.ChargingSchedule{ConsumerID: consumerID, ValidFrom: from, ValidTo: to, TargetMinPower: power}
}

func withTarget(s model.ChargingSchedule, id string) model.ChargingSchedule {
	s.TargetID = id
	return s
}

func clip(from, to, start, end time.Time) (time.Time, time.Time) {
	if from.Before(start) {
		from = start
	}
	if to.After(end) {
		to = end
	}
	return from, to
}
