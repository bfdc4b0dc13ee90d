package schedule

import (
	"sort"
	"time"

	"github.com/kilianp07/solarcharge/core/model"
)

// ConcatenateChargeTimes merges slots that touch or overlap into contiguous
// slots. The total duration of the input is preserved: a slot starting
// inside the current one extends it by its own full duration. Slots
// separated by a gap stay separate. The result is sorted by start.
func ConcatenateChargeTimes(in []model.ChargingSchedule) []model.ChargingSchedule {
	if len(in) == 0 {
		return nil
	}
	sorted := make([]model.ChargingSchedule, 0, len(in))
	for _, s := range in {
		if s.ValidTo.After(s.ValidFrom) {
			sorted = append(sorted, s)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ValidFrom.Before(sorted[j].ValidFrom) })
	if len(sorted) == 0 {
		return nil
	}

	out := make([]model.ChargingSchedule, 0, len(sorted))
	cur := sorted[0]
	for _, next := range sorted[1:] {
		if next.ValidFrom.After(cur.ValidTo) {
			out = append(out, cur)
			cur = next
			continue
		}
		cur.ValidTo = cur.ValidTo.Add(next.Duration())
		cur = absorb(cur, next)
	}
	return append(out, cur)
}

// absorb merges the charging properties of b into a.
func absorb(a, b model.ChargingSchedule) model.ChargingSchedule {
	if b.TargetMinPower > a.TargetMinPower {
		a.TargetMinPower = b.TargetMinPower
	}
	switch {
	case a.OnlyChargeOnAtLeastSolarPower == nil || b.OnlyChargeOnAtLeastSolarPower == nil:
		a.OnlyChargeOnAtLeastSolarPower = nil
	case *b.OnlyChargeOnAtLeastSolarPower < *a.OnlyChargeOnAtLeastSolarPower:
		v := *b.OnlyChargeOnAtLeastSolarPower
		a.OnlyChargeOnAtLeastSolarPower = &v
	}
	if b.EstimatedSolarPower > a.EstimatedSolarPower {
		a.EstimatedSolarPower = b.EstimatedSolarPower
	}
	if a.TargetID == "" {
		a.TargetID = b.TargetID
	}
	a.Infeasible = a.Infeasible || b.Infeasible
	return a
}

// TotalDuration sums the durations of the given slots.
func TotalDuration(in []model.ChargingSchedule) time.Duration {
	var d time.Duration
	for _, s := range in {
		d += s.Duration()
	}
	return d
}

type window struct{ from, to time.Time }

// subtract removes the given windows from [from, to).
func subtract(from, to time.Time, windows []model.ChargingSchedule) []window {
	rest := []window{{from, to}}
	for _, w := range windows {
		var next []window
		for _, r := range rest {
			if !w.ValidFrom.Before(r.to) || !w.ValidTo.After(r.from) {
				next = append(next, r)
				continue
			}
			if w.ValidFrom.After(r.from) {
				next = append(next, window{r.from, w.ValidFrom})
			}
			if w.ValidTo.Before(r.to) {
				next = append(next, window{w.ValidTo, r.to})
			}
		}
		rest = next
	}
	return rest
}
