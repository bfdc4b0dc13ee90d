package targets

import (
	"fmt"
	"time"

	"github.com/kilianp07/solarcharge/core/model"
)

// NextOccurrence returns the next UTC instant at which t is due, relative to
// now. An occurrence equal to now is due now. A one-time target whose date is
// in the past and which has no repeat days returns that past instant.
func NextOccurrence(t model.ChargingTarget, now time.Time) (time.Time, error) {
	loc, err := t.Location()
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	if t.Date != nil {
		occ := t.At(*t.Date, loc)
		if !occ.Before(now) || t.Weekdays.Empty() {
			return occ.UTC(), nil
		}
	}
	if t.Weekdays.Empty() {
		return time.Time{}, fmt.Errorf("%w: target %s has neither date nor repeat days", ErrInvalidTarget, t.ID)
	}
	local := now.In(loc)
	for i := 0; i <= 7; i++ {
		day := time.Date(local.Year(), local.Month(), local.Day()+i, 0, 0, 0, 0, loc)
		if !t.Weekdays.Has(day.Weekday()) {
			continue
		}
		occ := t.At(dateOf(day), loc)
		if !occ.Before(now) {
			return occ.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: no occurrence found for %s", ErrInvalidTarget, t.ID)
}

// PreviousOccurrence returns the latest occurrence of t strictly before now.
// Recurring targets are searched up to one week back.
func PreviousOccurrence(t model.ChargingTarget, now time.Time) (time.Time, bool) {
	loc, err := t.Location()
	if err != nil {
		return time.Time{}, false
	}
	var best time.Time
	if t.Date != nil {
		if occ := t.At(*t.Date, loc); occ.Before(now) {
			best = occ
		}
	}
	local := now.In(loc)
	for i := 0; i <= 7 && !t.Weekdays.Empty(); i++ {
		day := time.Date(local.Year(), local.Month(), local.Day()-i, 0, 0, 0, 0, loc)
		if !t.Weekdays.Has(day.Weekday()) {
			continue
		}
		occ := t.At(dateOf(day), loc)
		if occ.Before(now) {
			if occ.After(best) {
				best = occ
			}
			break
		}
	}
	if best.IsZero() {
		return time.Time{}, false
	}
	return best.UTC(), true
}

func dateOf(t time.Time) model.Date {
	return model.Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}
