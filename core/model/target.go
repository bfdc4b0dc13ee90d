package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidTarget is returned for targets violating configuration invariants.
var ErrInvalidTarget = errors.New("invalid charging target")

// Date is a civil date without time or zone.
type Date struct {
	Year  int        `json:"year" yaml:"year"`
	Month time.Month `json:"month" yaml:"month"`
	Day   int        `json:"day" yaml:"day"`
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return Date{}, err
	}
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Date) UnmarshalText(b []byte) error {
	v, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// TimeOfDay is a wall clock time in the target's zone.
type TimeOfDay struct {
	Hour   int `json:"hour" yaml:"hour"`
	Minute int `json:"minute" yaml:"minute"`
}

// ParseTimeOfDay parses HH:MM.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, err
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

func (t TimeOfDay) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	v, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Weekdays is a set of weekdays stored as a bitmask.
type Weekdays uint8

// NewWeekdays builds a set from the given days.
func NewWeekdays(days ...time.Weekday) Weekdays {
	var w Weekdays
	for _, d := range days {
		w |= 1 << uint(d)
	}
	return w
}

// Has reports whether d is selected.
func (w Weekdays) Has(d time.Weekday) bool { return w&(1<<uint(d)) != 0 }

// Empty reports whether no day is selected.
func (w Weekdays) Empty() bool { return w&0x7f == 0 }

var weekdayNames = [7]string{"sun", "mon", "tue", "wed", "thu", "fri", "sat"}

// ParseWeekdays parses a comma separated list such as "mon,wed,fri".
func ParseWeekdays(s string) (Weekdays, error) {
	var w Weekdays
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		found := false
		for i, name := range weekdayNames {
			if strings.HasPrefix(part, name) {
				w |= 1 << uint(i)
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown weekday %q", part)
		}
	}
	return w, nil
}

func (w Weekdays) String() string {
	names := make([]string, 0, 7)
	for _, d := range w.Days() {
		names = append(names, weekdayNames[d])
	}
	return strings.Join(names, ",")
}

func (w Weekdays) MarshalText() ([]byte, error) { return []byte(w.String()), nil }

func (w *Weekdays) UnmarshalText(b []byte) error {
	v, err := ParseWeekdays(string(b))
	if err != nil {
		return err
	}
	*w = v
	return nil
}

// Days lists the selected days starting on Sunday.
func (w Weekdays) Days() []time.Weekday {
	var out []time.Weekday
	for d := time.Sunday; d <= time.Saturday; d++ {
		if w.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

// ChargingTarget is a user defined SoC goal for one consumer, either one-time
// (Date set) or recurring on Weekdays.
type ChargingTarget struct {
	ID                           string     `json:"id" yaml:"id"`
	ConsumerID                   string     `json:"consumer_id" yaml:"consumer_id"`
	TargetSoC                    int        `json:"target_soc" yaml:"target_soc"`
	Date                         *Date      `json:"date,omitempty" yaml:"date,omitempty"`
	TimeOfDay                    TimeOfDay  `json:"time" yaml:"time"`
	Weekdays                     Weekdays   `json:"weekdays,omitempty" yaml:"weekdays,omitempty"`
	TimeZone                     string     `json:"time_zone,omitempty" yaml:"time_zone,omitempty"`
	LastFulfilled                *time.Time `json:"last_fulfilled,omitempty" yaml:"last_fulfilled,omitempty"`
	DischargeHomeBatteryToMinSoc bool       `json:"discharge_home_battery_to_min_soc,omitempty" yaml:"discharge_home_battery_to_min_soc,omitempty"`
}

// Location resolves the client time zone, UTC when empty.
func (t ChargingTarget) Location() (*time.Location, error) {
	if t.TimeZone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(t.TimeZone)
}

// At returns the local instant of the target on day d.
func (t ChargingTarget) At(d Date, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, t.TimeOfDay.Hour, t.TimeOfDay.Minute, 0, 0, loc)
}

// IsOneShot reports whether the target never repeats.
func (t ChargingTarget) IsOneShot() bool { return t.Date != nil && t.Weekdays.Empty() }

// Validate rejects targets that can never be resolved.
func (t ChargingTarget) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidTarget)
	}
	if t.ConsumerID == "" {
		return fmt.Errorf("%w: target %s has no consumer", ErrInvalidTarget, t.ID)
	}
	if t.TargetSoC <= 0 || t.TargetSoC > 100 {
		return fmt.Errorf("%w: target %s soc %d out of range", ErrInvalidTarget, t.ID, t.TargetSoC)
	}
	if t.TimeOfDay.Hour < 0 || t.TimeOfDay.Hour > 23 || t.TimeOfDay.Minute < 0 || t.TimeOfDay.Minute > 59 {
		return fmt.Errorf("%w: target %s time of day %s", ErrInvalidTarget, t.ID, t.TimeOfDay)
	}
	if _, err := t.Location(); err != nil {
		return fmt.Errorf("%w: target %s time zone: %v", ErrInvalidTarget, t.ID, err)
	}
	if t.Date == nil && t.Weekdays.Empty() {
		return fmt.Errorf("%w: target %s needs a date or repeat days", ErrInvalidTarget, t.ID)
	}
	if t.Date != nil {
		d := *t.Date
		check := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
		if check.Year() != d.Year || check.Month() != d.Month || check.Day() != d.Day {
			return fmt.Errorf("%w: target %s date %s", ErrInvalidTarget, t.ID, d)
		}
	}
	return nil
}
