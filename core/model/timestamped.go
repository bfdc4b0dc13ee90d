package model

import "time"

// TimestampedValue holds an externally sourced value, the instant it last
// changed and the instant it was last reported. A value that was never
// observed has zero timestamps and is treated as relevant.
type TimestampedValue[T comparable] struct {
	Value     T         `json:"value"`
	Timestamp time.Time `json:"timestamp"`
	Observed  time.Time `json:"observed,omitempty"`
}

// NewTimestamped returns a value observed at the given instant.
func NewTimestamped[T comparable](v T, at time.Time) TimestampedValue[T] {
	return TimestampedValue[T]{Value: v, Timestamp: at, Observed: at}
}

// Update stores v reported at the given instant. Timestamp only moves when
// the value changes, Observed moves on every report.
func (tv *TimestampedValue[T]) Update(v T, at time.Time) {
	if tv.Timestamp.IsZero() || tv.Value != v {
		tv.Value = v
		tv.Timestamp = at
	}
	if at.After(tv.Observed) {
		tv.Observed = at
	}
}

// lastSeen is the freshest instant known for the value.
func (tv TimestampedValue[T]) lastSeen() time.Time {
	if tv.Observed.After(tv.Timestamp) {
		return tv.Observed
	}
	return tv.Timestamp
}

// Age returns the time elapsed since the value was last reported.
func (tv TimestampedValue[T]) Age(now time.Time) time.Duration {
	seen := tv.lastSeen()
	if seen.IsZero() {
		return 0
	}
	return now.Sub(seen)
}

// IsRelevant reports whether the value is younger than threshold.
// A non-positive threshold disables the check.
func (tv TimestampedValue[T]) IsRelevant(now time.Time, threshold time.Duration) bool {
	if threshold <= 0 || tv.lastSeen().IsZero() {
		return true
	}
	return tv.Age(now) < threshold
}

// RelevantUntil returns the instant from which the value counts as stale.
func (tv TimestampedValue[T]) RelevantUntil(threshold time.Duration) time.Time {
	seen := tv.lastSeen()
	if seen.IsZero() {
		return time.Time{}
	}
	return seen.Add(threshold)
}

// IsSet reports whether the value was ever observed.
func (tv TimestampedValue[T]) IsSet() bool { return !tv.lastSeen().IsZero() }
