package model

import "time"

// Action is the go/no-go part of a decision.
type Action string

const (
	ActionNone  Action = "none"
	ActionStart Action = "start"
	ActionStop  Action = "stop"
)

// Reasons attached to decisions.
const (
	ReasonStaleInput   = "stale_input"
	ReasonNotPluggedIn = "not_plugged_in"
	ReasonNotAtHome    = "not_at_home"
	ReasonNoSchedule   = "no_active_schedule"
	ReasonNoSurplus    = "insufficient_solar_power"
	ReasonCircuitLimit = "circuit_limit"
	ReasonScheduled    = "scheduled"
	ReasonSolar        = "solar_surplus"
)

// Decision is the per consumer output of one allocation pass.
type Decision struct {
	ConsumerID    string    `json:"consumer_id"`
	Action        Action    `json:"action"`
	TargetCurrent float64   `json:"target_current"`
	TargetPhases  int       `json:"target_phases"`
	Reason        string    `json:"reason"`
	RetryAt       time.Time `json:"retry_at,omitempty"`
	Suppressed    bool      `json:"suppressed,omitempty"`
	PhaseSwitch   bool      `json:"phase_switch,omitempty"`
}

// SameCommand reports whether two decisions would issue the same commands.
func (d Decision) SameCommand(o Decision) bool {
	return d.Action == o.Action && d.TargetCurrent == o.TargetCurrent && d.TargetPhases == o.TargetPhases
}

// Power returns the power implied by the decision.
func (d Decision) Power() float64 {
	if d.Action != ActionStart {
		return 0
	}
	return PowerFor(d.TargetCurrent, d.TargetPhases)
}
