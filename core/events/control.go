package events

import (
	"time"

	"github.com/kilianp07/solarcharge/core/model"
)

// TickEvent is published once per completed control tick.
type TickEvent struct {
	TickID    string
	Started   time.Time
	Duration  time.Duration
	BudgetW   int
	Decisions int
	Errors    int
}

// DecisionEvent carries the decision taken for one consumer during a tick.
type DecisionEvent struct {
	TickID   string
	Time     time.Time
	Decision model.Decision
}

// CommandEvent is published for each consumer that was commanded.
type CommandEvent struct {
	TickID     string
	ConsumerID string
	Action     model.Action
	Err        error
	Latency    time.Duration
	Time       time.Time
}

// TelemetryEvent is published when the ingestion layer accepts an update.
type TelemetryEvent struct {
	ConsumerID string // empty for site readings
	Field      string
	Time       time.Time
}
