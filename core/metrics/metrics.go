package metrics

import (
	"time"

	"github.com/kilianp07/solarcharge/core/model"
)

// DecisionEvent is the allocation outcome for one consumer in one tick.
type DecisionEvent struct {
	TickID     string
	ConsumerID string
	Mode       model.ChargeMode
	Action     model.Action
	Reason     string
	CurrentA   float64
	Phases     int
	PowerW     float64
	Suppressed bool
	Time       time.Time
}

// MetricsSink records decisions for observability purposes.
type MetricsSink interface {
	RecordDecisions(events []DecisionEvent) error
}

// BudgetEvent captures the computed power budget of a tick.
type BudgetEvent struct {
	TickID     string
	BudgetW    int
	GridW      *float64
	InverterW  *float64
	BatterySoC *float64
	Time       time.Time
}

// BudgetRecorder records power budget computations.
type BudgetRecorder interface {
	RecordBudget(ev BudgetEvent) error
}

// CommandEvent captures the outcome of commanding one consumer.
type CommandEvent struct {
	TickID     string
	ConsumerID string
	Action     model.Action
	Success    bool
	Latency    time.Duration
	Error      string
	Time       time.Time
}

// CommandRecorder records command outcomes.
type CommandRecorder interface {
	RecordCommand(ev CommandEvent) error
}

// TickEvent summarizes one control tick.
type TickEvent struct {
	TickID    string
	Duration  time.Duration
	Consumers int
	Errors    int
	Time      time.Time
}

// TickRecorder records tick summaries.
type TickRecorder interface {
	RecordTick(ev TickEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordDecisions([]DecisionEvent) error { return nil }
func (NopSink) RecordBudget(BudgetEvent) error        { return nil }
func (NopSink) RecordCommand(CommandEvent) error      { return nil }
func (NopSink) RecordTick(TickEvent) error            { return nil }

// MultiSink fans events out to several sinks. Optional recorders are
// forwarded only to sinks implementing them.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordDecisions forwards to all sinks, returning the first error encountered.
func (m *MultiSink) RecordDecisions(evs []DecisionEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordDecisions(evs); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiSink) RecordBudget(ev BudgetEvent) error {
	for _, s := range m.Sinks {
		if r, ok := s.(BudgetRecorder); ok {
			if err := r.RecordBudget(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *MultiSink) RecordCommand(ev CommandEvent) error {
	for _, s := range m.Sinks {
		if r, ok := s.(CommandRecorder); ok {
			if err := r.RecordCommand(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *MultiSink) RecordTick(ev TickEvent) error {
	for _, s := range m.Sinks {
		if r, ok := s.(TickRecorder); ok {
			if err := r.RecordTick(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close closes the sinks holding resources.
func (m *MultiSink) Close() {
	for _, s := range m.Sinks {
		if c, ok := s.(interface{ Close() }); ok {
			c.Close()
		}
	}
}

// DecisionEvents converts the decisions of a tick into sink events.
func DecisionEvents(tickID string, at time.Time, consumers []model.Consumer, ds []model.Decision) []DecisionEvent {
	modes := make(map[string]model.ChargeMode, len(consumers))
	for _, c := range consumers {
		modes[c.ID] = c.ChargeMode
	}
	out := make([]DecisionEvent, 0, len(ds))
	for _, d := range ds {
		out = append(out, DecisionEvent{
			TickID:     tickID,
			ConsumerID: d.ConsumerID,
			Mode:       modes[d.ConsumerID],
			Action:     d.Action,
			Reason:     d.Reason,
			CurrentA:   d.TargetCurrent,
			Phases:     d.TargetPhases,
			PowerW:     d.Power(),
			Suppressed: d.Suppressed,
			Time:       at,
		})
	}
	return out
}
