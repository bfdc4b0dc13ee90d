package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/solarcharge/core/metrics"
)

// PromSink records control loop events in Prometheus metrics.
type PromSink struct {
	decisions *prometheus.CounterVec
	current   *prometheus.GaugeVec
	budget    prometheus.Gauge
	commands  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	ticks     prometheus.Histogram
}

// NewPromSink registers metrics on the default Prometheus registerer.
func NewPromSink() (coremetrics.MetricsSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "solarcharge_decisions_total",
			Help: "Decisions per consumer, action and suppression",
		}, []string{"consumer_id", "action", "suppressed"}),
		current: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "solarcharge_target_current_amperes",
			Help: "Last target current per consumer, zero when stopped",
		}, []string{"consumer_id"}),
		budget: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "solarcharge_power_budget_watts",
			Help: "Power budget computed in the last tick",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "solarcharge_commands_total",
			Help: "Commands sent per consumer and outcome",
		}, []string{"consumer_id", "action", "success"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "solarcharge_command_latency_seconds",
			Help:    "Time between command send and acknowledgment",
			Buckets: prometheus.DefBuckets,
		}, []string{"action"}),
		ticks: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "solarcharge_tick_seconds",
			Help:    "Duration of control ticks as seen by sinks",
			Buckets: prometheus.DefBuckets,
		}),
	}
	var err error
	if s.decisions, err = register(reg, s.decisions); err != nil {
		return nil, err
	}
	if s.current, err = register(reg, s.current); err != nil {
		return nil, err
	}
	if s.budget, err = register(reg, s.budget); err != nil {
		return nil, err
	}
	if s.commands, err = register(reg, s.commands); err != nil {
		return nil, err
	}
	if s.latency, err = register(reg, s.latency); err != nil {
		return nil, err
	}
	if s.ticks, err = register(reg, s.ticks); err != nil {
		return nil, err
	}
	return s, nil
}

// register adds c to reg, reusing an already registered collector.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordDecisions counts decisions and updates the per-consumer current gauge.
func (s *PromSink) RecordDecisions(evs []coremetrics.DecisionEvent) error {
	for _, e := range evs {
		s.decisions.WithLabelValues(e.ConsumerID, string(e.Action), strconv.FormatBool(e.Suppressed)).Inc()
		if e.PowerW > 0 {
			s.current.WithLabelValues(e.ConsumerID).Set(e.CurrentA)
		} else {
			s.current.WithLabelValues(e.ConsumerID).Set(0)
		}
	}
	return nil
}

func (s *PromSink) RecordBudget(ev coremetrics.BudgetEvent) error {
	s.budget.Set(float64(ev.BudgetW))
	return nil
}

func (s *PromSink) RecordCommand(ev coremetrics.CommandEvent) error {
	s.commands.WithLabelValues(ev.ConsumerID, string(ev.Action), strconv.FormatBool(ev.Success)).Inc()
	if ev.Success {
		s.latency.WithLabelValues(string(ev.Action)).Observe(ev.Latency.Seconds())
	}
	return nil
}

func (s *PromSink) RecordTick(ev coremetrics.TickEvent) error {
	s.ticks.Observe(ev.Duration.Seconds())
	return nil
}
