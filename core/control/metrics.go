package control

import "github.com/prometheus/client_golang/prometheus"

var (
	tickDuration   prometheus.Histogram
	commandResults *prometheus.CounterVec
	skippedTicks   prometheus.Counter
	fulfilled      prometheus.Counter
)

func newCollectors() (prometheus.Histogram, *prometheus.CounterVec, prometheus.Counter, prometheus.Counter) {
	dur := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "control_tick_duration_seconds",
		Help:    "Duration of a control tick from snapshot to last command",
		Buckets: prometheus.DefBuckets,
	})
	cmd := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "control_commands_total",
			Help: "Commands issued per action and result",
		},
		[]string{"action", "result"},
	)
	skip := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "control_ticks_skipped_total",
		Help: "Ticks skipped because the previous tick was still running",
	})
	ful := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "control_targets_fulfilled_total",
		Help: "Charging target occurrences marked fulfilled",
	})
	return dur, cmd, skip, ful
}

func init() {
	tickDuration, commandResults, skippedTicks, fulfilled = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers control metrics on reg, or on the default
// registerer when reg is nil.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(tickDuration, commandResults, skippedTicks, fulfilled)
}

// ResetMetrics recreates the collectors for tests and registers them on reg
// when not nil.
func ResetMetrics(reg prometheus.Registerer) {
	tickDuration, commandResults, skippedTicks, fulfilled = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
