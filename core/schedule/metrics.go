package schedule

import "github.com/prometheus/client_golang/prometheus"

var (
	targetsInfeasible  prometheus.Counter
	schedulesGenerated *prometheus.CounterVec
)

func newCollectors() (prometheus.Counter, *prometheus.CounterVec) {
	inf := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "charge_target_infeasible_total",
		Help: "Number of plans in which a charging target could not be met in time",
	})
	gen := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "charge_schedules_generated_total",
			Help: "Number of charging schedule slots generated",
		},
		[]string{"mode"},
	)
	return inf, gen
}

func init() {
	targetsInfeasible, schedulesGenerated = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers planner metrics on reg, or on the default
// registerer when reg is nil.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(targetsInfeasible, schedulesGenerated)
}

// ResetMetrics recreates the collectors for tests and registers them on reg
// when not nil.
func ResetMetrics(reg prometheus.Registerer) {
	targetsInfeasible, schedulesGenerated = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
