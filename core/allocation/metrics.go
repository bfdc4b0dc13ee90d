package allocation

import "github.com/prometheus/client_golang/prometheus"

var (
	decisionsTotal *prometheus.CounterVec
	circuitLimited *prometheus.CounterVec
	allocatedPower prometheus.Gauge
)

func newCollectors() (*prometheus.CounterVec, *prometheus.CounterVec, prometheus.Gauge) {
	dec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "allocation_decisions_total",
			Help: "Number of allocation decisions by action and reason",
		},
		[]string{"action", "reason"},
	)
	lim := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "allocation_circuit_limited_total",
			Help: "Number of allocations reduced or refused by a shared circuit cap",
		},
		[]string{"circuit"},
	)
	pow := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "allocation_power_watts",
		Help: "Power budget consumed by the last allocation pass",
	})
	return dec, lim, pow
}

func init() {
	decisionsTotal, circuitLimited, allocatedPower = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers allocation metrics on reg, or on the default
// registerer when reg is nil.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(decisionsTotal, circuitLimited, allocatedPower)
}

// ResetMetrics recreates the collectors for tests and registers them on reg
// when not nil.
func ResetMetrics(reg prometheus.Registerer) {
	decisionsTotal, circuitLimited, allocatedPower = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
