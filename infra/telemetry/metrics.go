package telemetry

import "github.com/prometheus/client_golang/prometheus"

var (
	messagesTotal *prometheus.CounterVec
	decodeErrors  *prometheus.CounterVec
	lastMessage   *prometheus.GaugeVec
)

func newCollectors() (*prometheus.CounterVec, *prometheus.CounterVec, *prometheus.GaugeVec) {
	msgs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "telemetry_messages_total",
		Help: "Telemetry messages accepted per kind",
	}, []string{"kind"})
	errs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "telemetry_decode_errors_total",
		Help: "Telemetry messages rejected per kind",
	}, []string{"kind"})
	last := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "telemetry_last_message_timestamp_seconds",
		Help: "Unix timestamp of the last accepted message per kind",
	}, []string{"kind"})
	return msgs, errs, last
}

func init() {
	messagesTotal, decodeErrors, lastMessage = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers telemetry metrics on reg, or on the default
// registerer when reg is nil.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(messagesTotal, decodeErrors, lastMessage)
}

// ResetMetrics recreates the collectors for tests and registers them on reg
// when not nil.
func ResetMetrics(reg prometheus.Registerer) {
	messagesTotal, decodeErrors, lastMessage = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
