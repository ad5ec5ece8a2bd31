package progress

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts applied and rejected transitions. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	transitions *prometheus.CounterVec
	rejections  *prometheus.CounterVec
}

// NewMetrics creates the progress counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "progress_transitions_total",
				Help: "Total number of applied progress transitions",
			},
			[]string{"op", "to"},
		),
		rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "progress_transition_rejections_total",
				Help: "Total number of rejected progress operations",
			},
			[]string{"op", "kind"},
		),
	}
	reg.MustRegister(m.transitions, m.rejections)
	return m
}

func (m *Metrics) applied(op Op, to Status) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(op), string(to)).Inc()
}

func (m *Metrics) rejected(op Op, err error) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(string(op), errorKind(err)).Inc()
}
