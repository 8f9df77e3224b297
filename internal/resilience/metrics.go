package resilience

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds breaker collectors.
type Metrics struct {
	State       *prometheus.GaugeVec
	Transitions *prometheus.CounterVec
}

// NewMetrics registers breaker collectors on reg, reusing ones that already exist.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		State: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "Current breaker state: 0=closed,1=open,2=half-open",
		}, []string{"target"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_transition_total",
			Help:      "Count of breaker state transitions",
		}, []string{"target", "from", "to"}),
	}
	if err := reg.Register(m.State); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			m.State = are.ExistingCollector.(*prometheus.GaugeVec)
		}
	}
	if err := reg.Register(m.Transitions); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			m.Transitions = are.ExistingCollector.(*prometheus.CounterVec)
		}
	}
	return m
}
