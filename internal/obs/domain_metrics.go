package obs

import "github.com/prometheus/client_golang/prometheus"

// CartMetrics groups Prometheus collectors for the cart engine.
type CartMetrics struct {
	// Mutations counts cart operations by outcome ("applied" or "noop").
	Mutations *prometheus.CounterVec
	// SessionsActive tracks live cart sessions.
	SessionsActive prometheus.Gauge
	// AdjustedTotal observes the post-discount cart value after each applied mutation.
	AdjustedTotal prometheus.Histogram
}

// NewCartMetrics registers and returns the cart collectors. Already registered collectors are reused.
func NewCartMetrics(namespace string, reg prometheus.Registerer) *CartMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &CartMetrics{
		Mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_mutations_total",
			Help:      "Count of cart mutations by operation and outcome.",
		}, []string{"op", "result"}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cart_sessions_active",
			Help:      "Number of live cart sessions.",
		}),
		AdjustedTotal: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cart_adjusted_total",
			Help:      "Distribution of post-discount cart totals.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}),
	}
	register(reg, &m.Mutations)
	register(reg, &m.SessionsActive)
	register(reg, &m.AdjustedTotal)
	return m
}
