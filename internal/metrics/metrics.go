package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "shortlink"

type Metrics struct {
	Shortens   *prometheus.CounterVec
	Collisions prometheus.Counter
	Resolves   *prometheus.CounterVec
	Clicks     *prometheus.CounterVec
}

// New creates the service counters and registers them with reg. A nil reg
// leaves them unregistered, which is what tests usually want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Shortens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shorten_total",
			Help:      "Shorten requests by result.",
		}, []string{"result"}),
		Collisions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shorten_collisions_total",
			Help:      "Generated codes that were already taken.",
		}),
		Resolves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolve_total",
			Help:      "Resolve requests by result.",
		}, []string{"result"}),
		Clicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "click_increments_total",
			Help:      "Asynchronous click counter updates by result.",
		}, []string{"result"}),
	}

	if reg != nil {
		reg.MustRegister(m.Shortens, m.Collisions, m.Resolves, m.Clicks)
	}

	return m
}
