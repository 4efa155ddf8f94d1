package dispatch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the dispatch collectors. A nil *Metrics records nothing.
type Metrics struct {
	dispatches       *prometheus.CounterVec
	duration         *prometheus.HistogramVec
	observerFailures *prometheus.CounterVec
	deltas           *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg when reg
// is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "espionox",
			Name:      "dispatch_total",
			Help:      "Dispatches by agent and outcome.",
		}, []string{"agent", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "espionox",
			Name:      "dispatch_duration_seconds",
			Help:      "Wall-clock duration of dispatches.",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"agent"}),
		observerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "espionox",
			Name:      "observer_failures_total",
			Help:      "Observer failures by observer name.",
		}, []string{"observer"}),
		deltas: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "espionox",
			Name:      "stream_deltas_total",
			Help:      "Non-empty streamed deltas by agent.",
		}, []string{"agent"}),
	}
	if reg != nil {
		reg.MustRegister(m.dispatches, m.duration, m.observerFailures, m.deltas)
	}
	return m
}

func (m *Metrics) dispatched(agent, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(agent, outcome).Inc()
	m.duration.WithLabelValues(agent).Observe(d.Seconds())
}

func (m *Metrics) observerFailed(observer string) {
	if m == nil {
		return
	}
	m.observerFailures.WithLabelValues(observer).Inc()
}

func (m *Metrics) delta(agent string) {
	if m == nil {
		return
	}
	m.deltas.WithLabelValues(agent).Inc()
}
