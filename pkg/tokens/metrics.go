package tokens

import "github.com/prometheus/client_golang/prometheus"

const (
	outcomeSuccess    = "success"
	outcomeFailure    = "failure"
	outcomeSuperseded = "superseded"
)

// Metrics counts refresh episodes by outcome and the callers that waited on
// an episode they did not start. A nil *Metrics records nothing.
type Metrics struct {
	episodes *prometheus.CounterVec
	waiters  prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		episodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cashmate",
			Subsystem: "refresh",
			Name:      "episodes_total",
			Help:      "Token refresh episodes by outcome.",
		}, []string{"outcome"}),
		waiters: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cashmate",
			Subsystem: "refresh",
			Name:      "waiters_total",
			Help:      "Requests that waited on an in-flight refresh.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.episodes, m.waiters)
	}
	return m
}

func (m *Metrics) episode(outcome string) {
	if m == nil {
		return
	}
	m.episodes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) waiter() {
	if m == nil {
		return
	}
	m.waiters.Inc()
}
