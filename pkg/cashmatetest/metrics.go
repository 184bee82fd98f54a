package cashmatetest

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// Metrics counts the requests the fake backend served, per named route.
type Metrics struct {
	registry  *prometheus.Registry
	hits      *prometheus.CounterVec
	responses *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cashmatetest_route_hits_total",
			Help: "Requests received per route.",
		}, []string{"route"}),
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cashmatetest_responses_total",
			Help: "Responses sent per route and status code.",
		}, []string{"route", "code"}),
	}
	m.registry.MustRegister(m.hits, m.responses)
	return m
}

// Hits returns how many requests reached route.
func (m *Metrics) Hits(route string) int {
	return int(testutil.ToFloat64(m.hits.WithLabelValues(route)))
}

// Responses returns how many responses with code were sent on route.
func (m *Metrics) Responses(route string, code int) int {
	return int(testutil.ToFloat64(m.responses.WithLabelValues(route, strconv.Itoa(code))))
}

// Handler serves the counters in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := "unknown"
		if current := mux.CurrentRoute(r); current != nil && current.GetName() != "" {
			route = current.GetName()
		}
		m.hits.WithLabelValues(route).Inc()

		recorder := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(recorder, r)
		m.responses.WithLabelValues(route, strconv.Itoa(recorder.code)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}
