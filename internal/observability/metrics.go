// Package observability wires Prometheus metrics and OpenTelemetry tracing.
package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors of the compile pipeline and the HTTP API.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	Compiles       *prometheus.CounterVec
	StageDurations *prometheus.HistogramVec
	Variables      prometheus.Gauge
	Constraints    prometheus.Gauge
	Solves         *prometheus.CounterVec
	CacheLookups   *prometheus.CounterVec

	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec
}

// NewMetrics registers the collectors against reg, defaulting to the global
// registry when nil. Registering twice against the same registry returns the
// existing collectors.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	m := &Metrics{gatherer: gatherer}
	var err error

	if m.Compiles, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planner_compiles_total",
		Help: "Compile passes, labeled by outcome.",
	}, []string{"outcome"}), "planner_compiles_total"); err != nil {
		return nil, err
	}
	if m.StageDurations, err = registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "planner_stage_duration_seconds",
		Help:    "Duration of each pipeline stage in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120, 600},
	}, []string{"stage"}), "planner_stage_duration_seconds"); err != nil {
		return nil, err
	}
	if m.Variables, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "planner_model_variables",
		Help: "Number of variables of the last compiled model.",
	}), "planner_model_variables"); err != nil {
		return nil, err
	}
	if m.Constraints, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "planner_model_constraints",
		Help: "Number of constraints of the last compiled model.",
	}), "planner_model_constraints"); err != nil {
		return nil, err
	}
	if m.Solves, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planner_solves_total",
		Help: "Solver runs, labeled by solve status.",
	}, []string{"status"}), "planner_solves_total"); err != nil {
		return nil, err
	}
	if m.CacheLookups, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planner_summary_cache_lookups_total",
		Help: "Compile summary cache lookups, labeled by result.",
	}, []string{"result"}), "planner_summary_cache_lookups_total"); err != nil {
		return nil, err
	}
	if m.HTTPRequests, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planner_http_requests_total",
		Help: "Handled HTTP requests, labeled by method, route and status code.",
	}, []string{"method", "route", "code"}), "planner_http_requests_total"); err != nil {
		return nil, err
	}
	if m.HTTPDurations, err = registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "planner_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 60},
	}, []string{"method", "route"}), "planner_http_request_duration_seconds"); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDurations.WithLabelValues(stage).Observe(d.Seconds())
}

// CompileDone records the outcome of a compile pass and, on success, the
// model size.
func (m *Metrics) CompileDone(outcome string, variables, constraints int) {
	if m == nil {
		return
	}
	m.Compiles.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		m.Variables.Set(float64(variables))
		m.Constraints.Set(float64(constraints))
	}
}

func (m *Metrics) SolveDone(status string) {
	if m == nil {
		return
	}
	m.Solves.WithLabelValues(status).Inc()
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveHTTP(method, route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.HTTPDurations.WithLabelValues(method, route).Observe(d.Seconds())
}

// Handler exposes a ready-to-use /metrics handler.
func (m *Metrics) Handler() http.Handler {
	g := prometheus.DefaultGatherer
	if m != nil && m.gatherer != nil {
		g = m.gatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
