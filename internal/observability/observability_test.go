package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	m.CompileDone("ok", 120, 340)
	m.CompileDone("error", 0, 0)
	m.SolveDone("optimal")
	m.CacheLookup(true)
	m.CacheLookup(false)
	m.CacheLookup(false)
	m.ObserveStage("generate", 20*time.Millisecond)
	m.ObserveHTTP("POST", "/api/v1/compile", 200, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Compiles.WithLabelValues("ok")))
	assert.Equal(t, 120.0, testutil.ToFloat64(m.Variables))
	assert.Equal(t, 340.0, testutil.ToFloat64(m.Constraints))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Solves.WithLabelValues("optimal")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("POST", "/api/v1/compile", "200")))
}

func TestMetricsRegisterTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewMetrics(reg)
	require.NoError(t, err)
	b, err := NewMetrics(reg)
	require.NoError(t, err)
	assert.Same(t, a.Compiles, b.Compiles)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.CompileDone("ok", 1, 1)
	m.ObserveHTTP("GET", "", 200, 0)
	assert.NotNil(t, m.Handler())
}

func TestMetricsHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)
	m.SolveDone("timeout")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `planner_solves_total{status="timeout"} 1`))
}

func TestTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{}, nil)
	require.NoError(t, err)
	_, span := Tracer().Start(context.Background(), "noop")
	span.End()
	assert.NoError(t, shutdown(context.Background()))
}

func TestTracingConfigFromEnv(t *testing.T) {
	t.Setenv("PLANNER_TRACING_ENABLED", "true")
	t.Setenv("PLANNER_TRACING_EXPORTER", "OTLP")
	t.Setenv("PLANNER_TRACING_SAMPLE_RATIO", "2")
	cfg := TracingConfigFromEnv()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "otlp", cfg.Exporter)
	assert.Equal(t, 1.0, cfg.SampleRatio)
	assert.Equal(t, "multicarrier-planner", cfg.ServiceName)
}

func TestUnsupportedExporter(t *testing.T) {
	_, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "zipkin", SampleRatio: 1}, nil)
	assert.Error(t, err)
}
