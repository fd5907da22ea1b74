package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"multicarrier-planner/internal/api/models"
	"multicarrier-planner/internal/compile"
	"multicarrier-planner/internal/data"
	"multicarrier-planner/internal/milp"
	"multicarrier-planner/internal/model"
	"multicarrier-planner/internal/observability"
	"multicarrier-planner/internal/runlog"
	"multicarrier-planner/internal/solver"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fixed answers every solve with the given values and status.
type fixed struct {
	status solver.Status
	values map[string]float64
}

func (f *fixed) Name() string { return "fixed" }

func (f *fixed) Solve(_ context.Context, m *milp.Model, _ solver.Options) (*solver.Result, error) {
	r := &solver.Result{Status: f.status, Detail: "fixed"}
	if !f.status.HasSolution() {
		return r, nil
	}
	vals := make([]float64, m.NumVars())
	for name, v := range f.values {
		i, ok := m.Lookup(name)
		if !ok {
			return nil, errors.New("unknown variable " + name)
		}
		vals[i] = v
	}
	r.Values = f.values
	r.Objective = m.Objective.Eval(vals)
	return r, nil
}

var twoNodeSolution = map[string]float64{
	"QP[A,G,2025,1]":  10,
	"FA[AB,G,2025,1]": 10,
	"QS[B,G,2025,1]":  10,
	"KA[AB,G,2025]":   10,
}

func twoNode() model.Tables {
	return model.Tables{
		Name: "two-node",
		Nodes: []model.NodeRow{
			{ID: "A", Country: "DE", Region: "RA"},
			{ID: "B", Country: "DE", Region: "RB"},
		},
		Arcs: []model.ArcRow{
			{ID: "AB", Start: "A", End: "B", Carrier: "G", Capacity: 10, Length: 100},
		},
		Supply: []model.SupplyRow{{Node: "A", Carrier: "G", Year: "2025", Hour: "1", Upper: 100}},
		Demand: []model.DemandRow{{Node: "B", Carrier: "G", Year: "2025", Hour: "1", Value: 10}},
		Time:   []model.TimeSlice{{Year: "2025", Hour: "1", Scale: 1}},
		Scalars: []model.ScalarRow{
			{Name: "bigm", Value: 1e6},
			{Name: "yearstep", Value: 1},
			{Name: "pipelenstd", Value: 100},
			{Name: "bfpipe", Carrier: "G", Value: 2},
			{Name: "bipipe", Carrier: "G", Value: 50},
			{Name: "blpipe", Carrier: "G", Value: 0},
			{Name: "penalty", Sub: "ZD", Value: 1000},
		},
	}
}

type env struct {
	router  *gin.Engine
	metrics *observability.Metrics
	runs    *runlog.Log
}

func newEnv(t *testing.T, s solver.Solver) *env {
	t.Helper()
	metrics, err := observability.NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	runs, err := runlog.Open(context.Background(), runlog.Memory)
	require.NoError(t, err)
	cache := data.NewCache[compile.Summary](0)
	t.Cleanup(func() {
		runs.Close()
		cache.Close()
	})

	router := NewRouter(Deps{
		Engine: compile.New(nil, metrics),
		Solvers: func(name string) (solver.Solver, error) {
			if name != "" && name != "fixed" {
				return nil, errors.New("unknown solver " + name)
			}
			return s, nil
		},
		Cache:       cache,
		Runs:        runs,
		Metrics:     metrics,
		CORSOrigins: []string{"https://planner.example"},
	})
	return &env{router: router, metrics: metrics, runs: runs}
}

func (e *env) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	e := newEnv(t, nil)
	rec := e.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestCompileIsCached(t *testing.T) {
	e := newEnv(t, nil)
	req := models.CompileRequest{Scenario: twoNode()}

	rec := e.do(t, http.MethodPost, "/api/v1/compile", req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decode[models.CompileResponse](t, rec)
	assert.False(t, first.Cached)
	assert.Equal(t, "two-node", first.Summary.Scenario)
	assert.Equal(t, 2, first.Summary.Nodes)
	assert.True(t, first.Summary.PreSolve.OK())

	rec = e.do(t, http.MethodPost, "/api/v1/compile", req)
	require.Equal(t, http.StatusOK, rec.Code)
	second := decode[models.CompileResponse](t, rec)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Summary.Variables, second.Summary.Variables)

	// different options are a different key
	req.Options.DemandLevels = map[string]string{"G": "country"}
	rec = e.do(t, http.MethodPost, "/api/v1/compile", req)
	require.Equal(t, http.StatusOK, rec.Code)
	third := decode[models.CompileResponse](t, rec)
	assert.False(t, third.Cached)
	assert.Equal(t, "country", third.Summary.Levels["G"])

	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.CacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(e.metrics.CacheLookups.WithLabelValues("miss")))
}

func TestCompileOutlivesCallerCancel(t *testing.T) {
	e := newEnv(t, nil)
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(models.CompileRequest{Scenario: twoNode()}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/compile", &buf).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// the result was cached for the next caller
	rec = e.do(t, http.MethodPost, "/api/v1/compile", models.CompileRequest{Scenario: twoNode()})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[models.CompileResponse](t, rec).Cached)
}

func TestCompileErrors(t *testing.T) {
	e := newEnv(t, nil)

	dangling := twoNode()
	dangling.Arcs[0].End = "Z"
	rec := e.do(t, http.MethodPost, "/api/v1/compile", models.CompileRequest{Scenario: dangling})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decode[models.ErrorResponse](t, rec)
	assert.Equal(t, "DANGLING_REFERENCE", resp.Error.Code)
	assert.Equal(t, "Z", resp.Error.Details["ref"])

	noNodes := twoNode()
	noNodes.Nodes = nil
	rec = e.do(t, http.MethodPost, "/api/v1/compile", models.CompileRequest{Scenario: noNodes})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "SCHEMA_ERROR", decode[models.ErrorResponse](t, rec).Error.Code)

	rec = e.do(t, http.MethodPost, "/api/v1/compile", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", decode[models.ErrorResponse](t, rec).Error.Code)

	bad := models.CompileRequest{Scenario: twoNode()}
	bad.Options.DemandLevels = map[string]string{"G": "planet"}
	rec = e.do(t, http.MethodPost, "/api/v1/compile", bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[models.ErrorResponse](t, rec).Error.Message, "demand_levels.G")
}

func TestSolveRecordsRun(t *testing.T) {
	e := newEnv(t, &fixed{status: solver.StatusOptimal, values: twoNodeSolution})

	rec := e.do(t, http.MethodPost, "/api/v1/solve", models.CompileRequest{Scenario: twoNode(), IncludeValues: true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[models.SolveResponse](t, rec)
	assert.Equal(t, "optimal", resp.Status)
	assert.InDelta(t, 20.0, resp.Objective, 1e-9)
	assert.InDelta(t, 20.0, resp.Total, 1e-9)
	require.NotNil(t, resp.PostSolve)
	assert.True(t, resp.PostSolve.OK())
	assert.NotEmpty(t, resp.Breakdown)
	assert.Len(t, resp.Values, len(twoNodeSolution))
	require.NotEmpty(t, resp.RunID)

	rec = e.do(t, http.MethodGet, "/api/v1/runs?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	runs := decode[models.RunsResponse](t, rec).Runs
	require.Len(t, runs, 1)
	assert.Equal(t, resp.RunID, runs[0].ID)
	assert.Equal(t, "two-node", runs[0].Scenario)
	assert.True(t, runs[0].PostSolveOK)

	rec = e.do(t, http.MethodGet, "/api/v1/runs/"+resp.RunID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "optimal", decode[runlog.Run](t, rec).Status)
}

func TestSolveWithoutSolutionIsAResult(t *testing.T) {
	e := newEnv(t, &fixed{status: solver.StatusInfeasible})

	rec := e.do(t, http.MethodPost, "/api/v1/solve", models.CompileRequest{Scenario: twoNode()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[models.SolveResponse](t, rec)
	assert.Equal(t, "infeasible", resp.Status)
	assert.Equal(t, "fixed", resp.Detail)
	assert.Nil(t, resp.PostSolve)

	runs, err := e.runs.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "infeasible", runs[0].Status)
	assert.False(t, runs[0].PostSolveOK)
}

func TestSolveUnknownSolver(t *testing.T) {
	e := newEnv(t, &fixed{status: solver.StatusOptimal})
	req := models.CompileRequest{Scenario: twoNode()}
	req.Options.Solver.Name = "cplex"

	rec := e.do(t, http.MethodPost, "/api/v1/solve", req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", decode[models.ErrorResponse](t, rec).Error.Code)
}

func TestRuns(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(t, http.MethodGet, "/api/v1/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"runs":[]}`, rec.Body.String())

	rec = e.do(t, http.MethodGet, "/api/v1/runs?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "limit", decode[models.ErrorResponse](t, rec).Error.Details["field"])

	rec = e.do(t, http.MethodGet, "/api/v1/runs/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/v2/anything", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	e := newEnv(t, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/compile", nil)
	req.Header.Set("Origin", "https://planner.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://planner.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/compile", nil)
	req.Header.Set("Origin", "https://elsewhere.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	e := newEnv(t, nil)
	e.do(t, http.MethodGet, "/health", nil)

	rec := e.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "planner_http_requests_total")
}
