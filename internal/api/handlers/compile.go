package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"multicarrier-planner/internal/api/middleware"
	"multicarrier-planner/internal/api/models"
	"multicarrier-planner/internal/compile"
	"multicarrier-planner/internal/data"
	"multicarrier-planner/internal/logging"
	"multicarrier-planner/internal/model"
	"multicarrier-planner/internal/observability"
	"multicarrier-planner/internal/runlog"
	"multicarrier-planner/internal/solver"

	"github.com/gin-gonic/gin"
)

// SolverFactory returns the solver registered under name.
type SolverFactory func(name string) (solver.Solver, error)

// CompileHandler serves compile and solve requests.
type CompileHandler struct {
	engine  *compile.Engine
	cache   *data.Cache[compile.Summary]
	runs    *runlog.Log
	solvers SolverFactory
	metrics *observability.Metrics
	log     logging.Logger
}

// NewCompileHandler creates a compile handler. cache and runs may be nil.
func NewCompileHandler(
	engine *compile.Engine,
	cache *data.Cache[compile.Summary],
	runs *runlog.Log,
	solvers SolverFactory,
	metrics *observability.Metrics,
	log logging.Logger,
) *CompileHandler {
	if log == nil {
		log = logging.Noop()
	}
	return &CompileHandler{engine: engine, cache: cache, runs: runs, solvers: solvers, metrics: metrics, log: log}
}

// Compile handles POST /api/v1/compile
func (h *CompileHandler) Compile(c *gin.Context) {
	req, opts, ok := h.bind(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	key, err := cacheKey(req)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	// waiters share the result, so one client leaving must not cancel it
	shared := context.WithoutCancel(ctx)
	summary, hit, err := h.cache.Do(key, func() (compile.Summary, error) {
		compiled, err := h.engine.Compile(shared, req.Scenario, opts)
		if err != nil {
			return compile.Summary{}, err
		}
		return compiled.Summary(), nil
	})
	if h.cache != nil {
		h.metrics.CacheLookup(hit)
	}
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, models.CompileResponse{Summary: summary, Cached: hit})
}

// Solve handles POST /api/v1/solve
func (h *CompileHandler) Solve(c *gin.Context) {
	req, opts, ok := h.bind(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	log := logging.FromContext(ctx, h.log)

	s, err := h.solvers(req.Options.Solver.Name)
	if err != nil {
		badField(c, "options.solver.name", err)
		return
	}

	start := time.Now()
	compiled, err := h.engine.Compile(ctx, req.Scenario, opts)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	resp := models.SolveResponse{Summary: compiled.Summary()}

	out, err := h.engine.Solve(ctx, compiled, s, opts)
	var statusErr *model.SolveStatusError
	switch {
	case errors.Is(err, compile.ErrPreSolveFailed):
		h.record(c, compiled, "pre_solve_failed", nil, start)
		_, detail := middleware.Classify(err)
		detail.Details = map[string]any{"pre_solve": compiled.PreSolve}
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, models.ErrorResponse{Error: detail})
		return
	case errors.As(err, &statusErr):
		// no solution is a result, not a failure of the request
		resp.Status = statusErr.Status
		resp.Detail = statusErr.Detail
		resp.RunID = h.record(c, compiled, statusErr.Status, out, start)
		c.JSON(http.StatusOK, resp)
		return
	case err != nil:
		middleware.Abort(c, err)
		return
	}

	resp.Status = string(out.Solve.Status)
	resp.Detail = out.Solve.Detail
	resp.Objective = out.Solve.Objective
	resp.Total = out.Total
	resp.Breakdown = compile.BreakdownRows(out.Breakdown)
	resp.PostSolve = out.PostSolve
	if req.IncludeValues {
		if resp.Values, err = compile.ValueRows(compiled.Result.Model, true); err != nil {
			middleware.Abort(c, err)
			return
		}
	}
	resp.RunID = h.record(c, compiled, resp.Status, out, start)
	log.Info(ctx, "solve request done", logging.String("status", resp.Status), logging.String("run_id", resp.RunID))
	c.JSON(http.StatusOK, resp)
}

func (h *CompileHandler) bind(c *gin.Context) (models.CompileRequest, compile.Options, bool) {
	var req models.CompileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.BadRequest(c, err)
		return req, compile.Options{}, false
	}
	if req.Scenario.Name == "" {
		req.Scenario.Name = "request"
	}
	cfg := req.Options.Config(req.Scenario.Name)
	if err := cfg.Validate(); err != nil {
		middleware.BadRequest(c, err)
		return req, compile.Options{}, false
	}
	return req, cfg.Options(), true
}

// record stores the run when a run log is configured and returns its id.
func (h *CompileHandler) record(c *gin.Context, compiled *compile.Compiled, status string, out *compile.Outcome, start time.Time) string {
	if h.runs == nil {
		return ""
	}
	ctx := c.Request.Context()
	m := compiled.Result.Model
	run := runlog.Run{
		Scenario:    compiled.Name,
		Kind:        "solve",
		Status:      status,
		Variables:   m.NumVars(),
		Constraints: len(m.Constraints),
		Warnings:    len(compiled.Warnings),
		DurationMs:  time.Since(start).Milliseconds(),
	}
	if out != nil && out.Solve != nil {
		run.Objective = out.Solve.Objective
		run.PostSolveOK = out.PostSolve != nil && out.PostSolve.OK()
	}
	stored, err := h.runs.Record(ctx, run)
	if err != nil {
		logging.FromContext(ctx, h.log).Warn(ctx, "record run failed", logging.Err(err))
		return ""
	}
	return stored.ID
}

// cacheKey hashes the request in its JSON form; equal requests share a key.
func cacheKey(req models.CompileRequest) (string, error) {
	tables, err := json.Marshal(req.Scenario)
	if err != nil {
		return "", err
	}
	opts, err := json.Marshal(req.Options)
	if err != nil {
		return "", err
	}
	return data.Key(tables, opts), nil
}

// badField rejects a request naming the offending field.
func badField(c *gin.Context, field string, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{
		Error: models.ErrorDetail{
			Code:    "INVALID_REQUEST",
			Message: err.Error(),
			Details: map[string]any{"field": field},
		},
	})
}
