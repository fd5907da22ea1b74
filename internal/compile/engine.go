// Package compile runs one scenario through the full pipeline: hierarchy,
// scalars, index, derived coefficients, model generation, pre-solve checks
// and, on request, the solve with its post-solve checks.
package compile

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"multicarrier-planner/internal/derive"
	"multicarrier-planner/internal/generate"
	"multicarrier-planner/internal/hierarchy"
	"multicarrier-planner/internal/index"
	"multicarrier-planner/internal/logging"
	"multicarrier-planner/internal/model"
	"multicarrier-planner/internal/observability"
	"multicarrier-planner/internal/params"
	"multicarrier-planner/internal/solver"
	"multicarrier-planner/internal/validate"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Stage names, used for spans and the stage duration histogram.
const (
	StageHierarchy = "hierarchy"
	StageParams    = "params"
	StageIndex     = "index"
	StageDerive    = "derive"
	StageGenerate  = "generate"
	StagePreSolve  = "pre_solve"
	StageSolve     = "solve"
	StagePostSolve = "post_solve"
)

// ErrPreSolveFailed is returned by Solve when the compiled model did not pass
// its pre-solve checks.
var ErrPreSolveFailed = errors.New("pre-solve validation failed")

// Options bundle the knobs of one run.
type Options struct {
	Generate  generate.Options
	Solver    solver.Options
	Tolerance validate.Tolerance
}

type Engine struct {
	log     logging.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer
}

// New returns an engine. A nil logger discards output; nil metrics are
// skipped.
func New(log logging.Logger, metrics *observability.Metrics) *Engine {
	if log == nil {
		log = logging.Noop()
	}
	return &Engine{log: log, metrics: metrics, tracer: observability.Tracer()}
}

// Compiled is everything one compile pass produced. It is read-only once
// returned, apart from the solution recorded into Result.Model.
type Compiled struct {
	Name      string
	Hierarchy *hierarchy.Hierarchy
	Scalars   *params.Table
	Index     *index.Index
	Derived   *derive.Derived
	Result    *generate.Result
	PreSolve  *validate.Report
	// Warnings collects every non-fatal note of the pass in stage order.
	Warnings []string
	Duration time.Duration
}

// Compile builds the model for tables. The input is not modified.
//
// A failing pre-solve check is not an error here: the report is attached and
// Solve refuses to hand the model to a solver.
func (e *Engine) Compile(ctx context.Context, tables model.Tables, opts Options) (*Compiled, error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "compile", trace.WithAttributes(attribute.String("scenario", tables.Name)))
	defer span.End()
	log := logging.FromContext(ctx, e.log).With(logging.String("scenario", tables.Name))

	c, err := e.compile(ctx, clone(tables), opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.metrics.CompileDone("error", 0, 0)
		log.Error(ctx, "compile failed", logging.Err(err))
		return nil, err
	}
	c.Duration = time.Since(start)

	m := c.Result.Model
	span.SetAttributes(
		attribute.Int("variables", m.NumVars()),
		attribute.Int("constraints", len(m.Constraints)),
	)
	outcome := "ok"
	if !c.PreSolve.OK() {
		outcome = "invalid"
	}
	e.metrics.CompileDone(outcome, m.NumVars(), len(m.Constraints))
	for _, w := range c.Warnings {
		log.Warn(ctx, w)
	}
	log.Info(ctx, "compiled",
		logging.Int("variables", m.NumVars()),
		logging.Int("constraints", len(m.Constraints)),
		logging.Bool("pre_solve_ok", c.PreSolve.OK()),
		logging.Duration("duration", c.Duration),
	)
	return c, nil
}

func (e *Engine) compile(ctx context.Context, t model.Tables, opts Options) (*Compiled, error) {
	t.Normalize()
	c := &Compiled{Name: t.Name}

	err := e.stage(ctx, StageHierarchy, func(context.Context) error {
		h, err := hierarchy.Resolve(t.Nodes)
		if err != nil {
			return err
		}
		if h.Dropped > 0 {
			c.warnf("dropped %d node rows without id, country or region", h.Dropped)
		}
		c.Hierarchy = h
		return nil
	})
	if err != nil {
		return nil, err
	}

	var g params.Globals
	err = e.stage(ctx, StageParams, func(context.Context) error {
		c.Scalars = params.NewTable(t.Scalars)
		for _, k := range c.Scalars.Duplicates() {
			c.warnf("duplicate scalar %s; first row kept", k)
		}
		var err error
		g, err = params.NewGlobals(c.Scalars)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = e.stage(ctx, StageIndex, func(context.Context) error {
		ix, err := index.Build(t, c.Hierarchy, c.Scalars)
		if err != nil {
			return err
		}
		c.Index = ix
		c.Warnings = append(c.Warnings, ix.Warnings...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = e.stage(ctx, StageDerive, func(context.Context) error {
		d, err := derive.Compute(c.Index, c.Scalars, g)
		if err != nil {
			return err
		}
		c.Derived = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = e.stage(ctx, StageGenerate, func(ctx context.Context) error {
		res, err := generate.Generate(ctx, c.Index, c.Derived, opts.Generate)
		if err != nil {
			return err
		}
		c.Result = res
		c.Warnings = append(c.Warnings, res.Warnings...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Substitutions are only complete once every formula has looked its
	// scalars up.
	for _, k := range c.Scalars.Substitutions() {
		c.warnf("scalar %s not set; built-in default used", k)
	}

	_ = e.stage(ctx, StagePreSolve, func(context.Context) error {
		c.PreSolve = validate.PreSolve(c.Index, c.Result)
		return c.PreSolve.Err()
	})
	return c, nil
}

// Outcome is the result of handing a compiled model to a solver.
type Outcome struct {
	Solve     *solver.Result
	Breakdown map[string]float64
	// Total is the objective recomputed from the breakdown.
	Total     float64
	PostSolve *validate.Report
}

// Solve runs s on the compiled model, records the solution and checks it.
//
// Statuses without a solution return the Outcome together with a
// *model.SolveStatusError. A failing post-solve report is returned in the
// Outcome; it is not an error.
func (e *Engine) Solve(ctx context.Context, c *Compiled, s solver.Solver, opts Options) (*Outcome, error) {
	if c == nil || c.Result == nil {
		return nil, errors.New("nothing compiled")
	}
	if s == nil {
		return nil, errors.New("solver is nil")
	}
	if c.PreSolve != nil && !c.PreSolve.OK() {
		return nil, fmt.Errorf("%w: %v", ErrPreSolveFailed, c.PreSolve.Err())
	}
	log := logging.FromContext(ctx, e.log).With(logging.String("scenario", c.Name), logging.String("solver", s.Name()))
	m := c.Result.Model

	var r *solver.Result
	err := e.stage(ctx, StageSolve, func(ctx context.Context) error {
		var err error
		r, err = s.Solve(ctx, m, opts.Solver)
		return err
	})
	if err != nil {
		log.Error(ctx, "solver failed", logging.Err(err))
		return nil, fmt.Errorf("solve: %w", err)
	}
	e.metrics.SolveDone(string(r.Status))
	out := &Outcome{Solve: r}
	if err := solver.Check(r); err != nil {
		log.Warn(ctx, "no solution", logging.String("status", string(r.Status)), logging.String("detail", r.Detail))
		return out, err
	}
	if err := solver.Apply(m, r); err != nil {
		return out, err
	}
	values, err := m.Values()
	if err != nil {
		return out, err
	}

	_ = e.stage(ctx, StagePostSolve, func(context.Context) error {
		out.PostSolve = validate.PostSolve(c.Index, c.Derived, c.Result, values, opts.Tolerance)
		return out.PostSolve.Err()
	})
	if out.Breakdown, err = generate.Breakdown(c.Result.Costs, values); err != nil {
		return out, err
	}
	out.Total = generate.Total(out.Breakdown)

	log.Info(ctx, "solved",
		logging.String("status", string(r.Status)),
		logging.Float("objective", r.Objective),
		logging.Bool("post_solve_ok", out.PostSolve.OK()),
		logging.Float("max_violation", out.PostSolve.MaxViolation),
		logging.Duration("runtime", r.Runtime),
	)
	return out, nil
}

func (e *Engine) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := e.tracer.Start(ctx, "compile."+name)
	defer span.End()
	start := time.Now()
	err := fn(ctx)
	e.metrics.ObserveStage(name, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (c *Compiled) warnf(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

// clone copies every slice that Normalize rewrites.
func clone(t model.Tables) model.Tables {
	out := t
	out.Nodes = slices.Clone(t.Nodes)
	for i := range out.Nodes {
		out.Nodes[i].Carriers = slices.Clone(out.Nodes[i].Carriers)
	}
	out.Arcs = slices.Clone(t.Arcs)
	out.Storage = slices.Clone(t.Storage)
	out.Regas = slices.Clone(t.Regas)
	out.Demand = slices.Clone(t.Demand)
	out.Supply = slices.Clone(t.Supply)
	out.Carriers = slices.Clone(t.Carriers)
	return out
}
