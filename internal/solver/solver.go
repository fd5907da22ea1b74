// Package solver hands a compiled model to an external MILP solver and maps
// its outcome back onto model columns.
package solver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"multicarrier-planner/internal/milp"
	"multicarrier-planner/internal/model"
)

// Status is the classified outcome of a solve.
type Status string

const (
	StatusOptimal    Status = "optimal"
	StatusFeasible   Status = "feasible"
	StatusInfeasible Status = "infeasible"
	StatusUnbounded  Status = "unbounded"
	StatusTimeout    Status = "timeout"
)

// HasSolution reports whether the status carries usable values.
func (s Status) HasSolution() bool { return s == StatusOptimal || s == StatusFeasible }

// Options control one solve.
type Options struct {
	TimeLimit time.Duration
	MIPGap    float64
}

// Result is what the solver reported. Values are keyed by model variable
// name and are only set when the status has a solution.
type Result struct {
	Status    Status             `json:"status"`
	Objective float64            `json:"objective"`
	Values    map[string]float64 `json:"-"`
	Runtime   time.Duration      `json:"runtime"`
	Detail    string             `json:"detail,omitempty"`
}

// Solver solves a model. Implementations must honour ctx cancellation and
// report an expired time limit as StatusTimeout, never as infeasible.
type Solver interface {
	Name() string
	Solve(ctx context.Context, m *milp.Model, opts Options) (*Result, error)
}

// New returns the solver registered under name.
func New(name, binary string) (Solver, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "highs":
		return NewHiGHS(binary), nil
	default:
		return nil, fmt.Errorf("unknown solver %q", name)
	}
}

// Check turns a result without a usable solution into a SolveStatusError.
func Check(r *Result) error {
	switch r.Status {
	case StatusOptimal, StatusFeasible:
		return nil
	case StatusInfeasible, StatusUnbounded, StatusTimeout:
		return &model.SolveStatusError{Status: string(r.Status), Detail: r.Detail}
	default:
		return &model.SolveStatusError{Status: string(r.Status), Detail: "unrecognized status"}
	}
}

// Apply records the solved values on m. It fails for results without a
// solution and when m already holds one.
func Apply(m *milp.Model, r *Result) error {
	if err := Check(r); err != nil {
		return err
	}
	if err := m.RecordSolution(r.Values); err != nil {
		return fmt.Errorf("record solution: %w", err)
	}
	return nil
}
