package models

import (
	"time"

	"multicarrier-planner/internal/config"
	"multicarrier-planner/internal/model"
	"multicarrier-planner/internal/validate"
)

// CompileRequest is the body of POST /api/v1/compile and /api/v1/solve.
type CompileRequest struct {
	Scenario model.Tables `json:"scenario"`
	Options  RunOptions   `json:"options,omitempty"`
	// IncludeValues adds the non-zero variable values to a solve response.
	IncludeValues bool `json:"include_values,omitempty"`
}

// RunOptions are the per-request generation and solver settings.
type RunOptions struct {
	DemandLevels map[string]string   `json:"demand_levels,omitempty"` // carrier -> level
	DeficitClass string              `json:"deficit_class,omitempty"`
	SurplusClass string              `json:"surplus_class,omitempty"`
	Sequential   bool                `json:"sequential,omitempty"`
	Solver       SolverOptions       `json:"solver,omitempty"`
	Tolerance    *validate.Tolerance `json:"tolerance,omitempty"`
}

// SolverOptions selects a solver by name. The binary is fixed server side.
type SolverOptions struct {
	Name             string  `json:"name,omitempty"`
	TimeLimitSeconds float64 `json:"time_limit_seconds,omitempty"`
	MIPGap           float64 `json:"mip_gap,omitempty"`
}

// Config maps the options onto a run config so the usual validation and
// defaulting apply.
func (o RunOptions) Config(scenario string) config.Config {
	parallel := !o.Sequential
	c := config.Config{
		Scenario:     scenario,
		DemandLevels: o.DemandLevels,
		DeficitClass: o.DeficitClass,
		SurplusClass: o.SurplusClass,
		Parallel:     &parallel,
		Solver: config.SolverConfig{
			Name:      o.Solver.Name,
			TimeLimit: seconds(o.Solver.TimeLimitSeconds),
			MIPGap:    o.Solver.MIPGap,
		},
	}
	if o.Tolerance != nil {
		c.Tolerance = *o.Tolerance
	}
	return c
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
