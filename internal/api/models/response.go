package models

import (
	"multicarrier-planner/internal/compile"
	"multicarrier-planner/internal/runlog"
	"multicarrier-planner/internal/validate"
)

// CompileResponse is returned by POST /api/v1/compile.
type CompileResponse struct {
	Summary compile.Summary `json:"summary"`
	Cached  bool            `json:"cached"`
}

// SolveResponse is returned by POST /api/v1/solve.
type SolveResponse struct {
	RunID     string                 `json:"run_id,omitempty"`
	Status    string                 `json:"status"`
	Detail    string                 `json:"detail,omitempty"`
	Objective float64                `json:"objective"`
	Total     float64                `json:"total"`
	Breakdown []compile.BreakdownRow `json:"breakdown,omitempty"`
	PostSolve *validate.Report       `json:"post_solve,omitempty"`
	Summary   compile.Summary        `json:"summary"`
	Values    []compile.ValueRow     `json:"values,omitempty"`
}

type RunsResponse struct {
	Runs []runlog.Run `json:"runs"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}
