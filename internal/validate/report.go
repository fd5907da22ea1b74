// Package validate runs structural checks over a compiled model before the
// solve and over the recorded solution after it.
package validate

import (
	"fmt"
	"strings"
)

const (
	PhasePre  = "pre_solve"
	PhasePost = "post_solve"
)

// maxIssuesPerCheck caps the number of issues kept per check; Violations
// still counts every one.
const maxIssuesPerCheck = 50

// Issue is one failed assertion.
type Issue struct {
	Check  string  `json:"check"`
	Entity string  `json:"entity"`
	Detail string  `json:"detail"`
	Value  float64 `json:"value,omitempty"`
}

// Check summarizes one assertion over every index it covers.
type Check struct {
	Name       string  `json:"name"`
	Checked    int     `json:"checked"`
	Violations int     `json:"violations"`
	Max        float64 `json:"max,omitempty"`
	Worst      string  `json:"worst,omitempty"`
}

func (c Check) Passed() bool { return c.Violations == 0 }

// Report is the outcome of one validation pass.
type Report struct {
	Phase  string  `json:"phase"`
	Checks []Check `json:"checks"`
	Issues []Issue `json:"issues,omitempty"`
	// MaxViolation is the largest absolute row or bound violation, post-solve only.
	MaxViolation float64 `json:"max_violation,omitempty"`
	WorstRow     string  `json:"worst_row,omitempty"`
}

// OK reports whether every check passed.
func (r *Report) OK() bool {
	for _, c := range r.Checks {
		if !c.Passed() {
			return false
		}
	}
	return true
}

// Err returns nil when the report passed, otherwise an error naming the
// failing checks.
func (r *Report) Err() error {
	var failed []string
	for _, c := range r.Checks {
		if !c.Passed() {
			failed = append(failed, fmt.Sprintf("%s (%d)", c.Name, c.Violations))
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return fmt.Errorf("%s validation failed: %s", r.Phase, strings.Join(failed, ", "))
}

// checker accumulates one Check.
type checker struct {
	r *Report
	c Check
}

func (r *Report) begin(name string) *checker {
	return &checker{r: r, c: Check{Name: name}}
}

func (k *checker) ok() { k.c.Checked++ }

func (k *checker) fail(entity string, value float64, format string, args ...any) {
	k.c.Checked++
	k.c.Violations++
	if value >= k.c.Max {
		k.c.Max, k.c.Worst = value, entity
	}
	if k.c.Violations <= maxIssuesPerCheck {
		k.r.Issues = append(k.r.Issues, Issue{Check: k.c.Name, Entity: entity, Detail: fmt.Sprintf(format, args...), Value: value})
	}
}

func (k *checker) done() { k.r.Checks = append(k.r.Checks, k.c) }
