// Package milp is a solver-independent representation of a mixed-integer
// linear program: variables with bounds, linear constraints and a linear
// objective.
package milp

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

type VarKind uint8

const (
	Continuous VarKind = iota
	Binary
)

func (k VarKind) String() string {
	if k == Binary {
		return "binary"
	}
	return "continuous"
}

func (k VarKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *VarKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "binary":
		*k = Binary
	case "continuous", "":
		*k = Continuous
	default:
		return fmt.Errorf("unknown variable kind %q", b)
	}
	return nil
}

// Var is one decision variable.
type Var struct {
	Name  string
	Kind  VarKind
	Lower float64
	Upper float64
}

// Term is coef * x[Var].
type Term struct {
	Var  int
	Coef float64
}

// Expr is a linear expression sum(terms) + Const.
type Expr struct {
	Terms []Term
	Const float64
}

// Add appends coef * x[v] and returns the expression for chaining.
func (e Expr) Add(v int, coef float64) Expr {
	e.Terms = append(e.Terms, Term{Var: v, Coef: coef})
	return e
}

// Eval evaluates the expression at values.
func (e Expr) Eval(values []float64) float64 {
	s := e.Const
	for _, t := range e.Terms {
		s += t.Coef * values[t.Var]
	}
	return s
}

// Magnitude is sum(|coef*x|)+|Const|, the scale used for relative tolerances.
func (e Expr) Magnitude(values []float64) float64 {
	s := math.Abs(e.Const)
	for _, t := range e.Terms {
		s += math.Abs(t.Coef * values[t.Var])
	}
	return s
}

type Sense int8

const (
	LE Sense = iota
	GE
	EQ
)

func (s Sense) String() string {
	switch s {
	case LE:
		return "<="
	case GE:
		return ">="
	default:
		return "="
	}
}

// Constraint is Expr (sense) RHS.
type Constraint struct {
	Name   string
	Family string
	Expr   Expr
	Sense  Sense
	RHS    float64
}

// Violation returns how far values are from satisfying c, 0 when satisfied.
func (c Constraint) Violation(values []float64) float64 {
	lhs := c.Expr.Eval(values)
	switch c.Sense {
	case LE:
		return math.Max(0, lhs-c.RHS)
	case GE:
		return math.Max(0, c.RHS-lhs)
	default:
		return math.Abs(lhs - c.RHS)
	}
}

// Model owns variables, constraints and the objective of one compile pass.
// Building is single-writer; the solution is recorded exactly once.
type Model struct {
	vars        []Var
	byName      map[string]int
	Constraints []Constraint
	Objective   Expr

	mu     sync.Mutex
	values []float64
	solved bool
}

var (
	ErrAlreadySolved = errors.New("solution already recorded")
	ErrNotSolved     = errors.New("model has no recorded solution")
)

func NewModel() *Model {
	return &Model{byName: map[string]int{}}
}

// AddVar declares a variable and returns its column index.
func (m *Model) AddVar(name string, kind VarKind, lower, upper float64) (int, error) {
	if _, dup := m.byName[name]; dup {
		return 0, fmt.Errorf("duplicate variable %s", name)
	}
	if kind == Binary {
		lower, upper = 0, 1
	}
	if lower > upper {
		return 0, fmt.Errorf("variable %s: lower bound %g above upper bound %g", name, lower, upper)
	}
	m.vars = append(m.vars, Var{Name: name, Kind: kind, Lower: lower, Upper: upper})
	m.byName[name] = len(m.vars) - 1
	return len(m.vars) - 1, nil
}

func (m *Model) Vars() []Var   { return m.vars }
func (m *Model) NumVars() int  { return len(m.vars) }
func (m *Model) Var(i int) Var { return m.vars[i] }

// Lookup returns the column of the named variable.
func (m *Model) Lookup(name string) (int, bool) {
	i, ok := m.byName[name]
	return i, ok
}

// AddConstraints appends constraints in order.
func (m *Model) AddConstraints(cs ...Constraint) {
	m.Constraints = append(m.Constraints, cs...)
}

// Families counts constraints per family.
func (m *Model) Families() map[string]int {
	out := map[string]int{}
	for _, c := range m.Constraints {
		out[c.Family]++
	}
	return out
}

// RecordSolution stores solver values by variable name. Names the solver did
// not report are recorded as 0. It fails on a second call.
func (m *Model) RecordSolution(values map[string]float64) error {
	vals := make([]float64, len(m.vars))
	for i, v := range m.vars {
		vals[i] = values[v.Name]
	}
	return m.RecordValues(vals)
}

// RecordValues stores solver values by column.
func (m *Model) RecordValues(values []float64) error {
	if len(values) != len(m.vars) {
		return fmt.Errorf("got %d values for %d variables", len(values), len(m.vars))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.solved {
		return ErrAlreadySolved
	}
	m.values = append([]float64(nil), values...)
	m.solved = true
	return nil
}

func (m *Model) Solved() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.solved
}

// Values returns the recorded solution.
func (m *Model) Values() ([]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.solved {
		return nil, ErrNotSolved
	}
	return m.values, nil
}

// Value returns the recorded value of column i, 0 before a solve.
func (m *Model) Value(i int) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.solved {
		return 0
	}
	return m.values[i]
}

// MaxViolation scans every constraint and bound at values and returns the
// largest violation with the name of the offending row or column.
func (m *Model) MaxViolation(values []float64) (float64, string) {
	worst, name := 0.0, ""
	for _, c := range m.Constraints {
		if v := c.Violation(values); v > worst {
			worst, name = v, c.Name
		}
	}
	for i, v := range m.vars {
		x := values[i]
		if d := v.Lower - x; d > worst {
			worst, name = d, v.Name
		}
		if d := x - v.Upper; d > worst {
			worst, name = d, v.Name
		}
	}
	return worst, name
}

// Validate checks that every term references a declared column and every
// coefficient is finite.
func (m *Model) Validate() error {
	check := func(where string, e Expr) error {
		for _, t := range e.Terms {
			if t.Var < 0 || t.Var >= len(m.vars) {
				return fmt.Errorf("%s references undeclared column %d", where, t.Var)
			}
			if math.IsNaN(t.Coef) || math.IsInf(t.Coef, 0) {
				return fmt.Errorf("%s has non-finite coefficient on %s", where, m.vars[t.Var].Name)
			}
		}
		return nil
	}
	for _, c := range m.Constraints {
		if err := check("constraint "+c.Name, c.Expr); err != nil {
			return err
		}
		if math.IsNaN(c.RHS) || math.IsInf(c.RHS, 0) {
			return fmt.Errorf("constraint %s has non-finite right-hand side", c.Name)
		}
	}
	return check("objective", m.Objective)
}
