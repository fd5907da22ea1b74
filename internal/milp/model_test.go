package milp

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallModel(t *testing.T) *Model {
	t.Helper()
	m := NewModel()
	x, err := m.AddVar("x[a]", Continuous, 0, math.Inf(1))
	require.NoError(t, err)
	y, err := m.AddVar("y[a]", Continuous, 0, 4)
	require.NoError(t, err)
	b, err := m.AddVar("b[a]", Binary, 0, 0)
	require.NoError(t, err)
	m.AddConstraints(
		Constraint{Name: "sum", Family: "f1", Expr: Expr{}.Add(x, 1).Add(y, 1), Sense: GE, RHS: 3},
		Constraint{Name: "link", Family: "f2", Expr: Expr{}.Add(x, 1).Add(b, -10), Sense: LE, RHS: 0},
	)
	m.Objective = Expr{}.Add(x, 2).Add(y, 1).Add(b, 5)
	return m
}

func TestAddVar(t *testing.T) {
	m := smallModel(t)
	assert.Equal(t, 3, m.NumVars())
	assert.Equal(t, Var{Name: "b[a]", Kind: Binary, Lower: 0, Upper: 1}, m.Var(2))
	_, err := m.AddVar("x[a]", Continuous, 0, 1)
	assert.Error(t, err)
	_, err = m.AddVar("z", Continuous, 2, 1)
	assert.Error(t, err)
	i, ok := m.Lookup("y[a]")
	assert.True(t, ok)
	assert.Equal(t, 1, i)
	assert.Equal(t, map[string]int{"f1": 1, "f2": 1}, m.Families())
}

func TestViolation(t *testing.T) {
	m := smallModel(t)
	vals := []float64{1, 2, 1}
	assert.Equal(t, 0.0, m.Constraints[0].Violation(vals))
	assert.Equal(t, 0.0, m.Constraints[1].Violation(vals))
	assert.Equal(t, 2*1+2+5.0, m.Objective.Eval(vals))

	worst, name := m.MaxViolation([]float64{0, 5, 0})
	assert.Equal(t, 1.0, worst)
	assert.Equal(t, "y[a]", name)

	eq := Constraint{Expr: Expr{Const: 1}.Add(0, 1), Sense: EQ, RHS: 3}
	assert.Equal(t, 1.0, eq.Violation([]float64{1}))
}

func TestRecordSolutionOnce(t *testing.T) {
	m := smallModel(t)
	assert.Equal(t, 0.0, m.Value(0))
	_, err := m.Values()
	assert.ErrorIs(t, err, ErrNotSolved)

	require.NoError(t, m.RecordSolution(map[string]float64{"x[a]": 3, "b[a]": 1}))
	assert.True(t, m.Solved())
	assert.Equal(t, 3.0, m.Value(0))
	assert.Equal(t, 0.0, m.Value(1))
	assert.ErrorIs(t, m.RecordSolution(nil), ErrAlreadySolved)
	assert.Error(t, NewModel().RecordValues([]float64{1}))
}

func TestValidate(t *testing.T) {
	m := smallModel(t)
	require.NoError(t, m.Validate())
	m.AddConstraints(Constraint{Name: "bad", Expr: Expr{}.Add(7, 1)})
	assert.Error(t, m.Validate())

	m = smallModel(t)
	m.Constraints[0].Expr.Terms[0].Coef = math.NaN()
	assert.Error(t, m.Validate())
}

func TestCompact(t *testing.T) {
	e := Expr{}.Add(1, 2).Add(0, 1).Add(1, -2).Add(0, 3)
	c := e.Compact()
	assert.Equal(t, []Term{{Var: 0, Coef: 4}}, c.Terms)
}

func TestWriteLP(t *testing.T) {
	m := smallModel(t)
	var buf bytes.Buffer
	require.NoError(t, WriteLP(&buf, m))
	out := buf.String()
	assert.Contains(t, out, "Minimize\n obj: + 2 x0 + 1 x1 + 5 x2\n")
	assert.Contains(t, out, " c0: + 1 x0 + 1 x1 >= 3\n")
	assert.Contains(t, out, " c1: + 1 x0 - 10 x2 <= 0\n")
	assert.Contains(t, out, " 0 <= x1 <= 4\n")
	assert.Contains(t, out, "Binaries\n x2\n")
	assert.True(t, strings.HasSuffix(out, "End\n"))
	assert.NotContains(t, out, "x0 <=", "default bounds are omitted")
}

func TestVarKindText(t *testing.T) {
	b, err := Binary.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "binary", string(b))

	var k VarKind
	require.NoError(t, k.UnmarshalText([]byte("binary")))
	assert.Equal(t, Binary, k)
	require.NoError(t, k.UnmarshalText([]byte("continuous")))
	assert.Equal(t, Continuous, k)
	assert.Error(t, k.UnmarshalText([]byte("integer")))
}
