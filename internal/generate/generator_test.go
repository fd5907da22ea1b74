package generate

import (
	"context"
	"errors"
	"testing"

	"multicarrier-planner/internal/derive"
	"multicarrier-planner/internal/hierarchy"
	"multicarrier-planner/internal/index"
	"multicarrier-planner/internal/milp"
	"multicarrier-planner/internal/model"
	"multicarrier-planner/internal/params"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoNode(capacity float64) model.Tables {
	return model.Tables{
		Nodes: []model.NodeRow{
			{ID: "A", Country: "DE", Region: "RA"},
			{ID: "B", Country: "DE", Region: "RB"},
		},
		Arcs: []model.ArcRow{
			{ID: "AB", Start: "A", End: "B", Carrier: model.CarrierGas, Capacity: capacity, Length: 100},
		},
		Supply: []model.SupplyRow{
			{Node: "A", Carrier: model.CarrierGas, Year: "2025", Hour: "1", Upper: 100},
		},
		Demand: []model.DemandRow{
			{Node: "B", Carrier: model.CarrierGas, Year: "2025", Hour: "1", Value: 10},
		},
		Time: []model.TimeSlice{{Year: "2025", Hour: "1", Scale: 1}},
	}
}

func twoNodeScalars() []model.ScalarRow {
	return []model.ScalarRow{
		{Name: "bigm", Value: 1e6},
		{Name: "yearstep", Value: 1},
		{Name: "pipelenstd", Value: 100},
		{Name: "bfpipe", Carrier: "G", Value: 2},
		{Name: "bipipe", Carrier: "G", Value: 50},
		{Name: "blpipe", Carrier: "G", Value: 0},
		{Name: "penalty", Sub: "ZD", Value: 1000},
	}
}

func multiYear() model.Tables {
	return model.Tables{
		Carriers: []model.Carrier{model.CarrierGas, model.CarrierHydrogen},
		Nodes: []model.NodeRow{
			{ID: "A", Country: "DE", Region: "R1"},
			{ID: "B", Country: "DE", Region: "R1"},
		},
		Arcs: []model.ArcRow{
			{ID: "AB", Start: "A", End: "B", Carrier: model.CarrierGas, Capacity: 10, Length: 100, Reverse: "BA"},
			{ID: "BA", Start: "B", End: "A", Carrier: model.CarrierGas, Capacity: 4, Length: 100},
		},
		Storage: []model.StorageRow{
			{Node: "A", Carrier: model.CarrierGas, Working: 8760, Injection: 10, Extraction: 10, H2Ready: true},
			{Node: "B", Carrier: model.CarrierGas, Working: 100, Injection: 1, Extraction: 1},
		},
		Demand: []model.DemandRow{
			{Node: "A", Carrier: model.CarrierHydrogen, Year: "2030", Hour: "1", Value: 4},
			{Node: "B", Carrier: model.CarrierHydrogen, Year: "2030", Hour: "1", Value: 6},
			{Node: "B", Carrier: model.CarrierGas, Year: "2025", Hour: "1", Value: 5},
		},
		Supply: []model.SupplyRow{
			{Node: "A", Carrier: model.CarrierGas, Year: "2025", Hour: "1", Upper: 50, Lower: 80},
			{Node: "A", Carrier: model.CarrierHydrogen, Year: "2030", Hour: "1", Upper: 0},
		},
		Time: []model.TimeSlice{
			{Year: "2025", Hour: "1", Scale: 8760},
			{Year: "2030", Hour: "1", Scale: 8760},
		},
	}
}

func multiYearScalars() []model.ScalarRow {
	rows := twoNodeScalars()
	rows[1] = model.ScalarRow{Name: "yearstep", Value: 5}
	return append(rows,
		model.ScalarRow{Name: "bfpipe", Carrier: "H", Value: 3},
		model.ScalarRow{Name: "bipipe", Carrier: "H", Value: 60},
		model.ScalarRow{Name: "blpipe", Carrier: "H", Value: 0},
		model.ScalarRow{Name: "bidirvar", Carrier: "G", Value: 4},
		model.ScalarRow{Name: "bidirvar", Carrier: "H", Value: 4},
		model.ScalarRow{Name: "bidirfix", Value: 1000},
		model.ScalarRow{Name: "repurparc", Sub: "G", Carrier: "H", Value: 8},
		model.ScalarRow{Name: "repurpstor", Sub: "G", Carrier: "H", Value: 2},
		model.ScalarRow{Name: "penalty", Sub: "ZS", Value: 10},
	)
}

func generate(t *testing.T, tb model.Tables, rows []model.ScalarRow, opts Options) (*Result, error) {
	t.Helper()
	h, err := hierarchy.Resolve(tb.Nodes)
	require.NoError(t, err)
	st := params.NewTable(rows)
	ix, err := index.Build(tb, h, st)
	require.NoError(t, err)
	g, err := params.NewGlobals(st)
	require.NoError(t, err)
	d, err := derive.Compute(ix, st, g)
	require.NoError(t, err)
	return Generate(context.Background(), ix, d, opts)
}

func mustGenerate(t *testing.T, tb model.Tables, rows []model.ScalarRow, opts Options) *Result {
	t.Helper()
	res, err := generate(t, tb, rows, opts)
	require.NoError(t, err)
	require.NoError(t, res.Model.Validate())
	return res
}

type solution struct {
	t    *testing.T
	m    *milp.Model
	vals []float64
}

func newSolution(t *testing.T, m *milp.Model) *solution {
	return &solution{t: t, m: m, vals: make([]float64, m.NumVars())}
}

func (s *solution) set(name string, v float64) *solution {
	s.t.Helper()
	i, ok := s.m.Lookup(name)
	require.True(s.t, ok, "variable %s", name)
	s.vals[i] = v
	return s
}

func constraint(t *testing.T, m *milp.Model, name string) milp.Constraint {
	t.Helper()
	for _, c := range m.Constraints {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("constraint %s not found", name)
	return milp.Constraint{}
}

func hasVar(m *milp.Model, name string) bool {
	_, ok := m.Lookup(name)
	return ok
}

func TestTwoNodeOptimumSatisfiesModel(t *testing.T) {
	res := mustGenerate(t, twoNode(10), twoNodeScalars(), Options{})
	m := res.Model

	s := newSolution(t, m).
		set("QP[A,G,2025,1]", 10).
		set("FA[AB,G,2025,1]", 10).
		set("QS[B,G,2025,1]", 10).
		set("KA[AB,G,2025]", 10)

	worst, where := m.MaxViolation(s.vals)
	assert.Zero(t, worst, where)
	// flow cost = 2 * 1 * 100 * 1 / 100 per unit
	assert.InDelta(t, 20.0, m.Objective.Eval(s.vals), 1e-9)

	b, err := Breakdown(res.Costs, s.vals)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, b[CostTransport], 1e-9)
	assert.Zero(t, b[CostPenalty])
	assert.InDelta(t, m.Objective.Eval(s.vals), Total(b), 1e-9)
}

func TestBottleneckGoesToDeficit(t *testing.T) {
	res := mustGenerate(t, twoNode(6), twoNodeScalars(), Options{})
	m := res.Model
	assert.Equal(t, "ZD", res.DeficitClass)

	s := newSolution(t, m).
		set("QP[A,G,2025,1]", 6).
		set("FA[AB,G,2025,1]", 6).
		set("QS[B,G,2025,1]", 6).
		set("KA[AB,G,2025]", 6).
		set("ZD[node,B,G,2025,1]", 4)
	worst, where := m.MaxViolation(s.vals)
	assert.Zero(t, worst, where)

	b, err := Breakdown(res.Costs, s.vals)
	require.NoError(t, err)
	assert.InDelta(t, 4000.0, b[CostPenalty], 1e-9)
	assert.InDelta(t, 12.0, b[CostTransport], 1e-9)

	// Pushing more than the arc capacity violates arc_cap.
	s.set("FA[AB,G,2025,1]", 10)
	assert.Positive(t, constraint(t, m, "arc_cap[AB,G,2025,1]").Violation(s.vals))
}

func TestHardDemandWithoutPenaltyClass(t *testing.T) {
	rows := twoNodeScalars()[:6]
	res := mustGenerate(t, twoNode(10), rows, Options{})
	assert.Empty(t, res.DeficitClass)
	assert.Empty(t, res.Vars.Deficit)
	assert.NotEmpty(t, res.Warnings)
}

func TestUnknownPenaltyClass(t *testing.T) {
	_, err := generate(t, twoNode(10), twoNodeScalars(), Options{DeficitClass: "ZX"})
	var mp *model.MissingParameterError
	require.True(t, errors.As(err, &mp))
	assert.Equal(t, "ZX", mp.Sub)
}

func TestPenaltyClassCaseInsensitive(t *testing.T) {
	upper := mustGenerate(t, multiYear(), multiYearScalars(), Options{DeficitClass: "ZD", SurplusClass: "ZS"})
	lower := mustGenerate(t, multiYear(), multiYearScalars(), Options{DeficitClass: " zd", SurplusClass: "zs"})
	assert.Equal(t, "ZD", lower.DeficitClass)
	assert.Equal(t, upper.Model.NumVars(), lower.Model.NumVars())
	assert.Equal(t, len(upper.Model.Constraints), len(lower.Model.Constraints))
}

func TestRegionLevelDemandForHydrogen(t *testing.T) {
	res := mustGenerate(t, multiYear(), multiYearScalars(), Options{SurplusClass: "ZS"})
	m := res.Model

	assert.Equal(t, hierarchy.LevelRegion, res.Levels[model.CarrierHydrogen])
	assert.Equal(t, hierarchy.LevelNode, res.Levels[model.CarrierGas])

	c := constraint(t, m, "demand[region,R1,H,2030,1]")
	assert.Equal(t, milp.EQ, c.Sense)
	assert.Equal(t, 10.0, c.RHS)
	assert.Len(t, c.Expr.Terms, 3) // QS at A and B plus the deficit
	assert.True(t, hasVar(m, "QS[A,H,2030,1]"))
	assert.False(t, hasVar(m, "QS[A,G,2025,1]"))
}

func TestSupplyBounds(t *testing.T) {
	res := mustGenerate(t, multiYear(), multiYearScalars(), Options{SurplusClass: "ZS"})
	m := res.Model

	c := constraint(t, m, "supply_min[A,G,2025,1]")
	assert.Equal(t, 50.0, c.RHS, "lower bound is clipped to the upper bound")
	assert.Len(t, c.Expr.Terms, 2)

	zero := constraint(t, m, "supply_cap[A,H,2030,1]")
	assert.Equal(t, milp.EQ, zero.Sense)
	assert.Zero(t, zero.RHS)
}

func TestBidirectionalVariablesOnlyWithDeclaredReverse(t *testing.T) {
	tb := multiYear()
	tb.Arcs = append(tb.Arcs,
		model.ArcRow{ID: "AB2", Start: "A", End: "B", Carrier: model.CarrierGas, Capacity: 1, Length: 10},
		model.ArcRow{ID: "BA2", Start: "B", End: "A", Carrier: model.CarrierGas, Capacity: 1, Length: 10},
	)
	res := mustGenerate(t, tb, multiYearScalars(), Options{})
	m := res.Model

	for _, name := range []string{"BD[AB,2025]", "BBD[AB,2030]", "KOPP[AB,G,2030]", "KBD[AB,H,2025]", "BD[BA,2030]"} {
		assert.True(t, hasVar(m, name), name)
	}
	for _, name := range []string{"BD[AB2,2025]", "KOPP[AB2,G,2025]", "KBD[BA2,G,2030]"} {
		assert.False(t, hasVar(m, name), name)
	}
	assert.Equal(t, milp.Binary, m.Var(res.Vars.BidirInvest[AY{"AB", "2025"}]).Kind)

	// AB2 has no opposite capacity in its arc_cap row.
	c := constraint(t, m, "arc_cap[AB2,G,2025,1]")
	assert.Len(t, c.Expr.Terms, 2)
}

func TestBidirectionalRatchet(t *testing.T) {
	res := mustGenerate(t, multiYear(), multiYearScalars(), Options{})
	m := res.Model

	s := newSolution(t, m).set("BD[AB,2030]", 1)
	ratchet := constraint(t, m, "bd_ratchet[AB,2030]")
	assert.InDelta(t, 1.0, ratchet.Violation(s.vals), 1e-12, "state cannot rise without investment")

	s.set("BBD[AB,2030]", 1)
	assert.Zero(t, ratchet.Violation(s.vals))

	// Once acquired the state is kept.
	s.set("BD[AB,2025]", 1).set("BBD[AB,2025]", 1).set("BBD[AB,2030]", 0).set("BD[AB,2030]", 0)
	assert.Positive(t, constraint(t, m, "bd_monotone[AB,2030]").Violation(s.vals))

	// Opposite capacity needs the state.
	s = newSolution(t, m).set("KOPP[AB,G,2025]", 3).set("KA[BA,G,2025]", 4)
	assert.Positive(t, constraint(t, m, "opp_bigm[AB,G,2025]").Violation(s.vals))
	s.set("BD[AB,2025]", 1)
	assert.Zero(t, constraint(t, m, "opp_bigm[AB,G,2025]").Violation(s.vals))
	assert.Zero(t, constraint(t, m, "opp_reverse[AB,G,2025]").Violation(s.vals))
	s.set("KOPP[AB,G,2025]", 5)
	assert.Positive(t, constraint(t, m, "opp_reverse[AB,G,2025]").Violation(s.vals))
}

func TestBidirectionalLookahead(t *testing.T) {
	res := mustGenerate(t, multiYear(), multiYearScalars(), Options{})
	m := res.Model

	// Firing in 2025 prices the 2030 peak.
	s := newSolution(t, m).
		set("BBD[AB,2025]", 1).
		set("KOPP[AB,G,2030]", 4).
		set("KBD[AB,G,2025]", 2)
	c := constraint(t, m, "bd_lookahead[AB,G,2025,2030]")
	assert.InDelta(t, 2.0, c.Violation(s.vals), 1e-9)
	s.set("KBD[AB,G,2025]", 4)
	assert.Zero(t, c.Violation(s.vals))

	// Without the investment the row is slack.
	s.set("BBD[AB,2025]", 0).set("KBD[AB,G,2025]", 0)
	assert.Zero(t, c.Violation(s.vals))
}

func TestRepurposingLinearization(t *testing.T) {
	res := mustGenerate(t, multiYear(), multiYearScalars(), Options{})
	m := res.Model

	assert.False(t, hasVar(m, "BAR[AB,G,H,2025]"), "no repurposing in the first year")
	assert.True(t, hasVar(m, "BAR[AB,G,H,2030]"))
	assert.True(t, hasVar(m, "BAR[AB,G,G,2030]"))
	assert.False(t, hasVar(m, "BAR[AB,H,G,2030]"))

	excl := constraint(t, m, "repurp_exclusive[AB,G,2030]")
	assert.Equal(t, 1.0, excl.RHS)
	assert.Len(t, excl.Expr.Terms, 2)

	// Move all of AB's gas capacity to hydrogen in 2030.
	s := newSolution(t, m).
		set("KA[AB,G,2025]", 10).
		set("BAR[AB,G,H,2030]", 1).
		set("KRA[AB,G,H,2030]", 10).
		set("BAR[AB,H,H,2030]", 1).
		set("KA[AB,H,2030]", 10)
	for _, name := range []string{
		"repurp_exclusive[AB,G,2030]", "repurp_conservation[AB,G,2030]",
		"repurp_link_prev[AB,G,H,2030]", "repurp_link_bigm[AB,G,H,2030]",
		"cap_evolution[AB,H,2030]", "cap_evolution[AB,G,2030]",
	} {
		assert.Zero(t, constraint(t, m, name).Violation(s.vals), name)
	}
	s.set("BAR[AB,G,G,2030]", 1)
	assert.Positive(t, excl.Violation(s.vals))
}

func TestStorageFamilies(t *testing.T) {
	res := mustGenerate(t, multiYear(), multiYearScalars(), Options{})
	m := res.Model

	cyc := constraint(t, m, "stor_cycle[A,G,2025]")
	require.Len(t, cyc.Expr.Terms, 2)
	s := newSolution(t, m).set("QI[A,G,2025,1]", 8.08).set("QE[A,G,2025,1]", 8.08*0.99)
	assert.InDelta(t, 0, cyc.Violation(s.vals), 1e-9)

	// working capacity = 8760 * 8760 / 8760
	assert.Equal(t, 8760.0, constraint(t, m, "stor_init[A,G,2025]").RHS)
	// B is not H2-ready: its gas capacity is pinned and it has no hydrogen site.
	assert.Equal(t, 100.0, constraint(t, m, "stor_fixed[B,G,2030]").RHS)
	assert.False(t, hasVar(m, "KW[B,H,2030]"))
	assert.True(t, hasVar(m, "BWR[A,G,H,2030]"))
	assert.Zero(t, constraint(t, m, "stor_init[A,H,2025]").RHS)

	work := constraint(t, m, "stor_work[A,G,2025]")
	s.set("KW[A,G,2025]", 8760)
	assert.Positive(t, work.Violation(s.vals), "8760 * 8 > 8760")
}

func TestObjectiveWeights(t *testing.T) {
	res := mustGenerate(t, multiYear(), multiYearScalars(), Options{})
	m := res.Model
	vals := make([]float64, m.NumVars())
	i := res.Vars.Expansion[AEY{"AB", model.CarrierGas, "2030"}]
	vals[i] = 1

	// bipipe * len / (std * yearstep) * discount(2030) * eoh
	want := 50.0 * 100 / (100 * 5) / pow(1.02, 5) * 3
	b, err := Breakdown(res.Costs, vals)
	require.NoError(t, err)
	assert.InDelta(t, want, b[CostExpansion], 1e-9)
	assert.InDelta(t, want, m.Objective.Eval(vals), 1e-9)
}

func TestDeterministicAndSequentialMatch(t *testing.T) {
	a := mustGenerate(t, multiYear(), multiYearScalars(), Options{SurplusClass: "ZS"})
	b := mustGenerate(t, multiYear(), multiYearScalars(), Options{SurplusClass: "ZS", Sequential: true})
	assert.Equal(t, a.Model.Vars(), b.Model.Vars())
	assert.Equal(t, a.Model.Constraints, b.Model.Constraints)
	assert.Equal(t, a.Model.Objective, b.Model.Objective)
}

func TestFamiliesEmittedInOrder(t *testing.T) {
	res := mustGenerate(t, multiYear(), multiYearScalars(), Options{})
	order := map[string]int{}
	for i, f := range FamilyNames() {
		order[f] = i
	}
	last := -1
	for _, c := range res.Model.Constraints {
		o, ok := order[c.Family]
		require.True(t, ok, c.Family)
		require.GreaterOrEqual(t, o, last)
		last = o
	}
}

func TestCancelledContext(t *testing.T) {
	tb := twoNode(10)
	h, err := hierarchy.Resolve(tb.Nodes)
	require.NoError(t, err)
	st := params.NewTable(twoNodeScalars())
	ix, err := index.Build(tb, h, st)
	require.NoError(t, err)
	g, err := params.NewGlobals(st)
	require.NoError(t, err)
	d, err := derive.Compute(ix, st, g)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Generate(ctx, ix, d, Options{Sequential: true})
	assert.ErrorIs(t, err, context.Canceled)
}

func pow(b float64, n int) float64 {
	r := 1.0
	for i := 0; i < n; i++ {
		r *= b
	}
	return r
}

func blendScenario() model.Tables {
	tb := twoNode(10)
	tb.Carriers = []model.Carrier{model.CarrierGas, model.CarrierHydrogen}
	tb.Supply = append(tb.Supply, model.SupplyRow{Node: "A", Carrier: model.CarrierHydrogen, Year: "2025", Hour: "1", Upper: 3, MarginalCost: 1})
	return tb
}

func blendScalars() []model.ScalarRow {
	return append(twoNodeScalars(),
		model.ScalarRow{Name: "blendlim", Sub: "H", Carrier: "G", Value: 0.25},
		model.ScalarRow{Name: "blendcost", Sub: "H", Carrier: "G", Value: 4},
	)
}

func TestBlendingHydrogenIntoGas(t *testing.T) {
	res := mustGenerate(t, blendScenario(), blendScalars(), Options{})
	m := res.Model

	require.True(t, hasVar(m, "QB[A,H,G,2025,1]"))
	assert.False(t, hasVar(m, "QB[B,H,G,2025,1]"), "no hydrogen capacity at B")
	assert.Len(t, constraint(t, m, "supply_cap[A,H,2025,1]").Expr.Terms, 2)

	s := newSolution(t, m).
		set("QP[A,G,2025,1]", 8).
		set("QB[A,H,G,2025,1]", 2).
		set("FA[AB,G,2025,1]", 10).
		set("QS[B,G,2025,1]", 10).
		set("KA[AB,G,2025]", 10)
	worst, where := m.MaxViolation(s.vals)
	assert.Zero(t, worst, where)

	b, err := Breakdown(res.Costs, s.vals)
	require.NoError(t, err)
	assert.InDelta(t, 8.0, b[CostBlend], 1e-9)
	assert.InDelta(t, 28.0, m.Objective.Eval(s.vals), 1e-9)

	// a quarter of the 10 units leaving A caps the blend at 2.5
	s.set("QB[A,H,G,2025,1]", 3).set("QP[A,G,2025,1]", 7)
	assert.InDelta(t, 0.5, constraint(t, m, "blend_cap[A,H,G,2025,1]").Violation(s.vals), 1e-9)
}

func TestNoBlendingWithoutLimit(t *testing.T) {
	res := mustGenerate(t, blendScenario(), twoNodeScalars(), Options{})
	assert.Empty(t, res.Vars.Blend)
	assert.Len(t, constraint(t, res.Model, "supply_cap[A,H,2025,1]").Expr.Terms, 1)
}
