package index

import (
	"errors"
	"strings"
	"testing"

	"multicarrier-planner/internal/hierarchy"
	"multicarrier-planner/internal/model"
	"multicarrier-planner/internal/params"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixture() model.Tables {
	return model.Tables{
		Nodes: []model.NodeRow{
			{ID: "A", Country: "DE", Region: "DE1"},
			{ID: "B", Country: "DE", Region: "DE1"},
			{ID: "C", Country: "FR", Region: "FR1", Carriers: []model.Carrier{model.CarrierGas}},
		},
		Arcs: []model.ArcRow{
			{ID: "AB", Start: "A", End: "B", Carrier: model.CarrierGas, Capacity: 10, Length: 100, Reverse: "BA"},
			{ID: "BA", Start: "B", End: "A", Carrier: model.CarrierGas, Capacity: 5, Length: 100},
			{ID: "BC", Start: "B", End: "C", Carrier: model.CarrierGas, Capacity: 7, Length: 50},
			{ID: "CB", Start: "C", End: "B", Carrier: model.CarrierGas, Capacity: 7, Length: 50},
		},
		Storage: []model.StorageRow{
			{Node: "A", Carrier: model.CarrierGas, Working: 100, Injection: 1, Extraction: 1, H2Ready: true},
			{Node: "B", Carrier: model.CarrierGas, Working: 50, Injection: 1, Extraction: 1},
		},
		Demand: []model.DemandRow{
			{Node: "B", Carrier: model.CarrierGas, Year: "2030", Hour: "1", Value: 3},
			{Node: "B", Carrier: model.CarrierGas, Year: "2030", Hour: "1", Value: 2},
			{Node: "C", Carrier: model.CarrierHydrogen, Year: "2030", Hour: "1", Value: 9},
		},
		Supply: []model.SupplyRow{
			{Node: "A", Carrier: model.CarrierGas, Year: "2025", Hour: "1", Upper: 20, MarginalCost: 2},
		},
		Time: []model.TimeSlice{
			{Year: "2025", Hour: "1", Scale: 4380},
			{Year: "2025", Hour: "2", Scale: 4380},
			{Year: "2030", Hour: "1"},
		},
	}
}

func scalars() *params.Table {
	return params.NewTable([]model.ScalarRow{
		{Name: "repurparc", Sub: "G", Carrier: "H", Value: 1},
		{Name: "repurpstor", Sub: "G", Carrier: "H", Value: 1},
		{Name: "penalty", Sub: "ZD2", Value: 1000},
	})
}

func build(t *testing.T, tb model.Tables) *Index {
	t.Helper()
	h, err := hierarchy.Resolve(tb.Nodes)
	require.NoError(t, err)
	ix, err := Build(tb, h, scalars())
	require.NoError(t, err)
	return ix
}

func TestCalendar(t *testing.T) {
	c, err := NewCalendar(fixture())
	require.NoError(t, err)
	assert.Equal(t, []string{"2025", "2030"}, c.Years())
	assert.Equal(t, []string{"1", "2"}, c.Hours("2025"))
	assert.Equal(t, []string{"1"}, c.Hours("2030"))
	assert.Equal(t, 4380.0, c.Scale("2025", "2"))
	assert.Equal(t, 1.0, c.Scale("2030", "1"))
	assert.Equal(t, 8760.0, c.TotalScale("2025"))

	prev, ok := c.Prev("2030")
	assert.True(t, ok)
	assert.Equal(t, "2025", prev)
	_, ok = c.Prev("2025")
	assert.False(t, ok)
	assert.Equal(t, []string{"2025", "2030"}, c.From("2025"))
	assert.Equal(t, []string{"2030"}, c.From("2030"))
	assert.True(t, c.IsLast("2030"))
}

func TestCalendarNumericOrdering(t *testing.T) {
	c, err := NewCalendar(model.Tables{Time: []model.TimeSlice{
		{Year: "2030", Hour: "10"}, {Year: "2030", Hour: "9"}, {Year: "2025", Hour: "1"},
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"2025", "2030"}, c.Years())
	assert.Equal(t, []string{"9", "10"}, c.Hours("2030"))
}

func TestCalendarErrors(t *testing.T) {
	_, err := NewCalendar(model.Tables{})
	var se *model.SchemaError
	assert.True(t, errors.As(err, &se))

	_, err = NewCalendar(model.Tables{Time: []model.TimeSlice{{Year: "2025", Hour: "1", Scale: -1}}})
	assert.True(t, errors.As(err, &se))
}

func TestCalendarIgnoresUndeclaredDataYears(t *testing.T) {
	tb := fixture()
	tb.Demand = append(tb.Demand, model.DemandRow{Node: "B", Carrier: model.CarrierGas, Year: "2050", Hour: "1", Value: 1})
	tb.Regas = []model.RegasRow{{Node: "B", Carrier: model.CarrierGas, Year: "2040", Upper: 1}}
	c, err := NewCalendar(tb)
	require.NoError(t, err)
	assert.Equal(t, []string{"2025", "2030"}, c.Years())
	assert.Equal(t, "2030", c.Last())

	ix := build(t, tb)
	assert.Equal(t, 0.0, ix.Demand("B", model.CarrierGas, "2050", "1"))
	warnings := strings.Join(ix.Warnings, "\n")
	assert.Contains(t, warnings, "(2050,1) is not an hour-slice")
	assert.Contains(t, warnings, "year 2040 is not planned")
}

func TestCalendarFromDataRows(t *testing.T) {
	c, err := NewCalendar(model.Tables{
		Demand: []model.DemandRow{{Node: "B", Year: "2030", Hour: "2"}},
		Supply: []model.SupplyRow{{Node: "A", Year: "2025", Hour: "1"}},
		Time:   []model.TimeSlice{{Hour: "1", Scale: 10}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"2025", "2030"}, c.Years())
	assert.Equal(t, []string{"2"}, c.Hours("2030"))
	assert.Equal(t, 10.0, c.Scale("2025", "1"))
}

func TestNegativeDemand(t *testing.T) {
	tb := fixture()
	tb.Demand[1].Value = -2
	h, err := hierarchy.Resolve(tb.Nodes)
	require.NoError(t, err)
	_, err = Build(tb, h, scalars())
	var se *model.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "demand", se.Table)
	assert.Equal(t, 2, se.Row)
	assert.Equal(t, "value", se.Field)
}

func TestBuildSets(t *testing.T) {
	ix := build(t, fixture())
	assert.Equal(t, []model.Carrier{model.CarrierGas, model.CarrierHydrogen}, ix.Carriers)
	assert.Equal(t, []string{"A", "B", "C"}, ix.Nodes())
	assert.Equal(t, []string{"AB", "CB"}, ix.In("B"))
	assert.Equal(t, []string{"BA", "BC"}, ix.Out("B"))

	// Duplicate demand rows accumulate; hydrogen at C is inactive.
	assert.Equal(t, 5.0, ix.Demand("B", model.CarrierGas, "2030", "1"))
	assert.Equal(t, 0.0, ix.Demand("C", model.CarrierHydrogen, "2030", "1"))
	assert.NotEmpty(t, ix.Warnings)

	s, ok := ix.Supply("A", model.CarrierGas, "2025", "1")
	require.True(t, ok)
	assert.Equal(t, 2.0, s.Cost)
}

func TestReverseOnlyWhenDeclared(t *testing.T) {
	ix := build(t, fixture())
	ab, _ := ix.Arc("AB")
	ba, _ := ix.Arc("BA")
	bc, _ := ix.Arc("BC")
	assert.Equal(t, "BA", ab.Reverse)
	assert.Equal(t, "AB", ba.Reverse, "declaration is symmetric")
	// BC and CB mirror each other but nobody declared the pairing.
	assert.Empty(t, bc.Reverse)
}

func TestReverseValidation(t *testing.T) {
	tb := fixture()
	tb.Arcs[0].Reverse = "ZZ"
	h, err := hierarchy.Resolve(tb.Nodes)
	require.NoError(t, err)
	_, err = Build(tb, h, scalars())
	var dr *model.DanglingReferenceError
	require.True(t, errors.As(err, &dr))
	assert.Equal(t, "reverse", dr.Field)

	tb = fixture()
	tb.Arcs[0].Reverse = "BC"
	_, err = Build(tb, h, scalars())
	var se *model.SchemaError
	require.True(t, errors.As(err, &se))
}

func TestDanglingArcEndpoint(t *testing.T) {
	tb := fixture()
	tb.Arcs = append(tb.Arcs, model.ArcRow{ID: "AX", Start: "A", End: "X", Carrier: model.CarrierGas, Capacity: 1})
	h, err := hierarchy.Resolve(tb.Nodes)
	require.NoError(t, err)
	_, err = Build(tb, h, scalars())
	var dr *model.DanglingReferenceError
	require.True(t, errors.As(err, &dr))
	assert.Equal(t, "AX", dr.ID)
	assert.Equal(t, "X", dr.Ref)
}

func TestDanglingStorage(t *testing.T) {
	tb := fixture()
	tb.Storage = append(tb.Storage, model.StorageRow{Node: "Q", Carrier: model.CarrierGas})
	h, err := hierarchy.Resolve(tb.Nodes)
	require.NoError(t, err)
	_, err = Build(tb, h, scalars())
	var dr *model.DanglingReferenceError
	require.True(t, errors.As(err, &dr))
	assert.Equal(t, "node", dr.Field)

	tb = fixture()
	tb.Carriers = []model.Carrier{model.CarrierHydrogen}
	_, err = Build(tb, h, scalars())
	require.True(t, errors.As(err, &dr))
	assert.Equal(t, "carrier", dr.Field)
}

func TestRepurposingPairs(t *testing.T) {
	ix := build(t, fixture())
	assert.Equal(t, []model.Carrier{model.CarrierGas, model.CarrierHydrogen}, ix.ArcTargets("AB", model.CarrierGas))
	assert.Equal(t, []model.Carrier{model.CarrierHydrogen}, ix.ArcTargets("AB", model.CarrierHydrogen))
	assert.Equal(t, []model.Carrier{model.CarrierGas, model.CarrierHydrogen}, ix.ArcSources("AB", model.CarrierHydrogen))

	// A is H2-ready, B is not.
	assert.Equal(t, []model.Carrier{model.CarrierGas, model.CarrierHydrogen}, ix.SiteTargets("A", model.CarrierGas))
	assert.Equal(t, []model.Carrier{model.CarrierGas}, ix.SiteTargets("B", model.CarrierGas))
	site, ok := ix.Site("A", model.CarrierHydrogen)
	require.True(t, ok)
	assert.False(t, site.Declared)
	assert.Equal(t, model.CarrierGas, site.Origin)
	assert.Equal(t, []model.Carrier{model.CarrierGas, model.CarrierHydrogen}, ix.SiteSources("A", model.CarrierHydrogen))
	_, ok = ix.Site("B", model.CarrierHydrogen)
	assert.False(t, ok)
	assert.Len(t, ix.Sites, 3)
}

func TestExpansionBounds(t *testing.T) {
	tb := fixture()
	ceiling := 4.0
	tb.Arcs[0].ExpMin = 1
	tb.Arcs[0].ExpMax = &ceiling
	ix := build(t, tb)
	ab, _ := ix.Arc("AB")
	lo, hi := ab.ExpansionBounds(model.CarrierGas, 1e6)
	assert.Equal(t, 1.0, lo)
	assert.Equal(t, 4.0, hi)
	lo, hi = ab.ExpansionBounds(model.CarrierHydrogen, 1e6)
	assert.Equal(t, 0.0, lo)
	assert.Equal(t, 1e6, hi)
	assert.Equal(t, model.CarrierGas, ab.Calibration(model.CarrierHydrogen).Carrier)
}

func TestSortLabels(t *testing.T) {
	l := []string{"10", "2", "1"}
	SortLabels(l)
	assert.Equal(t, []string{"1", "2", "10"}, l)
	l = []string{"b", "a", "10"}
	SortLabels(l)
	assert.Equal(t, []string{"10", "a", "b"}, l)
}

func TestArcCarriersFollowRepurposing(t *testing.T) {
	ix := build(t, fixture())
	ab, _ := ix.Arc("AB")
	assert.Equal(t, []model.Carrier{model.CarrierGas, model.CarrierHydrogen}, ab.Carriers())

	tb := fixture()
	h, err := hierarchy.Resolve(tb.Nodes)
	require.NoError(t, err)
	ix, err = Build(tb, h, params.NewTable(nil))
	require.NoError(t, err)
	ab, _ = ix.Arc("AB")
	assert.Equal(t, []model.Carrier{model.CarrierGas}, ab.Carriers())
	assert.Equal(t, []model.Carrier{model.CarrierGas}, ix.ArcTargets("AB", model.CarrierGas))
	assert.Nil(t, ix.ArcTargets("AB", model.CarrierHydrogen))
}

func TestRegasEntries(t *testing.T) {
	tb := fixture()
	tb.Regas = []model.RegasRow{
		{Node: "B", Carrier: model.CarrierGas, Upper: 4, CalOpex: 2},
		{Node: "A", Carrier: model.CarrierGas, Year: "2030", Upper: 1},
	}
	ix := build(t, tb)
	entries := ix.RegasEntries()
	require.Len(t, entries, 3)
	assert.Equal(t, "A", entries[0].Node)
	assert.Equal(t, "2025", entries[1].Year)
	assert.Equal(t, "2030", entries[2].Year)
	r, ok := ix.Regas("B", model.CarrierGas, "2030")
	require.True(t, ok)
	assert.Equal(t, 4.0, r.Upper)
}
