package hierarchy

import (
	"errors"
	"testing"

	"multicarrier-planner/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveMacroRegionDefaultsToRegion(t *testing.T) {
	h, err := Resolve([]model.NodeRow{
		{ID: "N1", Country: "DE", Region: "DE11"},
		{ID: "N2", Country: "DE", Region: "DE12", MacroRegion: "SOUTH"},
	})
	require.NoError(t, err)
	assert.Equal(t, "DE11", h.MacroRegion("N1"))
	assert.Equal(t, "SOUTH", h.MacroRegion("N2"))
	assert.Equal(t, []string{"DE11", "SOUTH"}, h.MacroRegions())
}

func TestResolveRegionMayShareNodeID(t *testing.T) {
	h, err := Resolve([]model.NodeRow{
		{ID: "DE11", Country: "DE", Region: "DE11"},
		{ID: "N2", Country: "DE", Region: "DE11"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"DE11"}, h.Regions())
	assert.Equal(t, []string{"DE11", "N2"}, h.Members(LevelRegion, "DE11"))
	// The node-level group of the region-named node is still just that node.
	assert.Equal(t, []string{"DE11"}, h.Members(LevelNode, "DE11"))
}

func TestResolveManyNodesOneRegion(t *testing.T) {
	rows := []model.NodeRow{
		{ID: "N3", Country: "FR", Region: "FR10"},
		{ID: "N1", Country: "FR", Region: "FR10"},
		{ID: "N2", Country: "FR", Region: "FR10"},
	}
	h, err := Resolve(rows)
	require.NoError(t, err)
	assert.Equal(t, []string{"N1", "N2", "N3"}, h.Nodes())
	assert.Len(t, h.Regions(), 1)
	assert.Equal(t, []string{"FR"}, h.Countries())
	assert.Equal(t, []string{SystemGroup}, h.Groups(LevelSystem))
	assert.Len(t, h.Members(LevelSystem, SystemGroup), 3)
}

func TestResolveDropsIncompleteRows(t *testing.T) {
	h, err := Resolve([]model.NodeRow{
		{ID: "N1", Country: "DE", Region: "DE11"},
		{ID: "N2", Country: "", Region: "DE11"},
		{ID: "", Country: "DE", Region: "DE11"},
		{ID: "N4", Country: "DE", Region: " "},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, h.Dropped)
	assert.Equal(t, []string{"N1"}, h.Nodes())
}

func TestResolveEmptyIsSchemaError(t *testing.T) {
	_, err := Resolve([]model.NodeRow{{ID: "N1"}})
	var se *model.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "nodes", se.Table)
}

func TestResolveConflictingMembership(t *testing.T) {
	_, err := Resolve([]model.NodeRow{
		{ID: "N1", Country: "DE", Region: "DE11"},
		{ID: "N1", Country: "DE", Region: "DE12"},
	})
	var se *model.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 2, se.Row)

	h, err := Resolve([]model.NodeRow{
		{ID: "N1", Country: "DE", Region: "DE11"},
		{ID: "N1", Country: "DE", Region: "DE11"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"N1"}, h.Nodes())
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]Level{
		"node": LevelNode, "NUTS2": LevelRegion, "region": LevelRegion,
		"macro_region": LevelMacroRegion, "country": LevelCountry, "system": LevelSystem, "": LevelNode,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("continent")
	assert.Error(t, err)
}
