// Package hierarchy resolves the spatial grouping of nodes into regions,
// macro-regions and countries.
//
// Membership is stored as explicit maps rather than shared identities: a
// region may carry the same id as one of its nodes, and many nodes may share
// one region, without either relation leaking into the other.
package hierarchy

import (
	"fmt"
	"sort"
	"strings"

	"multicarrier-planner/internal/model"
)

// Level names one aggregation level of the hierarchy.
type Level string

const (
	LevelNode        Level = "node"
	LevelRegion      Level = "region"
	LevelMacroRegion Level = "macro_region"
	LevelCountry     Level = "country"
	LevelSystem      Level = "system"
)

// SystemGroup is the single group id used at LevelSystem.
const SystemGroup = "SYSTEM"

func ParseLevel(s string) (Level, error) {
	switch l := Level(strings.ToLower(strings.TrimSpace(s))); l {
	case LevelNode, LevelRegion, LevelMacroRegion, LevelCountry, LevelSystem:
		return l, nil
	case "nuts2":
		return LevelRegion, nil
	case "macro", "macroregion":
		return LevelMacroRegion, nil
	case "":
		return LevelNode, nil
	default:
		return "", fmt.Errorf("unknown aggregation level %q", s)
	}
}

// Hierarchy is the resolved node -> region -> macro-region -> country mapping.
type Hierarchy struct {
	nodes   []string
	country map[string]string
	region  map[string]string
	macro   map[string]string

	members map[Level]map[string][]string
	groups  map[Level][]string

	// Dropped counts input rows discarded for missing required fields.
	Dropped int
}

// Normalize returns a copy of rows with identifiers trimmed and the optional
// macro-region filled from the region when absent.
func Normalize(rows []model.NodeRow) []model.NodeRow {
	out := make([]model.NodeRow, len(rows))
	for i, r := range rows {
		r.ID = strings.TrimSpace(r.ID)
		r.Country = strings.TrimSpace(r.Country)
		r.Region = strings.TrimSpace(r.Region)
		r.MacroRegion = strings.TrimSpace(r.MacroRegion)
		if r.MacroRegion == "" {
			r.MacroRegion = r.Region
		}
		out[i] = r
	}
	return out
}

// Resolve normalizes rows and builds the hierarchy.
//
// Rows missing the node id, country or region are dropped and counted in
// Dropped. A node listed twice with a different grouping is a SchemaError,
// as is an empty result.
func Resolve(rows []model.NodeRow) (*Hierarchy, error) {
	h := &Hierarchy{
		country: map[string]string{},
		region:  map[string]string{},
		macro:   map[string]string{},
	}
	for i, r := range Normalize(rows) {
		if r.ID == "" || r.Country == "" || r.Region == "" {
			h.Dropped++
			continue
		}
		if c, seen := h.country[r.ID]; seen {
			if c != r.Country || h.region[r.ID] != r.Region || h.macro[r.ID] != r.MacroRegion {
				return nil, &model.SchemaError{
					Table:  "nodes",
					Row:    i + 1,
					Field:  "id",
					Reason: fmt.Sprintf("node %q is assigned to more than one group", r.ID),
				}
			}
			continue
		}
		h.nodes = append(h.nodes, r.ID)
		h.country[r.ID] = r.Country
		h.region[r.ID] = r.Region
		h.macro[r.ID] = r.MacroRegion
	}
	if len(h.nodes) == 0 {
		return nil, &model.SchemaError{Table: "nodes", Reason: "no usable node rows"}
	}
	sort.Strings(h.nodes)
	h.index()
	return h, nil
}

func (h *Hierarchy) index() {
	h.members = map[Level]map[string][]string{}
	h.groups = map[Level][]string{}
	for _, l := range []Level{LevelNode, LevelRegion, LevelMacroRegion, LevelCountry, LevelSystem} {
		m := map[string][]string{}
		for _, n := range h.nodes {
			g := h.Group(l, n)
			m[g] = append(m[g], n)
		}
		groups := make([]string, 0, len(m))
		for g := range m {
			groups = append(groups, g)
		}
		sort.Strings(groups)
		h.members[l] = m
		h.groups[l] = groups
	}
}

// Nodes returns the sorted node ids.
func (h *Hierarchy) Nodes() []string { return h.nodes }

func (h *Hierarchy) Has(node string) bool {
	_, ok := h.country[node]
	return ok
}

func (h *Hierarchy) Country(node string) string     { return h.country[node] }
func (h *Hierarchy) Region(node string) string      { return h.region[node] }
func (h *Hierarchy) MacroRegion(node string) string { return h.macro[node] }

// Group returns the id of the group node belongs to at level l.
func (h *Hierarchy) Group(l Level, node string) string {
	switch l {
	case LevelRegion:
		return h.region[node]
	case LevelMacroRegion:
		return h.macro[node]
	case LevelCountry:
		return h.country[node]
	case LevelSystem:
		return SystemGroup
	default:
		return node
	}
}

// Groups returns the sorted, deduplicated group ids at level l.
func (h *Hierarchy) Groups(l Level) []string { return h.groups[l] }

// Members returns the sorted nodes of group g at level l.
func (h *Hierarchy) Members(l Level, g string) []string { return h.members[l][g] }

func (h *Hierarchy) Regions() []string      { return h.groups[LevelRegion] }
func (h *Hierarchy) MacroRegions() []string { return h.groups[LevelMacroRegion] }
func (h *Hierarchy) Countries() []string    { return h.groups[LevelCountry] }
