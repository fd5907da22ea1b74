// Package index builds the sets and sparse tuple-sets the generator iterates.
//
// Every set is deduplicated and sorted so that two builds from the same
// tables produce identical models.
package index

import (
	"fmt"
	"sort"

	"multicarrier-planner/internal/hierarchy"
	"multicarrier-planner/internal/model"
	"multicarrier-planner/internal/params"
)

type NodeCarrier struct {
	Node    string
	Carrier model.Carrier
}

type ArcCarrier struct {
	Arc     string
	Carrier model.Carrier
}

type cell struct {
	node    string
	carrier model.Carrier
	year    string
	hour    string
}

type nodeCarrierYear struct {
	node    string
	carrier model.Carrier
	year    string
}

// Supply is the production window of one (node, carrier, year, hour).
type Supply struct {
	Upper float64
	Lower float64
	Cost  float64
}

// Regas is the regasification window of one (node, carrier, year).
type Regas struct {
	Upper float64
	Lower float64
	Cal   float64
}

// Index is the read-only product of Build.
type Index struct {
	Hierarchy *hierarchy.Hierarchy
	Calendar  *Calendar
	Carriers  []model.Carrier
	Arcs      []*Arc
	Sites     []*StorageSite
	Warnings  []string

	arcByID    map[string]*Arc
	in, out    map[string][]string
	siteBy     map[NodeCarrier]*StorageSite
	arcPairs   map[ArcCarrier][]model.Carrier
	arcSources map[ArcCarrier][]model.Carrier
	sitePairs  map[NodeCarrier][]model.Carrier
	siteSrc    map[NodeCarrier][]model.Carrier
	demand     map[cell]float64
	supply     map[cell]Supply
	regas      map[nodeCarrierYear]Regas
	active     map[string]model.NodeRow
	carrierSet map[model.Carrier]bool
}

// Build assembles the index. Tables are expected to carry normalized
// carrier labels.
func Build(t model.Tables, h *hierarchy.Hierarchy, st *params.Table) (*Index, error) {
	cal, err := NewCalendar(t)
	if err != nil {
		return nil, err
	}
	ix := &Index{
		Hierarchy:  h,
		Calendar:   cal,
		arcByID:    map[string]*Arc{},
		in:         map[string][]string{},
		out:        map[string][]string{},
		siteBy:     map[NodeCarrier]*StorageSite{},
		arcPairs:   map[ArcCarrier][]model.Carrier{},
		arcSources: map[ArcCarrier][]model.Carrier{},
		sitePairs:  map[NodeCarrier][]model.Carrier{},
		siteSrc:    map[NodeCarrier][]model.Carrier{},
		demand:     map[cell]float64{},
		supply:     map[cell]Supply{},
		regas:      map[nodeCarrierYear]Regas{},
		active:     map[string]model.NodeRow{},
		carrierSet: map[model.Carrier]bool{},
	}
	for _, n := range t.Nodes {
		if _, ok := ix.active[n.ID]; !ok && h.Has(n.ID) {
			ix.active[n.ID] = n
		}
	}

	ix.buildCarriers(t)
	if len(ix.Carriers) == 0 {
		return nil, &model.SchemaError{Table: "carriers", Reason: "no carriers in scenario"}
	}
	if err := ix.buildArcs(t.Arcs); err != nil {
		return nil, err
	}
	ix.buildArcPairs(st)
	if err := ix.buildStorage(t.Storage, st); err != nil {
		return nil, err
	}
	if err := ix.buildDemand(t.Demand); err != nil {
		return nil, err
	}
	if err := ix.buildSupply(t.Supply); err != nil {
		return nil, err
	}
	if err := ix.buildRegas(t.Regas); err != nil {
		return nil, err
	}
	return ix, nil
}

func (ix *Index) warnf(format string, args ...any) {
	ix.Warnings = append(ix.Warnings, fmt.Sprintf(format, args...))
}

func (ix *Index) buildCarriers(t model.Tables) {
	var cs []string
	if len(t.Carriers) > 0 {
		for _, c := range t.Carriers {
			cs = append(cs, string(c))
		}
	} else {
		for _, r := range t.Arcs {
			cs = append(cs, string(r.Carrier))
		}
		for _, r := range t.Storage {
			cs = append(cs, string(r.Carrier))
		}
		for _, r := range t.Regas {
			cs = append(cs, string(r.Carrier))
		}
		for _, r := range t.Demand {
			cs = append(cs, string(r.Carrier))
		}
		for _, r := range t.Supply {
			cs = append(cs, string(r.Carrier))
		}
	}
	cs = dedupe(cs)
	sort.Strings(cs)
	for _, c := range cs {
		ix.Carriers = append(ix.Carriers, model.Carrier(c))
		ix.carrierSet[model.Carrier(c)] = true
	}
}

// usable reports whether rows for (node, carrier) should be kept; rows for
// carriers outside the universe or inactive at the node are skipped.
func (ix *Index) usable(table, node string, c model.Carrier) bool {
	if !ix.carrierSet[c] {
		ix.warnf("%s: skipping row for node %s with unknown carrier %s", table, node, c)
		return false
	}
	if n, ok := ix.active[node]; ok && !n.Active(c) {
		ix.warnf("%s: skipping row for node %s, carrier %s is inactive there", table, node, c)
		return false
	}
	return true
}

func (ix *Index) buildDemand(rows []model.DemandRow) error {
	for i, r := range rows {
		if !ix.Hierarchy.Has(r.Node) {
			return &model.DanglingReferenceError{Kind: "demand", ID: fmt.Sprintf("row %d", i+1), Field: "node", Ref: r.Node}
		}
		if r.Year == "" || r.Hour == "" {
			return &model.SchemaError{Table: "demand", Row: i + 1, Field: "year/hour", Reason: "year and hour are required"}
		}
		if r.Value < 0 {
			return &model.SchemaError{Table: "demand", Row: i + 1, Field: "value", Reason: fmt.Sprintf("demand %g must be >= 0", r.Value)}
		}
		if !ix.usable("demand", r.Node, r.Carrier) {
			continue
		}
		if !ix.Calendar.HasHour(r.Year, r.Hour) {
			ix.warnf("demand: skipping row %d, (%s,%s) is not an hour-slice", i+1, r.Year, r.Hour)
			continue
		}
		ix.demand[cell{r.Node, r.Carrier, r.Year, r.Hour}] += r.Value
	}
	return nil
}

func (ix *Index) buildSupply(rows []model.SupplyRow) error {
	for i, r := range rows {
		if !ix.Hierarchy.Has(r.Node) {
			return &model.DanglingReferenceError{Kind: "supply", ID: fmt.Sprintf("row %d", i+1), Field: "node", Ref: r.Node}
		}
		if r.Year == "" || r.Hour == "" {
			return &model.SchemaError{Table: "supply", Row: i + 1, Field: "year/hour", Reason: "year and hour are required"}
		}
		if r.Upper < 0 || r.Lower < 0 {
			return &model.SchemaError{Table: "supply", Row: i + 1, Field: "upper/lower", Reason: "bounds must be >= 0"}
		}
		if !ix.usable("supply", r.Node, r.Carrier) {
			continue
		}
		if !ix.Calendar.HasHour(r.Year, r.Hour) {
			ix.warnf("supply: skipping row %d, (%s,%s) is not an hour-slice", i+1, r.Year, r.Hour)
			continue
		}
		k := cell{r.Node, r.Carrier, r.Year, r.Hour}
		if _, dup := ix.supply[k]; dup {
			ix.warnf("supply: duplicate row %d for (%s,%s,%s,%s) ignored", i+1, r.Node, r.Carrier, r.Year, r.Hour)
			continue
		}
		ix.supply[k] = Supply{Upper: r.Upper, Lower: r.Lower, Cost: r.MarginalCost}
	}
	return nil
}

func (ix *Index) buildRegas(rows []model.RegasRow) error {
	for i, r := range rows {
		if err := r.Validate(); err != nil {
			return &model.SchemaError{Table: "regasification", Row: i + 1, Reason: err.Error()}
		}
		if !ix.Hierarchy.Has(r.Node) {
			return &model.DanglingReferenceError{Kind: "regasification", ID: fmt.Sprintf("row %d", i+1), Field: "node", Ref: r.Node}
		}
		if !ix.usable("regasification", r.Node, r.Carrier) {
			continue
		}
		years := []string{r.Year}
		if r.Year == "" {
			years = ix.Calendar.Years()
		} else if !ix.Calendar.HasYear(r.Year) {
			ix.warnf("regasification: skipping row %d, year %s is not planned", i+1, r.Year)
			continue
		}
		for _, y := range years {
			k := nodeCarrierYear{r.Node, r.Carrier, y}
			if _, dup := ix.regas[k]; dup {
				continue
			}
			ix.regas[k] = Regas{Upper: r.Upper, Lower: r.Lower, Cal: r.CalOpex}
		}
	}
	return nil
}

// Active reports whether carrier c is in the universe and active at node.
func (ix *Index) Active(node string, c model.Carrier) bool {
	if !ix.carrierSet[c] {
		return false
	}
	n, ok := ix.active[node]
	return !ok || n.Active(c)
}

// Nodes returns the sorted node ids.
func (ix *Index) Nodes() []string { return ix.Hierarchy.Nodes() }

// Arc returns the arc with the given id.
func (ix *Index) Arc(id string) (*Arc, bool) {
	a, ok := ix.arcByID[id]
	return a, ok
}

// In returns the sorted ids of arcs ending at node.
func (ix *Index) In(node string) []string { return ix.in[node] }

// Out returns the sorted ids of arcs starting at node.
func (ix *Index) Out(node string) []string { return ix.out[node] }

// Demand returns the consumption of (node, carrier, year, hour), 0 if absent.
func (ix *Index) Demand(node string, c model.Carrier, y, h string) float64 {
	return ix.demand[cell{node, c, y, h}]
}

// Supply returns the production window of (node, carrier, year, hour).
func (ix *Index) Supply(node string, c model.Carrier, y, h string) (Supply, bool) {
	s, ok := ix.supply[cell{node, c, y, h}]
	return s, ok
}

// RegasEntry is one (node, carrier, year) regasification window.
type RegasEntry struct {
	Node    string
	Carrier model.Carrier
	Year    string
	Regas
}

// RegasEntries returns every regasification window sorted by node, carrier
// and year order.
func (ix *Index) RegasEntries() []RegasEntry {
	out := make([]RegasEntry, 0, len(ix.regas))
	for k, r := range ix.regas {
		out = append(out, RegasEntry{Node: k.node, Carrier: k.carrier, Year: k.year, Regas: r})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Node != b.Node {
			return a.Node < b.Node
		}
		if a.Carrier != b.Carrier {
			return a.Carrier < b.Carrier
		}
		return ix.Calendar.Ord(a.Year) < ix.Calendar.Ord(b.Year)
	})
	return out
}

// Regas returns the regasification window of (node, carrier, year).
func (ix *Index) Regas(node string, c model.Carrier, y string) (Regas, bool) {
	r, ok := ix.regas[nodeCarrierYear{node, c, y}]
	return r, ok
}
