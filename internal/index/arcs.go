package index

import (
	"fmt"
	"sort"

	"multicarrier-planner/internal/model"
	"multicarrier-planner/internal/params"
)

// Arc is one directed pipeline with its per-carrier rows.
type Arc struct {
	ID            string
	Start, End    string
	Length        float64
	Offshore      float64
	Bidirectional bool
	// Reverse is the explicitly declared opposite-direction partner, if any.
	Reverse string

	rows     map[model.Carrier]model.ArcRow
	primary  model.ArcRow
	carriers []model.Carrier
}

// Carriers returns the sorted carriers the arc can carry in some year.
func (a *Arc) Carriers() []model.Carrier { return a.carriers }

// Row returns the row declared for carrier c.
func (a *Arc) Row(c model.Carrier) (model.ArcRow, bool) {
	r, ok := a.rows[c]
	return r, ok
}

// Calibration returns the row of carrier c, or the first declared row when
// the arc has none for c. Carriers an arc is repurposed to inherit the
// calibration factors of the arc.
func (a *Arc) Calibration(c model.Carrier) model.ArcRow {
	if r, ok := a.rows[c]; ok {
		return r
	}
	return a.primary
}

// Capacity returns the base capacity of carrier c, 0 if undeclared.
func (a *Arc) Capacity(c model.Carrier) float64 { return a.rows[c].Capacity }

// ExpansionBounds returns the per-year expansion window of carrier c. An
// absent ceiling is replaced by bigM.
func (a *Arc) ExpansionBounds(c model.Carrier, bigM float64) (lo, hi float64) {
	r, ok := a.rows[c]
	if !ok {
		return 0, bigM
	}
	hi = bigM
	if r.ExpMax != nil {
		hi = *r.ExpMax
	}
	return r.ExpMin, hi
}

func (ix *Index) buildArcs(rows []model.ArcRow) error {
	for i, r := range rows {
		if err := r.Validate(); err != nil {
			return &model.SchemaError{Table: "arcs", Row: i + 1, Reason: err.Error()}
		}
		for _, end := range []struct{ field, ref string }{{"start", r.Start}, {"end", r.End}} {
			if !ix.Hierarchy.Has(end.ref) {
				return &model.DanglingReferenceError{Kind: "arc", ID: r.ID, Field: end.field, Ref: end.ref}
			}
		}
		if !ix.carrierSet[r.Carrier] {
			ix.warnf("arcs: skipping row %d of arc %s with unknown carrier %s", i+1, r.ID, r.Carrier)
			continue
		}
		a, seen := ix.arcByID[r.ID]
		if !seen {
			a = &Arc{
				ID:            r.ID,
				Start:         r.Start,
				End:           r.End,
				Length:        r.Length,
				Offshore:      r.Offshore,
				Bidirectional: r.Bidirectional,
				Reverse:       r.Reverse,
				rows:          map[model.Carrier]model.ArcRow{},
				primary:       r,
			}
			ix.arcByID[r.ID] = a
			ix.Arcs = append(ix.Arcs, a)
		} else {
			if a.Start != r.Start || a.End != r.End || a.Length != r.Length || a.Offshore != r.Offshore {
				return &model.SchemaError{Table: "arcs", Row: i + 1, Field: "id",
					Reason: fmt.Sprintf("arc %s rows disagree on endpoints or length", r.ID)}
			}
			if r.Reverse != "" && a.Reverse != "" && r.Reverse != a.Reverse {
				return &model.SchemaError{Table: "arcs", Row: i + 1, Field: "reverse",
					Reason: fmt.Sprintf("arc %s rows declare different reverse arcs", r.ID)}
			}
			if r.Reverse != "" {
				a.Reverse = r.Reverse
			}
			a.Bidirectional = a.Bidirectional || r.Bidirectional
		}
		if _, dup := a.rows[r.Carrier]; dup {
			return &model.SchemaError{Table: "arcs", Row: i + 1, Field: "carrier",
				Reason: fmt.Sprintf("arc %s has two rows for carrier %s", r.ID, r.Carrier)}
		}
		a.rows[r.Carrier] = r
	}
	sort.Slice(ix.Arcs, func(i, j int) bool { return ix.Arcs[i].ID < ix.Arcs[j].ID })

	if err := ix.linkReverse(); err != nil {
		return err
	}
	for _, a := range ix.Arcs {
		ix.out[a.Start] = append(ix.out[a.Start], a.ID)
		ix.in[a.End] = append(ix.in[a.End], a.ID)
	}
	return nil
}

// linkReverse resolves declared reverse references. Only declarations are
// honoured; arcs that merely connect the same endpoints are not paired.
func (ix *Index) linkReverse() error {
	for _, a := range ix.Arcs {
		if a.Reverse == "" {
			continue
		}
		r, ok := ix.arcByID[a.Reverse]
		if !ok {
			return &model.DanglingReferenceError{Kind: "arc", ID: a.ID, Field: "reverse", Ref: a.Reverse}
		}
		if r.Start != a.End || r.End != a.Start {
			return &model.SchemaError{Table: "arcs", Field: "reverse",
				Reason: fmt.Sprintf("arc %s declares reverse %s, which does not run %s->%s", a.ID, r.ID, a.End, a.Start)}
		}
		if r.Reverse != "" && r.Reverse != a.ID {
			return &model.SchemaError{Table: "arcs", Field: "reverse",
				Reason: fmt.Sprintf("arc %s declares reverse %s, but %s declares %s", a.ID, r.ID, r.ID, r.Reverse)}
		}
	}
	// Declarations are symmetric.
	for _, a := range ix.Arcs {
		if a.Reverse != "" {
			ix.arcByID[a.Reverse].Reverse = a.ID
		}
	}
	return nil
}

// buildArcPairs collects, per arc, the carriers it can ever carry (declared
// rows plus everything reachable through repurposing entries) and the
// repurposing pairs among them.
func (ix *Index) buildArcPairs(st *params.Table) {
	for _, a := range ix.Arcs {
		reach := map[model.Carrier]bool{}
		var queue []model.Carrier
		for _, e := range ix.Carriers {
			if _, ok := a.rows[e]; ok {
				reach[e] = true
				queue = append(queue, e)
			}
		}
		for len(queue) > 0 {
			e := queue[0]
			queue = queue[1:]
			for _, f := range ix.Carriers {
				if reach[f] || !st.Has(params.RepurpArc, string(e), f) {
					continue
				}
				reach[f] = true
				queue = append(queue, f)
			}
		}
		for _, e := range ix.Carriers {
			if reach[e] {
				a.carriers = append(a.carriers, e)
			}
		}
		for _, e := range a.carriers {
			for _, f := range a.carriers {
				if f != e && !st.Has(params.RepurpArc, string(e), f) {
					continue
				}
				ix.arcPairs[ArcCarrier{a.ID, e}] = append(ix.arcPairs[ArcCarrier{a.ID, e}], f)
				ix.arcSources[ArcCarrier{a.ID, f}] = append(ix.arcSources[ArcCarrier{a.ID, f}], e)
			}
		}
	}
}

// ArcTargets returns the carriers capacity of carrier e on arc a can be
// assigned to in the next year, e itself included.
func (ix *Index) ArcTargets(a string, e model.Carrier) []model.Carrier {
	return ix.arcPairs[ArcCarrier{a, e}]
}

// ArcSources returns the carriers whose capacity on arc a can become
// capacity of carrier f, f itself included.
func (ix *Index) ArcSources(a string, f model.Carrier) []model.Carrier {
	return ix.arcSources[ArcCarrier{a, f}]
}
