package validate

import (
	"multicarrier-planner/internal/generate"
	"multicarrier-planner/internal/index"
)

// PreSolve checks the inputs and the generated model for structural
// consistency.
func PreSolve(ix *index.Index, res *generate.Result) *Report {
	r := &Report{Phase: PhasePre}
	hy := ix.Hierarchy

	k := r.begin("arc_endpoints")
	for _, a := range ix.Arcs {
		switch {
		case !hy.Has(a.Start):
			k.fail("arc "+a.ID, 0, "start node %s does not exist", a.Start)
		case !hy.Has(a.End):
			k.fail("arc "+a.ID, 0, "end node %s does not exist", a.End)
		default:
			k.ok()
		}
	}
	k.done()

	k = r.begin("node_hierarchy")
	for _, n := range hy.Nodes() {
		switch {
		case hy.Country(n) == "":
			k.fail("node "+n, 0, "has no country")
		case hy.Region(n) == "":
			k.fail("node "+n, 0, "has no region")
		default:
			k.ok()
		}
	}
	k.done()

	// Reverse pairs must be declared and mirrored; endpoint symmetry alone
	// never pairs two arcs.
	k = r.begin("reverse_pairs")
	for _, a := range ix.Arcs {
		if a.Reverse == "" {
			continue
		}
		rev, ok := ix.Arc(a.Reverse)
		switch {
		case !ok:
			k.fail("arc "+a.ID, 0, "reverse %s does not exist", a.Reverse)
		case rev.Start != a.End || rev.End != a.Start:
			k.fail("arc "+a.ID, 0, "reverse %s does not mirror its endpoints", a.Reverse)
		case rev.Reverse != a.ID:
			k.fail("arc "+a.ID, 0, "reverse %s points at %q", a.Reverse, rev.Reverse)
		default:
			k.ok()
		}
	}
	for _, a := range ix.Arcs {
		if a.Reverse != "" {
			continue
		}
		for _, e := range a.Carriers() {
			for _, y := range ix.Calendar.Years() {
				if _, ok := res.Vars.Opposite[generate.AEY{Arc: a.ID, Carrier: e, Year: y}]; ok {
					k.fail("arc "+a.ID, 0, "has opposite capacity without a declared reverse")
				}
			}
		}
	}
	k.done()

	k = r.begin("declared_columns")
	if err := res.Model.Validate(); err != nil {
		k.fail("model", 0, "%v", err)
	} else {
		k.ok()
	}
	k.done()

	return r
}
