package generate

import (
	"fmt"
	"sort"

	"multicarrier-planner/internal/derive"
	"multicarrier-planner/internal/index"
	"multicarrier-planner/internal/milp"
)

// Cost categories of the objective.
const (
	CostProduction  = "production"
	CostTransport   = "transport"
	CostStorage     = "storage"
	CostRegas       = "regasification"
	CostBlend       = "blending"
	CostExpansion   = "expansion"
	CostBidirFixed  = "bidir_fixed"
	CostBidirVar    = "bidir_var"
	CostRepurpFixed = "repurp_fixed"
	CostRepurpVar   = "repurp_var"
	CostPenalty     = "penalty"
)

// CostCategories lists the categories in report order.
var CostCategories = []string{
	CostProduction, CostTransport, CostStorage, CostRegas, CostBlend,
	CostExpansion, CostBidirFixed, CostBidirVar,
	CostRepurpFixed, CostRepurpVar, CostPenalty,
}

// CostTerm is one weighted column of the objective.
type CostTerm struct {
	Category string
	Var      int
	Coef     float64
}

type objective struct {
	terms []CostTerm
}

func (o *objective) add(cat string, v int, coef float64) {
	if coef == 0 {
		return
	}
	o.terms = append(o.terms, CostTerm{Category: cat, Var: v, Coef: coef})
}

// objective assembles operational costs weighted by discount and hour
// scale, and investment costs weighted by discount and the end-of-horizon
// multiplier.
func (g *gen) objective() error {
	var o objective
	cal := g.ix.Calendar
	d := g.d
	for _, y := range cal.Years() {
		r := d.Discount[y]
		inv := r * d.EOH[y]
		for _, h := range cal.Hours(y) {
			rs := r * cal.Scale(y, h)
			for _, n := range g.ix.Nodes() {
				for _, e := range g.ix.Carriers {
					k := NEYH{n, e, y, h}
					if i, ok := g.v.Production[k]; ok {
						s, _ := g.ix.Supply(n, e, y, h)
						o.add(CostProduction, i, rs*s.Cost)
					}
					if i, ok := g.v.Extraction[k]; ok {
						o.add(CostStorage, i, rs*d.Storage[index.NodeCarrier{Node: n, Carrier: e}].ExtractionCost)
					}
					if i, ok := g.v.Regas[k]; ok {
						o.add(CostRegas, i, rs*d.RegasCost[derive.RegasKey{Node: n, Carrier: e, Year: y}])
					}
					for _, f := range g.ix.Carriers {
						if i, ok := g.v.Blend[Blend{n, e, f, y, h}]; ok {
							o.add(CostBlend, i, rs*d.Blend[derive.BlendKey{From: e, To: f}].Cost)
						}
					}
					if i, ok := g.v.Surplus[k]; ok {
						p, err := d.Penalty(g.opts.SurplusClass, e)
						if err != nil {
							return err
						}
						o.add(CostPenalty, i, rs*p)
					}
				}
			}
			for _, a := range g.ix.Arcs {
				for _, e := range a.Carriers() {
					c := d.Arc[index.ArcCarrier{Arc: a.ID, Carrier: e}]
					o.add(CostTransport, g.v.Flow[AEYH{a.ID, e, y, h}], rs*c.FlowCost)
				}
			}
			if g.res.DeficitClass == "" {
				continue
			}
			for _, e := range g.ix.Carriers {
				lvl := g.res.Levels[e]
				for _, grp := range g.ix.Hierarchy.Groups(lvl) {
					i, ok := g.v.Deficit[Group{lvl, grp, e, y, h}]
					if !ok {
						continue
					}
					p, err := d.Penalty(g.res.DeficitClass, e)
					if err != nil {
						return err
					}
					o.add(CostPenalty, i, rs*p)
				}
			}
		}

		for _, a := range g.ix.Arcs {
			ay := AY{a.ID, y}
			if i, ok := g.v.BidirInvest[ay]; ok {
				o.add(CostBidirFixed, i, inv*d.BidirFix[a.ID])
			}
			for _, e := range a.Carriers() {
				k := AEY{a.ID, e, y}
				c := d.Arc[index.ArcCarrier{Arc: a.ID, Carrier: e}]
				o.add(CostExpansion, g.v.Expansion[k], inv*c.ExpansionCost)
				if i, ok := g.v.PricedBidir[k]; ok {
					o.add(CostBidirVar, i, inv*c.BidirVarCost)
				}
				if cal.IsFirst(y) {
					continue
				}
				for _, f := range g.ix.ArcTargets(a.ID, e) {
					rk := Repurp{a.ID, e, f, y}
					rc := d.ArcRepurp[derive.RepurpKey{ID: a.ID, From: e, To: f}]
					o.add(CostRepurpFixed, g.v.ArcRepurpose[rk], inv*rc.Fix)
					o.add(CostRepurpVar, g.v.ArcRepurpCap[rk], inv*rc.Var)
				}
			}
		}
		if cal.IsFirst(y) {
			continue
		}
		for _, s := range g.ix.Sites {
			for _, f := range g.ix.SiteTargets(s.Node, s.Carrier) {
				rk := Repurp{s.Node, s.Carrier, f, y}
				rc := d.StorRepurp[derive.RepurpKey{ID: s.Node, From: s.Carrier, To: f}]
				o.add(CostRepurpFixed, g.v.StorRepurpose[rk], inv*rc.Fix)
				o.add(CostRepurpVar, g.v.StorRepurpCap[rk], inv*rc.Var)
			}
		}
	}

	var obj milp.Expr
	for _, t := range o.terms {
		obj = obj.Add(t.Var, t.Coef)
	}
	g.m.Objective = obj
	g.res.Costs = o.terms
	return nil
}

// Breakdown evaluates the cost terms at values and sums them per category.
// Every category is present, zero when unused.
func Breakdown(costs []CostTerm, values []float64) (map[string]float64, error) {
	out := make(map[string]float64, len(CostCategories))
	for _, c := range CostCategories {
		out[c] = 0
	}
	for _, t := range costs {
		if t.Var < 0 || t.Var >= len(values) {
			return nil, fmt.Errorf("cost term references column %d of %d", t.Var, len(values))
		}
		out[t.Category] += t.Coef * values[t.Var]
	}
	return out, nil
}

// Total sums a breakdown in category order.
func Total(b map[string]float64) float64 {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s := 0.0
	for _, k := range keys {
		s += b[k]
	}
	return s
}
