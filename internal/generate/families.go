package generate

import (
	"fmt"
	"math"

	"multicarrier-planner/internal/derive"
	"multicarrier-planner/internal/index"
	"multicarrier-planner/internal/milp"
	"multicarrier-planner/internal/model"
)

// Constraint family names, in emission order.
const (
	FamilyMassBalance    = "mass_balance"
	FamilyDemand         = "demand"
	FamilySupplyCap      = "supply_cap"
	FamilySupplyMin      = "supply_min"
	FamilyBlendCap       = "blend_cap"
	FamilyRegasCap       = "regas_cap"
	FamilyRegasMin       = "regas_min"
	FamilyCapInit        = "cap_init"
	FamilyCapEvolution   = "cap_evolution"
	FamilyExpMin         = "exp_min"
	FamilyExpMax         = "exp_max"
	FamilyRepurpConserve = "repurp_conservation"
	FamilyRepurpExcl     = "repurp_exclusive"
	FamilyRepurpPrev     = "repurp_link_prev"
	FamilyRepurpBigM     = "repurp_link_bigm"
	FamilyArcCap         = "arc_cap"
	FamilyOppBigM        = "opp_bigm"
	FamilyOppReverse     = "opp_reverse"
	FamilyBDFixed        = "bd_fixed"
	FamilyBDRatchet      = "bd_ratchet"
	FamilyBDMonotone     = "bd_monotone"
	FamilyBDFire         = "bd_fire"
	FamilyBDLookahead    = "bd_lookahead"
	FamilyStorInit       = "stor_init"
	FamilyStorFixed      = "stor_fixed"
	FamilyStorEvolution  = "stor_evolution"
	FamilyStorConserve   = "stor_conservation"
	FamilyStorExcl       = "stor_exclusive"
	FamilyStorPrev       = "stor_link_prev"
	FamilyStorBigM       = "stor_link_bigm"
	FamilyStorInjCap     = "stor_inj_cap"
	FamilyStorExtCap     = "stor_ext_cap"
	FamilyStorWork       = "stor_work"
	FamilyStorCycle      = "stor_cycle"
)

type family struct {
	name  string
	build func(*gen) ([]milp.Constraint, error)
}

var families = []family{
	{FamilyMassBalance, (*gen).massBalance},
	{FamilyDemand, (*gen).demand},
	{FamilySupplyCap, (*gen).supplyCap},
	{FamilySupplyMin, (*gen).supplyMin},
	{FamilyBlendCap, (*gen).blendCap},
	{FamilyRegasCap, (*gen).regasCap},
	{FamilyRegasMin, (*gen).regasMin},
	{FamilyCapInit, (*gen).capInit},
	{FamilyCapEvolution, (*gen).capEvolution},
	{FamilyExpMin, (*gen).expMin},
	{FamilyExpMax, (*gen).expMax},
	{FamilyRepurpConserve, (*gen).repurpConservation},
	{FamilyRepurpExcl, (*gen).repurpExclusive},
	{FamilyRepurpPrev, (*gen).repurpLinkPrev},
	{FamilyRepurpBigM, (*gen).repurpLinkBigM},
	{FamilyArcCap, (*gen).arcCap},
	{FamilyOppBigM, (*gen).oppBigM},
	{FamilyOppReverse, (*gen).oppReverse},
	{FamilyBDFixed, (*gen).bdFixed},
	{FamilyBDRatchet, (*gen).bdRatchet},
	{FamilyBDMonotone, (*gen).bdMonotone},
	{FamilyBDFire, (*gen).bdFire},
	{FamilyBDLookahead, (*gen).bdLookahead},
	{FamilyStorInit, (*gen).storInit},
	{FamilyStorFixed, (*gen).storFixed},
	{FamilyStorEvolution, (*gen).storEvolution},
	{FamilyStorConserve, (*gen).storConservation},
	{FamilyStorExcl, (*gen).storExclusive},
	{FamilyStorPrev, (*gen).storLinkPrev},
	{FamilyStorBigM, (*gen).storLinkBigM},
	{FamilyStorInjCap, (*gen).storInjCap},
	{FamilyStorExtCap, (*gen).storExtCap},
	{FamilyStorWork, (*gen).storWork},
	{FamilyStorCycle, (*gen).storCycle},
}

// FamilyNames lists the constraint families in emission order.
func FamilyNames() []string {
	out := make([]string, len(families))
	for i, f := range families {
		out[i] = f.name
	}
	return out
}

func row(family, index string, e milp.Expr, s milp.Sense, rhs float64) milp.Constraint {
	return milp.Constraint{Name: family + "[" + index + "]", Family: family, Expr: e, Sense: s, RHS: rhs}
}

func idx(k fmt.Stringer) string { return k.String() }

func (k NEYH) String() string   { return fmt.Sprintf("%s,%s,%s,%s", k.Node, k.Carrier, k.Year, k.Hour) }
func (k AEYH) String() string   { return fmt.Sprintf("%s,%s,%s,%s", k.Arc, k.Carrier, k.Year, k.Hour) }
func (k AEY) String() string    { return fmt.Sprintf("%s,%s,%s", k.Arc, k.Carrier, k.Year) }
func (k AY) String() string     { return k.Arc + "," + k.Year }
func (k NEY) String() string    { return fmt.Sprintf("%s,%s,%s", k.Node, k.Carrier, k.Year) }
func (k Repurp) String() string { return fmt.Sprintf("%s,%s,%s,%s", k.ID, k.From, k.To, k.Year) }
func (k Blend) String() string {
	return fmt.Sprintf("%s,%s,%s,%s,%s", k.Node, k.From, k.To, k.Year, k.Hour)
}
func (k Group) String() string {
	return fmt.Sprintf("%s,%s,%s,%s,%s", k.Level, k.ID, k.Carrier, k.Year, k.Hour)
}

func missing(family string, k fmt.Stringer, what string) error {
	return &model.ConstraintGenerationError{Family: family, Index: k.String(), Err: fmt.Errorf("%s is not defined", what)}
}

// cells visits every (node, carrier, year, hour) in order.
func (g *gen) cells(fn func(NEYH) error) error {
	cal := g.ix.Calendar
	for _, y := range cal.Years() {
		for _, h := range cal.Hours(y) {
			for _, n := range g.ix.Nodes() {
				for _, e := range g.ix.Carriers {
					if err := fn(NEYH{n, e, y, h}); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// arcYears visits every (arc, carrier, year) that has a capacity column.
func (g *gen) arcYears(fn func(*index.Arc, AEY) error) error {
	for _, a := range g.ix.Arcs {
		for _, y := range g.ix.Calendar.Years() {
			for _, e := range a.Carriers() {
				if err := fn(a, AEY{a.ID, e, y}); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (g *gen) siteYears(fn func(*index.StorageSite, NEY) error) error {
	for _, s := range g.ix.Sites {
		for _, y := range g.ix.Calendar.Years() {
			if err := fn(s, NEY{s.Node, s.Carrier, y}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (g *gen) massBalance() ([]milp.Constraint, error) {
	var out []milp.Constraint
	err := g.cells(func(k NEYH) error {
		var e milp.Expr
		if i, ok := g.v.Production[k]; ok {
			e = e.Add(i, 1)
		}
		if i, ok := g.v.Extraction[k]; ok {
			e = e.Add(i, 1)
		}
		if i, ok := g.v.Regas[k]; ok {
			e = e.Add(i, 1)
		}
		for _, f := range g.ix.Carriers {
			if i, ok := g.v.Blend[Blend{k.Node, f, k.Carrier, k.Year, k.Hour}]; ok {
				e = e.Add(i, 1)
			}
		}
		for _, id := range g.ix.In(k.Node) {
			i, ok := g.v.Flow[AEYH{id, k.Carrier, k.Year, k.Hour}]
			if !ok {
				continue
			}
			c, ok := g.d.Arc[index.ArcCarrier{Arc: id, Carrier: k.Carrier}]
			if !ok {
				return missing(FamilyMassBalance, k, "efficiency of arc "+id)
			}
			e = e.Add(i, c.Efficiency)
		}
		if i, ok := g.v.Delivered[k]; ok {
			e = e.Add(i, -1)
		}
		if i, ok := g.v.Injection[k]; ok {
			e = e.Add(i, -1)
		}
		for _, id := range g.ix.Out(k.Node) {
			if i, ok := g.v.Flow[AEYH{id, k.Carrier, k.Year, k.Hour}]; ok {
				e = e.Add(i, -1)
			}
		}
		if len(e.Terms) == 0 {
			return nil
		}
		out = append(out, row(FamilyMassBalance, idx(k), e, milp.EQ, 0))
		return nil
	})
	return out, err
}

// demand emits one row per demand group: delivered demand of every member
// plus the deficit slack equals the aggregate demand.
func (g *gen) demand() ([]milp.Constraint, error) {
	var out []milp.Constraint
	hy := g.ix.Hierarchy
	cal := g.ix.Calendar
	for _, e := range g.ix.Carriers {
		lvl := g.res.Levels[e]
		for _, y := range cal.Years() {
			for _, h := range cal.Hours(y) {
				for _, grp := range hy.Groups(lvl) {
					gk := Group{lvl, grp, e, y, h}
					total, ok := g.res.Groups[gk]
					if !ok {
						continue
					}
					var ex milp.Expr
					for _, n := range hy.Members(lvl, grp) {
						i, ok := g.v.Delivered[NEYH{n, e, y, h}]
						if !ok {
							return nil, missing(FamilyDemand, gk, "delivered demand of "+n)
						}
						ex = ex.Add(i, 1)
					}
					if i, ok := g.v.Deficit[gk]; ok {
						ex = ex.Add(i, 1)
					}
					out = append(out, row(FamilyDemand, idx(gk), ex, milp.EQ, total))
				}
			}
		}
	}
	return out, nil
}

func (g *gen) supplyCap() ([]milp.Constraint, error) {
	var out []milp.Constraint
	err := g.cells(func(k NEYH) error {
		i, ok := g.v.Production[k]
		if !ok {
			return nil
		}
		s, _ := g.ix.Supply(k.Node, k.Carrier, k.Year, k.Hour)
		if s.Upper <= 0 {
			out = append(out, row(FamilySupplyCap, idx(k), milp.Expr{}.Add(i, 1), milp.EQ, 0))
			return nil
		}
		out = append(out, row(FamilySupplyCap, idx(k), g.blendOut(k, milp.Expr{}.Add(i, 1)), milp.LE, s.Upper))
		return nil
	})
	return out, err
}

func (g *gen) supplyMin() ([]milp.Constraint, error) {
	var out []milp.Constraint
	err := g.cells(func(k NEYH) error {
		i, ok := g.v.Production[k]
		if !ok {
			return nil
		}
		s, _ := g.ix.Supply(k.Node, k.Carrier, k.Year, k.Hour)
		lb := math.Min(s.Lower, s.Upper)
		if lb <= 0 {
			return nil
		}
		e := g.blendOut(k, milp.Expr{}.Add(i, 1))
		if z, ok := g.v.Surplus[k]; ok {
			e = e.Add(z, 1)
		}
		out = append(out, row(FamilySupplyMin, idx(k), e, milp.GE, lb))
		return nil
	})
	return out, err
}

// blendOut adds the blending columns drawing on the production window of k.
func (g *gen) blendOut(k NEYH, e milp.Expr) milp.Expr {
	for _, to := range g.ix.Carriers {
		if i, ok := g.v.Blend[Blend{k.Node, k.Carrier, to, k.Year, k.Hour}]; ok {
			e = e.Add(i, 1)
		}
	}
	return e
}

// blendCap limits the blended volume to a share of the receiving carrier's
// stream leaving the node: delivered demand, outgoing flow and injection.
func (g *gen) blendCap() ([]milp.Constraint, error) {
	var out []milp.Constraint
	cal := g.ix.Calendar
	for _, y := range cal.Years() {
		for _, h := range cal.Hours(y) {
			for _, n := range g.ix.Nodes() {
				for _, from := range g.ix.Carriers {
					for _, to := range g.ix.Carriers {
						k := Blend{n, from, to, y, h}
						i, ok := g.v.Blend[k]
						if !ok {
							continue
						}
						lim := g.d.Blend[derive.BlendKey{From: from, To: to}].Limit
						rk := NEYH{n, to, y, h}
						e := milp.Expr{}.Add(i, 1)
						if j, ok := g.v.Delivered[rk]; ok {
							e = e.Add(j, -lim)
						}
						for _, id := range g.ix.Out(n) {
							if j, ok := g.v.Flow[AEYH{id, to, y, h}]; ok {
								e = e.Add(j, -lim)
							}
						}
						if j, ok := g.v.Injection[rk]; ok {
							e = e.Add(j, -lim)
						}
						out = append(out, row(FamilyBlendCap, idx(k), e, milp.LE, 0))
					}
				}
			}
		}
	}
	return out, nil
}

func (g *gen) regasCap() ([]milp.Constraint, error) {
	var out []milp.Constraint
	err := g.cells(func(k NEYH) error {
		i, ok := g.v.Regas[k]
		if !ok {
			return nil
		}
		r, _ := g.ix.Regas(k.Node, k.Carrier, k.Year)
		out = append(out, row(FamilyRegasCap, idx(k), milp.Expr{}.Add(i, 1), milp.LE, math.Max(0, r.Upper)))
		return nil
	})
	return out, err
}

func (g *gen) regasMin() ([]milp.Constraint, error) {
	var out []milp.Constraint
	err := g.cells(func(k NEYH) error {
		i, ok := g.v.Regas[k]
		if !ok {
			return nil
		}
		r, _ := g.ix.Regas(k.Node, k.Carrier, k.Year)
		lb := math.Min(r.Lower, r.Upper)
		if lb <= 0 {
			return nil
		}
		out = append(out, row(FamilyRegasMin, idx(k), milp.Expr{}.Add(i, 1), milp.GE, lb))
		return nil
	})
	return out, err
}

func (g *gen) capInit() ([]milp.Constraint, error) {
	var out []milp.Constraint
	first := g.ix.Calendar.First()
	for _, a := range g.ix.Arcs {
		for _, e := range a.Carriers() {
			k := AEY{a.ID, e, first}
			out = append(out, row(FamilyCapInit, idx(k), milp.Expr{}.Add(g.v.Capacity[k], 1), milp.EQ, a.Capacity(e)))
		}
	}
	return out, nil
}

// capEvolution: capacity of f in y is the capacity assigned to f from every
// source carrier plus the expansion decided in the previous year.
func (g *gen) capEvolution() ([]milp.Constraint, error) {
	var out []milp.Constraint
	err := g.arcYears(func(a *index.Arc, k AEY) error {
		prev, ok := g.ix.Calendar.Prev(k.Year)
		if !ok {
			return nil
		}
		e := milp.Expr{}.Add(g.v.Capacity[k], 1)
		for _, src := range g.ix.ArcSources(a.ID, k.Carrier) {
			i, ok := g.v.ArcRepurpCap[Repurp{a.ID, src, k.Carrier, k.Year}]
			if !ok {
				return missing(FamilyCapEvolution, k, fmt.Sprintf("repurposed capacity %s->%s", src, k.Carrier))
			}
			e = e.Add(i, -1)
		}
		e = e.Add(g.v.Expansion[AEY{a.ID, k.Carrier, prev}], -1)
		out = append(out, row(FamilyCapEvolution, idx(k), e, milp.EQ, 0))
		return nil
	})
	return out, err
}

func (g *gen) expMin() ([]milp.Constraint, error) {
	var out []milp.Constraint
	err := g.arcYears(func(a *index.Arc, k AEY) error {
		lo, _ := a.ExpansionBounds(k.Carrier, g.bigM)
		if lo <= 0 {
			return nil
		}
		out = append(out, row(FamilyExpMin, idx(k), milp.Expr{}.Add(g.v.Expansion[k], 1), milp.GE, lo))
		return nil
	})
	return out, err
}

func (g *gen) expMax() ([]milp.Constraint, error) {
	var out []milp.Constraint
	err := g.arcYears(func(a *index.Arc, k AEY) error {
		_, hi := a.ExpansionBounds(k.Carrier, g.bigM)
		out = append(out, row(FamilyExpMax, idx(k), milp.Expr{}.Add(g.v.Expansion[k], 1), milp.LE, hi))
		return nil
	})
	return out, err
}

// arcRepurp visits (arc, source carrier, year > first) with its targets.
func (g *gen) arcRepurp(family string, fn func(k AEY, prev string, targets []model.Carrier) error) error {
	return g.arcYears(func(a *index.Arc, k AEY) error {
		prev, ok := g.ix.Calendar.Prev(k.Year)
		if !ok {
			return nil
		}
		targets := g.ix.ArcTargets(a.ID, k.Carrier)
		if len(targets) == 0 {
			return missing(family, k, "repurposing targets")
		}
		return fn(k, prev, targets)
	})
}

func (g *gen) repurpConservation() ([]milp.Constraint, error) {
	var out []milp.Constraint
	err := g.arcRepurp(FamilyRepurpConserve, func(k AEY, prev string, targets []model.Carrier) error {
		var e milp.Expr
		for _, f := range targets {
			e = e.Add(g.v.ArcRepurpCap[Repurp{k.Arc, k.Carrier, f, k.Year}], 1)
		}
		e = e.Add(g.v.Capacity[AEY{k.Arc, k.Carrier, prev}], -1)
		out = append(out, row(FamilyRepurpConserve, idx(k), e, milp.EQ, 0))
		return nil
	})
	return out, err
}

func (g *gen) repurpExclusive() ([]milp.Constraint, error) {
	var out []milp.Constraint
	err := g.arcRepurp(FamilyRepurpExcl, func(k AEY, _ string, targets []model.Carrier) error {
		var e milp.Expr
		for _, f := range targets {
			e = e.Add(g.v.ArcRepurpose[Repurp{k.Arc, k.Carrier, f, k.Year}], 1)
		}
		out = append(out, row(FamilyRepurpExcl, idx(k), e, milp.EQ, 1))
		return nil
	})
	return out, err
}

func (g *gen) repurpLinkPrev() ([]milp.Constraint, error) {
	var out []milp.Constraint
	err := g.arcRepurp(FamilyRepurpPrev, func(k AEY, prev string, targets []model.Carrier) error {
		for _, f := range targets {
			rk := Repurp{k.Arc, k.Carrier, f, k.Year}
			e := milp.Expr{}.Add(g.v.ArcRepurpCap[rk], 1).Add(g.v.Capacity[AEY{k.Arc, k.Carrier, prev}], -1)
			out = append(out, row(FamilyRepurpPrev, idx(rk), e, milp.LE, 0))
		}
		return nil
	})
	return out, err
}

func (g *gen) repurpLinkBigM() ([]milp.Constraint, error) {
	var out []milp.Constraint
	err := g.arcRepurp(FamilyRepurpBigM, func(k AEY, _ string, targets []model.Carrier) error {
		for _, f := range targets {
			rk := Repurp{k.Arc, k.Carrier, f, k.Year}
			e := milp.Expr{}.Add(g.v.ArcRepurpCap[rk], 1).Add(g.v.ArcRepurpose[rk], -g.bigM)
			out = append(out, row(FamilyRepurpBigM, idx(rk), e, milp.LE, 0))
		}
		return nil
	})
	return out, err
}

func (g *gen) arcCap() ([]milp.Constraint, error) {
	var out []milp.Constraint
	err := g.arcYears(func(a *index.Arc, k AEY) error {
		c, ok := g.d.Arc[index.ArcCarrier{Arc: a.ID, Carrier: k.Carrier}]
		if !ok {
			return missing(FamilyArcCap, k, "flow volume")
		}
		opp, hasOpp := g.v.Opposite[k]
		for _, h := range g.ix.Calendar.Hours(k.Year) {
			fk := AEYH{a.ID, k.Carrier, k.Year, h}
			e := milp.Expr{}.Add(g.v.Flow[fk], c.Volume).Add(g.v.Capacity[k], -1)
			if hasOpp {
				e = e.Add(opp, -1)
			}
			out = append(out, row(FamilyArcCap, idx(fk), e, milp.LE, 0))
		}
		return nil
	})
	return out, err
}

func (g *gen) oppBigM() ([]milp.Constraint, error) {
	var out []milp.Constraint
	err := g.arcYears(func(a *index.Arc, k AEY) error {
		i, ok := g.v.Opposite[k]
		if !ok {
			return nil
		}
		bd, ok := g.v.BidirState[AY{a.ID, k.Year}]
		if !ok {
			return missing(FamilyOppBigM, k, "bidirectional state")
		}
		out = append(out, row(FamilyOppBigM, idx(k), milp.Expr{}.Add(i, 1).Add(bd, -g.bigM), milp.LE, 0))
		return nil
	})
	return out, err
}

func (g *gen) oppReverse() ([]milp.Constraint, error) {
	var out []milp.Constraint
	err := g.arcYears(func(a *index.Arc, k AEY) error {
		i, ok := g.v.Opposite[k]
		if !ok {
			return nil
		}
		rk := AEY{a.Reverse, k.Carrier, k.Year}
		rev, ok := g.v.Capacity[rk]
		if !ok {
			return missing(FamilyOppReverse, k, "capacity of reverse arc "+a.Reverse)
		}
		out = append(out, row(FamilyOppReverse, idx(k), milp.Expr{}.Add(i, 1).Add(rev, -1), milp.LE, 0))
		return nil
	})
	return out, err
}

// bidirYears visits every (arc, year) carrying a bidirectional state.
func (g *gen) bidirYears(fn func(*index.Arc, AY) error) error {
	for _, a := range g.ix.Arcs {
		for _, y := range g.ix.Calendar.Years() {
			k := AY{a.ID, y}
			if _, ok := g.v.BidirState[k]; !ok {
				continue
			}
			if err := fn(a, k); err != nil {
				return err
			}
		}
	}
	return nil
}

func (g *gen) bdFixed() ([]milp.Constraint, error) {
	var out []milp.Constraint
	err := g.bidirYears(func(a *index.Arc, k AY) error {
		if a.Bidirectional {
			out = append(out, row(FamilyBDFixed, idx(k), milp.Expr{}.Add(g.v.BidirState[k], 1), milp.EQ, 1))
		}
		return nil
	})
	return out, err
}

// bdRatchet: the state can only rise in a year the investment binary fires.
func (g *gen) bdRatchet() ([]milp.Constraint, error) {
	var out []milp.Constraint
	err := g.bidirYears(func(a *index.Arc, k AY) error {
		bbd, ok := g.v.BidirInvest[k]
		if !ok {
			return nil
		}
		e := milp.Expr{}.Add(g.v.BidirState[k], 1).Add(bbd, -1)
		if prev, ok := g.ix.Calendar.Prev(k.Year); ok {
			e = e.Add(g.v.BidirState[AY{a.ID, prev}], -1)
		}
		out = append(out, row(FamilyBDRatchet, idx(k), e, milp.LE, 0))
		return nil
	})
	return out, err
}

func (g *gen) bdMonotone() ([]milp.Constraint, error) {
	var out []milp.Constraint
	err := g.bidirYears(func(a *index.Arc, k AY) error {
		prev, ok := g.ix.Calendar.Prev(k.Year)
		if !ok || a.Bidirectional {
			return nil
		}
		e := milp.Expr{}.Add(g.v.BidirState[k], 1).Add(g.v.BidirState[AY{a.ID, prev}], -1)
		out = append(out, row(FamilyBDMonotone, idx(k), e, milp.GE, 0))
		return nil
	})
	return out, err
}

func (g *gen) bdFire() ([]milp.Constraint, error) {
	var out []milp.Constraint
	err := g.bidirYears(func(a *index.Arc, k AY) error {
		bbd, ok := g.v.BidirInvest[k]
		if !ok {
			return nil
		}
		e := milp.Expr{}.Add(g.v.BidirState[k], 1).Add(bbd, -1)
		out = append(out, row(FamilyBDFire, idx(k), e, milp.GE, 0))
		return nil
	})
	return out, err
}

// bdLookahead prices, in the year the investment fires, the largest opposite
// capacity used in that year or any later one:
// KBD[y] >= KOPP[y2] - M(1-BBD[y]) for every y2 >= y.
func (g *gen) bdLookahead() ([]milp.Constraint, error) {
	var out []milp.Constraint
	err := g.arcYears(func(a *index.Arc, k AEY) error {
		kbd, ok := g.v.PricedBidir[k]
		if !ok {
			return nil
		}
		bbd, ok := g.v.BidirInvest[AY{a.ID, k.Year}]
		if !ok {
			return missing(FamilyBDLookahead, k, "bidirectional investment")
		}
		for _, y2 := range g.ix.Calendar.From(k.Year) {
			opp, ok := g.v.Opposite[AEY{a.ID, k.Carrier, y2}]
			if !ok {
				return missing(FamilyBDLookahead, k, "opposite capacity in "+y2)
			}
			e := milp.Expr{}.Add(kbd, 1).Add(opp, -1).Add(bbd, -g.bigM)
			out = append(out, row(FamilyBDLookahead, idx(k)+","+y2, e, milp.GE, -g.bigM))
		}
		return nil
	})
	return out, err
}

func (g *gen) storInit() ([]milp.Constraint, error) {
	var out []milp.Constraint
	first := g.ix.Calendar.First()
	for _, s := range g.ix.Sites {
		k := NEY{s.Node, s.Carrier, first}
		c := g.d.Storage[s.Key()]
		out = append(out, row(FamilyStorInit, idx(k), milp.Expr{}.Add(g.v.Working[k], 1), milp.EQ, c.Working))
	}
	return out, nil
}

// storFixed pins the working capacity of gas facilities that cannot be
// converted to hydrogen.
func (g *gen) storFixed() ([]milp.Constraint, error) {
	var out []milp.Constraint
	err := g.siteYears(func(s *index.StorageSite, k NEY) error {
		if !s.Declared || !s.Carrier.IsGas() || s.Row.H2Ready || g.ix.Calendar.IsFirst(k.Year) {
			return nil
		}
		c := g.d.Storage[s.Key()]
		out = append(out, row(FamilyStorFixed, idx(k), milp.Expr{}.Add(g.v.Working[k], 1), milp.EQ, c.Working))
		return nil
	})
	return out, err
}

func (g *gen) storEvolution() ([]milp.Constraint, error) {
	var out []milp.Constraint
	err := g.siteYears(func(s *index.StorageSite, k NEY) error {
		if g.ix.Calendar.IsFirst(k.Year) {
			return nil
		}
		e := milp.Expr{}.Add(g.v.Working[k], 1)
		for _, src := range g.ix.SiteSources(s.Node, s.Carrier) {
			i, ok := g.v.StorRepurpCap[Repurp{s.Node, src, s.Carrier, k.Year}]
			if !ok {
				return missing(FamilyStorEvolution, k, fmt.Sprintf("repurposed working capacity %s->%s", src, s.Carrier))
			}
			e = e.Add(i, -1)
		}
		out = append(out, row(FamilyStorEvolution, idx(k), e, milp.EQ, 0))
		return nil
	})
	return out, err
}

func (g *gen) storRepurp(family string, fn func(k NEY, prev string, targets []model.Carrier) error) error {
	return g.siteYears(func(s *index.StorageSite, k NEY) error {
		prev, ok := g.ix.Calendar.Prev(k.Year)
		if !ok {
			return nil
		}
		targets := g.ix.SiteTargets(s.Node, s.Carrier)
		if len(targets) == 0 {
			return missing(family, k, "repurposing targets")
		}
		return fn(k, prev, targets)
	})
}

func (g *gen) storConservation() ([]milp.Constraint, error) {
	var out []milp.Constraint
	err := g.storRepurp(FamilyStorConserve, func(k NEY, prev string, targets []model.Carrier) error {
		var e milp.Expr
		for _, f := range targets {
			e = e.Add(g.v.StorRepurpCap[Repurp{k.Node, k.Carrier, f, k.Year}], 1)
		}
		e = e.Add(g.v.Working[NEY{k.Node, k.Carrier, prev}], -1)
		out = append(out, row(FamilyStorConserve, idx(k), e, milp.EQ, 0))
		return nil
	})
	return out, err
}

func (g *gen) storExclusive() ([]milp.Constraint, error) {
	var out []milp.Constraint
	err := g.storRepurp(FamilyStorExcl, func(k NEY, _ string, targets []model.Carrier) error {
		var e milp.Expr
		for _, f := range targets {
			e = e.Add(g.v.StorRepurpose[Repurp{k.Node, k.Carrier, f, k.Year}], 1)
		}
		out = append(out, row(FamilyStorExcl, idx(k), e, milp.EQ, 1))
		return nil
	})
	return out, err
}

func (g *gen) storLinkPrev() ([]milp.Constraint, error) {
	var out []milp.Constraint
	err := g.storRepurp(FamilyStorPrev, func(k NEY, prev string, targets []model.Carrier) error {
		for _, f := range targets {
			rk := Repurp{k.Node, k.Carrier, f, k.Year}
			e := milp.Expr{}.Add(g.v.StorRepurpCap[rk], 1).Add(g.v.Working[NEY{k.Node, k.Carrier, prev}], -1)
			out = append(out, row(FamilyStorPrev, idx(rk), e, milp.LE, 0))
		}
		return nil
	})
	return out, err
}

func (g *gen) storLinkBigM() ([]milp.Constraint, error) {
	var out []milp.Constraint
	err := g.storRepurp(FamilyStorBigM, func(k NEY, _ string, targets []model.Carrier) error {
		for _, f := range targets {
			rk := Repurp{k.Node, k.Carrier, f, k.Year}
			e := milp.Expr{}.Add(g.v.StorRepurpCap[rk], 1).Add(g.v.StorRepurpose[rk], -g.bigM)
			out = append(out, row(FamilyStorBigM, idx(rk), e, milp.LE, 0))
		}
		return nil
	})
	return out, err
}

func (g *gen) storHours(fn func(*index.StorageSite, NEYH) error) error {
	return g.siteYears(func(s *index.StorageSite, k NEY) error {
		for _, h := range g.ix.Calendar.Hours(k.Year) {
			if err := fn(s, NEYH{k.Node, k.Carrier, k.Year, h}); err != nil {
				return err
			}
		}
		return nil
	})
}

func (g *gen) storInjCap() ([]milp.Constraint, error) {
	var out []milp.Constraint
	err := g.storHours(func(s *index.StorageSite, k NEYH) error {
		c := g.d.Storage[s.Key()]
		out = append(out, row(FamilyStorInjCap, idx(k), milp.Expr{}.Add(g.v.Injection[k], 1), milp.LE, c.Injection))
		return nil
	})
	return out, err
}

func (g *gen) storExtCap() ([]milp.Constraint, error) {
	var out []milp.Constraint
	err := g.storHours(func(s *index.StorageSite, k NEYH) error {
		c := g.d.Storage[s.Key()]
		out = append(out, row(FamilyStorExtCap, idx(k), milp.Expr{}.Add(g.v.Extraction[k], 1), milp.LE, c.Extraction))
		return nil
	})
	return out, err
}

// storWork bounds the volume extracted over the year by the working capacity.
func (g *gen) storWork() ([]milp.Constraint, error) {
	var out []milp.Constraint
	cal := g.ix.Calendar
	err := g.siteYears(func(s *index.StorageSite, k NEY) error {
		c := g.d.Storage[s.Key()]
		var e milp.Expr
		for _, h := range cal.Hours(k.Year) {
			e = e.Add(g.v.Extraction[NEYH{k.Node, k.Carrier, k.Year, h}], c.Volume*cal.Scale(k.Year, h))
		}
		e = e.Add(g.v.Working[k], -1)
		out = append(out, row(FamilyStorWork, idx(k), e, milp.LE, 0))
		return nil
	})
	return out, err
}

// storCycle: what leaves the facility over a year equals what entered it
// after storage losses.
func (g *gen) storCycle() ([]milp.Constraint, error) {
	var out []milp.Constraint
	cal := g.ix.Calendar
	err := g.siteYears(func(s *index.StorageSite, k NEY) error {
		c := g.d.Storage[s.Key()]
		var e milp.Expr
		for _, h := range cal.Hours(k.Year) {
			hk := NEYH{k.Node, k.Carrier, k.Year, h}
			sc := cal.Scale(k.Year, h)
			e = e.Add(g.v.Extraction[hk], sc).Add(g.v.Injection[hk], -c.Efficiency*sc)
		}
		out = append(out, row(FamilyStorCycle, idx(k), e, milp.EQ, 0))
		return nil
	})
	return out, err
}
