// Package generate turns an index and its derived coefficients into a MILP:
// decision variables, constraint families and the cost objective.
package generate

import (
	"context"
	"fmt"
	"math"
	"strings"

	"multicarrier-planner/internal/derive"
	"multicarrier-planner/internal/hierarchy"
	"multicarrier-planner/internal/index"
	"multicarrier-planner/internal/milp"
	"multicarrier-planner/internal/model"
	"multicarrier-planner/internal/params"

	"golang.org/x/sync/errgroup"
)

// Options control how demand is aggregated and which penalty classes price
// the slacks.
type Options struct {
	// DemandLevels selects the aggregation level of the demand rows per
	// carrier. Carriers not listed use DefaultLevel.
	DemandLevels map[model.Carrier]hierarchy.Level
	// DeficitClass prices unmet demand. Empty selects the first penalty class
	// of the scenario; with no class at all demand is a hard equality.
	DeficitClass string
	// SurplusClass, when set, relaxes production lower bounds.
	SurplusClass string
	// Sequential disables concurrent family generation.
	Sequential bool
}

// DefaultLevel is the demand aggregation level used when a carrier has no
// configured level: hydrogen balances per region, everything else per node.
func DefaultLevel(c model.Carrier) hierarchy.Level {
	if c.IsHydrogen() {
		return hierarchy.LevelRegion
	}
	return hierarchy.LevelNode
}

func (o Options) level(c model.Carrier) hierarchy.Level {
	if l, ok := o.DemandLevels[c]; ok && l != "" {
		return l
	}
	return DefaultLevel(c)
}

// Result is the compiled model plus the typed column maps needed to read it.
type Result struct {
	Model        *milp.Model
	Vars         *Vars
	Costs        []CostTerm
	DeficitClass string
	Warnings     []string
	// Groups lists the demand rows with their aggregate demand.
	Groups map[Group]float64
	// Levels is the demand aggregation level used per carrier.
	Levels map[model.Carrier]hierarchy.Level
}

type gen struct {
	ix   *index.Index
	d    *derive.Derived
	opts Options
	m    *milp.Model
	v    *Vars
	res  *Result
	bigM float64
}

// Generate builds the model. Variables are created first, in a fixed order;
// constraint families are then generated concurrently into separate slots
// and appended in family order.
func Generate(ctx context.Context, ix *index.Index, d *derive.Derived, opts Options) (*Result, error) {
	// penalty classes are keyed upper-case
	opts.DeficitClass = strings.ToUpper(strings.TrimSpace(opts.DeficitClass))
	opts.SurplusClass = strings.ToUpper(strings.TrimSpace(opts.SurplusClass))
	g := &gen{
		ix:   ix,
		d:    d,
		opts: opts,
		m:    milp.NewModel(),
		v:    newVars(),
		bigM: d.Globals.BigM,
	}
	g.res = &Result{
		Model:  g.m,
		Vars:   g.v,
		Groups: map[Group]float64{},
		Levels: map[model.Carrier]hierarchy.Level{},
	}
	for _, c := range ix.Carriers {
		g.res.Levels[c] = opts.level(c)
	}
	if err := g.deficitClass(); err != nil {
		return nil, err
	}
	if err := g.declare(); err != nil {
		return nil, err
	}

	slots := make([][]milp.Constraint, len(families))
	run := func(ctx context.Context, i int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		cs, err := families[i].build(g)
		if err != nil {
			return err
		}
		slots[i] = cs
		return nil
	}
	if opts.Sequential {
		for i := range families {
			if err := run(ctx, i); err != nil {
				return nil, err
			}
		}
	} else {
		eg, ectx := errgroup.WithContext(ctx)
		for i := range families {
			i := i
			eg.Go(func() error { return run(ectx, i) })
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}
	}
	for _, cs := range slots {
		g.m.AddConstraints(cs...)
	}

	if err := g.objective(); err != nil {
		return nil, err
	}
	return g.res, nil
}

func (g *gen) warnf(format string, args ...any) {
	g.res.Warnings = append(g.res.Warnings, fmt.Sprintf(format, args...))
}

func (g *gen) deficitClass() error {
	class := g.opts.DeficitClass
	if class != "" && !contains(g.d.Globals.Classes, class) {
		return &model.MissingParameterError{Name: params.Penalty, Sub: class}
	}
	if g.opts.SurplusClass != "" && !contains(g.d.Globals.Classes, g.opts.SurplusClass) {
		return &model.MissingParameterError{Name: params.Penalty, Sub: g.opts.SurplusClass}
	}
	if class == "" && len(g.d.Globals.Classes) > 0 {
		class = g.d.Globals.Classes[0]
	}
	if class == "" {
		g.warnf("no deficit penalty class; demand rows are hard equalities")
	}
	g.res.DeficitClass = class
	return nil
}

func (g *gen) add(name string, kind milp.VarKind, lo, hi float64) (int, error) {
	return g.m.AddVar(name, kind, lo, hi)
}

func (g *gen) cont(name string) (int, error) { return g.add(name, milp.Continuous, 0, math.Inf(1)) }

// declare creates every variable in a fixed order.
func (g *gen) declare() error {
	steps := []func() error{
		g.declareNodal,
		g.declareDemand,
		g.declareArcs,
		g.declareStorage,
		g.declareBlend,
	}
	for _, s := range steps {
		if err := s(); err != nil {
			return err
		}
	}
	return nil
}

func (g *gen) declareNodal() error {
	cal := g.ix.Calendar
	for _, y := range cal.Years() {
		for _, h := range cal.Hours(y) {
			for _, n := range g.ix.Nodes() {
				for _, e := range g.ix.Carriers {
					k := NEYH{n, e, y, h}
					if s, ok := g.ix.Supply(n, e, y, h); ok {
						i, err := g.cont(k.label("QP"))
						if err != nil {
							return err
						}
						g.v.Production[k] = i
						if g.opts.SurplusClass != "" && math.Min(s.Lower, s.Upper) > 0 {
							if i, err = g.cont(k.label("ZS")); err != nil {
								return err
							}
							g.v.Surplus[k] = i
						}
					}
					if _, ok := g.ix.Regas(n, e, y); ok {
						i, err := g.cont(k.label("QR"))
						if err != nil {
							return err
						}
						g.v.Regas[k] = i
					}
					if _, ok := g.ix.Site(n, e); ok {
						i, err := g.cont(k.label("QI"))
						if err != nil {
							return err
						}
						g.v.Injection[k] = i
						if i, err = g.cont(k.label("QE")); err != nil {
							return err
						}
						g.v.Extraction[k] = i
					}
				}
			}
		}
	}
	return nil
}

// declareDemand creates delivered-demand variables for every node of a
// demand group with positive aggregate demand, plus one deficit slack per
// group.
func (g *gen) declareDemand() error {
	cal := g.ix.Calendar
	hy := g.ix.Hierarchy
	for _, e := range g.ix.Carriers {
		lvl := g.res.Levels[e]
		for _, y := range cal.Years() {
			for _, h := range cal.Hours(y) {
				for _, grp := range hy.Groups(lvl) {
					members := hy.Members(lvl, grp)
					total := 0.0
					for _, n := range members {
						total += g.ix.Demand(n, e, y, h)
					}
					if total <= 0 {
						continue
					}
					gk := Group{lvl, grp, e, y, h}
					g.res.Groups[gk] = total
					for _, n := range members {
						k := NEYH{n, e, y, h}
						i, err := g.cont(k.label("QS"))
						if err != nil {
							return err
						}
						g.v.Delivered[k] = i
					}
					if g.res.DeficitClass != "" {
						i, err := g.cont(gk.label("ZD"))
						if err != nil {
							return err
						}
						g.v.Deficit[gk] = i
					}
				}
			}
		}
	}
	return nil
}

func (g *gen) declareArcs() error {
	cal := g.ix.Calendar
	for _, a := range g.ix.Arcs {
		var rev *index.Arc
		if a.Reverse != "" {
			rev, _ = g.ix.Arc(a.Reverse)
		}
		for _, y := range cal.Years() {
			ay := AY{a.ID, y}
			if rev != nil {
				i, err := g.add(ay.label("BD"), milp.Continuous, 0, 1)
				if err != nil {
					return err
				}
				g.v.BidirState[ay] = i
				if !a.Bidirectional {
					if i, err = g.add(ay.label("BBD"), milp.Binary, 0, 1); err != nil {
						return err
					}
					g.v.BidirInvest[ay] = i
				}
			}
			for _, e := range a.Carriers() {
				k := AEY{a.ID, e, y}
				i, err := g.cont(k.label("KA"))
				if err != nil {
					return err
				}
				g.v.Capacity[k] = i
				if i, err = g.cont(k.label("XA")); err != nil {
					return err
				}
				g.v.Expansion[k] = i
				if rev != nil && carries(rev, e) {
					if i, err = g.cont(k.label("KOPP")); err != nil {
						return err
					}
					g.v.Opposite[k] = i
					if !a.Bidirectional {
						if i, err = g.cont(k.label("KBD")); err != nil {
							return err
						}
						g.v.PricedBidir[k] = i
					}
				}
				for _, h := range cal.Hours(y) {
					fk := AEYH{a.ID, e, y, h}
					if i, err = g.cont(fk.label("FA")); err != nil {
						return err
					}
					g.v.Flow[fk] = i
				}
				if cal.IsFirst(y) {
					continue
				}
				for _, f := range g.ix.ArcTargets(a.ID, e) {
					rk := Repurp{a.ID, e, f, y}
					if i, err = g.add(rk.label("BAR"), milp.Binary, 0, 1); err != nil {
						return err
					}
					g.v.ArcRepurpose[rk] = i
					if i, err = g.cont(rk.label("KRA")); err != nil {
						return err
					}
					g.v.ArcRepurpCap[rk] = i
				}
			}
		}
	}
	return nil
}

func (g *gen) declareStorage() error {
	cal := g.ix.Calendar
	for _, s := range g.ix.Sites {
		for _, y := range cal.Years() {
			k := NEY{s.Node, s.Carrier, y}
			i, err := g.cont(k.label("KW"))
			if err != nil {
				return err
			}
			g.v.Working[k] = i
			if cal.IsFirst(y) {
				continue
			}
			for _, f := range g.ix.SiteTargets(s.Node, s.Carrier) {
				rk := Repurp{s.Node, s.Carrier, f, y}
				if i, err = g.add(rk.label("BWR"), milp.Binary, 0, 1); err != nil {
					return err
				}
				g.v.StorRepurpose[rk] = i
				if i, err = g.cont(rk.label("KRW")); err != nil {
					return err
				}
				g.v.StorRepurpCap[rk] = i
			}
		}
	}
	return nil
}

// declareBlend creates a blending column wherever the source carrier has
// production capacity and the receiving carrier is active at the node.
func (g *gen) declareBlend() error {
	if len(g.d.Blend) == 0 {
		return nil
	}
	cal := g.ix.Calendar
	for _, y := range cal.Years() {
		for _, h := range cal.Hours(y) {
			for _, n := range g.ix.Nodes() {
				for _, from := range g.ix.Carriers {
					s, ok := g.ix.Supply(n, from, y, h)
					if !ok || s.Upper <= 0 {
						continue
					}
					for _, to := range g.ix.Carriers {
						if _, ok := g.d.Blend[derive.BlendKey{From: from, To: to}]; !ok || !g.ix.Active(n, to) {
							continue
						}
						k := Blend{n, from, to, y, h}
						i, err := g.cont(k.label("QB"))
						if err != nil {
							return err
						}
						g.v.Blend[k] = i
					}
				}
			}
		}
	}
	return nil
}

func carries(a *index.Arc, c model.Carrier) bool {
	for _, x := range a.Carriers() {
		if x == c {
			return true
		}
	}
	return false
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
