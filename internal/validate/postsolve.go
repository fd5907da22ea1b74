package validate

import (
	"math"

	"multicarrier-planner/internal/derive"
	"multicarrier-planner/internal/generate"
	"multicarrier-planner/internal/index"
	"multicarrier-planner/internal/milp"
	"multicarrier-planner/internal/model"
)

// Tolerance bounds the numerical slack accepted by the post-solve checks.
type Tolerance struct {
	// MassBalance is relative to the larger of inflow, outflow and 1.
	MassBalance float64 `yaml:"mass_balance" json:"mass_balance"`
	Binary      float64 `yaml:"binary" json:"binary"`
	// Feasibility is relative to the row magnitude.
	Feasibility float64 `yaml:"feasibility" json:"feasibility"`
}

func DefaultTolerance() Tolerance {
	return Tolerance{MassBalance: 1e-6, Binary: 1e-6, Feasibility: 1e-6}
}

func (t Tolerance) withDefaults() Tolerance {
	d := DefaultTolerance()
	if t.MassBalance <= 0 {
		t.MassBalance = d.MassBalance
	}
	if t.Binary <= 0 {
		t.Binary = d.Binary
	}
	if t.Feasibility <= 0 {
		t.Feasibility = d.Feasibility
	}
	return t
}

type post struct {
	ix  *index.Index
	d   *derive.Derived
	res *generate.Result
	x   []float64
	tol Tolerance
	r   *Report
}

func (p *post) val(i int, ok bool) float64 {
	if !ok {
		return 0
	}
	return p.x[i]
}

// PostSolve checks a recorded solution. values holds one entry per column of
// res.Model.
func PostSolve(ix *index.Index, d *derive.Derived, res *generate.Result, values []float64, tol Tolerance) *Report {
	p := &post{ix: ix, d: d, res: res, x: values, tol: tol.withDefaults(), r: &Report{Phase: PhasePost}}
	p.massBalance()
	p.binaries()
	p.exclusivity()
	p.bidirectional()
	p.rows()
	return p.r
}

// massBalance recomputes the nodal residual from the typed columns rather
// than from the emitted rows.
func (p *post) massBalance() {
	k := p.r.begin("mass_balance")
	v := p.res.Vars
	cal := p.ix.Calendar
	for _, y := range cal.Years() {
		for _, h := range cal.Hours(y) {
			for _, n := range p.ix.Nodes() {
				for _, e := range p.ix.Carriers {
					c := generate.NEYH{Node: n, Carrier: e, Year: y, Hour: h}
					in := p.get(v.Production, c) + p.get(v.Extraction, c) + p.get(v.Regas, c)
					out := p.get(v.Delivered, c) + p.get(v.Injection, c)
					for _, f := range p.ix.Carriers {
						i, ok := v.Blend[generate.Blend{Node: n, From: f, To: e, Year: y, Hour: h}]
						in += p.val(i, ok)
					}
					for _, id := range p.ix.In(n) {
						i, ok := v.Flow[generate.AEYH{Arc: id, Carrier: e, Year: y, Hour: h}]
						if ok {
							in += p.d.Arc[index.ArcCarrier{Arc: id, Carrier: e}].Efficiency * p.x[i]
						}
					}
					for _, id := range p.ix.Out(n) {
						i, ok := v.Flow[generate.AEYH{Arc: id, Carrier: e, Year: y, Hour: h}]
						out += p.val(i, ok)
					}
					res := math.Abs(in - out)
					if res > p.tol.MassBalance*math.Max(1, math.Max(in, out)) {
						k.fail(c.String(), res, "inflow %g, outflow %g", in, out)
					} else {
						k.ok()
					}
				}
			}
		}
	}
	k.done()
}

func (p *post) get(m map[generate.NEYH]int, c generate.NEYH) float64 {
	i, ok := m[c]
	return p.val(i, ok)
}

func (p *post) binaries() {
	k := p.r.begin("binary_integrality")
	for i, col := range p.res.Model.Vars() {
		if col.Kind != milp.Binary {
			continue
		}
		x := p.x[i]
		if d := math.Min(math.Abs(x), math.Abs(x-1)); d > p.tol.Binary {
			k.fail(col.Name, d, "value %g", x)
		} else {
			k.ok()
		}
	}
	k.done()
}

// exclusivity checks that every repurposing tuple picks exactly one target.
func (p *post) exclusivity() {
	v := p.res.Vars
	cal := p.ix.Calendar

	k := p.r.begin("repurp_exclusive")
	for _, a := range p.ix.Arcs {
		for _, e := range a.Carriers() {
			for _, y := range cal.Years()[1:] {
				p.exclusive(k, v.ArcRepurpose, a.ID, e, p.ix.ArcTargets(a.ID, e), y)
			}
		}
	}
	k.done()

	k = p.r.begin("stor_exclusive")
	for _, s := range p.ix.Sites {
		for _, y := range cal.Years()[1:] {
			p.exclusive(k, v.StorRepurpose, s.Node, s.Carrier, p.ix.SiteTargets(s.Node, s.Carrier), y)
		}
	}
	k.done()
}

func (p *post) exclusive(k *checker, m map[generate.Repurp]int, id string, from model.Carrier, targets []model.Carrier, y string) {
	sum := 0.0
	for _, f := range targets {
		i, ok := m[generate.Repurp{ID: id, From: from, To: f, Year: y}]
		sum += p.val(i, ok)
	}
	ent := generate.NEY{Node: id, Carrier: from, Year: y}
	if d := math.Abs(sum - 1); d > p.tol.Binary*float64(len(targets)) {
		k.fail(ent.String(), d, "selected %g targets", sum)
	} else {
		k.ok()
	}
}

// bidirectional checks the ratchet and the opposite-capacity bounds.
func (p *post) bidirectional() {
	v := p.res.Vars
	cal := p.ix.Calendar
	mono := p.r.begin("bd_monotone")
	zero := p.r.begin("opp_zero_without_bd")
	rev := p.r.begin("opp_within_reverse")
	for _, a := range p.ix.Arcs {
		for _, y := range cal.Years() {
			bi, ok := v.BidirState[generate.AY{Arc: a.ID, Year: y}]
			if !ok {
				continue
			}
			bd := p.x[bi]
			if prev, ok := cal.Prev(y); ok {
				pb := p.x[v.BidirState[generate.AY{Arc: a.ID, Year: prev}]]
				if pb-bd > p.tol.Binary {
					mono.fail(a.ID+","+y, pb-bd, "state dropped from %g to %g", pb, bd)
				} else {
					mono.ok()
				}
			}
			for _, e := range a.Carriers() {
				key := generate.AEY{Arc: a.ID, Carrier: e, Year: y}
				oi, ok := v.Opposite[key]
				if !ok {
					continue
				}
				kopp := p.x[oi]
				if bd <= p.tol.Binary && kopp > p.tol.Feasibility*math.Max(1, kopp) {
					zero.fail(key.String(), kopp, "opposite capacity %g while the state is 0", kopp)
				} else {
					zero.ok()
				}
				ri, ok := v.Capacity[generate.AEY{Arc: a.Reverse, Carrier: e, Year: y}]
				rc := p.val(ri, ok)
				if d := kopp - rc; d > p.tol.Feasibility*math.Max(1, rc) {
					rev.fail(key.String(), d, "opposite capacity %g above reverse capacity %g", kopp, rc)
				} else {
					rev.ok()
				}
			}
		}
	}
	mono.done()
	zero.done()
	rev.done()
}

// rows scans every emitted row and bound.
func (p *post) rows() {
	m := p.res.Model
	p.r.MaxViolation, p.r.WorstRow = m.MaxViolation(p.x)
	k := p.r.begin("constraint_violation")
	for _, c := range m.Constraints {
		viol := c.Violation(p.x)
		scale := math.Max(1, math.Max(c.Expr.Magnitude(p.x), math.Abs(c.RHS)))
		if viol > p.tol.Feasibility*scale {
			k.fail(c.Name, viol, "violated by %g", viol)
		} else {
			k.ok()
		}
	}
	k.done()
}
