package derive

import (
	"errors"
	"fmt"
	"math"

	"multicarrier-planner/internal/index"
	"multicarrier-planner/internal/model"
	"multicarrier-planner/internal/params"
)

// ArcCoeffs are the coefficients of one (arc, carrier).
type ArcCoeffs struct {
	FlowCost      float64 // per unit of flow and represented hour
	ExpansionCost float64 // per unit of added capacity and year
	BidirVarCost  float64 // per unit of priced opposite-direction capacity; 0 without a bidirectional option
	Efficiency    float64
	Volume        float64
}

// RepurpKey identifies a repurposing option of an arc or storage site.
type RepurpKey struct {
	ID   string
	From model.Carrier
	To   model.Carrier
}

// RepurpCost holds the variable (per unit of capacity) and fixed (per
// decision) repurposing costs. Both are zero for e == f.
type RepurpCost struct {
	Var float64
	Fix float64
}

// StorageCoeffs are the coefficients of one storage site.
type StorageCoeffs struct {
	ExtractionCost float64
	Efficiency     float64
	Volume         float64
	Injection      float64
	Extraction     float64
	// Working is the initial working capacity, scaled to the represented
	// hours of the first year.
	Working float64
}

type RegasKey struct {
	Node    string
	Carrier model.Carrier
	Year    string
}

// BlendKey identifies blending carrier From into the stream of carrier To.
type BlendKey struct {
	From model.Carrier
	To   model.Carrier
}

// BlendCoeffs bound and price one blending option.
type BlendCoeffs struct {
	Limit float64 // max share of the receiving carrier's outgoing stream
	Cost  float64 // per unit blended and represented hour
}

type PenaltyKey struct {
	Class   string
	Carrier model.Carrier
}

// Derived is the immutable set of calibrated coefficients for one compile
// pass.
type Derived struct {
	Globals    params.Globals
	Arc        map[index.ArcCarrier]ArcCoeffs
	BidirFix   map[string]float64
	ArcRepurp  map[RepurpKey]RepurpCost
	Storage    map[index.NodeCarrier]StorageCoeffs
	StorRepurp map[RepurpKey]RepurpCost
	RegasCost  map[RegasKey]float64
	Discount   map[string]float64
	EOH        map[string]float64
	Blend      map[BlendKey]BlendCoeffs
	penalty    map[PenaltyKey]float64
}

// Penalty returns the unit penalty of (class, carrier).
func (d *Derived) Penalty(class string, c model.Carrier) (float64, error) {
	if v, ok := d.penalty[PenaltyKey{class, c}]; ok {
		return v, nil
	}
	return 0, &model.MissingParameterError{Name: params.Penalty, Sub: class, Carrier: c}
}

// Compute derives every coefficient the generator needs.
func Compute(ix *index.Index, st *params.Table, g params.Globals) (*Derived, error) {
	d := &Derived{
		Globals:    g,
		Arc:        map[index.ArcCarrier]ArcCoeffs{},
		BidirFix:   map[string]float64{},
		ArcRepurp:  map[RepurpKey]RepurpCost{},
		Storage:    map[index.NodeCarrier]StorageCoeffs{},
		StorRepurp: map[RepurpKey]RepurpCost{},
		RegasCost:  map[RegasKey]float64{},
		Discount:   map[string]float64{},
		EOH:        map[string]float64{},
		Blend:      map[BlendKey]BlendCoeffs{},
		penalty:    map[PenaltyKey]float64{},
	}
	for _, a := range ix.Arcs {
		if err := d.arc(ix, st, a); err != nil {
			return nil, err
		}
	}
	for _, s := range ix.Sites {
		if err := d.storage(ix, st, s); err != nil {
			return nil, err
		}
	}
	for _, r := range ix.RegasEntries() {
		entity := fmt.Sprintf("regasification %s/%s/%s", r.Node, r.Carrier, r.Year)
		base, err := need(st, params.RegasCost, "", r.Carrier, entity)
		if err != nil {
			return nil, err
		}
		cal, err := calibration(entity, "cal_c", r.Cal)
		if err != nil {
			return nil, err
		}
		d.RegasCost[RegasKey{r.Node, r.Carrier, r.Year}] = base * cal
	}
	cal := ix.Calendar
	for _, y := range cal.Years() {
		d.Discount[y] = DiscountFactor(g.DiscountRate, g.YearStep, cal.Ord(y))
		d.EOH[y] = 1
		if cal.IsLast(y) {
			d.EOH[y] = g.EndOfHorizon
		}
	}
	if err := d.blend(ix, st); err != nil {
		return nil, err
	}
	for _, class := range g.Classes {
		for _, c := range ix.Carriers {
			if v, err := st.Penalty(class, c); err == nil {
				d.penalty[PenaltyKey{class, c}] = v
			}
		}
	}
	return d, nil
}

func (d *Derived) arc(ix *index.Index, st *params.Table, a *index.Arc) error {
	if len(a.Carriers()) == 0 {
		return nil
	}
	entity := "arc " + a.ID
	if a.Length < 0 || math.IsNaN(a.Length) {
		return &model.FormulaDomainError{Entity: entity, Quantity: "length", Value: a.Length, Reason: "must be >= 0"}
	}
	if a.Offshore < 0 || math.IsNaN(a.Offshore) {
		return &model.FormulaDomainError{Entity: entity, Quantity: "offshore", Value: a.Offshore, Reason: "must be >= 0"}
	}
	std, err := d.Globals.RequirePipeLenStd(entity)
	if err != nil {
		return err
	}
	g := d.Globals
	leff := EffectiveLength(a.Length, a.Offshore, g.OffshoreMult)
	priced := a.Reverse != "" && !a.Bidirectional

	if priced {
		fix, err := need(st, params.BidirFix, "", "", entity)
		if err != nil {
			return err
		}
		d.BidirFix[a.ID] = fix
	}

	for _, e := range a.Carriers() {
		ent := fmt.Sprintf("arc %s/%s", a.ID, e)
		row := a.Calibration(e)
		cals, err := arcCalibrations(ent, row)
		if err != nil {
			return err
		}
		vol, err := need(st, params.FlowVolume, "", e, ent)
		if err != nil {
			return err
		}
		flowFee, err := need(st, params.FlowFee, "", e, ent)
		if err != nil {
			return err
		}
		investFee, err := need(st, params.InvestFee, "", e, ent)
		if err != nil {
			return err
		}
		lossFee, err := need(st, params.LossFee, "", e, ent)
		if err != nil {
			return err
		}
		c := ArcCoeffs{
			FlowCost:      FlowCost(flowFee, vol, leff, cals.opex, std),
			ExpansionCost: PerYearLengthCost(investFee, leff, cals.capex, std, g.YearStep),
			Efficiency:    ArcEfficiency(g.LossMax, lossFee, a.Length, cals.loss, std),
			Volume:        vol,
		}
		if c.Efficiency < 0 || c.Efficiency > 1 || math.IsNaN(c.Efficiency) {
			return &model.FormulaDomainError{Entity: ent, Quantity: "efficiency", Value: c.Efficiency, Reason: "must be within [0,1]"}
		}
		if priced {
			fee, err := need(st, params.BidirVar, "", e, ent)
			if err != nil {
				return err
			}
			c.BidirVarCost = PerYearLengthCost(fee, leff, cals.bidir, std, g.YearStep)
		}
		d.Arc[index.ArcCarrier{Arc: a.ID, Carrier: e}] = c

		for _, f := range ix.ArcTargets(a.ID, e) {
			k := RepurpKey{ID: a.ID, From: e, To: f}
			if f == e {
				d.ArcRepurp[k] = RepurpCost{}
				continue
			}
			fee, err := need(st, params.RepurpArc, string(e), f, ent)
			if err != nil {
				return err
			}
			fix, err := need(st, params.RepurpArcFix, "", f, ent)
			if err != nil {
				return err
			}
			d.ArcRepurp[k] = RepurpCost{
				Var: PerYearLengthCost(fee, leff, cals.repurp, std, g.YearStep),
				Fix: fix * cals.repurp,
			}
		}
	}
	return nil
}

func (d *Derived) storage(ix *index.Index, st *params.Table, s *index.StorageSite) error {
	ent := fmt.Sprintf("storage %s/%s", s.Node, s.Carrier)
	opex, err := calibration(ent, "cal_c", s.Row.CalOpex)
	if err != nil {
		return err
	}
	loss, err := calibration(ent, "cal_l", s.Row.CalLoss)
	if err != nil {
		return err
	}
	vol, err := need(st, params.StorageVolume, "", s.Carrier, ent)
	if err != nil {
		return err
	}
	eff := StorageEfficiency(d.Globals.StorageLossRate, loss)
	if eff < 0 || eff > 1 || math.IsNaN(eff) {
		return &model.FormulaDomainError{Entity: ent, Quantity: "efficiency", Value: eff, Reason: "must be within [0,1]"}
	}
	c := StorageCoeffs{
		ExtractionCost: vol * opex,
		Efficiency:     eff,
		Volume:         vol,
		Injection:      s.Row.Injection,
		Extraction:     s.Row.Extraction,
	}
	if s.Declared {
		c.Working = WorkingCapacity(s.Row.Working, ix.Calendar.TotalScale(ix.Calendar.First()))
	}
	d.Storage[s.Key()] = c

	for _, f := range ix.SiteTargets(s.Node, s.Carrier) {
		k := RepurpKey{ID: s.Node, From: s.Carrier, To: f}
		if f == s.Carrier {
			d.StorRepurp[k] = RepurpCost{}
			continue
		}
		fee, err := need(st, params.RepurpStor, string(s.Carrier), f, ent)
		if err != nil {
			return err
		}
		fix, err := need(st, params.RepurpStorFix, "", f, ent)
		if err != nil {
			return err
		}
		d.StorRepurp[k] = RepurpCost{Var: fee / d.Globals.YearStep, Fix: fix}
	}
	return nil
}

type arcCals struct {
	capex, opex, bidir, repurp, loss float64
}

func arcCalibrations(entity string, r model.ArcRow) (arcCals, error) {
	var c arcCals
	var err error
	for _, f := range []struct {
		name string
		raw  float64
		dst  *float64
	}{
		{"cal_x", r.CalCapex, &c.capex},
		{"cal_c", r.CalOpex, &c.opex},
		{"cal_b", r.CalBidir, &c.bidir},
		{"cal_r", r.CalRepurp, &c.repurp},
		{"cal_l", r.CalLoss, &c.loss},
	} {
		if *f.dst, err = calibration(entity, f.name, f.raw); err != nil {
			return arcCals{}, err
		}
	}
	return c, nil
}

func calibration(entity, name string, v float64) (float64, error) {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &model.FormulaDomainError{Entity: entity, Quantity: name, Value: v, Reason: "calibration factor must be >= 0"}
	}
	return params.Calibration(v), nil
}

// blend reads the hydrogen-into-gas blending options. A pair blends only
// when the table has a positive blendlim row for it.
func (d *Derived) blend(ix *index.Index, st *params.Table) error {
	for _, from := range ix.Carriers {
		if !from.IsHydrogen() {
			continue
		}
		for _, to := range ix.Carriers {
			if !to.IsGas() || !st.Has(params.BlendLimit, string(from), to) {
				continue
			}
			ent := fmt.Sprintf("blend %s/%s", from, to)
			lim, err := need(st, params.BlendLimit, string(from), to, ent)
			if err != nil {
				return err
			}
			if !(lim >= 0 && lim <= 1) {
				return &model.FormulaDomainError{Entity: ent, Quantity: params.BlendLimit, Value: lim, Reason: "must be within [0,1]"}
			}
			if lim == 0 {
				continue
			}
			cost := 0.0
			if st.Has(params.BlendCost, string(from), to) {
				if cost, err = need(st, params.BlendCost, string(from), to, ent); err != nil {
					return err
				}
			}
			if cost < 0 || math.IsNaN(cost) || math.IsInf(cost, 0) {
				return &model.FormulaDomainError{Entity: ent, Quantity: params.BlendCost, Value: cost, Reason: "must be >= 0"}
			}
			d.Blend[BlendKey{from, to}] = BlendCoeffs{Limit: lim, Cost: cost}
		}
	}
	return nil
}

// need looks a scalar up and stamps the requesting entity onto a
// MissingParameterError.
func need(st *params.Table, name, sub string, c model.Carrier, entity string) (float64, error) {
	v, err := st.Value(name, sub, c)
	var mp *model.MissingParameterError
	if errors.As(err, &mp) {
		mp.Entity = entity
	}
	return v, err
}
