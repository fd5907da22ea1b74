package params

import (
	"math"

	"multicarrier-planner/internal/model"
)

// Globals are the scalar settings shared by every formula of one compile
// pass. Build once with NewGlobals and pass by value.
type Globals struct {
	BigM         float64
	YearStep     float64
	DiscountRate float64
	// PipeLenStd is zero when the table has no entry; consumers that need it
	// report the missing parameter themselves.
	PipeLenStd float64
	// OffshoreMult is the effective extra weight of offshore length,
	// max(0, offshmult-1).
	OffshoreMult    float64
	LossMax         float64
	EndOfHorizon    float64
	StorageLossRate float64
	// Classes are the sorted penalty classes the table prices.
	Classes []string
}

func NewGlobals(t *Table) (Globals, error) {
	var g Globals
	var err error

	if g.BigM, err = positive(t, BigM); err != nil {
		return Globals{}, err
	}
	if g.YearStep, err = positive(t, YearStep); err != nil {
		return Globals{}, err
	}
	if t.Has(PipeLenStd, "", "") {
		if g.PipeLenStd, err = positive(t, PipeLenStd); err != nil {
			return Globals{}, err
		}
	}

	if g.DiscountRate, err = t.Value(DiscountRate, "", ""); err != nil {
		return Globals{}, err
	}
	if g.DiscountRate <= -1 {
		return Globals{}, domain(DiscountRate, g.DiscountRate, "must be > -1")
	}
	off, err := t.Value(OffshoreMult, "", "")
	if err != nil {
		return Globals{}, err
	}
	g.OffshoreMult = math.Max(0, off-1)

	if g.LossMax, err = t.Value(LossMax, "", ""); err != nil {
		return Globals{}, err
	}
	if g.LossMax < 0 || g.LossMax > 1 {
		return Globals{}, domain(LossMax, g.LossMax, "must be within [0,1]")
	}
	if g.EndOfHorizon, err = t.Value(EndOfHorizon, "", ""); err != nil {
		return Globals{}, err
	}
	if g.EndOfHorizon < 0 {
		return Globals{}, domain(EndOfHorizon, g.EndOfHorizon, "must be >= 0")
	}
	if g.StorageLossRate, err = t.Value(StorageLossRate, "", ""); err != nil {
		return Globals{}, err
	}
	g.Classes = t.Classes()
	return g, nil
}

func positive(t *Table, name string) (float64, error) {
	v, err := t.Value(name, "", "")
	if err != nil {
		return 0, err
	}
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, domain(name, v, "must be > 0")
	}
	return v, nil
}

func domain(name string, v float64, reason string) error {
	return &model.FormulaDomainError{Entity: "globals", Quantity: name, Value: v, Reason: reason}
}

// RequirePipeLenStd returns the normalization or a MissingParameterError
// naming entity.
func (g Globals) RequirePipeLenStd(entity string) (float64, error) {
	if g.PipeLenStd > 0 {
		return g.PipeLenStd, nil
	}
	return 0, &model.MissingParameterError{Name: PipeLenStd, Entity: entity}
}
