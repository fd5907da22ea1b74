// Package derive computes calibrated cost and efficiency coefficients from
// raw entity attributes and global scalars.
//
// The formulas are pure functions of their arguments; Compute applies them
// to every entity of an index.
package derive

import "math"

// HoursPerYear converts annual working volumes into represented-hour shares.
const HoursPerYear = 8760.0

// EffectiveLength weights the offshore share of an arc. Offshore length is
// clamped to the total length.
func EffectiveLength(length, offshore, offshoreMult float64) float64 {
	return length + offshoreMult*math.Min(offshore, length)
}

// FlowCost is the variable transport cost per unit of flow.
func FlowCost(fee, volume, leff, cal, lenStd float64) float64 {
	return fee * volume * leff * cal / lenStd
}

// PerYearLengthCost covers the length-proportional annualized costs:
// expansion, bidirectional capacity and repurposing.
func PerYearLengthCost(fee, leff, cal, lenStd, yearStep float64) float64 {
	return fee * leff * cal / (lenStd * yearStep)
}

// ArcEfficiency is the share of inbound flow that arrives, never below
// 1-lossMax.
func ArcEfficiency(lossMax, lossFee, length, cal, lenStd float64) float64 {
	return math.Max(1-lossMax, 1-lossFee*length*cal/lenStd)
}

// StorageEfficiency is the cycle efficiency of a storage facility.
func StorageEfficiency(lossRate, cal float64) float64 {
	return 1 - lossRate*cal
}

// WorkingCapacity scales an annual working volume to the represented hours.
func WorkingCapacity(working, totalScale float64) float64 {
	return working * totalScale / HoursPerYear
}

// DiscountFactor is 1/(1+rate)^(yearStep*ord) for the zero-based year ord.
func DiscountFactor(rate, yearStep float64, ord int) float64 {
	return 1 / math.Pow(1+rate, yearStep*float64(ord))
}
