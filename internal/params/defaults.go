package params

import "multicarrier-planner/internal/model"

// Scalar names read by the compiler.
const (
	BigM            = "bigm"
	YearStep        = "yearstep"
	DiscountRate    = "discrate"
	PipeLenStd      = "pipelenstd"
	OffshoreMult    = "offshmult"
	LossMax         = "lossmax"
	EndOfHorizon    = "eoh"
	StorageLossRate = "storlossrate"
	FlowVolume      = "vola2"
	StorageVolume   = "vols2"
	FlowFee         = "bfpipe"
	InvestFee       = "bipipe"
	LossFee         = "blpipe"
	BidirVar        = "bidirvar"
	BidirFix        = "bidirfix"
	RepurpArc       = "repurparc"
	RepurpArcFix    = "repurparcfix"
	RepurpStor      = "repurpstor"
	RepurpStorFix   = "repurpstorfix"
	RegasCost       = "regascost"
	Penalty         = "penalty"
	// Blending rows are keyed (name, source carrier, receiving carrier).
	BlendLimit = "blendlim"
	BlendCost  = "blendcost"
)

// defaults are the optional scalars. Every other name is required.
var defaults = map[string]func(model.Carrier) float64{
	FlowVolume:      constant(1),
	StorageVolume:   constant(1),
	OffshoreMult:    constant(1),
	LossMax:         constant(0),
	DiscountRate:    constant(0.02),
	EndOfHorizon:    constant(3),
	StorageLossRate: constant(0.01),
	RepurpArcFix:    constant(0),
	RepurpStorFix:   constant(0),
	RegasCost: func(c model.Carrier) float64 {
		if c.IsGas() {
			return 1
		}
		return 9999
	},
}

func constant(v float64) func(model.Carrier) float64 {
	return func(model.Carrier) float64 { return v }
}

// Optional reports whether name has a documented default.
func Optional(name string) bool {
	_, ok := defaults[normalizeKey(name, "", "").Name]
	return ok
}
