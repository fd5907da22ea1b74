package model

import "strings"

// Carrier identifies an energy carrier.
// Keep these values stable; they key scalar rows and appear in variable names.
type Carrier string

const (
	CarrierGas      Carrier = "G"
	CarrierHydrogen Carrier = "H"
	CarrierCoal     Carrier = "C"
)

var carrierAliases = map[string]Carrier{
	"G":           CarrierGas,
	"GAS":         CarrierGas,
	"NATURAL_GAS": CarrierGas,
	"NATURALGAS":  CarrierGas,
	"NG":          CarrierGas,
	"H":           CarrierHydrogen,
	"H2":          CarrierHydrogen,
	"HYDROGEN":    CarrierHydrogen,
	"C":           CarrierCoal,
	"COAL":        CarrierCoal,
}

// NormalizeCarrier maps free-form carrier labels onto their canonical code.
// Unknown labels are upper-cased and kept.
func NormalizeCarrier(label string) Carrier {
	s := strings.ToUpper(strings.TrimSpace(label))
	if c, ok := carrierAliases[s]; ok {
		return c
	}
	return Carrier(s)
}

func (c Carrier) IsGas() bool      { return c == CarrierGas }
func (c Carrier) IsHydrogen() bool { return c == CarrierHydrogen }

func (c Carrier) String() string { return string(c) }
