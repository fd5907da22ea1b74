package generate

import (
	"strings"

	"multicarrier-planner/internal/hierarchy"
	"multicarrier-planner/internal/model"
)

// NEYH indexes per node, carrier, year and hour.
type NEYH struct {
	Node    string
	Carrier model.Carrier
	Year    string
	Hour    string
}

// AEYH indexes per arc, carrier, year and hour.
type AEYH struct {
	Arc     string
	Carrier model.Carrier
	Year    string
	Hour    string
}

// AEY indexes per arc, carrier and year.
type AEY struct {
	Arc     string
	Carrier model.Carrier
	Year    string
}

// AY indexes per arc and year.
type AY struct {
	Arc  string
	Year string
}

// NEY indexes per node, carrier and year.
type NEY struct {
	Node    string
	Carrier model.Carrier
	Year    string
}

// Repurp indexes a repurposing decision of an arc or a storage site (ID is
// the arc id or the node id).
type Repurp struct {
	ID   string
	From model.Carrier
	To   model.Carrier
	Year string
}

// Blend indexes carrier From blended into carrier To at a node.
type Blend struct {
	Node string
	From model.Carrier
	To   model.Carrier
	Year string
	Hour string
}

// Group indexes an aggregated demand row.
type Group struct {
	Level   hierarchy.Level
	ID      string
	Carrier model.Carrier
	Year    string
	Hour    string
}

// Vars maps typed indices to model columns.
type Vars struct {
	Production map[NEYH]int // QP
	Delivered  map[NEYH]int // QS
	Injection  map[NEYH]int // QI
	Extraction map[NEYH]int // QE
	Regas      map[NEYH]int // QR
	Surplus    map[NEYH]int // ZS
	Deficit    map[Group]int
	Blend      map[Blend]int // QB

	Flow        map[AEYH]int // FA
	Capacity    map[AEY]int  // KA
	Expansion   map[AEY]int  // XA
	Opposite    map[AEY]int  // KOPP
	PricedBidir map[AEY]int  // KBD
	BidirState  map[AY]int   // BD
	BidirInvest map[AY]int   // BBD

	ArcRepurpose map[Repurp]int // BAR
	ArcRepurpCap map[Repurp]int // KRA

	Working       map[NEY]int    // KW
	StorRepurpose map[Repurp]int // BWR
	StorRepurpCap map[Repurp]int // KRW
}

func newVars() *Vars {
	return &Vars{
		Production:    map[NEYH]int{},
		Delivered:     map[NEYH]int{},
		Injection:     map[NEYH]int{},
		Extraction:    map[NEYH]int{},
		Regas:         map[NEYH]int{},
		Surplus:       map[NEYH]int{},
		Deficit:       map[Group]int{},
		Blend:         map[Blend]int{},
		Flow:          map[AEYH]int{},
		Capacity:      map[AEY]int{},
		Expansion:     map[AEY]int{},
		Opposite:      map[AEY]int{},
		PricedBidir:   map[AEY]int{},
		BidirState:    map[AY]int{},
		BidirInvest:   map[AY]int{},
		ArcRepurpose:  map[Repurp]int{},
		ArcRepurpCap:  map[Repurp]int{},
		Working:       map[NEY]int{},
		StorRepurpose: map[Repurp]int{},
		StorRepurpCap: map[Repurp]int{},
	}
}

func label(prefix string, parts ...string) string {
	return prefix + "[" + strings.Join(parts, ",") + "]"
}

func (k NEYH) label(prefix string) string {
	return label(prefix, k.Node, string(k.Carrier), k.Year, k.Hour)
}

func (k AEYH) label(prefix string) string {
	return label(prefix, k.Arc, string(k.Carrier), k.Year, k.Hour)
}

func (k AEY) label(prefix string) string { return label(prefix, k.Arc, string(k.Carrier), k.Year) }
func (k AY) label(prefix string) string  { return label(prefix, k.Arc, k.Year) }
func (k NEY) label(prefix string) string { return label(prefix, k.Node, string(k.Carrier), k.Year) }

func (k Repurp) label(prefix string) string {
	return label(prefix, k.ID, string(k.From), string(k.To), k.Year)
}

func (k Blend) label(prefix string) string {
	return label(prefix, k.Node, string(k.From), string(k.To), k.Year, k.Hour)
}

func (k Group) label(prefix string) string {
	return label(prefix, string(k.Level), k.ID, string(k.Carrier), k.Year, k.Hour)
}
