package model

// DemandRow is consumption at one node for one carrier, year and hour-slice.
type DemandRow struct {
	Node    string  `json:"node"`
	Carrier Carrier `json:"carrier"`
	Year    string  `json:"year"`
	Hour    string  `json:"hour"`
	Value   float64 `json:"value"`
}

// SupplyRow is the production potential at one node for one carrier, year
// and hour-slice. Lower is an optional must-run bound; MarginalCost is the
// unit production cost for the (node, carrier, year).
type SupplyRow struct {
	Node         string  `json:"node"`
	Carrier      Carrier `json:"carrier"`
	Year         string  `json:"year"`
	Hour         string  `json:"hour"`
	Upper        float64 `json:"upper"`
	Lower        float64 `json:"lower,omitempty"`
	MarginalCost float64 `json:"mc,omitempty"`
}

// TimeSlice is a representative hour within a year. Scale is the number of
// real hours the slice stands for; 0 means 1.
type TimeSlice struct {
	Year  string  `json:"year"`
	Hour  string  `json:"hour"`
	Scale float64 `json:"scale,omitempty"`
}

// ScalarRow is one (name, sub-id, carrier) -> value entry of the scalar table.
// Empty Sub or Carrier act as wildcards during lookup.
type ScalarRow struct {
	Name    string  `json:"name" yaml:"name"`
	Sub     string  `json:"sub,omitempty" yaml:"sub"`
	Carrier Carrier `json:"carrier,omitempty" yaml:"carrier"`
	Value   float64 `json:"value" yaml:"value"`
}
