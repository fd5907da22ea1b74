package model

// Tables is the canonical set of raw inputs for one compile pass.
//
// Loaders produce it from CSV sheets or JSON; the compiler never mutates it.
type Tables struct {
	Name    string       `json:"name,omitempty"`
	Nodes   []NodeRow    `json:"nodes"`
	Arcs    []ArcRow     `json:"arcs,omitempty"`
	Storage []StorageRow `json:"storage,omitempty"`
	Regas   []RegasRow   `json:"regasification,omitempty"`
	Demand  []DemandRow  `json:"demand,omitempty"`
	Supply  []SupplyRow  `json:"supply,omitempty"`
	Time    []TimeSlice  `json:"time,omitempty"`
	Scalars []ScalarRow  `json:"scalars,omitempty"`
	// Carriers optionally restricts the carrier universe. Rows naming other
	// carriers are skipped with a warning.
	Carriers []Carrier `json:"carriers,omitempty"`
}

// Normalize canonicalizes the carrier labels of every entity row in place
// and returns t. Scalar rows are normalized by the scalar table itself.
func (t *Tables) Normalize() *Tables {
	for i := range t.Nodes {
		for j, c := range t.Nodes[i].Carriers {
			t.Nodes[i].Carriers[j] = NormalizeCarrier(string(c))
		}
	}
	for i := range t.Arcs {
		t.Arcs[i].Carrier = NormalizeCarrier(string(t.Arcs[i].Carrier))
	}
	for i := range t.Storage {
		t.Storage[i].Carrier = NormalizeCarrier(string(t.Storage[i].Carrier))
	}
	for i := range t.Regas {
		t.Regas[i].Carrier = NormalizeCarrier(string(t.Regas[i].Carrier))
	}
	for i := range t.Demand {
		t.Demand[i].Carrier = NormalizeCarrier(string(t.Demand[i].Carrier))
	}
	for i := range t.Supply {
		t.Supply[i].Carrier = NormalizeCarrier(string(t.Supply[i].Carrier))
	}
	for i := range t.Carriers {
		t.Carriers[i] = NormalizeCarrier(string(t.Carriers[i]))
	}
	return t
}
