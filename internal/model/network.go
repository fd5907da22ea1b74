package model

import (
	"errors"
	"strings"
)

// NodeRow is one row of the node table.
// Region and MacroRegion share the id namespace of nodes; a region may carry
// the same id as one of its nodes.
type NodeRow struct {
	ID          string  `json:"id" yaml:"id"`
	Country     string  `json:"country" yaml:"country"`
	Region      string  `json:"region" yaml:"region"`
	MacroRegion string  `json:"macro_region,omitempty" yaml:"macro_region"`
	Lat         float64 `json:"lat,omitempty" yaml:"lat"`
	Lon         float64 `json:"lon,omitempty" yaml:"lon"`
	// Carriers lists the carriers active at the node. Empty means every carrier.
	Carriers []Carrier `json:"carriers,omitempty" yaml:"carriers"`
}

// Active reports whether carrier c is active at the node.
func (n NodeRow) Active(c Carrier) bool {
	if len(n.Carriers) == 0 {
		return true
	}
	for _, x := range n.Carriers {
		if x == c {
			return true
		}
	}
	return false
}

// ArcRow describes one directed pipeline for one carrier.
// Several rows may share an arc id (one per carrier); endpoints, lengths and
// the reverse reference must then agree.
//
// Units:
// - Capacity: energy per hour
// - Length, Offshore: km
// - Cal*: dimensionless multipliers, 0 means 1
type ArcRow struct {
	ID       string  `json:"id" yaml:"id"`
	Start    string  `json:"start" yaml:"start"`
	End      string  `json:"end" yaml:"end"`
	Carrier  Carrier `json:"carrier" yaml:"carrier"`
	Capacity float64 `json:"capacity" yaml:"capacity"`
	Length   float64 `json:"length" yaml:"length"`
	Offshore float64 `json:"offshore,omitempty" yaml:"offshore"`

	CalCapex  float64 `json:"cal_x,omitempty" yaml:"cal_x"`
	CalOpex   float64 `json:"cal_c,omitempty" yaml:"cal_c"`
	CalBidir  float64 `json:"cal_b,omitempty" yaml:"cal_b"`
	CalRepurp float64 `json:"cal_r,omitempty" yaml:"cal_r"`
	CalLoss   float64 `json:"cal_l,omitempty" yaml:"cal_l"`

	Bidirectional bool   `json:"bidirectional,omitempty" yaml:"bidirectional"`
	Reverse       string `json:"reverse,omitempty" yaml:"reverse"`

	// ExpMin is the planned minimum expansion per year; ExpMax the ceiling.
	// A nil ceiling leaves expansion bounded only by big-M.
	ExpMin float64  `json:"exp_min,omitempty" yaml:"exp_min"`
	ExpMax *float64 `json:"exp_max,omitempty" yaml:"exp_max"`
}

func (a ArcRow) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return errors.New("arc id is required")
	}
	if a.Start == "" || a.End == "" {
		return errors.New("arc start and end are required")
	}
	if a.Start == a.End {
		return errors.New("arc start and end must differ")
	}
	if a.Carrier == "" {
		return errors.New("arc carrier is required")
	}
	if a.Capacity < 0 {
		return errors.New("arc capacity must be >= 0")
	}
	if a.ExpMin < 0 {
		return errors.New("exp_min must be >= 0")
	}
	if a.ExpMax != nil && *a.ExpMax < a.ExpMin {
		return errors.New("exp_max must be >= exp_min")
	}
	return nil
}

// StorageRow is a storage facility keyed by node and carrier.
//
// Units:
// - Working: energy (annual working gas volume)
// - Injection, Extraction: energy per hour
type StorageRow struct {
	Node       string  `json:"node" yaml:"node"`
	Carrier    Carrier `json:"carrier" yaml:"carrier"`
	Working    float64 `json:"working" yaml:"working"`
	Injection  float64 `json:"injection" yaml:"injection"`
	Extraction float64 `json:"extraction" yaml:"extraction"`
	CalOpex    float64 `json:"cal_c,omitempty" yaml:"cal_c"`
	CalLoss    float64 `json:"cal_l,omitempty" yaml:"cal_l"`
	H2Ready    bool    `json:"h2_ready,omitempty" yaml:"h2_ready"`
}

func (s StorageRow) Validate() error {
	if s.Node == "" || s.Carrier == "" {
		return errors.New("storage node and carrier are required")
	}
	if s.Working < 0 || s.Injection < 0 || s.Extraction < 0 {
		return errors.New("storage working, injection and extraction must be >= 0")
	}
	return nil
}

// RegasRow is a regasification facility. An empty Year applies to every year.
type RegasRow struct {
	Node    string  `json:"node" yaml:"node"`
	Carrier Carrier `json:"carrier" yaml:"carrier"`
	Year    string  `json:"year,omitempty" yaml:"year"`
	Upper   float64 `json:"ub" yaml:"ub"`
	Lower   float64 `json:"lb,omitempty" yaml:"lb"`
	CalOpex float64 `json:"cal_c,omitempty" yaml:"cal_c"`
}

func (r RegasRow) Validate() error {
	if r.Node == "" || r.Carrier == "" {
		return errors.New("regasification node and carrier are required")
	}
	if r.Upper < 0 || r.Lower < 0 {
		return errors.New("regasification bounds must be >= 0")
	}
	return nil
}
