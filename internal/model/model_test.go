package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCarrier(t *testing.T) {
	cases := map[string]Carrier{
		"gas":         CarrierGas,
		" Natural_Gas": CarrierGas,
		"NG":          CarrierGas,
		"h2":          CarrierHydrogen,
		"Hydrogen":    CarrierHydrogen,
		"coal":        CarrierCoal,
		"el":          Carrier("EL"),
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeCarrier(in), in)
	}
	assert.True(t, CarrierGas.IsGas())
	assert.True(t, CarrierHydrogen.IsHydrogen())
	assert.False(t, Carrier("EL").IsGas())
}

func TestNodeActive(t *testing.T) {
	n := NodeRow{ID: "N1"}
	assert.True(t, n.Active(CarrierHydrogen))
	n.Carriers = []Carrier{CarrierGas}
	assert.True(t, n.Active(CarrierGas))
	assert.False(t, n.Active(CarrierHydrogen))
}

func TestArcRowValidate(t *testing.T) {
	ceiling := 1.0
	ok := ArcRow{ID: "A1", Start: "N1", End: "N2", Carrier: CarrierGas, Capacity: 5, ExpMax: &ceiling}
	require.NoError(t, ok.Validate())

	bad := ok
	bad.End = "N1"
	assert.Error(t, bad.Validate())

	bad = ok
	bad.Capacity = -1
	assert.Error(t, bad.Validate())

	bad = ok
	bad.ExpMin = 2
	assert.Error(t, bad.Validate())
}

func TestErrorsUnwrap(t *testing.T) {
	inner := &MissingParameterError{Name: "bfpipe", Carrier: CarrierGas, Entity: "arc A1"}
	err := fmt.Errorf("derive: %w", &ConstraintGenerationError{Family: "arc_cap", Index: "A1,G", Err: inner})

	var mp *MissingParameterError
	require.True(t, errors.As(err, &mp))
	assert.Equal(t, "bfpipe", mp.Name)

	var cg *ConstraintGenerationError
	require.True(t, errors.As(err, &cg))
	assert.Contains(t, cg.Error(), "arc_cap")
	assert.Contains(t, cg.Error(), "A1,G")
}

func TestTablesNormalize(t *testing.T) {
	tb := Tables{
		Nodes:  []NodeRow{{ID: "N1", Carriers: []Carrier{"gas"}}},
		Arcs:   []ArcRow{{ID: "A", Carrier: "h2"}},
		Demand: []DemandRow{{Carrier: "NG"}},
	}
	tb.Normalize()
	assert.Equal(t, CarrierGas, tb.Nodes[0].Carriers[0])
	assert.Equal(t, CarrierHydrogen, tb.Arcs[0].Carrier)
	assert.Equal(t, CarrierGas, tb.Demand[0].Carrier)
}
