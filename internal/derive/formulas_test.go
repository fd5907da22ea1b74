package derive

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStorageCycleExample(t *testing.T) {
	// 8.08 injected at a 1% loss rate comes back as ~8.00.
	eff := StorageEfficiency(0.01, 1)
	assert.InDelta(t, 8.0, 8.08*eff, 0.001)
}

func TestWorkingCapacity(t *testing.T) {
	assert.Equal(t, 50.0, WorkingCapacity(100, 4380))
	assert.Equal(t, 0.0, WorkingCapacity(0, 8760))
}

func TestArcEfficiencyFloor(t *testing.T) {
	assert.InDelta(t, 0.9, ArcEfficiency(0.1, 1, 1000, 1, 100), 1e-15)
	assert.Equal(t, 1.0, ArcEfficiency(0, 1, 1000, 1, 100))
}

func TestDiscountFactor(t *testing.T) {
	assert.Equal(t, 1.0, DiscountFactor(0.05, 5, 0))
	assert.InDelta(t, 1/1.1025, DiscountFactor(0.05, 1, 2), 1e-12)
}
