package efficiency

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnergyPerMile(t *testing.T) {
	v := EnergyPerMile(3.0, 10.0)
	require.NotNil(t, v)
	assert.InDelta(t, 0.3, *v, 1e-9)
}

func TestEnergyPerMile_NullWhenNoElectricDistance(t *testing.T) {
	assert.Nil(t, EnergyPerMile(3.0, 0))
	assert.Nil(t, EnergyPerMile(0, 0))
	assert.Nil(t, EnergyPerMile(3.0, -1))
}

func TestEnergyPerMile_NeverNaNOrInf(t *testing.T) {
	for _, args := range [][2]float64{{0, 0}, {1, 0}, {0, 1}, {-1, 0}} {
		v := EnergyPerMile(args[0], args[1])
		if v != nil {
			assert.False(t, math.IsNaN(*v))
			assert.False(t, math.IsInf(*v, 0))
		}
	}
}

func TestFuelEconomy(t *testing.T) {
	v := FuelEconomy(120, 3, 999)
	require.NotNil(t, v)
	assert.InDelta(t, 40, *v, 1e-9)
}

func TestFuelEconomy_NullWhenNoFuel(t *testing.T) {
	assert.Nil(t, FuelEconomy(120, 0, 999))
	assert.Nil(t, FuelEconomy(0, 0, 999))
}

func TestFuelEconomy_CeilingNullsAnomaly(t *testing.T) {
	// A trace amount of fuel against a huge distance is a sensor anomaly, not
	// a 100-million-MPG car.
	assert.Nil(t, FuelEconomy(99999, 0.001, 999))

	// Just under the ceiling survives.
	v := FuelEconomy(998, 1, 999)
	require.NotNil(t, v)
	assert.InDelta(t, 998, *v, 1e-9)
}
