// Package efficiency computes distance-normalized consumption metrics for
// closed trips. All functions are pure and total: a zero denominator or an
// absurd result yields nil ("not applicable"), never an error, NaN or Inf.
package efficiency

// EnergyPerMile returns electric energy per electric mile (kWh/mile), or nil
// when no electric distance was covered.
func EnergyPerMile(energyKWh, electricMiles float64) *float64 {
	if electricMiles <= 0 {
		return nil
	}
	v := energyKWh / electricMiles
	return &v
}

// FuelEconomy returns secondary-power miles per gallon, or nil when no fuel
// was consumed. Values above ceiling are sensor or calculation anomalies and
// are nulled rather than stored, since one absurd trip would poison every
// downstream average.
func FuelEconomy(secondaryMiles, fuelGal, ceiling float64) *float64 {
	if fuelGal <= 0 {
		return nil
	}
	v := secondaryMiles / fuelGal
	if ceiling > 0 && v > ceiling {
		return nil
	}
	return &v
}
