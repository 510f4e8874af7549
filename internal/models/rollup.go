package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Rollup granularities.
const (
	RollupHourly  = "hourly"
	RollupDaily   = "daily"
	RollupMonthly = "monthly"
)

// Rollup is a pre-aggregated summary of the closed trips whose start time
// falls in one calendar bucket. Rollups are upserted by (granularity, bucket)
// and recomputable from closed trips at any time; they never replace raw data.
type Rollup struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Granularity string             `bson:"granularity" json:"granularity"`
	Bucket      string             `bson:"bucket" json:"bucket"` // e.g. "2026-08-30", "2026-08-30T14", "2026-08"

	TripCount         int     `bson:"trip_count" json:"trip_count"`
	TotalDistance     float64 `bson:"total_distance" json:"total_distance"`
	ElectricDistance  float64 `bson:"electric_distance" json:"electric_distance"`
	SecondaryDistance float64 `bson:"secondary_distance" json:"secondary_distance"`
	EnergyConsumed    float64 `bson:"energy_consumed" json:"energy_consumed"`
	FuelConsumed      float64 `bson:"fuel_consumed" json:"fuel_consumed"`

	// Means/medians over trips where the metric was defined.
	MeanEnergyPerMile *float64 `bson:"mean_energy_per_mile,omitempty" json:"mean_energy_per_mile,omitempty"`
	MedianFuelEconomy *float64 `bson:"median_fuel_economy,omitempty" json:"median_fuel_economy,omitempty"`

	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// BucketKey formats t into the bucket identifier for the given granularity.
func BucketKey(granularity string, t time.Time) string {
	switch granularity {
	case RollupHourly:
		return t.UTC().Format("2006-01-02T15")
	case RollupMonthly:
		return t.UTC().Format("2006-01")
	default:
		return t.UTC().Format("2006-01-02")
	}
}
