package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Trip state values. Closed is terminal: is_closed never reverts to false,
// and further samples for the session are ignored.
const (
	TripStateOpen            = "open"
	TripStateModeTransitioned = "mode_transitioned"
	TripStateClosed          = "closed"
)

// Closure origins recorded on the trip for operator visibility.
const (
	ClosedByEndSignal  = "end_signal"
	ClosedByReconciler = "reconciler"
)

// Trip is the aggregate derived from one session's samples. It is created on
// the first sample of a new session, mutated incrementally by every later
// sample, soft-closed, and retained indefinitely.
type Trip struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SessionID string             `bson:"session_id" json:"session_id"`
	State     string             `bson:"state" json:"state"`

	StartTime time.Time `bson:"start_time" json:"start_time"`
	EndTime   time.Time `bson:"end_time" json:"end_time"`

	StartOdometer float64 `bson:"start_odometer" json:"start_odometer"` // miles
	EndOdometer   float64 `bson:"end_odometer" json:"end_odometer"`     // miles

	Distance          float64 `bson:"distance" json:"distance"`                     // miles
	ElectricDistance  float64 `bson:"electric_distance" json:"electric_distance"`   // miles
	SecondaryDistance float64 `bson:"secondary_distance" json:"secondary_distance"` // miles

	SoCStart        *float64   `bson:"soc_start,omitempty" json:"soc_start,omitempty"`                 // percent
	SoCAtTransition *float64   `bson:"soc_at_transition,omitempty" json:"soc_at_transition,omitempty"` // percent
	TransitionAt    *time.Time `bson:"transition_at,omitempty" json:"transition_at,omitempty"`

	EnergyConsumed float64 `bson:"energy_consumed" json:"energy_consumed"` // kWh
	FuelConsumed   float64 `bson:"fuel_consumed" json:"fuel_consumed"`     // gallons

	EnergyPerMile *float64 `bson:"energy_per_mile,omitempty" json:"energy_per_mile,omitempty"` // kWh/mile
	FuelEconomy   *float64 `bson:"fuel_economy,omitempty" json:"fuel_economy,omitempty"`       // miles/gallon

	IsClosed bool   `bson:"is_closed" json:"is_closed"`
	ClosedBy string `bson:"closed_by,omitempty" json:"closed_by,omitempty"`

	Enrichment   *Enrichment `bson:"enrichment,omitempty" json:"enrichment,omitempty"`
	LastLocation *Location   `bson:"last_location,omitempty" json:"last_location,omitempty"`

	LastSampleAt time.Time `bson:"last_sample_at" json:"last_sample_at"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at" json:"updated_at"`
}

// HasTransitioned reports whether the trip has entered secondary-power mode.
func (t *Trip) HasTransitioned() bool {
	return t.TransitionAt != nil
}
