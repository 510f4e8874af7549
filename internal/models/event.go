package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ModeTransitionEvent records the moment a trip entered secondary-power mode.
// At most one exists per trip; immutable after creation. Downstream health
// analysis consumes the SoC captured here as the battery "floor" for the trip.
type ModeTransitionEvent struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SessionID   string             `bson:"session_id" json:"session_id"`
	Timestamp   time.Time          `bson:"timestamp" json:"timestamp"`
	SoC         *float64           `bson:"soc,omitempty" json:"soc,omitempty"`
	AmbientTemp *float64           `bson:"ambient_temp,omitempty" json:"ambient_temp,omitempty"`
	EngineRPM   float64            `bson:"engine_rpm" json:"engine_rpm"`
	Mode        string             `bson:"mode" json:"mode"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
}

// RefuelEvent records a detected fill-up. Refuels are not trip-scoped: the
// tank outlives any one session.
type RefuelEvent struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Timestamp   time.Time          `bson:"timestamp" json:"timestamp"`
	Odometer    float64            `bson:"odometer" json:"odometer"`
	LevelBefore float64            `bson:"level_before" json:"level_before"` // percent
	LevelAfter  float64            `bson:"level_after" json:"level_after"`   // percent
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
}
