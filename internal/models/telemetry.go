package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TelemetrySample is one normalized sensor reading for a drive session.
// Samples are append-only: once stored they are never mutated. The ingestion
// boundary deduplicates by (session_id, timestamp) before they reach the core.
type TelemetrySample struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SessionID   string             `bson:"session_id" json:"session_id"`
	Timestamp   time.Time          `bson:"timestamp" json:"timestamp"`
	Odometer    float64            `bson:"odometer" json:"odometer"` // miles
	EngineRPM   float64            `bson:"engine_rpm" json:"engine_rpm"`
	FuelLevel   *float64           `bson:"fuel_level,omitempty" json:"fuel_level,omitempty"` // percent
	SoC         *float64           `bson:"soc,omitempty" json:"soc,omitempty"`               // percent
	Location    *Location          `bson:"location,omitempty" json:"location,omitempty"`
	AmbientTemp *float64           `bson:"ambient_temp,omitempty" json:"ambient_temp,omitempty"` // celsius
}
