package models

// Enrichment holds weather/elevation context attached to a trip at closure.
// Populated best-effort by an external provider; a trip closes with this nil
// whenever the provider is unavailable.
type Enrichment struct {
	Temperature   *float64 `bson:"temperature,omitempty" json:"temperature,omitempty"` // celsius
	WindSpeed     *float64 `bson:"wind_speed,omitempty" json:"wind_speed,omitempty"`   // km/h
	Precipitation *float64 `bson:"precipitation,omitempty" json:"precipitation,omitempty"`
	Conditions    string   `bson:"conditions,omitempty" json:"conditions,omitempty"`
}
