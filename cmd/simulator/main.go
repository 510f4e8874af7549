package main

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// Location is a GPS coordinate.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Sample is the wire shape of one telemetry reading.
type Sample struct {
	SessionID   string    `json:"session_id"`
	Timestamp   time.Time `json:"timestamp"`
	Odometer    float64   `json:"odometer"`
	EngineRPM   float64   `json:"engine_rpm"`
	FuelLevel   *float64  `json:"fuel_level,omitempty"`
	SoC         *float64  `json:"soc,omitempty"`
	Location    *Location `json:"location,omitempty"`
	AmbientTemp *float64  `json:"ambient_temp,omitempty"`
}

// Start points for simulated drives.
var cities = []Location{
	{Lat: 51.5074, Lon: -0.1278},  // London
	{Lat: 40.7128, Lon: -74.0060}, // New York
	{Lat: 48.8566, Lon: 2.3522},   // Paris
	{Lat: 52.5200, Lon: 13.4050},  // Berlin
	{Lat: 35.6762, Lon: 139.6503}, // Tokyo
	{Lat: 43.6532, Lon: -79.3832}, // Toronto
}

func jitterLocation(base Location, meters float64) Location {
	latMetersPerDeg := 111320.0
	lonMetersPerDeg := 111320.0 * math.Cos(base.Lat*math.Pi/180)
	dLat := (rand.Float64()*2 - 1) * (meters / latMetersPerDeg)
	dLon := (rand.Float64()*2 - 1) * (meters / lonMetersPerDeg)
	return Location{Lat: base.Lat + dLat, Lon: base.Lon + dLon}
}

// driveState models one hybrid vehicle over one session. The battery drains
// while the engine stays off; once SoC reaches the floor the engine starts
// and stays running for the rest of the drive.
type driveState struct {
	sessionID string
	position  Location
	odometer  float64 // miles
	speedMph  float64
	socPct    float64
	fuelPct   float64
	socFloor  float64
	engineOn  bool
}

func newDrive(i int) *driveState {
	return &driveState{
		sessionID: fmt.Sprintf("sim-%d-%d", time.Now().Unix(), i),
		position:  jitterLocation(cities[rand.Intn(len(cities))], 500),
		odometer:  1000 + rand.Float64()*50000,
		speedMph:  25 + rand.Float64()*30,
		socPct:    60 + rand.Float64()*40,
		fuelPct:   30 + rand.Float64()*70,
		socFloor:  18 + rand.Float64()*4,
	}
}

func (s *driveState) step(tickSec float64) Sample {
	// Small speed noise, clamped to plausible road speeds.
	s.speedMph += (rand.Float64()*2 - 1) * 2
	if s.speedMph < 10 {
		s.speedMph = 10
	}
	if s.speedMph > 75 {
		s.speedMph = 75
	}

	miles := s.speedMph * (tickSec / 3600.0)
	s.odometer += miles
	s.position = jitterLocation(s.position, miles*1609)

	rpm := 50 + rand.Float64()*100 // spinning ancillaries, engine off
	if s.engineOn {
		rpm = 1200 + rand.Float64()*800
		s.fuelPct -= miles * 0.25
		if s.fuelPct < 2 {
			s.fuelPct = 95 + rand.Float64()*5 // simulated fill-up
		}
	} else {
		s.socPct -= miles * 0.9
		if s.socPct <= s.socFloor {
			s.engineOn = true
		}
	}

	soc := s.socPct + (rand.Float64()*2 - 1) // sensor jitter
	fuel := s.fuelPct + (rand.Float64()*2 - 1)
	temp := 18.0 + rand.Float64()*6
	loc := s.position
	return Sample{
		SessionID:   s.sessionID,
		Timestamp:   time.Now(),
		Odometer:    s.odometer,
		EngineRPM:   rpm,
		FuelLevel:   &fuel,
		SoC:         &soc,
		Location:    &loc,
		AmbientTemp: &temp,
	}
}

func simulateDrive(client mqtt.Client, i int, interval time.Duration, samplesPerDrive int) {
	for {
		s := newDrive(i)
		log.WithFields(log.Fields{"session_id": s.sessionID, "odometer": s.odometer}).Info("drive started")
		for n := 0; n < samplesPerDrive; n++ {
			sample := s.step(interval.Seconds())
			payload, err := json.Marshal(sample)
			if err != nil {
				log.WithError(err).Error("failed to marshal sample")
				continue
			}
			topic := "telemetry/sample/" + s.sessionID
			if token := client.Publish(topic, 1, false, payload); token.Wait() && token.Error() != nil {
				log.WithError(token.Error()).Error("failed to publish sample")
			}
			time.Sleep(interval)
		}
		if token := client.Publish("telemetry/end/"+s.sessionID, 1, false, []byte("{}")); token.Wait() && token.Error() != nil {
			log.WithError(token.Error()).Error("failed to publish end signal")
		}
		log.WithField("session_id", s.sessionID).Info("drive ended")
		time.Sleep(5 * time.Second)
	}
}

func main() {
	broker := os.Getenv("MQTT_BROKER")
	if broker == "" {
		broker = "tcp://localhost:1883"
	}
	fleetSize := 5
	if v := os.Getenv("FLEET_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			fleetSize = n
		}
	}
	interval := 5 * time.Second
	if v := os.Getenv("SIM_TICK_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			interval = time.Duration(n) * time.Second
		}
	}
	samplesPerDrive := 240
	if v := os.Getenv("SIM_SAMPLES_PER_DRIVE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			samplesPerDrive = n
		}
	}

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(fmt.Sprintf("trip-sim-%d", time.Now().Unix())).
		SetAutoReconnect(true)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.WithError(token.Error()).Fatal("failed to connect to MQTT broker")
	}

	log.WithFields(log.Fields{
		"fleet_size": fleetSize,
		"broker":     broker,
		"interval":   interval,
	}).Info("starting drive simulation")

	for i := 0; i < fleetSize; i++ {
		go simulateDrive(client, i, interval, samplesPerDrive)
	}
	select {} // Block forever
}
