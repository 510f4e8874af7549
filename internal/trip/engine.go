// Package trip owns the per-session trip lifecycle: Open on first sample,
// ModeTransitioned when the engine-mode detector fires, Closed on an explicit
// end signal or by the stale-trip reconciler. Closure is guarded at the store
// by an optimistic check, so finalization side effects run at most once per
// trip no matter how many callers race.
package trip

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ukydev/trip-engine/internal/config"
	"github.com/ukydev/trip-engine/internal/db"
	"github.com/ukydev/trip-engine/internal/detector"
	"github.com/ukydev/trip-engine/internal/efficiency"
	"github.com/ukydev/trip-engine/internal/enrichment"
	"github.com/ukydev/trip-engine/internal/models"
)

// Aggregator is notified after a trip closes so derived rollups can be
// rebuilt. Implemented by the rollup engine.
type Aggregator interface {
	OnTripClosed(ctx context.Context, t models.Trip)
}

// sessionState holds the in-memory detector state for one live session. The
// reconciler shares the closure path with ingestion, so detector access from
// either side goes through mu.
type sessionState struct {
	mu sync.Mutex

	mode    *detector.ModeDetector
	smooth  *detector.FuelSmoother
	refuel  *detector.RefuelDetector
	lastSoC *float64
	// runDistance tracks distance covered during an in-progress hysteresis
	// run. The transition commits retroactively at the run's first sample, so
	// this distance moves from electric to secondary when the detector fires.
	runDistance float64
}

// Engine consumes ordered samples per session and maintains trip aggregates.
type Engine struct {
	cfg      *config.Config
	samples  db.SampleStore
	trips    db.TripStore
	events   db.EventStore
	lastSeen db.LastSeenStore
	enricher enrichment.Provider
	agg      Aggregator

	mu       sync.Mutex
	sessions map[string]*sessionState
}

// NewEngine wires the trip engine. lastSeen and agg may be nil (no projection,
// no rollups); enricher nil means trips close without enrichment.
func NewEngine(cfg *config.Config, samples db.SampleStore, trips db.TripStore, events db.EventStore, lastSeen db.LastSeenStore, enricher enrichment.Provider, agg Aggregator) *Engine {
	if enricher == nil {
		enricher = enrichment.Noop{}
	}
	return &Engine{
		cfg:      cfg,
		samples:  samples,
		trips:    trips,
		events:   events,
		lastSeen: lastSeen,
		enricher: enricher,
		agg:      agg,
		sessions: make(map[string]*sessionState),
	}
}

// ProcessSample ingests one sample: appends it to the raw store, refreshes
// the last-seen projection, and advances the session's trip. Samples for a
// closed session are ignored; a new drive must arrive under a new session.
func (e *Engine) ProcessSample(ctx context.Context, s models.TelemetrySample) error {
	if err := e.samples.Insert(ctx, s); err != nil {
		return err
	}
	if e.lastSeen != nil {
		if err := e.lastSeen.Touch(ctx, s.SessionID, s.Timestamp); err != nil {
			log.WithError(err).WithField("session_id", s.SessionID).Warn("lastseen touch failed")
		}
	}

	t, err := e.trips.FindBySession(ctx, s.SessionID)
	if err != nil {
		return err
	}
	if t == nil {
		t = e.newTrip(s)
	}
	if t.IsClosed {
		log.WithField("session_id", s.SessionID).Debug("sample for closed session ignored")
		return nil
	}

	state := e.session(s.SessionID)
	state.mu.Lock()
	e.accumulate(t, state, s)
	e.detect(ctx, t, state, s)
	state.mu.Unlock()

	return e.trips.Save(ctx, *t)
}

// EndTrip handles the explicit end-of-trip signal from the ingestion boundary.
func (e *Engine) EndTrip(ctx context.Context, sessionID string) error {
	t, err := e.trips.FindBySession(ctx, sessionID)
	if err != nil {
		return err
	}
	if t == nil {
		log.WithField("session_id", sessionID).Debug("end signal for unknown session")
		return nil
	}
	return e.CloseTrip(ctx, t, models.ClosedByEndSignal)
}

// CloseTrip finalizes a trip: fixes end values, computes efficiency, commits
// the closed state, then runs enrichment and aggregation. Losing the closure
// race is success; the winner already finalized. Enrichment runs only after
// the close has committed, never inside the guarded transition, and an
// unavailable provider leaves the enrichment fields null.
func (e *Engine) CloseTrip(ctx context.Context, t *models.Trip, closedBy string) error {
	if t.IsClosed {
		return nil
	}
	e.flushRefuel(ctx, t)

	final := *t
	final.ClosedBy = closedBy
	final.EndTime = t.LastSampleAt
	final.EnergyPerMile = efficiency.EnergyPerMile(t.EnergyConsumed, t.ElectricDistance)
	final.FuelEconomy = efficiency.FuelEconomy(t.SecondaryDistance, t.FuelConsumed, e.cfg.FuelEconomyCeiling)
	if t.FuelConsumed > 0 && final.FuelEconomy == nil {
		log.WithFields(log.Fields{
			"session_id":         t.SessionID,
			"secondary_distance": t.SecondaryDistance,
			"fuel_consumed":      t.FuelConsumed,
		}).Warn("fuel economy above sanity ceiling, nulled")
	}

	won, err := e.trips.Close(ctx, t.SessionID, final)
	if err != nil {
		return err
	}
	if !won {
		log.WithField("session_id", t.SessionID).Debug("trip already closed")
		e.dropSession(t.SessionID)
		return nil
	}

	final.IsClosed = true
	final.State = models.TripStateClosed
	e.enrich(ctx, &final)
	if e.agg != nil {
		e.agg.OnTripClosed(ctx, final)
	}
	e.dropSession(t.SessionID)

	log.WithFields(log.Fields{
		"session_id": t.SessionID,
		"closed_by":  closedBy,
		"distance":   final.Distance,
	}).Info("trip closed")
	return nil
}

func (e *Engine) newTrip(s models.TelemetrySample) *models.Trip {
	now := time.Now()
	return &models.Trip{
		SessionID:     s.SessionID,
		State:         models.TripStateOpen,
		StartTime:     s.Timestamp,
		EndTime:       s.Timestamp,
		StartOdometer: s.Odometer,
		EndOdometer:   s.Odometer,
		SoCStart:      s.SoC,
		LastSampleAt:  s.Timestamp,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// accumulate folds one sample into the trip's running totals.
func (e *Engine) accumulate(t *models.Trip, st *sessionState, s models.TelemetrySample) {
	// Odometer regression within a session is sensor jitter, never negative
	// distance.
	delta := s.Odometer - t.EndOdometer
	if delta < 0 {
		delta = 0
	}
	if t.HasTransitioned() {
		t.SecondaryDistance += delta
	} else {
		t.ElectricDistance += delta
		if s.EngineRPM >= e.cfg.EngineRunningRPM {
			st.runDistance += delta
		} else {
			st.runDistance = 0
		}
	}
	t.Distance += delta
	if s.Odometer > t.EndOdometer {
		t.EndOdometer = s.Odometer
	}

	if s.SoC != nil {
		if st.lastSoC != nil && *st.lastSoC > *s.SoC {
			t.EnergyConsumed += (*st.lastSoC - *s.SoC) / 100 * e.cfg.BatteryCapacityKWh
		}
		st.lastSoC = s.SoC
	}

	if s.FuelLevel != nil {
		prev, hadPrev := st.smooth.Level()
		cur := st.smooth.Push(*s.FuelLevel)
		if hadPrev && prev > cur {
			t.FuelConsumed += (prev - cur) / 100 * e.cfg.TankCapacityGal
		}
	}

	if s.Location != nil {
		t.LastLocation = s.Location
	}
	t.EndTime = s.Timestamp
	t.LastSampleAt = s.Timestamp
}

// detect runs the mode and refuel detectors for the sample. Detector store
// failures are logged and do not fail ingestion.
func (e *Engine) detect(ctx context.Context, t *models.Trip, st *sessionState, s models.TelemetrySample) {
	if ev := st.mode.Observe(s); ev != nil && !t.HasTransitioned() {
		ev.Mode = models.ClassifyPowerMode(ev.EngineRPM, e.cfg.EngineRunningRPM, e.cfg.EngineDirectRPM).String()
		ts := ev.Timestamp
		t.TransitionAt = &ts
		t.SoCAtTransition = ev.SoC
		t.State = models.TripStateModeTransitioned
		t.ElectricDistance -= st.runDistance
		t.SecondaryDistance += st.runDistance
		st.runDistance = 0
		if err := e.events.InsertModeTransition(ctx, *ev); err != nil {
			log.WithError(err).WithField("session_id", s.SessionID).Error("failed to record mode transition")
		}
	}

	if s.FuelLevel != nil {
		if ev := st.refuel.Observe(s.Timestamp, s.Odometer, *s.FuelLevel); ev != nil {
			e.emitRefuel(ctx, t.SessionID, st, ev)
		}
	}
}

func (e *Engine) flushRefuel(ctx context.Context, t *models.Trip) {
	e.mu.Lock()
	st := e.sessions[t.SessionID]
	e.mu.Unlock()
	if st == nil {
		return
	}
	// The reconciler reaches here while the MQTT goroutine may be feeding the
	// same session's detectors.
	st.mu.Lock()
	defer st.mu.Unlock()
	if ev := st.refuel.Flush(); ev != nil {
		e.emitRefuel(ctx, t.SessionID, st, ev)
	}
}

func (e *Engine) emitRefuel(ctx context.Context, sessionID string, st *sessionState, ev *models.RefuelEvent) {
	// The smoother must not read the fill-up as negative consumption.
	st.smooth.Reset(ev.LevelAfter)
	if err := e.events.InsertRefuel(ctx, *ev); err != nil {
		log.WithError(err).WithField("session_id", sessionID).Error("failed to record refuel")
		return
	}
	log.WithFields(log.Fields{
		"session_id": sessionID,
		"before":     ev.LevelBefore,
		"after":      ev.LevelAfter,
	}).Info("refuel detected")
}

// enrich fetches weather context for the closed trip and attaches it. Any
// failure resolves to "no enrichment"; closure has already committed.
func (e *Engine) enrich(ctx context.Context, t *models.Trip) {
	if t.LastLocation == nil {
		return
	}
	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.EnrichmentTimeout*time.Duration(e.cfg.EnrichmentAttempts))
	defer cancel()
	enr, ok := e.enricher.Fetch(fetchCtx, t.LastLocation.Lat, t.LastLocation.Lon, t.EndTime)
	if !ok {
		log.WithField("session_id", t.SessionID).Debug("enrichment unavailable")
		return
	}
	if err := e.trips.AttachEnrichment(ctx, t.SessionID, enr); err != nil {
		log.WithError(err).WithField("session_id", t.SessionID).Warn("failed to attach enrichment")
		return
	}
	t.Enrichment = &enr
}

func (e *Engine) session(sessionID string) *sessionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.sessions[sessionID]
	if !ok {
		st = &sessionState{
			mode:   detector.NewModeDetector(e.cfg.EngineRunningRPM, e.cfg.HysteresisLen),
			smooth: detector.NewFuelSmoother(e.cfg.FuelSmoothingWindow),
			refuel: detector.NewRefuelDetector(e.cfg.RefuelRisePct, e.cfg.RefuelWindow),
		}
		e.sessions[sessionID] = st
	}
	return st
}

func (e *Engine) dropSession(sessionID string) {
	e.mu.Lock()
	delete(e.sessions, sessionID)
	e.mu.Unlock()
}
