package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ukydev/trip-engine/internal/models"
)

// In-memory store implementations. They back the unit tests and local runs
// without Mongo/Redis, and mirror the semantics of the Mongo stores exactly,
// including the optimistic closure guard on MemoryTripStore.Close.

// MemorySampleStore implements SampleStore in memory.
type MemorySampleStore struct {
	mu      sync.Mutex
	samples []models.TelemetrySample
	seen    map[string]map[int64]bool
}

// NewMemorySampleStore creates an empty sample store.
func NewMemorySampleStore() *MemorySampleStore {
	return &MemorySampleStore{seen: make(map[string]map[int64]bool)}
}

// Insert appends the sample; duplicate (session, timestamp) is a no-op.
func (s *MemorySampleStore) Insert(ctx context.Context, sample models.TelemetrySample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sample.Timestamp.UnixNano()
	if s.seen[sample.SessionID] == nil {
		s.seen[sample.SessionID] = make(map[int64]bool)
	}
	if s.seen[sample.SessionID][key] {
		return nil
	}
	s.seen[sample.SessionID][key] = true
	s.samples = append(s.samples, sample)
	return nil
}

// LatestTimes returns max timestamp per requested session.
func (s *MemorySampleStore) LatestTimes(ctx context.Context, sessionIDs []string) (map[string]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[string]bool, len(sessionIDs))
	for _, id := range sessionIDs {
		want[id] = true
	}
	out := map[string]time.Time{}
	for _, sample := range s.samples {
		if !want[sample.SessionID] {
			continue
		}
		if cur, ok := out[sample.SessionID]; !ok || sample.Timestamp.After(cur) {
			out[sample.SessionID] = sample.Timestamp
		}
	}
	return out, nil
}

// Count returns the number of stored samples.
func (s *MemorySampleStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.samples)
}

// MemoryTripStore implements TripStore in memory.
type MemoryTripStore struct {
	mu    sync.Mutex
	trips map[string]models.Trip
}

// NewMemoryTripStore creates an empty trip store.
func NewMemoryTripStore() *MemoryTripStore {
	return &MemoryTripStore{trips: make(map[string]models.Trip)}
}

// FindBySession returns a copy of the session's trip, or nil.
func (s *MemoryTripStore) FindBySession(ctx context.Context, sessionID string) (*models.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trips[sessionID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

// Save upserts the trip keyed by session. A save that raced a concurrent
// close is dropped, mirroring the guarded replace in the mongo store.
func (s *MemoryTripStore) Save(ctx context.Context, t models.Trip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.trips[t.SessionID]; ok && cur.IsClosed {
		return nil
	}
	t.UpdatedAt = time.Now()
	s.trips[t.SessionID] = t
	return nil
}

// Open returns all trips not yet closed.
func (s *MemoryTripStore) Open(ctx context.Context) ([]models.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Trip
	for _, t := range s.trips {
		if !t.IsClosed {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out, nil
}

// Close marks the trip closed iff it is still open, mirroring the Mongo
// store's guarded FindOneAndUpdate.
func (s *MemoryTripStore) Close(ctx context.Context, sessionID string, final models.Trip) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trips[sessionID]
	if !ok || t.IsClosed {
		return false, nil
	}
	t.State = models.TripStateClosed
	t.IsClosed = true
	t.ClosedBy = final.ClosedBy
	t.EndTime = final.EndTime
	t.EndOdometer = final.EndOdometer
	t.Distance = final.Distance
	t.ElectricDistance = final.ElectricDistance
	t.SecondaryDistance = final.SecondaryDistance
	t.EnergyConsumed = final.EnergyConsumed
	t.FuelConsumed = final.FuelConsumed
	t.EnergyPerMile = final.EnergyPerMile
	t.FuelEconomy = final.FuelEconomy
	t.UpdatedAt = time.Now()
	s.trips[sessionID] = t
	return true, nil
}

// AttachEnrichment sets enrichment on the trip.
func (s *MemoryTripStore) AttachEnrichment(ctx context.Context, sessionID string, e models.Enrichment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trips[sessionID]
	if !ok {
		return nil
	}
	t.Enrichment = &e
	s.trips[sessionID] = t
	return nil
}

// ClosedInRange returns closed trips starting in [from, to).
func (s *MemoryTripStore) ClosedInRange(ctx context.Context, from, to time.Time) ([]models.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Trip
	for _, t := range s.trips {
		if t.IsClosed && !t.StartTime.Before(from) && t.StartTime.Before(to) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

// MemoryEventStore implements EventStore in memory.
type MemoryEventStore struct {
	mu          sync.Mutex
	Transitions []models.ModeTransitionEvent
	Refuels     []models.RefuelEvent
}

// NewMemoryEventStore creates an empty event store.
func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{}
}

// InsertModeTransition records a mode transition event.
func (s *MemoryEventStore) InsertModeTransition(ctx context.Context, e models.ModeTransitionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.CreatedAt = time.Now()
	s.Transitions = append(s.Transitions, e)
	return nil
}

// InsertRefuel records a refuel event.
func (s *MemoryEventStore) InsertRefuel(ctx context.Context, e models.RefuelEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.CreatedAt = time.Now()
	s.Refuels = append(s.Refuels, e)
	return nil
}

// ListModeTransitions returns the recorded transition events, newest first.
func (s *MemoryEventStore) ListModeTransitions(ctx context.Context, limit int64) ([]models.ModeTransitionEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ModeTransitionEvent, len(s.Transitions))
	copy(out, s.Transitions)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListRefuels returns the recorded refuel events, newest first.
func (s *MemoryEventStore) ListRefuels(ctx context.Context, limit int64) ([]models.RefuelEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.RefuelEvent, len(s.Refuels))
	copy(out, s.Refuels)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MemoryRollupStore implements RollupStore in memory.
type MemoryRollupStore struct {
	mu      sync.Mutex
	rollups map[string]models.Rollup
	upserts int
}

// NewMemoryRollupStore creates an empty rollup store.
func NewMemoryRollupStore() *MemoryRollupStore {
	return &MemoryRollupStore{rollups: make(map[string]models.Rollup)}
}

// Upsert replaces the rollup keyed by (granularity, bucket).
func (s *MemoryRollupStore) Upsert(ctx context.Context, r models.Rollup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	s.rollups[r.Granularity+"|"+r.Bucket] = r
	return nil
}

// Get returns the rollup for a bucket, if present.
func (s *MemoryRollupStore) Get(granularity, bucket string) (models.Rollup, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rollups[granularity+"|"+bucket]
	return r, ok
}

// Upserts returns how many upserts were performed.
func (s *MemoryRollupStore) Upserts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upserts
}

// List returns rollups for a granularity, newest bucket first.
func (s *MemoryRollupStore) List(ctx context.Context, granularity string, limit int64) ([]models.Rollup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Rollup
	for _, r := range s.rollups {
		if r.Granularity == granularity {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Bucket > out[j].Bucket })
	if int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MemoryLastSeen implements LastSeenStore in memory.
type MemoryLastSeen struct {
	mu    sync.Mutex
	times map[string]time.Time
}

// NewMemoryLastSeen creates an empty last-seen projection.
func NewMemoryLastSeen() *MemoryLastSeen {
	return &MemoryLastSeen{times: make(map[string]time.Time)}
}

// Touch records ts for the session.
func (s *MemoryLastSeen) Touch(ctx context.Context, sessionID string, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.times[sessionID] = ts
	return nil
}

// Batch returns last-seen times for the requested sessions.
func (s *MemoryLastSeen) Batch(ctx context.Context, sessionIDs []string) (map[string]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Time)
	for _, id := range sessionIDs {
		if ts, ok := s.times[id]; ok {
			out[id] = ts
		}
	}
	return out, nil
}
