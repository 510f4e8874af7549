package reconciler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukydev/trip-engine/internal/config"
	"github.com/ukydev/trip-engine/internal/db"
	"github.com/ukydev/trip-engine/internal/models"
	"github.com/ukydev/trip-engine/internal/trip"
)

func testConfig() *config.Config {
	return &config.Config{
		EngineRunningRPM:    400,
		HysteresisLen:       3,
		FuelSmoothingWindow: 5,
		RefuelRisePct:       4,
		RefuelWindow:        5 * time.Minute,
		BatteryCapacityKWh:  12.0,
		TankCapacityGal:     10.0,
		FuelEconomyCeiling:  999,
		EnrichmentTimeout:   50 * time.Millisecond,
		EnrichmentAttempts:  1,
		StaleTimeout:        20 * time.Minute,
		ReconcileInterval:   time.Minute,
		ReconcileRunBudget:  time.Minute,
	}
}

type countingAggregator struct {
	mu    sync.Mutex
	calls int
}

func (a *countingAggregator) OnTripClosed(ctx context.Context, t models.Trip) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
}

func (a *countingAggregator) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func seedTrip(t *testing.T, trips *db.MemoryTripStore, session string, lastSample time.Time) {
	t.Helper()
	require.NoError(t, trips.Save(context.Background(), models.Trip{
		SessionID:     session,
		State:         models.TripStateOpen,
		StartTime:     lastSample.Add(-30 * time.Minute),
		EndTime:       lastSample,
		StartOdometer: 1000,
		EndOdometer:   1010,
		Distance:      10,
		LastSampleAt:  lastSample,
	}))
}

func TestReconciler_ClosesStaleTrip(t *testing.T) {
	cfg := testConfig()
	samples := db.NewMemorySampleStore()
	trips := db.NewMemoryTripStore()
	agg := &countingAggregator{}
	engine := trip.NewEngine(cfg, samples, trips, db.NewMemoryEventStore(), nil, nil, agg)

	seedTrip(t, trips, "stale", time.Now().Add(-30*time.Minute))
	seedTrip(t, trips, "fresh", time.Now().Add(-1*time.Minute))
	lastSeen := db.NewMemoryLastSeen()
	require.NoError(t, lastSeen.Touch(context.Background(), "stale", time.Now().Add(-30*time.Minute)))
	require.NoError(t, lastSeen.Touch(context.Background(), "fresh", time.Now().Add(-1*time.Minute)))

	r := New(engine, trips, samples, lastSeen, cfg.StaleTimeout, cfg.ReconcileInterval, cfg.ReconcileRunBudget)
	r.RunOnce(context.Background())

	stale, err := trips.FindBySession(context.Background(), "stale")
	require.NoError(t, err)
	assert.True(t, stale.IsClosed)
	assert.Equal(t, models.ClosedByReconciler, stale.ClosedBy)
	// End time is fixed at the last sample, not at reconcile time.
	assert.Equal(t, stale.LastSampleAt, stale.EndTime)

	fresh, err := trips.FindBySession(context.Background(), "fresh")
	require.NoError(t, err)
	assert.False(t, fresh.IsClosed)

	assert.Equal(t, 1, agg.Calls())
}

func TestReconciler_RepeatedRunsAreIdempotent(t *testing.T) {
	cfg := testConfig()
	samples := db.NewMemorySampleStore()
	trips := db.NewMemoryTripStore()
	agg := &countingAggregator{}
	engine := trip.NewEngine(cfg, samples, trips, db.NewMemoryEventStore(), nil, nil, agg)

	seedTrip(t, trips, "stale", time.Now().Add(-time.Hour))
	r := New(engine, trips, samples, nil, cfg.StaleTimeout, cfg.ReconcileInterval, cfg.ReconcileRunBudget)

	r.RunOnce(context.Background())
	r.RunOnce(context.Background())

	tr, err := trips.FindBySession(context.Background(), "stale")
	require.NoError(t, err)
	assert.True(t, tr.IsClosed)
	assert.Equal(t, 1, agg.Calls())
}

func TestReconciler_ConcurrentRunsCloseOnce(t *testing.T) {
	cfg := testConfig()
	samples := db.NewMemorySampleStore()
	trips := db.NewMemoryTripStore()
	agg := &countingAggregator{}
	engine := trip.NewEngine(cfg, samples, trips, db.NewMemoryEventStore(), nil, nil, agg)

	for _, session := range []string{"a", "b", "c"} {
		seedTrip(t, trips, session, time.Now().Add(-time.Hour))
	}
	r := New(engine, trips, samples, nil, cfg.StaleTimeout, cfg.ReconcileInterval, cfg.ReconcileRunBudget)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.RunOnce(context.Background())
		}()
	}
	wg.Wait()

	for _, session := range []string{"a", "b", "c"} {
		tr, err := trips.FindBySession(context.Background(), session)
		require.NoError(t, err)
		assert.True(t, tr.IsClosed)
	}
	// Finalization side effects ran exactly once per trip.
	assert.Equal(t, 3, agg.Calls())
}

// failingTripStore errors on closing one particular session.
type failingTripStore struct {
	*db.MemoryTripStore
	failSession string
}

func (s *failingTripStore) Close(ctx context.Context, sessionID string, final models.Trip) (bool, error) {
	if sessionID == s.failSession {
		return false, errors.New("store unavailable")
	}
	return s.MemoryTripStore.Close(ctx, sessionID, final)
}

func TestReconciler_PerTripFailureDoesNotAbortBatch(t *testing.T) {
	cfg := testConfig()
	samples := db.NewMemorySampleStore()
	trips := &failingTripStore{MemoryTripStore: db.NewMemoryTripStore(), failSession: "b"}
	agg := &countingAggregator{}
	engine := trip.NewEngine(cfg, samples, trips, db.NewMemoryEventStore(), nil, nil, agg)

	for _, session := range []string{"a", "b", "c"} {
		seedTrip(t, trips.MemoryTripStore, session, time.Now().Add(-time.Hour))
	}
	r := New(engine, trips, samples, nil, cfg.StaleTimeout, cfg.ReconcileInterval, cfg.ReconcileRunBudget)
	r.RunOnce(context.Background())

	for _, session := range []string{"a", "c"} {
		tr, err := trips.FindBySession(context.Background(), session)
		require.NoError(t, err)
		assert.True(t, tr.IsClosed, "session %s should be closed", session)
	}
	b, err := trips.FindBySession(context.Background(), "b")
	require.NoError(t, err)
	assert.False(t, b.IsClosed)

	// The failed trip is picked up on the next pass once the store recovers.
	trips.failSession = ""
	r.RunOnce(context.Background())
	b, err = trips.FindBySession(context.Background(), "b")
	require.NoError(t, err)
	assert.True(t, b.IsClosed)
}

func TestReconciler_LastSeenFallsBackToSampleStore(t *testing.T) {
	cfg := testConfig()
	samples := db.NewMemorySampleStore()
	trips := db.NewMemoryTripStore()
	agg := &countingAggregator{}
	engine := trip.NewEngine(cfg, samples, trips, db.NewMemoryEventStore(), nil, nil, agg)

	// The trip row looks stale, but the sample store has a recent sample the
	// projection missed. The trip must stay open.
	seedTrip(t, trips, "s1", time.Now().Add(-time.Hour))
	require.NoError(t, samples.Insert(context.Background(), models.TelemetrySample{
		SessionID: "s1",
		Timestamp: time.Now().Add(-1 * time.Minute),
		Odometer:  1010,
	}))

	r := New(engine, trips, samples, db.NewMemoryLastSeen(), cfg.StaleTimeout, cfg.ReconcileInterval, cfg.ReconcileRunBudget)
	r.RunOnce(context.Background())

	tr, err := trips.FindBySession(context.Background(), "s1")
	require.NoError(t, err)
	assert.False(t, tr.IsClosed)
}
