package rollup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukydev/trip-engine/internal/db"
	"github.com/ukydev/trip-engine/internal/models"
)

func ptr(v float64) *float64 { return &v }

func closedTrip(session string, start time.Time, distance, electric, secondary, energy, fuel float64, epm, economy *float64) models.Trip {
	return models.Trip{
		SessionID:         session,
		State:             models.TripStateClosed,
		StartTime:         start,
		EndTime:           start.Add(30 * time.Minute),
		Distance:          distance,
		ElectricDistance:  electric,
		SecondaryDistance: secondary,
		EnergyConsumed:    energy,
		FuelConsumed:      fuel,
		EnergyPerMile:     epm,
		FuelEconomy:       economy,
		IsClosed:          true,
	}
}

func TestCompute(t *testing.T) {
	day := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	trips := []models.Trip{
		closedTrip("a", day.Add(8*time.Hour), 10, 7, 3, 2.1, 0.1, ptr(0.3), ptr(30)),
		closedTrip("b", day.Add(14*time.Hour), 20, 5, 15, 1.5, 0.5, ptr(0.3), ptr(40)),
		closedTrip("c", day.Add(20*time.Hour), 5, 5, 0, 1.0, 0, ptr(0.2), nil),
	}

	r := Compute(models.RollupDaily, "2026-08-30", trips)

	assert.Equal(t, 3, r.TripCount)
	assert.InDelta(t, 35, r.TotalDistance, 1e-9)
	assert.InDelta(t, 17, r.ElectricDistance, 1e-9)
	assert.InDelta(t, 18, r.SecondaryDistance, 1e-9)
	assert.InDelta(t, 4.6, r.EnergyConsumed, 1e-9)
	assert.InDelta(t, 0.6, r.FuelConsumed, 1e-9)
	require.NotNil(t, r.MeanEnergyPerMile)
	assert.InDelta(t, (0.3+0.3+0.2)/3, *r.MeanEnergyPerMile, 1e-9)
	// Median over the two trips with defined economy.
	require.NotNil(t, r.MedianFuelEconomy)
	assert.InDelta(t, 35, *r.MedianFuelEconomy, 1e-9)
}

func TestCompute_EmptyBucket(t *testing.T) {
	r := Compute(models.RollupDaily, "2026-08-30", nil)
	assert.Equal(t, 0, r.TripCount)
	assert.Zero(t, r.TotalDistance)
	assert.Nil(t, r.MeanEnergyPerMile)
	assert.Nil(t, r.MedianFuelEconomy)
}

func TestRecompute_UpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	trips := db.NewMemoryTripStore()
	rollups := db.NewMemoryRollupStore()

	day := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	require.NoError(t, trips.Save(ctx, closedTrip("a", day.Add(9*time.Hour), 10, 7, 3, 2.1, 0.2, ptr(0.3), ptr(15))))
	require.NoError(t, trips.Save(ctx, closedTrip("b", day.Add(10*time.Hour), 8, 8, 0, 1.6, 0, ptr(0.2), nil)))

	e := NewEngine(trips, rollups)

	var first models.Rollup
	for i := 0; i < 5; i++ {
		require.NoError(t, e.Recompute(ctx, models.RollupDaily, day.Add(9*time.Hour)))
		r, ok := rollups.Get(models.RollupDaily, "2026-08-30")
		require.True(t, ok)
		if i == 0 {
			first = r
			continue
		}
		// Same underlying trips: byte-identical values every run.
		r.UpdatedAt = first.UpdatedAt
		assert.Equal(t, first, r)
	}
	assert.Equal(t, 5, rollups.Upserts())
}

func TestOnTripClosed_TouchesAllGranularities(t *testing.T) {
	ctx := context.Background()
	trips := db.NewMemoryTripStore()
	rollups := db.NewMemoryRollupStore()

	start := time.Date(2026, 8, 30, 14, 20, 0, 0, time.UTC)
	tr := closedTrip("a", start, 10, 6, 4, 2.0, 0.3, ptr(0.33), ptr(13.3))
	require.NoError(t, trips.Save(ctx, tr))

	NewEngine(trips, rollups).OnTripClosed(ctx, tr)

	for _, tc := range []struct{ granularity, bucket string }{
		{models.RollupHourly, "2026-08-30T14"},
		{models.RollupDaily, "2026-08-30"},
		{models.RollupMonthly, "2026-08"},
	} {
		r, ok := rollups.Get(tc.granularity, tc.bucket)
		require.True(t, ok, "missing %s rollup", tc.granularity)
		assert.Equal(t, 1, r.TripCount)
		assert.InDelta(t, 10, r.TotalDistance, 1e-9)
	}
}

func TestBucketKey(t *testing.T) {
	ts := time.Date(2026, 8, 30, 14, 20, 3, 0, time.UTC)
	assert.Equal(t, "2026-08-30T14", models.BucketKey(models.RollupHourly, ts))
	assert.Equal(t, "2026-08-30", models.BucketKey(models.RollupDaily, ts))
	assert.Equal(t, "2026-08", models.BucketKey(models.RollupMonthly, ts))
}
