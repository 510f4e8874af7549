package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukydev/trip-engine/internal/models"
)

func TestMemoryTripStore_SaveDoesNotReopenClosedTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryTripStore()

	open := models.Trip{
		SessionID: "drive-1",
		State:     models.TripStateOpen,
		StartTime: time.Now().Add(-time.Hour),
		Distance:  3.2,
	}
	require.NoError(t, s.Save(ctx, open))

	final := open
	final.ClosedBy = models.ClosedByReconciler
	final.Distance = 4.0
	won, err := s.Close(ctx, "drive-1", final)
	require.NoError(t, err)
	require.True(t, won)

	// A stale ingestion save carrying the open snapshot must be dropped.
	stale := open
	stale.Distance = 3.5
	require.NoError(t, s.Save(ctx, stale))

	got, err := s.FindBySession(ctx, "drive-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.IsClosed)
	assert.Equal(t, models.TripStateClosed, got.State)
	assert.Equal(t, models.ClosedByReconciler, got.ClosedBy)
	assert.InDelta(t, 4.0, got.Distance, 1e-9)
}

func TestMemoryTripStore_SaveInsertsNewSession(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryTripStore()

	require.NoError(t, s.Save(ctx, models.Trip{SessionID: "drive-2", State: models.TripStateOpen}))
	got, err := s.FindBySession(ctx, "drive-2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.IsClosed)
}
