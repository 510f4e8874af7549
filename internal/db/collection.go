package db

import (
	"context"
	"time"

	"github.com/ukydev/trip-engine/internal/models"
)

// SampleStore is the append-only record of received telemetry.
type SampleStore interface {
	// Insert appends one sample. Duplicate (session, timestamp) pairs are a
	// no-op, not an error.
	Insert(ctx context.Context, s models.TelemetrySample) error
	// LatestTimes returns the most recent sample timestamp per session for
	// the given sessions in a single batched read. Sessions with no samples
	// are absent from the result.
	LatestTimes(ctx context.Context, sessionIDs []string) (map[string]time.Time, error)
}

// TripStore owns trip aggregates.
type TripStore interface {
	FindBySession(ctx context.Context, sessionID string) (*models.Trip, error)
	// Save upserts the trip keyed by session. A save against an already
	// closed trip is dropped: is_closed is monotonic.
	Save(ctx context.Context, t models.Trip) error
	// Open returns all trips not yet closed.
	Open(ctx context.Context) ([]models.Trip, error)
	// Close atomically marks the trip closed with the given final values. It
	// returns false when the trip was already closed; the caller lost the
	// race and must skip finalization side effects.
	Close(ctx context.Context, sessionID string, final models.Trip) (bool, error)
	// AttachEnrichment sets enrichment on an already-closed trip.
	AttachEnrichment(ctx context.Context, sessionID string, e models.Enrichment) error
	// ClosedInRange returns closed trips whose start time falls in [from, to).
	ClosedInRange(ctx context.Context, from, to time.Time) ([]models.Trip, error)
}

// EventStore records detector output.
type EventStore interface {
	InsertModeTransition(ctx context.Context, e models.ModeTransitionEvent) error
	InsertRefuel(ctx context.Context, e models.RefuelEvent) error
	ListModeTransitions(ctx context.Context, limit int64) ([]models.ModeTransitionEvent, error)
	ListRefuels(ctx context.Context, limit int64) ([]models.RefuelEvent, error)
}

// RollupStore holds derived aggregates, upserted by (granularity, bucket).
type RollupStore interface {
	Upsert(ctx context.Context, r models.Rollup) error
	List(ctx context.Context, granularity string, limit int64) ([]models.Rollup, error)
}

// LastSeenStore is the fast-path projection of each session's most recent
// sample time, consulted by the reconciler in one batched read.
type LastSeenStore interface {
	Touch(ctx context.Context, sessionID string, ts time.Time) error
	Batch(ctx context.Context, sessionIDs []string) (map[string]time.Time, error)
}
