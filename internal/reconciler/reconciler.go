// Package reconciler closes trips whose telemetry stream has gone silent. It
// is the only component that acts without a fresh sample, driven by wall-clock
// polling, and it shares the trip engine's finalization path so a reconciler
// close looks exactly like an explicit one.
package reconciler

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ukydev/trip-engine/internal/db"
	"github.com/ukydev/trip-engine/internal/models"
	"github.com/ukydev/trip-engine/internal/trip"
)

// Reconciler periodically scans open trips and force-closes the stale ones.
// Runs are idempotent and safe to overlap: closure is decided by the store's
// optimistic guard, so a second run observes the first run's closures.
type Reconciler struct {
	engine   *trip.Engine
	trips    db.TripStore
	samples  db.SampleStore
	lastSeen db.LastSeenStore

	staleTimeout time.Duration
	interval     time.Duration
	runBudget    time.Duration
	now          func() time.Time
}

// New builds a reconciler. lastSeen may be nil; the sample store's batched
// aggregation then serves every session.
func New(engine *trip.Engine, trips db.TripStore, samples db.SampleStore, lastSeen db.LastSeenStore, staleTimeout, interval, runBudget time.Duration) *Reconciler {
	return &Reconciler{
		engine:       engine,
		trips:        trips,
		samples:      samples,
		lastSeen:     lastSeen,
		staleTimeout: staleTimeout,
		interval:     interval,
		runBudget:    runBudget,
		now:          time.Now,
	}
}

// Start runs the reconcile loop until ctx is cancelled. It runs in its own
// goroutine context and never blocks the ingestion path.
func (r *Reconciler) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	log.WithField("interval", r.interval).Info("stale-trip reconciler started")
	for {
		select {
		case <-ticker.C:
			r.RunOnce(ctx)
		case <-ctx.Done():
			log.Info("stale-trip reconciler stopped")
			return
		}
	}
}

// RunOnce performs one reconcile pass. A failure on one trip is logged and
// does not abort the rest of the batch; the trip is retried next pass.
func (r *Reconciler) RunOnce(ctx context.Context) {
	runCtx := ctx
	if r.runBudget > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.runBudget)
		defer cancel()
	}

	open, err := r.trips.Open(runCtx)
	if err != nil {
		log.WithError(err).Error("reconciler: failed to list open trips")
		return
	}
	if len(open) == 0 {
		return
	}

	lastSeen := r.lastSeenTimes(runCtx, open)
	cutoff := r.now().Add(-r.staleTimeout)
	closed := 0
	for i := range open {
		t := open[i]
		seen, ok := lastSeen[t.SessionID]
		if !ok {
			// No sample record anywhere; fall back to what the trip row saw.
			seen = t.LastSampleAt
		}
		if seen.After(cutoff) {
			continue
		}
		if err := r.engine.CloseTrip(runCtx, &t, models.ClosedByReconciler); err != nil {
			log.WithError(err).WithField("session_id", t.SessionID).Error("reconciler: failed to close stale trip")
			continue
		}
		closed++
	}
	if closed > 0 {
		log.WithFields(log.Fields{"scanned": len(open), "closed": closed}).Info("reconciler pass complete")
	}
}

// lastSeenTimes resolves the latest sample time per open session: one batched
// read from the redis projection, one batched aggregation for whatever the
// projection is missing. Never one query per trip.
func (r *Reconciler) lastSeenTimes(ctx context.Context, open []models.Trip) map[string]time.Time {
	ids := make([]string, len(open))
	for i, t := range open {
		ids[i] = t.SessionID
	}

	out := map[string]time.Time{}
	if r.lastSeen != nil {
		fromRedis, err := r.lastSeen.Batch(ctx, ids)
		if err != nil {
			log.WithError(err).Warn("reconciler: lastseen batch failed, falling back to sample store")
		} else {
			out = fromRedis
		}
	}

	var missing []string
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 && r.samples != nil {
		fromSamples, err := r.samples.LatestTimes(ctx, missing)
		if err != nil {
			log.WithError(err).Warn("reconciler: latest-sample aggregation failed")
		} else {
			for id, ts := range fromSamples {
				out[id] = ts
			}
		}
	}
	return out
}
