// Package rollup recomputes and upserts calendar-bucket aggregates from
// closed trips. Aggregation never deletes or mutates raw rows; a bucket can
// be rebuilt from scratch at any time and converges to the same values.
package rollup

import (
	"context"
	"fmt"
	"time"

	"github.com/montanaflynn/stats"
	log "github.com/sirupsen/logrus"

	"github.com/ukydev/trip-engine/internal/db"
	"github.com/ukydev/trip-engine/internal/models"
)

// Engine rebuilds rollups for the buckets touched by newly closed trips.
type Engine struct {
	trips   db.TripStore
	rollups db.RollupStore
}

// NewEngine builds a rollup engine over the given stores.
func NewEngine(trips db.TripStore, rollups db.RollupStore) *Engine {
	return &Engine{trips: trips, rollups: rollups}
}

// OnTripClosed recomputes the hourly, daily and monthly buckets containing
// the trip's start time. Errors on one granularity do not stop the others.
func (e *Engine) OnTripClosed(ctx context.Context, t models.Trip) {
	for _, g := range []string{models.RollupHourly, models.RollupDaily, models.RollupMonthly} {
		if err := e.Recompute(ctx, g, t.StartTime); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"granularity": g,
				"session_id":  t.SessionID,
			}).Error("rollup recompute failed")
		}
	}
}

// Recompute rebuilds one bucket from the closed trips it contains and upserts
// the result. Running it any number of times yields the same row.
func (e *Engine) Recompute(ctx context.Context, granularity string, at time.Time) error {
	from, to := bucketBounds(granularity, at)
	trips, err := e.trips.ClosedInRange(ctx, from, to)
	if err != nil {
		return fmt.Errorf("failed to load closed trips for bucket: %w", err)
	}
	r := Compute(granularity, models.BucketKey(granularity, at), trips)
	if err := e.rollups.Upsert(ctx, r); err != nil {
		return fmt.Errorf("failed to upsert rollup: %w", err)
	}
	return nil
}

// Compute aggregates closed trips into one rollup row. Pure: same trips in,
// same row out.
func Compute(granularity, bucket string, trips []models.Trip) models.Rollup {
	r := models.Rollup{Granularity: granularity, Bucket: bucket}
	var energyPerMile, fuelEconomy []float64
	for _, t := range trips {
		if !t.IsClosed {
			continue
		}
		r.TripCount++
		r.TotalDistance += t.Distance
		r.ElectricDistance += t.ElectricDistance
		r.SecondaryDistance += t.SecondaryDistance
		r.EnergyConsumed += t.EnergyConsumed
		r.FuelConsumed += t.FuelConsumed
		if t.EnergyPerMile != nil {
			energyPerMile = append(energyPerMile, *t.EnergyPerMile)
		}
		if t.FuelEconomy != nil {
			fuelEconomy = append(fuelEconomy, *t.FuelEconomy)
		}
	}
	if m, err := stats.Mean(energyPerMile); err == nil {
		r.MeanEnergyPerMile = &m
	}
	if m, err := stats.Median(fuelEconomy); err == nil {
		r.MedianFuelEconomy = &m
	}
	return r
}

func bucketBounds(granularity string, at time.Time) (time.Time, time.Time) {
	u := at.UTC()
	switch granularity {
	case models.RollupHourly:
		from := u.Truncate(time.Hour)
		return from, from.Add(time.Hour)
	case models.RollupMonthly:
		from := time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
		return from, from.AddDate(0, 1, 0)
	default:
		from := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
		return from, from.AddDate(0, 0, 1)
	}
}
