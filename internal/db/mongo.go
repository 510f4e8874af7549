package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ukydev/trip-engine/internal/models"
)

// ConnectMongo connects to MongoDB at the given URI and verifies the
// connection with a ping.
func ConnectMongo(uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(context.Background(), options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo.Connect error: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongo.Ping error: %w", err)
	}
	return client, nil
}

// MongoSampleStore implements SampleStore on a MongoDB collection.
type MongoSampleStore struct {
	Collection *mongo.Collection
}

// EnsureIndexes creates the unique (session, timestamp) index that makes
// duplicate appends a no-op.
func (s *MongoSampleStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.Collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "session_id", Value: 1}, {Key: "timestamp", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// Insert appends one sample; a duplicate key is swallowed.
func (s *MongoSampleStore) Insert(ctx context.Context, sample models.TelemetrySample) error {
	_, err := s.Collection.InsertOne(ctx, sample)
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	return err
}

// LatestTimes returns max(timestamp) per session in one aggregation pass.
func (s *MongoSampleStore) LatestTimes(ctx context.Context, sessionIDs []string) (map[string]time.Time, error) {
	if len(sessionIDs) == 0 {
		return map[string]time.Time{}, nil
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"session_id": bson.M{"$in": sessionIDs}}}},
		{{Key: "$group", Value: bson.M{
			"_id":    "$session_id",
			"latest": bson.M{"$max": "$timestamp"},
		}}},
	}
	cursor, err := s.Collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("latest sample aggregation failed: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		SessionID string    `bson:"_id"`
		Latest    time.Time `bson:"latest"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	out := make(map[string]time.Time, len(rows))
	for _, r := range rows {
		out[r.SessionID] = r.Latest
	}
	return out, nil
}

// MongoTripStore implements TripStore on a MongoDB collection.
type MongoTripStore struct {
	Collection *mongo.Collection
}

// EnsureIndexes creates the unique session index.
func (s *MongoTripStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.Collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "session_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// FindBySession returns the trip for a session, or nil when none exists.
func (s *MongoTripStore) FindBySession(ctx context.Context, sessionID string) (*models.Trip, error) {
	var t models.Trip
	err := s.Collection.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&t)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Save upserts the trip keyed by session. Only an open document may be
// replaced: a save that raced a concurrent close finds no open document and is
// dropped, keeping is_closed monotonic.
func (s *MongoTripStore) Save(ctx context.Context, t models.Trip) error {
	t.UpdatedAt = time.Now()
	res, err := s.Collection.ReplaceOne(ctx,
		bson.M{"session_id": t.SessionID, "is_closed": false},
		t,
	)
	if err != nil {
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}
	// No open document: either the session is new or it closed underneath us.
	// The unique session index makes the insert fail in the latter case, and
	// the stale update is discarded.
	_, err = s.Collection.InsertOne(ctx, t)
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	return err
}

// Open returns all trips not yet closed.
func (s *MongoTripStore) Open(ctx context.Context) ([]models.Trip, error) {
	cursor, err := s.Collection.Find(ctx, bson.M{"is_closed": false})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var trips []models.Trip
	if err := cursor.All(ctx, &trips); err != nil {
		return nil, err
	}
	return trips, nil
}

// Close marks the trip closed if and only if it is still open. The filter on
// is_closed is the optimistic guard: of two concurrent closers exactly one
// matches the document, the other observes ErrNoDocuments and reports false.
func (s *MongoTripStore) Close(ctx context.Context, sessionID string, final models.Trip) (bool, error) {
	update := bson.M{"$set": bson.M{
		"state":              models.TripStateClosed,
		"is_closed":          true,
		"closed_by":          final.ClosedBy,
		"end_time":           final.EndTime,
		"end_odometer":       final.EndOdometer,
		"distance":           final.Distance,
		"electric_distance":  final.ElectricDistance,
		"secondary_distance": final.SecondaryDistance,
		"energy_consumed":    final.EnergyConsumed,
		"fuel_consumed":      final.FuelConsumed,
		"energy_per_mile":    final.EnergyPerMile,
		"fuel_economy":       final.FuelEconomy,
		"updated_at":         time.Now(),
	}}
	err := s.Collection.FindOneAndUpdate(ctx,
		bson.M{"session_id": sessionID, "is_closed": false},
		update,
	).Err()
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to close trip %s: %w", sessionID, err)
	}
	return true, nil
}

// AttachEnrichment sets enrichment fields on a closed trip.
func (s *MongoTripStore) AttachEnrichment(ctx context.Context, sessionID string, e models.Enrichment) error {
	_, err := s.Collection.UpdateOne(ctx,
		bson.M{"session_id": sessionID},
		bson.M{"$set": bson.M{"enrichment": e, "updated_at": time.Now()}},
	)
	return err
}

// ClosedInRange returns closed trips starting in [from, to).
func (s *MongoTripStore) ClosedInRange(ctx context.Context, from, to time.Time) ([]models.Trip, error) {
	filter := bson.M{
		"is_closed":  true,
		"start_time": bson.M{"$gte": from, "$lt": to},
	}
	cursor, err := s.Collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "start_time", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var trips []models.Trip
	if err := cursor.All(ctx, &trips); err != nil {
		return nil, err
	}
	return trips, nil
}

// MongoEventStore implements EventStore over two collections.
type MongoEventStore struct {
	Transitions *mongo.Collection
	Refuels     *mongo.Collection
}

// InsertModeTransition records a mode transition event.
func (s *MongoEventStore) InsertModeTransition(ctx context.Context, e models.ModeTransitionEvent) error {
	e.CreatedAt = time.Now()
	_, err := s.Transitions.InsertOne(ctx, e)
	return err
}

// InsertRefuel records a refuel event.
func (s *MongoEventStore) InsertRefuel(ctx context.Context, e models.RefuelEvent) error {
	e.CreatedAt = time.Now()
	_, err := s.Refuels.InsertOne(ctx, e)
	return err
}

// ListModeTransitions returns the most recent transition events.
func (s *MongoEventStore) ListModeTransitions(ctx context.Context, limit int64) ([]models.ModeTransitionEvent, error) {
	cursor, err := s.Transitions.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(limit))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var events []models.ModeTransitionEvent
	if err := cursor.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// ListRefuels returns the most recent refuel events.
func (s *MongoEventStore) ListRefuels(ctx context.Context, limit int64) ([]models.RefuelEvent, error) {
	cursor, err := s.Refuels.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(limit))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var events []models.RefuelEvent
	if err := cursor.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// MongoRollupStore implements RollupStore on a MongoDB collection.
type MongoRollupStore struct {
	Collection *mongo.Collection
}

// EnsureIndexes creates the unique (granularity, bucket) index.
func (s *MongoRollupStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.Collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "granularity", Value: 1}, {Key: "bucket", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// Upsert replaces the rollup row keyed by (granularity, bucket). Re-running
// for the same bucket converges to the same row.
func (s *MongoRollupStore) Upsert(ctx context.Context, r models.Rollup) error {
	r.UpdatedAt = time.Now()
	_, err := s.Collection.ReplaceOne(ctx,
		bson.M{"granularity": r.Granularity, "bucket": r.Bucket},
		r,
		options.Replace().SetUpsert(true),
	)
	return err
}

// List returns the most recent rollups for a granularity.
func (s *MongoRollupStore) List(ctx context.Context, granularity string, limit int64) ([]models.Rollup, error) {
	cursor, err := s.Collection.Find(ctx,
		bson.M{"granularity": granularity},
		options.Find().SetSort(bson.D{{Key: "bucket", Value: -1}}).SetLimit(limit))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var rollups []models.Rollup
	if err := cursor.All(ctx, &rollups); err != nil {
		return nil, err
	}
	return rollups, nil
}
