package db

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// lastSeenTTL keeps the projection from accumulating dead sessions; the
// reconciler falls back to the sample store for anything expired.
const lastSeenTTL = 2 * time.Hour

// RedisLastSeen implements LastSeenStore on Redis. Each ingested sample
// refreshes session:<id>:lastseen; the reconciler reads all open sessions in
// one MGET instead of one query per trip.
type RedisLastSeen struct {
	client *redis.Client
}

// NewRedisLastSeen connects to Redis and verifies the connection.
func NewRedisLastSeen(ctx context.Context, addr, password string, dbNum int) (*RedisLastSeen, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       dbNum,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisLastSeen{client: client}, nil
}

// Close releases the underlying client.
func (r *RedisLastSeen) Close() error {
	return r.client.Close()
}

// Touch records ts as the session's most recent sample time.
func (r *RedisLastSeen) Touch(ctx context.Context, sessionID string, ts time.Time) error {
	key := lastSeenKey(sessionID)
	return r.client.Set(ctx, key, strconv.FormatInt(ts.UnixMilli(), 10), lastSeenTTL).Err()
}

// Batch returns last-seen times for the given sessions in one MGET. Sessions
// with no entry (expired or never seen) are absent from the result.
func (r *RedisLastSeen) Batch(ctx context.Context, sessionIDs []string) (map[string]time.Time, error) {
	if len(sessionIDs) == 0 {
		return map[string]time.Time{}, nil
	}
	keys := make([]string, len(sessionIDs))
	for i, id := range sessionIDs {
		keys[i] = lastSeenKey(id)
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("lastseen mget failed: %w", err)
	}
	out := make(map[string]time.Time, len(sessionIDs))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			continue
		}
		out[sessionIDs[i]] = time.UnixMilli(ms).UTC()
	}
	return out, nil
}

func lastSeenKey(sessionID string) string {
	return fmt.Sprintf("session:%s:lastseen", sessionID)
}
