package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukydev/trip-engine/internal/models"
)

func sample(session string, ts time.Time) models.TelemetrySample {
	return models.TelemetrySample{SessionID: session, Timestamp: ts}
}

func TestReorderBuffer_ReleasesInTimestampOrder(t *testing.T) {
	b := NewReorderBuffer(2)
	start := time.Now()

	// Out-of-order arrival: t2 before t1.
	var released []models.TelemetrySample
	released = append(released, b.Add(sample("s", start.Add(2*time.Second)))...)
	released = append(released, b.Add(sample("s", start.Add(1*time.Second)))...)
	released = append(released, b.Add(sample("s", start.Add(3*time.Second)))...)
	released = append(released, b.Add(sample("s", start.Add(4*time.Second)))...)

	require.Len(t, released, 2)
	assert.Equal(t, start.Add(1*time.Second), released[0].Timestamp)
	assert.Equal(t, start.Add(2*time.Second), released[1].Timestamp)

	rest := b.Flush("s")
	require.Len(t, rest, 2)
	assert.Equal(t, start.Add(3*time.Second), rest[0].Timestamp)
	assert.Equal(t, start.Add(4*time.Second), rest[1].Timestamp)
}

func TestReorderBuffer_DropsDuplicates(t *testing.T) {
	b := NewReorderBuffer(1)
	ts := time.Now()

	assert.Nil(t, b.Add(sample("s", ts)))
	assert.Nil(t, b.Add(sample("s", ts))) // duplicate while pending

	released := b.Add(sample("s", ts.Add(time.Second)))
	require.Len(t, released, 1)

	// Duplicate of an already-released timestamp is dropped too.
	assert.Nil(t, b.Add(sample("s", ts)))
	rest := b.Flush("s")
	require.Len(t, rest, 1)
	assert.Equal(t, ts.Add(time.Second), rest[0].Timestamp)
}

func TestReorderBuffer_SessionsAreIndependent(t *testing.T) {
	b := NewReorderBuffer(2)
	ts := time.Now()

	for i := 0; i < 3; i++ {
		b.Add(sample("a", ts.Add(time.Duration(i)*time.Second)))
	}
	// Session b is unaffected by a's releases.
	assert.Nil(t, b.Add(sample("b", ts)))
	assert.Len(t, b.Flush("b"), 1)
	assert.Len(t, b.Flush("a"), 2)
}

func TestReorderBuffer_SweepDrainsIdleSessions(t *testing.T) {
	b := NewReorderBuffer(4)
	start := time.Now()

	// Six samples: two released, four held back with no end signal coming.
	var released []models.TelemetrySample
	for i := 0; i < 6; i++ {
		released = append(released, b.Add(sample("stale", start.Add(time.Duration(i)*time.Second)))...)
	}
	require.Len(t, released, 2)

	// Nothing is idle yet.
	assert.Nil(t, b.Sweep(start.Add(-time.Hour)))

	// Once the session has gone silent, the tail is released in order and the
	// session's state is forgotten.
	drained := b.Sweep(time.Now().Add(time.Minute))
	require.Len(t, drained, 1)
	tail := drained["stale"]
	require.Len(t, tail, 4)
	assert.Equal(t, start.Add(2*time.Second), tail[0].Timestamp)
	assert.Equal(t, start.Add(5*time.Second), tail[3].Timestamp)

	assert.Nil(t, b.Sweep(time.Now().Add(time.Minute)))
	assert.Empty(t, b.Flush("stale"))
}

func TestReorderBuffer_SweepSparesActiveSessions(t *testing.T) {
	b := NewReorderBuffer(4)
	ts := time.Now()

	b.Add(sample("active", ts))
	assert.Nil(t, b.Sweep(time.Now().Add(-time.Minute)))
	require.Len(t, b.Flush("active"), 1)
}

func TestSessionFromTopic(t *testing.T) {
	assert.Equal(t, "abc-123", sessionFromTopic("telemetry/sample/abc-123"))
	assert.Equal(t, "abc-123", sessionFromTopic("telemetry/end/abc-123"))
}
