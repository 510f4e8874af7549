package ingest

import (
	"sort"
	"sync"
	"time"

	"github.com/ukydev/trip-engine/internal/models"
)

// ReorderBuffer absorbs the small timestamp reordering the transport can
// introduce. Each session holds back the newest few samples; once a sample
// has depth newer samples behind it, it is released in timestamp order.
// Duplicates of an already-released timestamp are dropped here, so the core
// only ever sees deduplicated, non-decreasing timestamps per session.
type ReorderBuffer struct {
	depth int

	mu       sync.Mutex
	pending  map[string][]models.TelemetrySample
	released map[string]time.Time
	touched  map[string]time.Time
}

// NewReorderBuffer builds a buffer that holds back up to depth samples per
// session.
func NewReorderBuffer(depth int) *ReorderBuffer {
	if depth < 1 {
		depth = 1
	}
	return &ReorderBuffer{
		depth:    depth,
		pending:  make(map[string][]models.TelemetrySample),
		released: make(map[string]time.Time),
		touched:  make(map[string]time.Time),
	}
}

// Add inserts one sample and returns the samples now ready for processing,
// oldest first.
func (b *ReorderBuffer) Add(s models.TelemetrySample) []models.TelemetrySample {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.touched[s.SessionID] = time.Now()

	if last, ok := b.released[s.SessionID]; ok && !s.Timestamp.After(last) {
		// Duplicate or too-late arrival; already released past this point.
		return nil
	}
	for _, p := range b.pending[s.SessionID] {
		if p.Timestamp.Equal(s.Timestamp) {
			return nil
		}
	}

	q := append(b.pending[s.SessionID], s)
	sort.Slice(q, func(i, j int) bool { return q[i].Timestamp.Before(q[j].Timestamp) })

	if len(q) <= b.depth {
		b.pending[s.SessionID] = q
		return nil
	}
	ready := make([]models.TelemetrySample, len(q)-b.depth)
	copy(ready, q[:len(q)-b.depth])
	b.pending[s.SessionID] = append(b.pending[s.SessionID][:0], q[len(q)-b.depth:]...)
	b.released[s.SessionID] = ready[len(ready)-1].Timestamp
	return ready
}

// Flush drains a session's held samples, oldest first. Called on the
// end-of-trip signal.
func (b *ReorderBuffer) Flush(sessionID string) []models.TelemetrySample {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.pending[sessionID]
	delete(b.pending, sessionID)
	delete(b.released, sessionID)
	delete(b.touched, sessionID)
	return q
}

// Sweep drains and forgets every session that has received no sample since
// cutoff. Sessions that end without an explicit end signal never get a Flush;
// this is how their tail samples still reach the store, and how idle map
// entries are reclaimed. Returns the drained samples per session, oldest
// first.
func (b *ReorderBuffer) Sweep(cutoff time.Time) map[string][]models.TelemetrySample {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out map[string][]models.TelemetrySample
	for sessionID, at := range b.touched {
		if !at.Before(cutoff) {
			continue
		}
		if q := b.pending[sessionID]; len(q) > 0 {
			if out == nil {
				out = make(map[string][]models.TelemetrySample)
			}
			out[sessionID] = q
		}
		delete(b.pending, sessionID)
		delete(b.released, sessionID)
		delete(b.touched, sessionID)
	}
	return out
}
