package detector

import (
	"time"

	"github.com/ukydev/trip-engine/internal/models"
)

// fuelNoiseEps is the jitter band of the fuel-level sender. Drops inside this
// band after a fill-up are noise, not resumed consumption.
const fuelNoiseEps = 2.0

// FuelSmoother applies a decrease-biased moving window to the raw fuel-level
// signal. Sender jitter of a point or two must not read as consumption, so
// the smoothed value only moves down; it is reset upward explicitly when a
// refuel is confirmed.
type FuelSmoother struct {
	size   int
	window []float64
	last   *float64
}

// NewFuelSmoother builds a smoother over a window of size samples.
func NewFuelSmoother(size int) *FuelSmoother {
	if size < 1 {
		size = 1
	}
	return &FuelSmoother{size: size}
}

// Push feeds one raw reading and returns the smoothed level.
func (f *FuelSmoother) Push(raw float64) float64 {
	f.window = append(f.window, raw)
	if len(f.window) > f.size {
		f.window = f.window[1:]
	}
	m := mean(f.window)
	if f.last == nil || m < *f.last {
		v := m
		f.last = &v
	}
	return *f.last
}

// Level returns the current smoothed level, or false before any reading.
func (f *FuelSmoother) Level() (float64, bool) {
	if f.last == nil {
		return 0, false
	}
	return *f.last, true
}

// Reset re-seeds the smoother at level, discarding window history. Called
// after a confirmed refuel so the new, higher level becomes the baseline.
func (f *FuelSmoother) Reset(level float64) {
	f.window = f.window[:0]
	f.window = append(f.window, level)
	f.last = &level
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// RefuelDetector watches the unsmoothed fuel-level signal for a rise that
// cannot be sensor noise. Multi-sample fill-ups are coalesced: the event spans
// from the level before the first rise to the peak of the last rise inside
// the window. Detector state resets after each emitted event.
type RefuelDetector struct {
	risePct float64
	window  time.Duration

	baseline  *float64 // lowest level seen since the last event
	pending   *models.RefuelEvent
	riseStart time.Time
}

// NewRefuelDetector builds a detector that fires on an unsmoothed rise above
// risePct within window.
func NewRefuelDetector(risePct float64, window time.Duration) *RefuelDetector {
	return &RefuelDetector{risePct: risePct, window: window}
}

// Observe feeds one raw reading with its timestamp and odometer. It returns a
// finished RefuelEvent when a previously detected fill-up is complete, nil
// otherwise.
func (d *RefuelDetector) Observe(ts time.Time, odometer, level float64) *models.RefuelEvent {
	if d.pending != nil {
		// Extend the fill-up while the level keeps climbing inside the window.
		if ts.Sub(d.riseStart) <= d.window && level >= d.pending.LevelAfter-fuelNoiseEps {
			if level > d.pending.LevelAfter {
				d.pending.LevelAfter = level
				d.pending.Timestamp = ts
				d.pending.Odometer = odometer
			}
			return nil
		}
		// Window elapsed or consumption resumed: the event is complete.
		ev := d.pending
		d.reset(level)
		return ev
	}

	if d.baseline == nil || level < *d.baseline {
		v := level
		d.baseline = &v
		return nil
	}
	if level-*d.baseline > d.risePct {
		d.pending = &models.RefuelEvent{
			Timestamp:   ts,
			Odometer:    odometer,
			LevelBefore: *d.baseline,
			LevelAfter:  level,
		}
		d.riseStart = ts
	}
	return nil
}

// Flush returns the in-progress event, if any, and resets the detector. The
// trip engine calls this at session end so a fill-up right before shutdown is
// not lost.
func (d *RefuelDetector) Flush() *models.RefuelEvent {
	ev := d.pending
	if ev != nil {
		d.reset(ev.LevelAfter)
	}
	return ev
}

func (d *RefuelDetector) reset(level float64) {
	v := level
	d.baseline = &v
	d.pending = nil
}
