package detector

import (
	"github.com/ukydev/trip-engine/internal/models"
)

// ModeDetector watches a session's rotation-rate signal and declares the
// electric-to-engine transition once the rate has stayed above the running
// threshold for a full hysteresis run. A single qualifying sample is treated
// as a glitch; once a transition is declared the detector goes inert for the
// remainder of the trip.
type ModeDetector struct {
	runningRPM float64
	runLen     int

	run   []models.TelemetrySample // current streak of qualifying samples
	fired bool
}

// NewModeDetector builds a detector with the given threshold and minimum run
// of consecutive qualifying samples.
func NewModeDetector(runningRPM float64, runLen int) *ModeDetector {
	if runLen < 1 {
		runLen = 1
	}
	return &ModeDetector{runningRPM: runningRPM, runLen: runLen}
}

// Observe feeds one sample. When the hysteresis run completes it returns the
// transition event built from the *first* sample of the run; every other call
// returns nil. After firing once, Observe always returns nil.
func (d *ModeDetector) Observe(s models.TelemetrySample) *models.ModeTransitionEvent {
	if d.fired {
		return nil
	}
	if s.EngineRPM < d.runningRPM {
		d.run = d.run[:0]
		return nil
	}
	d.run = append(d.run, s)
	if len(d.run) < d.runLen {
		return nil
	}
	d.fired = true
	first := d.run[0]
	d.run = nil
	return &models.ModeTransitionEvent{
		SessionID:   first.SessionID,
		Timestamp:   first.Timestamp,
		SoC:         first.SoC,
		AmbientTemp: first.AmbientTemp,
		EngineRPM:   first.EngineRPM,
	}
}

// Fired reports whether the transition has been declared.
func (d *ModeDetector) Fired() bool {
	return d.fired
}
