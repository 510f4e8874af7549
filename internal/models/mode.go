package models

// PowerMode is the closed set of propulsion modes a hybrid drivetrain reports.
type PowerMode int

const (
	// ModeElectric: traction from the battery alone, engine stopped.
	ModeElectric PowerMode = iota
	// ModeEngineAssist: engine running and contributing propulsion or charge.
	ModeEngineAssist
	// ModeEngineDirect: engine running at road speed with negligible battery draw.
	ModeEngineDirect
)

// String returns the wire name of the mode.
func (m PowerMode) String() string {
	switch m {
	case ModeElectric:
		return "electric"
	case ModeEngineAssist:
		return "engine_assist"
	case ModeEngineDirect:
		return "engine_direct"
	default:
		return "unknown"
	}
}

// ClassifyPowerMode maps a rotation-rate reading onto the drivetrain mode.
// Below runningRPM the engine is considered stopped regardless of jitter;
// directRPM separates sustained highway-style direct drive from assist.
func ClassifyPowerMode(rpm, runningRPM, directRPM float64) PowerMode {
	switch {
	case rpm < runningRPM:
		return ModeElectric
	case rpm >= directRPM:
		return ModeEngineDirect
	default:
		return ModeEngineAssist
	}
}
