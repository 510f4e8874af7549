package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyPowerMode(t *testing.T) {
	assert.Equal(t, ModeElectric, ClassifyPowerMode(0, 400, 1800))
	assert.Equal(t, ModeElectric, ClassifyPowerMode(399, 400, 1800))
	assert.Equal(t, ModeEngineAssist, ClassifyPowerMode(400, 400, 1800))
	assert.Equal(t, ModeEngineAssist, ClassifyPowerMode(1200, 400, 1800))
	assert.Equal(t, ModeEngineDirect, ClassifyPowerMode(1800, 400, 1800))
	assert.Equal(t, ModeEngineDirect, ClassifyPowerMode(3000, 400, 1800))
}

func TestPowerModeString(t *testing.T) {
	assert.Equal(t, "electric", ModeElectric.String())
	assert.Equal(t, "engine_assist", ModeEngineAssist.String())
	assert.Equal(t, "engine_direct", ModeEngineDirect.String())
	assert.Equal(t, "unknown", PowerMode(42).String())
}

func TestTripHasTransitioned(t *testing.T) {
	var tr Trip
	assert.False(t, tr.HasTransitioned())
	ts := tr.StartTime
	tr.TransitionAt = &ts
	assert.True(t, tr.HasTransitioned())
}
