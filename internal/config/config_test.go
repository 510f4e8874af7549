package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, 400.0, cfg.EngineRunningRPM)
	assert.Equal(t, 3, cfg.HysteresisLen)
	assert.Equal(t, 4.0, cfg.RefuelRisePct)
	assert.Equal(t, 20*time.Minute, cfg.StaleTimeout)
	assert.Equal(t, 2, cfg.EnrichmentAttempts)
	assert.Equal(t, 999.0, cfg.FuelEconomyCeiling)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("HYSTERESIS_SAMPLES", "5")
	t.Setenv("STALE_TIMEOUT", "30m")
	t.Setenv("ENGINE_RUNNING_RPM", "450.5")
	cfg := Load()
	assert.Equal(t, 5, cfg.HysteresisLen)
	assert.Equal(t, 30*time.Minute, cfg.StaleTimeout)
	assert.Equal(t, 450.5, cfg.EngineRunningRPM)
}

func TestLoadIgnoresMalformedEnv(t *testing.T) {
	t.Setenv("HYSTERESIS_SAMPLES", "lots")
	t.Setenv("STALE_TIMEOUT", "soon")
	cfg := Load()
	assert.Equal(t, 3, cfg.HysteresisLen)
	assert.Equal(t, 20*time.Minute, cfg.StaleTimeout)
}
