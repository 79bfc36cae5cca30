package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultValues(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 3, cfg.MaxHops)
	assert.Equal(t, 2, cfg.MinGroupSize)
	assert.Equal(t, 3, cfg.MaxGroupSize)
	assert.InDelta(t, 0.6, cfg.SimilarityThreshold, 1e-9)
	assert.InDelta(t, 0.8, cfg.AtomicityThreshold, 1e-9)
	assert.InDelta(t, 0.75, cfg.QualityThreshold, 1e-9)
	assert.Equal(t, 4, cfg.ParallelWorkers)
	assert.Equal(t, 5, cfg.MaxConcurrentVerifications)
	assert.Equal(t, 100, cfg.SuccessRateWindowSize)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MAX_HOPS", "5")
	t.Setenv("SIMILARITY_THRESHOLD", "0.7")
	cfg := Load(nil)
	assert.Equal(t, 5, cfg.MaxHops)
	assert.InDelta(t, 0.7, cfg.SimilarityThreshold, 1e-9)
	// untouched knobs keep defaults
	assert.Equal(t, 3, cfg.MaxGroupSize)
}

func TestSanitizeRestoresDefaults(t *testing.T) {
	t.Setenv("MAX_HOPS", "0")
	t.Setenv("ATOMICITY_THRESHOLD", "7.5")
	cfg := Load(nil)
	assert.Equal(t, 3, cfg.MaxHops)
	assert.InDelta(t, 0.8, cfg.AtomicityThreshold, 1e-9)
}
