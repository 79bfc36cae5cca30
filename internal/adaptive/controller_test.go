package adaptive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seedforge/internal/config"
	"seedforge/internal/task"
)

func results(accepts, rejects int) []task.VerificationResult {
	out := make([]task.VerificationResult, 0, accepts+rejects)
	for i := 0; i < accepts; i++ {
		out = append(out, task.VerificationResult{Recommendation: task.RecommendAccept})
	}
	for i := 0; i < rejects; i++ {
		out = append(out, task.VerificationResult{Recommendation: task.RecommendReject})
	}
	return out
}

func TestHighPassRateTightensThresholds(t *testing.T) {
	c := NewController(config.Default(), nil)

	got := c.ObserveBatch(results(92, 8))
	assert.InDelta(t, 0.92, c.PassRate(), 1e-9)
	assert.InDelta(t, 0.82, got.Atomicity, 1e-9)
	assert.InDelta(t, 0.62, got.Similarity, 1e-9)
}

func TestLowPassRateLoosensThresholds(t *testing.T) {
	c := NewController(config.Default(), nil)

	got := c.ObserveBatch(results(30, 70))
	assert.InDelta(t, 0.78, got.Atomicity, 1e-9)
	assert.InDelta(t, 0.58, got.Similarity, 1e-9)
}

func TestInBandLeavesThresholdsAlone(t *testing.T) {
	c := NewController(config.Default(), nil)

	got := c.ObserveBatch(results(70, 30))
	assert.InDelta(t, 0.80, got.Atomicity, 1e-9)
	assert.InDelta(t, 0.60, got.Similarity, 1e-9)
}

func TestThresholdsRespectCapsAndFloors(t *testing.T) {
	c := NewController(config.Default(), nil)

	// push up far beyond the caps
	for i := 0; i < 50; i++ {
		c.ObserveBatch(results(100, 0))
	}
	got := c.Thresholds()
	assert.InDelta(t, 0.95, got.Atomicity, 1e-9)
	assert.InDelta(t, 0.85, got.Similarity, 1e-9)

	// then down far below the floor
	for i := 0; i < 100; i++ {
		c.ObserveBatch(results(0, 100))
	}
	got = c.Thresholds()
	assert.InDelta(t, 0.5, got.Atomicity, 1e-9)
	assert.InDelta(t, 0.5, got.Similarity, 1e-9)
}

func TestSlidingWindowEvictsOldOutcomes(t *testing.T) {
	c := NewController(config.Default(), nil)

	c.ObserveBatch(results(0, 100))
	require.InDelta(t, 0.0, c.PassRate(), 1e-9)

	// a full window of accepts displaces every reject
	for _, r := range results(100, 0) {
		c.Observe(r)
	}
	assert.InDelta(t, 1.0, c.PassRate(), 1e-9)
}

func TestAdjustOnEmptyWindowIsNoOp(t *testing.T) {
	c := NewController(config.Default(), nil)
	got := c.Adjust()
	assert.InDelta(t, 0.80, got.Atomicity, 1e-9)
}

func TestOnChangeNotified(t *testing.T) {
	c := NewController(config.Default(), nil)

	var seen []Thresholds
	c.OnChange(func(th Thresholds) { seen = append(seen, th) })

	c.ObserveBatch(results(95, 5))
	require.Len(t, seen, 1)
	assert.InDelta(t, 0.82, seen[0].Atomicity, 1e-9)

	// in-band batch produces no notification
	c.ObserveBatch(results(0, 200)) // drags rate below band -> one more change
	assert.Len(t, seen, 2)
}

func TestBatchSizeClamp(t *testing.T) {
	assert.Equal(t, 1, BatchSize(0))
	assert.Equal(t, 1, BatchSize(4))
	assert.Equal(t, 2, BatchSize(10))
	assert.Equal(t, 20, BatchSize(100))
	assert.Equal(t, 20, BatchSize(100000))
}

func TestModifyCountsAsNotAccepted(t *testing.T) {
	c := NewController(config.Default(), nil)
	c.Observe(task.VerificationResult{Recommendation: task.RecommendModify})
	assert.InDelta(t, 0.0, c.PassRate(), 1e-9)
}
