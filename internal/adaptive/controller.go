// Package adaptive tunes pipeline thresholds from the rolling verification
// pass-rate, keeping acceptance inside a target band.
package adaptive

import (
	"sync"

	"seedforge/internal/config"
	"seedforge/internal/logging"
	"seedforge/internal/task"
)

const (
	thresholdStep  = 0.02
	atomicityCap   = 0.95
	similarityCap  = 0.85
	thresholdFloor = 0.5
	maxBatchSize   = 20
)

// Thresholds is the adjustable pair the controller owns.
type Thresholds struct {
	Atomicity  float64
	Similarity float64
}

// Controller keeps a sliding window of verification outcomes and nudges
// thresholds per batch. It is the single writer of the thresholds; readers
// may briefly observe the previous value.
type Controller struct {
	logger logging.Logger

	mu         sync.Mutex
	window     []bool
	windowSize int
	lowBand    float64
	highBand   float64
	current    Thresholds
	onChange   func(Thresholds)
}

// NewController builds a controller seeded with the configured thresholds.
func NewController(cfg config.Config, logger logging.Logger) *Controller {
	return &Controller{
		logger:     logging.OrNop(logger),
		windowSize: cfg.SuccessRateWindowSize,
		lowBand:    cfg.PassRateLowBand,
		highBand:   cfg.PassRateHighBand,
		current: Thresholds{
			Atomicity:  cfg.AtomicityThreshold,
			Similarity: cfg.SimilarityThreshold,
		},
	}
}

// OnChange registers the listener notified after every threshold adjustment.
func (c *Controller) OnChange(fn func(Thresholds)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Thresholds returns the current pair.
func (c *Controller) Thresholds() Thresholds {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Observe records one verification outcome in the sliding window.
func (c *Controller) Observe(result task.VerificationResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.window = append(c.window, result.Recommendation == task.RecommendAccept)
	if len(c.window) > c.windowSize {
		c.window = c.window[len(c.window)-c.windowSize:]
	}
}

// ObserveBatch records a batch of outcomes and then adjusts thresholds once.
func (c *Controller) ObserveBatch(results []task.VerificationResult) Thresholds {
	for _, r := range results {
		c.Observe(r)
	}
	return c.Adjust()
}

// PassRate is the accept fraction over the current window; 0 when empty.
func (c *Controller) PassRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.passRateLocked()
}

func (c *Controller) passRateLocked() float64 {
	if len(c.window) == 0 {
		return 0
	}
	accepted := 0
	for _, ok := range c.window {
		if ok {
			accepted++
		}
	}
	return float64(accepted) / float64(len(c.window))
}

// Adjust nudges both thresholds when the pass-rate leaves the band. Called
// once per completed batch.
func (c *Controller) Adjust() Thresholds {
	c.mu.Lock()
	if len(c.window) == 0 {
		defer c.mu.Unlock()
		return c.current
	}
	rate := c.passRateLocked()
	before := c.current
	switch {
	case rate > c.highBand:
		c.current.Atomicity = min(c.current.Atomicity+thresholdStep, atomicityCap)
		c.current.Similarity = min(c.current.Similarity+thresholdStep, similarityCap)
	case rate < c.lowBand:
		c.current.Atomicity = max(c.current.Atomicity-thresholdStep, thresholdFloor)
		c.current.Similarity = max(c.current.Similarity-thresholdStep, thresholdFloor)
	}
	after := c.current
	notify := c.onChange
	c.mu.Unlock()

	if after != before {
		c.logger.Info("adaptive: pass-rate %.2f, thresholds %.2f/%.2f -> %.2f/%.2f",
			rate, before.Atomicity, before.Similarity, after.Atomicity, after.Similarity)
		if notify != nil {
			notify(after)
		}
	}
	return after
}

// BatchSize scales linearly with queue depth, clamped to [1, 20].
func BatchSize(queueDepth int64) int {
	size := int(queueDepth / 5)
	if size < 1 {
		return 1
	}
	if size > maxBatchSize {
		return maxBatchSize
	}
	return size
}
