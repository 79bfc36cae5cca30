package queue

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Auxiliary key-value state: per-session metrics (30 d TTL), global
// cumulative metrics (no TTL), cached verification results (7 d TTL) and the
// prompt-template success index.

func sessionMetricsKey(sessionID string) string {
	return "synthesis:metrics:session:" + sessionID
}

const globalMetricsKey = "synthesis:metrics:global"

func verificationResultKey(taskID string) string {
	return "synthesis:verification:" + taskID
}

func promptIndexKey(phase string) string {
	return "synthesis:prompts:" + phase
}

// IncrSessionMetric increments a per-session counter and refreshes its 30-day
// TTL.
func (m *Manager) IncrSessionMetric(ctx context.Context, sessionID, field string, delta int64) error {
	key := sessionMetricsKey(sessionID)
	pipe := m.rdb.Pipeline()
	pipe.HIncrBy(ctx, key, field, delta)
	pipe.Expire(ctx, key, sessionMetricsTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("incr session metric %s/%s: %w", sessionID, field, err)
	}
	return nil
}

// IncrGlobalMetric increments a cumulative counter that never expires.
func (m *Manager) IncrGlobalMetric(ctx context.Context, field string, delta int64) error {
	if err := m.rdb.HIncrBy(ctx, globalMetricsKey, field, delta).Err(); err != nil {
		return fmt.Errorf("incr global metric %s: %w", field, err)
	}
	return nil
}

// SessionMetrics returns all counters for a session.
func (m *Manager) SessionMetrics(ctx context.Context, sessionID string) (map[string]int64, error) {
	raw, err := m.rdb.HGetAll(ctx, sessionMetricsKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("session metrics %s: %w", sessionID, err)
	}
	return parseCounters(raw), nil
}

// GlobalMetrics returns all cumulative counters.
func (m *Manager) GlobalMetrics(ctx context.Context) (map[string]int64, error) {
	raw, err := m.rdb.HGetAll(ctx, globalMetricsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("global metrics: %w", err)
	}
	return parseCounters(raw), nil
}

func parseCounters(raw map[string]string) map[string]int64 {
	out := make(map[string]int64, len(raw))
	for k, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		out[k] = n
	}
	return out
}

// StoreVerificationResult caches a verification-result record under the task
// id with a 7-day TTL.
func (m *Manager) StoreVerificationResult(ctx context.Context, taskID string, record map[string]string) error {
	key := verificationResultKey(taskID)
	pipe := m.rdb.Pipeline()
	pipe.HSet(ctx, key, toValues(record))
	pipe.Expire(ctx, key, verificationResultTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store verification result %s: %w", taskID, err)
	}
	return nil
}

// VerificationResult fetches a cached verification-result record, returning
// nil when absent or expired.
func (m *Manager) VerificationResult(ctx context.Context, taskID string) (map[string]string, error) {
	raw, err := m.rdb.HGetAll(ctx, verificationResultKey(taskID)).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch verification result %s: %w", taskID, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	return raw, nil
}

// UpdatePromptScore records the rolling success rate of a prompt template
// variant for one pipeline phase.
func (m *Manager) UpdatePromptScore(ctx context.Context, phase, template string, successRate float64) error {
	err := m.rdb.ZAdd(ctx, promptIndexKey(phase), redis.Z{Score: successRate, Member: template}).Err()
	if err != nil {
		return fmt.Errorf("update prompt score %s/%s: %w", phase, template, err)
	}
	return nil
}

// BestPrompt returns the highest-scoring template variant for a phase, or ""
// when none is recorded.
func (m *Manager) BestPrompt(ctx context.Context, phase string) (string, error) {
	members, err := m.rdb.ZRevRange(ctx, promptIndexKey(phase), 0, 0).Result()
	if err != nil {
		return "", fmt.Errorf("best prompt for %s: %w", phase, err)
	}
	if len(members) == 0 {
		return "", nil
	}
	return members[0], nil
}
