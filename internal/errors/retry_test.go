package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestRetryWithResult_SucceedsAfterTransient(t *testing.T) {
	calls := 0
	got, err := RetryWithResult(context.Background(), fastConfig(), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", NewTransientError(errors.New("rate limit"), "429 retry")
		}
		return "ok", nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
}

func TestRetryWithResult_PermanentStopsImmediately(t *testing.T) {
	calls := 0
	_, err := RetryWithResult(context.Background(), fastConfig(), func(ctx context.Context) (int, error) {
		calls++
		return 0, NewPermanentError(errors.New("bad key"), "401 unauthorized")
	}, nil)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryWithResult_ExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := RetryWithResult(context.Background(), fastConfig(), func(ctx context.Context) (int, error) {
		calls++
		return 0, NewTransientError(errors.New("boom"), "")
	}, nil)
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "max retries exceeded")
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"marked transient", NewTransientError(errors.New("x"), ""), true},
		{"marked permanent", NewPermanentError(errors.New("x"), ""), false},
		{"http 503 in message", fmt.Errorf("upstream returned 503 service unavailable"), true},
		{"http 404 in message", fmt.Errorf("HTTP 404: not found"), false},
		{"http 429 in message", fmt.Errorf("HTTP 429: too many requests"), true},
		{"deadline", context.DeadlineExceeded, true},
		{"cancelled", context.Canceled, false},
		{"plain", errors.New("some parse error"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestCalculateBackoffCapped(t *testing.T) {
	cfg := RetryConfig{BaseDelay: time.Second, MaxDelay: 3 * time.Second}
	for attempt := 0; attempt < 6; attempt++ {
		d := calculateBackoff(attempt, cfg)
		assert.LessOrEqual(t, d, cfg.MaxDelay)
		assert.Greater(t, d, time.Duration(0))
	}
}
