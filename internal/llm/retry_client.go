package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	sferrors "seedforge/internal/errors"
	"seedforge/internal/logging"
)

// retryClient wraps a Client with transient-error retry logic.
type retryClient struct {
	underlying  Client
	retryConfig sferrors.RetryConfig
	logger      logging.Logger
}

// NewRetryClient wraps an LLM client with retry logic. Each synthesis phase
// gets up to two retries with exponential backoff; exhaustion surfaces as an
// error so the caller can drop the affected candidate.
func NewRetryClient(client Client, retryConfig sferrors.RetryConfig) Client {
	return &retryClient{
		underlying:  client,
		retryConfig: retryConfig,
		logger:      logging.NewComponentLogger("llm-retry"),
	}
}

func (c *retryClient) Model() string {
	return c.underlying.Model()
}

func (c *retryClient) SetUsageCallback(cb UsageCallback) {
	if tracking, ok := c.underlying.(UsageTrackingClient); ok {
		tracking.SetUsageCallback(cb)
	}
}

func (c *retryClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()
	resp, err := sferrors.RetryWithResult(ctx, c.retryConfig, func(ctx context.Context) (*CompletionResponse, error) {
		response, err := c.underlying.Complete(ctx, req)
		if err != nil {
			return nil, classifyLLMError(err)
		}
		return response, nil
	}, c.logger)
	if err != nil {
		c.logger.Warn("LLM request failed after retries (took %v): %v", time.Since(start).Round(time.Millisecond), err)
		return nil, err
	}
	return resp, nil
}

// classifyLLMError maps provider failures to transient/permanent for retry
// decisions.
func classifyLLMError(err error) error {
	if err == nil {
		return nil
	}

	var httpErr *HTTPStatusError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == 429:
			return sferrors.NewTransientError(err, "API rate limit reached, backing off")
		case httpErr.StatusCode >= 500:
			return sferrors.NewTransientError(err, "provider server error, retrying")
		case httpErr.StatusCode == 401 || httpErr.StatusCode == 403:
			return sferrors.NewPermanentError(err, "authentication or permission failure")
		case httpErr.StatusCode == 404:
			return sferrors.NewPermanentError(err, "model or endpoint not found")
		default:
			return sferrors.NewPermanentError(err, "")
		}
	}

	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "deadline exceeded"):
		return sferrors.NewTransientError(err, "request timed out, retrying")
	case strings.Contains(lower, "connection refused"),
		strings.Contains(lower, "connection reset"),
		strings.Contains(lower, "broken pipe"):
		return sferrors.NewTransientError(err, "connection failure, retrying")
	}
	return err
}
