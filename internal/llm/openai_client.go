package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"seedforge/internal/logging"
)

// Config configures an HTTP-based LLM client.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	Headers map[string]string
}

// OpenAIClient speaks the chat-completions protocol. DeepSeek and vLLM expose
// the same shape, so one client covers all OpenAI-compatible providers.
type OpenAIClient struct {
	model         string
	apiKey        string
	baseURL       string
	httpClient    *http.Client
	logger        logging.Logger
	headers       map[string]string
	usageCallback UsageCallback
}

// NewOpenAIClient constructs a client for an OpenAI-compatible endpoint.
func NewOpenAIClient(model string, cfg Config) *OpenAIClient {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &OpenAIClient{
		model:      model,
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NewComponentLogger("llm-openai"),
		headers:    cfg.Headers,
	}
}

// Model returns the model name used by this client.
func (c *OpenAIClient) Model() string {
	return c.model
}

// SetUsageCallback registers a callback fired after each successful completion.
func (c *OpenAIClient) SetUsageCallback(cb UsageCallback) {
	c.usageCallback = cb
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stop        []string  `json:"stop,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens        int `json:"prompt_tokens"`
		CompletionTokens    int `json:"completion_tokens"`
		TotalTokens         int `json:"total_tokens"`
		PromptTokensDetails *struct {
			CachedTokens int `json:"cached_tokens"`
		} `json:"prompt_tokens_details"`
	} `json:"usage"`
}

// Complete sends a chat-completions request and returns the first choice.
func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stop:        req.StopSequences,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, NewHTTPStatusError(resp.StatusCode, resp.Status, string(respBody))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("response contains no choices")
	}

	result := &CompletionResponse{Content: parsed.Choices[0].Message.Content}
	if parsed.Usage != nil {
		result.Usage = TokenUsage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
			Model:            parsed.Model,
			Reported:         true,
		}
		if parsed.Usage.PromptTokensDetails != nil {
			result.Usage.CachedTokens = parsed.Usage.PromptTokensDetails.CachedTokens
		}
	}
	if result.Usage.Model == "" {
		result.Usage.Model = c.model
	}

	c.logger.Debug("completion ok: model=%s tokens=%d+%d latency=%v",
		c.model, result.Usage.PromptTokens, result.Usage.CompletionTokens, time.Since(start).Round(time.Millisecond))

	if c.usageCallback != nil {
		c.usageCallback(result.Usage, c.model, "openai")
	}
	return result, nil
}

// HTTPStatusError represents an HTTP error with status code.
type HTTPStatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Status)
}

// NewHTTPStatusError creates an HTTP status error.
func NewHTTPStatusError(statusCode int, status, body string) error {
	return &HTTPStatusError{StatusCode: statusCode, Status: status, Body: body}
}
