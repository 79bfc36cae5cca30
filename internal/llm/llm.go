// Package llm defines the completion port the synthesis pipeline consumes and
// an OpenAI-compatible HTTP client implementing it. Provider wire protocols
// beyond the chat-completions shape live outside this repo.
package llm

import "context"

// Message represents a conversation message.
type Message struct {
	Role    string `json:"role"` // "system", "user" or "assistant"
	Content string `json:"content"`
}

// CompletionRequest contains all parameters for an LLM completion.
type CompletionRequest struct {
	Messages      []Message `json:"messages"`
	Temperature   float64   `json:"temperature,omitempty"`
	MaxTokens     int       `json:"max_tokens,omitempty"`
	StopSequences []string  `json:"stop,omitempty"`
}

// TokenUsage tracks token consumption for one call. Zero usage with
// Reported=false means the provider returned no accounting and costs must be
// estimated.
type TokenUsage struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	CachedTokens     int    `json:"cached_tokens,omitempty"`
	Model            string `json:"model,omitempty"`
	Reported         bool   `json:"reported"`
}

// CompletionResponse is the LLM's response.
type CompletionResponse struct {
	Content string     `json:"content"`
	Usage   TokenUsage `json:"usage"`
}

// Client is the completion port. Implementations must honor ctx deadlines.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	Model() string
}

// UsageCallback receives token accounting after each successful call.
type UsageCallback func(usage TokenUsage, model, provider string)

// UsageTrackingClient is implemented by clients that can report usage.
type UsageTrackingClient interface {
	Client
	SetUsageCallback(cb UsageCallback)
}
