package llm

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrMockFailure is a reusable sentinel for failure-path tests.
var ErrMockFailure = errors.New("mock llm failure")

// MockClient implements Client for tests. Responses are matched in
// registration order by a substring of the last user message; unmatched
// requests fall back to the default response.
type MockClient struct {
	mu       sync.Mutex
	rules    []mockRule
	fallback string
	calls    []CompletionRequest
	err      error
	usage    TokenUsage
	cb       UsageCallback
}

type mockRule struct {
	substring string
	response  string
}

// NewMockClient creates a mock that answers every request with fallback.
func NewMockClient(fallback string) *MockClient {
	return &MockClient{
		fallback: fallback,
		usage:    TokenUsage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150, Reported: true},
	}
}

// Respond registers a canned response for prompts containing substring.
func (m *MockClient) Respond(substring, response string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{substring: substring, response: response})
	return m
}

// Fail makes every subsequent call return err.
func (m *MockClient) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetUsage overrides the usage reported on each call.
func (m *MockClient) SetUsage(usage TokenUsage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage = usage
}

// Calls returns a copy of every request seen so far.
func (m *MockClient) Calls() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CompletionRequest, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of completions requested.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *MockClient) Model() string {
	return "mock-model"
}

func (m *MockClient) SetUsageCallback(cb UsageCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cb = cb
}

func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.calls = append(m.calls, req)
	err := m.err
	usage := m.usage
	content := m.fallback
	prompt := strings.ToLower(lastUserContent(req))
	for _, rule := range m.rules {
		if rule.substring != "" && strings.Contains(prompt, strings.ToLower(rule.substring)) {
			content = rule.response
			break
		}
	}
	cb := m.cb
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if cb != nil {
		cb(usage, "mock-model", "mock")
	}
	return &CompletionResponse{Content: content, Usage: usage}, nil
}

func lastUserContent(req CompletionRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			return req.Messages[i].Content
		}
	}
	if len(req.Messages) > 0 {
		return req.Messages[len(req.Messages)-1].Content
	}
	return ""
}
