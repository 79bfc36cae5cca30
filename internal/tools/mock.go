package tools

import (
	"context"
	"fmt"
	"sync"
)

// MockClient implements Client for tests with scripted call results.
type MockClient struct {
	mu      sync.Mutex
	tools   []ToolDesc
	results map[string]*Result
	listErr error
	callErr error
	calls   []MockCall
}

// MockCall records one Call invocation.
type MockCall struct {
	Tool   string
	Params map[string]any
}

// NewMockClient creates a mock exposing the given tool names.
func NewMockClient(toolNames ...string) *MockClient {
	descs := make([]ToolDesc, 0, len(toolNames))
	for _, name := range toolNames {
		descs = append(descs, ToolDesc{Name: name})
	}
	return &MockClient{tools: descs, results: make(map[string]*Result)}
}

// ResultFor scripts the result returned for calls to tool.
func (m *MockClient) ResultFor(tool string, result *Result) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[tool] = result
	return m
}

// FailList makes ListTools return err.
func (m *MockClient) FailList(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listErr = err
}

// FailCalls makes Call return err.
func (m *MockClient) FailCalls(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callErr = err
}

// Calls returns every recorded invocation.
func (m *MockClient) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *MockClient) ListTools(ctx context.Context) ([]ToolDesc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]ToolDesc, len(m.tools))
	copy(out, m.tools)
	return out, nil
}

func (m *MockClient) Call(ctx context.Context, tool string, params map[string]any) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Tool: tool, Params: params})
	if m.callErr != nil {
		return nil, m.callErr
	}
	if r, ok := m.results[tool]; ok {
		return r, nil
	}
	return &Result{Success: true, Data: fmt.Sprintf("mock result for %s", tool)}, nil
}
