package tools

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

const defaultToolTimeout = 60 * time.Second

// HTTPClient dispatches tool calls to an MCP-style HTTP gateway. The gateway
// fronts the actual tool servers (browser, sandbox, deep-search) and exposes
// two endpoints: GET /tools for the catalog and POST /tools/call for dispatch.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	logger     logging.Logger
}

// NewHTTPClient connects to the tool gateway at baseURL.
func NewHTTPClient(baseURL string, timeout time.Duration, logger logging.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = defaultToolTimeout
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.OrNop(logger),
	}
}

// ListTools fetches the live catalog from the gateway.
func (c *HTTPClient) ListTools(ctx context.Context) ([]ToolDesc, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tools", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list tools: HTTP %d", resp.StatusCode)
	}

	var parsed struct {
		Tools []ToolDesc `json:"tools"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		// some gateways return the bare array
		var bare []ToolDesc
		if err2 := json.Unmarshal(body, &bare); err2 == nil {
			return bare, nil
		}
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return parsed.Tools, nil
}

type callRequest struct {
	Tool   string         `json:"tool"`
	Params map[string]any `json:"params,omitempty"`
}

// Call dispatches one tool invocation. Gateway-level failures (unreachable,
// non-200) come back as errors; tool-level failures come back as a Result
// with Success false so callers can distinguish the two.
func (c *HTTPClient) Call(ctx context.Context, tool string, params map[string]any) (*Result, error) {
	body, err := json.Marshal(callRequest{Tool: tool, Params: params})
	if err != nil {
		return nil, fmt.Errorf("marshal call: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tools/call", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", tool, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", tool, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("call %s: HTTP %d", tool, resp.StatusCode)
	}

	var result Result
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", tool, err)
	}
	c.logger.Debug("tool %s: success=%v latency=%v", tool, result.Success, time.Since(start).Round(time.Millisecond))
	return &result, nil
}
