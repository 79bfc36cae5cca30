package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gatewayStub(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /tools", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"tools": []ToolDesc{
				{Name: "web_search", Description: "search the web"},
				{Name: "python_executor"},
			},
		})
	})
	mux.HandleFunc("POST /tools/call", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Tool   string         `json:"tool"`
			Params map[string]any `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		switch req.Tool {
		case "web_search":
			_ = json.NewEncoder(w).Encode(Result{Success: true, Data: "AAPL closed at 198.11"})
		case "broken":
			_ = json.NewEncoder(w).Encode(Result{Success: false, Error: "upstream timeout"})
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPClientListTools(t *testing.T) {
	srv := gatewayStub(t)
	c := NewHTTPClient(srv.URL, time.Second, nil)

	tools, err := c.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, "web_search", tools[0].Name)
}

func TestHTTPClientCall(t *testing.T) {
	srv := gatewayStub(t)
	c := NewHTTPClient(srv.URL, time.Second, nil)

	res, err := c.Call(context.Background(), "web_search", map[string]any{"query": "AAPL close"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "AAPL closed at 198.11", res.Data)
}

func TestHTTPClientToolFailureIsNotAnError(t *testing.T) {
	srv := gatewayStub(t)
	c := NewHTTPClient(srv.URL, time.Second, nil)

	res, err := c.Call(context.Background(), "broken", nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "upstream timeout", res.Error)
}

func TestHTTPClientGatewayErrorPropagates(t *testing.T) {
	srv := gatewayStub(t)
	c := NewHTTPClient(srv.URL, time.Second, nil)

	_, err := c.Call(context.Background(), "unknown", nil)
	assert.Error(t, err)
}

func TestHTTPClientUnreachable(t *testing.T) {
	c := NewHTTPClient("http://127.0.0.1:1", 200*time.Millisecond, nil)
	_, err := c.ListTools(context.Background())
	assert.Error(t, err)
}
