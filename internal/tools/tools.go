// Package tools defines the tool-dispatch port the pipeline consumes plus a
// cached view of the live tool catalog. The actual MCP servers (browser,
// sandbox, deep-search) live outside this repo.
package tools

import "context"

// ActionDesc describes one action exposed by a tool.
type ActionDesc struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params,omitempty"`
}

// ToolDesc describes one tool in the live catalog.
type ToolDesc struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Actions     []ActionDesc `json:"actions,omitempty"`
}

// Result is the outcome of a single tool call.
type Result struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Client is the tool-dispatch port. Implementations must honor ctx deadlines.
type Client interface {
	ListTools(ctx context.Context) ([]ToolDesc, error)
	Call(ctx context.Context, tool string, params map[string]any) (*Result, error)
}

// Realistic tool names the question-synthesis quality gate accepts. The live
// catalog always wins; this set only backs candidate validation when a tool
// is declared but the catalog is unreachable.
var knownRealisticTools = map[string]struct{}{
	"web_search":      {},
	"deepsearch":      {},
	"browser":         {},
	"python_executor": {},
	"code_executor":   {},
	"calculator":      {},
	"file_reader":     {},
}

// IsRealisticTool reports whether name belongs to the known realistic set.
func IsRealisticTool(name string) bool {
	_, ok := knownRealisticTools[name]
	return ok
}

// fallbackMapping substitutes tools the LLM likes to invent with catalog
// equivalents.
var fallbackMapping = map[string]string{
	"content-analyzer": "deepsearch",
	"content_analyzer": "deepsearch",
	"search-tool":      "web_search",
	"search_tool":      "web_search",
}

// Fallback returns the substitute for an unknown tool name, or "" when none
// is mapped.
func Fallback(name string) string {
	return fallbackMapping[name]
}
