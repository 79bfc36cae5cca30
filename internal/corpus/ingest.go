// Package corpus turns agent trajectories and externally fetched documents
// into normalized, quality-gated corpus content for downstream task synthesis.
package corpus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"seedforge/internal/logging"
	"seedforge/internal/task"
	"seedforge/internal/tools"
)

// Ingestor converts trajectories into CorpusContent. The tool client is
// optional; without it external ingestion is unavailable.
type Ingestor struct {
	tools  tools.Client
	logger logging.Logger
}

// NewIngestor builds an ingestor. toolClient may be nil.
func NewIngestor(toolClient tools.Client, logger logging.Logger) *Ingestor {
	return &Ingestor{tools: toolClient, logger: logging.OrNop(logger)}
}

// IngestTrajectories emits one corpus entry per trajectory final result plus
// one per step whose observation survives extraction and the quality gate.
// Per-step failures are logged and skipped; a trajectory is never aborted.
func (ing *Ingestor) IngestTrajectories(trajs []task.Trajectory) []task.CorpusContent {
	var out []task.CorpusContent
	for _, traj := range trajs {
		if len(traj.FinalResult) >= 30 {
			if content, ok := ing.makeContent(traj.ID, task.ContentTrajectoryFinal, traj.FinalResult, map[string]any{
				"trajectory_id": traj.ID,
				"success":       traj.Success,
			}); ok {
				out = append(out, content)
			}
		}
		for i, step := range traj.Steps {
			kind, body := extractStep(step)
			if body == "" {
				continue
			}
			meta := map[string]any{
				"trajectory_id": traj.ID,
				"step_index":    i,
				"tool":          step.Tool,
			}
			if content, ok := ing.makeContent(fmt.Sprintf("%s#%d", traj.ID, i), kind, body, meta); ok {
				out = append(out, content)
			}
		}
	}
	ing.logger.Info("corpus: ingested %d trajectories into %d content entries", len(trajs), len(out))
	return out
}

// maxPagesPerDomain bounds how many result links one domain search follows.
const maxPagesPerDomain = 3

// IngestExternal searches each named domain, ingests the search snippets, and
// fetches the top result pages for full-body ingestion. It requires a tool
// client.
func (ing *Ingestor) IngestExternal(ctx context.Context, domains []string) ([]task.CorpusContent, error) {
	if ing.tools == nil {
		return nil, fmt.Errorf("external ingestion requires a tool client")
	}
	var out []task.CorpusContent
	for _, domain := range domains {
		result, err := ing.tools.Call(ctx, "web_search", map[string]any{
			"query": "site:" + domain,
		})
		if err != nil {
			ing.logger.Warn("corpus: external search for %s failed: %v", domain, err)
			continue
		}
		if result == nil || !result.Success {
			continue
		}
		body := extractSearchData(result.Data)
		if content, ok := ing.makeContent("external:"+domain, task.ContentSearchResult, body, map[string]any{
			"domain": domain,
		}); ok {
			out = append(out, content)
		}
		for _, url := range resultURLs(result.Data, maxPagesPerDomain) {
			page, err := ing.tools.Call(ctx, "browser", map[string]any{"url": url})
			if err != nil {
				ing.logger.Warn("corpus: fetching %s failed: %v", url, err)
				continue
			}
			if page == nil || !page.Success {
				continue
			}
			text, _ := page.Data.(string)
			if content, ok := ing.makeContent(url, task.ContentWeb, text, map[string]any{
				"domain": domain,
				"url":    url,
			}); ok {
				out = append(out, content)
			}
		}
	}
	return out, nil
}

// resultURLs collects up to max http(s) links from a search payload.
func resultURLs(data any, max int) []string {
	var out []string
	var walk func(any)
	walk = func(v any) {
		if len(out) >= max {
			return
		}
		switch item := v.(type) {
		case []any:
			for _, e := range item {
				walk(e)
			}
		case []map[string]any:
			for _, e := range item {
				walk(e)
			}
		case map[string]any:
			for _, key := range []string{"url", "link"} {
				if s, ok := item[key].(string); ok && strings.HasPrefix(s, "http") {
					out = append(out, s)
					return
				}
			}
			if results, ok := item["results"]; ok {
				walk(results)
			}
		case string:
			var parsed any
			if err := json.Unmarshal([]byte(item), &parsed); err == nil {
				if _, again := parsed.(string); !again {
					walk(parsed)
				}
			}
		}
	}
	walk(data)
	if len(out) > max {
		out = out[:max]
	}
	return out
}

// makeContent cleans and gates a body, returning the finished entry.
func (ing *Ingestor) makeContent(source string, kind task.ContentKind, raw string, meta map[string]any) (task.CorpusContent, bool) {
	text := Clean(raw)
	if ok, reason := PassesGate(text); !ok {
		ing.logger.Debug("corpus: rejected %s (%s): %s", source, kind, reason)
		return task.CorpusContent{}, false
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["content_quality"] = QualityScore(text)
	return task.CorpusContent{
		ID:          "corpus_" + uuid.NewString()[:8],
		Source:      source,
		Kind:        kind,
		Text:        text,
		Metadata:    meta,
		Status:      "extracted",
		ExtractedAt: time.Now(),
	}, true
}

// extractStep applies the per-tool extractor for one trajectory step.
func extractStep(step task.Step) (task.ContentKind, string) {
	if !step.Success || step.Observation == "" {
		return task.ContentGeneric, ""
	}
	tool := strings.ToLower(step.Tool)
	switch {
	case strings.Contains(tool, "browser") || strings.Contains(tool, "web"):
		if strings.Contains(tool, "search") {
			return task.ContentSearchResult, extractSearchSnippets(step.Observation)
		}
		return task.ContentWeb, step.Observation
	case strings.Contains(tool, "python") || strings.Contains(tool, "code") || strings.Contains(tool, "executor"):
		return task.ContentCodeOutput, extractCodeOutput(step.Observation)
	case strings.Contains(tool, "search"):
		return task.ContentSearchResult, extractSearchSnippets(step.Observation)
	default:
		return task.ContentGeneric, step.Observation
	}
}

// extractSearchSnippets pulls title/snippet pairs out of a search observation.
// Non-JSON observations pass through unchanged.
func extractSearchSnippets(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "[") && !strings.HasPrefix(trimmed, "{") {
		return raw
	}
	var items []map[string]any
	if err := json.Unmarshal([]byte(trimmed), &items); err != nil {
		var wrapper struct {
			Results []map[string]any `json:"results"`
		}
		if err := json.Unmarshal([]byte(trimmed), &wrapper); err != nil || len(wrapper.Results) == 0 {
			return raw
		}
		items = wrapper.Results
	}
	var lines []string
	for _, item := range items {
		var parts []string
		for _, key := range []string{"title", "snippet", "content", "url"} {
			if v, ok := item[key].(string); ok && v != "" {
				parts = append(parts, v)
			}
		}
		if len(parts) > 0 {
			lines = append(lines, strings.Join(parts, " - "))
		}
	}
	if len(lines) == 0 {
		return raw
	}
	return strings.Join(lines, "\n")
}

// extractSearchData flattens a tool result payload into text.
func extractSearchData(data any) string {
	switch v := data.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return extractSearchSnippets(string(b))
	}
}
