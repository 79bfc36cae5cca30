// Package extend grows atomic tasks in two directions: depth chains each task
// through supersets of its answer, width fuses semantically-related tasks
// into composites.
package extend

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"seedforge/internal/config"
	"seedforge/internal/cost"
	"seedforge/internal/llm"
	"seedforge/internal/logging"
	"seedforge/internal/task"
	"seedforge/internal/tools"
)

const supersetConfidenceFloor = 0.6

// DepthExtender builds superset chains over atomic tasks. Each successful hop
// yields one ExtendedTask; a failed hop truncates the chain but keeps prior
// hops.
type DepthExtender struct {
	client llm.Client
	tools  tools.Client
	costs  *cost.Tracker
	logger logging.Logger

	maxHops    int
	llmTimeout time.Duration
	provider   string
}

// NewDepthExtender builds a depth extender. costs may be nil.
func NewDepthExtender(client llm.Client, toolClient tools.Client, cfg config.Config, costs *cost.Tracker, logger logging.Logger) *DepthExtender {
	if costs == nil {
		costs = cost.NewTracker()
	}
	return &DepthExtender{
		client:     client,
		tools:      toolClient,
		costs:      costs,
		logger:     logging.OrNop(logger),
		maxHops:    cfg.MaxHops,
		llmTimeout: cfg.LLMTimeout(),
		provider:   cfg.LLMProvider,
	}
}

// Extend produces up to maxHops extended tasks for one atomic task. The
// returned slice may be empty when the first hop already fails.
func (d *DepthExtender) Extend(ctx context.Context, atomic task.AtomicTask) []task.ExtendedTask {
	var (
		out      []task.ExtendedTask
		chain    []task.SupersetInfo
		steps    []string
		toolSet  = map[string]struct{}{}
		hopSum   float64
		question = atomic.Question
		answer   = atomic.GoldenAnswer
	)
	for _, tool := range atomic.RequiredTools {
		toolSet[tool] = struct{}{}
	}

	for hop := 1; hop <= d.maxHops; hop++ {
		info, draft, err := d.extendOneHop(ctx, atomic, question, answer)
		if err != nil {
			d.logger.Info("depth: chain for %s truncated at hop %d: %v", atomic.ID, hop, err)
			break
		}

		chain = append(chain, *info)
		steps = append(steps, draft.Steps...)
		for _, tool := range draft.RequiredTools {
			toolSet[tool] = struct{}{}
		}
		hopSum += hopComplexity(len(draft.Steps), len(draft.RequiredTools))
		question = draft.Question
		answer = draft.Answer

		extended := task.ExtendedTask{
			ID:                task.NewID(task.KindDepth),
			Question:          question,
			GoldenAnswer:      answer,
			HopLevel:          hop,
			SourceAtomicTask:  atomic.ID,
			Chain:             append([]task.SupersetInfo(nil), chain...),
			IntermediateSteps: append([]string(nil), steps...),
			ExpectedTools:     sortedKeys(toolSet),
			ComplexityScore:   chainComplexity(hopSum),
			CreatedAt:         time.Now(),
		}
		extended.Difficulty = difficultyForHops(hop)
		out = append(out, extended)
	}
	return out
}

// extendOneHop runs the per-hop algorithm: queries, superset search, judge,
// validation, intermediate draft, quality check.
func (d *DepthExtender) extendOneHop(ctx context.Context, atomic task.AtomicTask, question, answer string) (*task.SupersetInfo, *intermediateDraft, error) {
	queries, err := d.generateQueries(ctx, question, answer)
	if err != nil {
		return nil, nil, err
	}

	candidates := d.searchSupersets(ctx, queries, answer)
	if len(candidates) == 0 {
		return nil, nil, fmt.Errorf("no superset candidates")
	}

	best, err := d.validateSupersets(ctx, candidates, answer)
	if err != nil {
		return nil, nil, err
	}

	draft, err := d.draftIntermediate(ctx, *best, atomic, question, answer)
	if err != nil {
		return nil, nil, err
	}
	return best, draft, nil
}

func (d *DepthExtender) generateQueries(ctx context.Context, question, answer string) ([]string, error) {
	system, user := queryPrompt(question, answer)
	response, err := d.complete(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("query generation: %w", err)
	}
	queries := parseQueries(response)
	if len(queries) == 0 {
		return nil, fmt.Errorf("query generation returned nothing")
	}
	if len(queries) > 5 {
		queries = queries[:5]
	}
	return queries, nil
}

// searchSupersets issues each query through deepsearch and judges every
// result for containment. Tool failures are treated as empty results.
func (d *DepthExtender) searchSupersets(ctx context.Context, queries []string, answer string) []task.SupersetInfo {
	var candidates []task.SupersetInfo
	for _, query := range queries {
		result, err := d.tools.Call(ctx, "deepsearch", map[string]any{"query": query})
		if err != nil || result == nil || !result.Success {
			d.logger.Debug("depth: deepsearch %q failed: %v", query, err)
			continue
		}
		for _, text := range resultTexts(result.Data) {
			judgement, err := d.judgeResult(ctx, text, answer)
			if err != nil {
				continue
			}
			if !judgement.ContainsAnswer || judgement.Confidence <= supersetConfidenceFloor {
				continue
			}
			candidates = append(candidates, task.SupersetInfo{
				Identifier: judgement.SupersetIdentifier,
				Relation:   judgement.Relation,
				Query:      query,
				Confidence: judgement.Confidence,
			})
		}
	}
	return candidates
}

func (d *DepthExtender) judgeResult(ctx context.Context, text, answer string) (supersetJudgement, error) {
	system, user := judgePrompt(text, answer)
	response, err := d.complete(ctx, system, user)
	if err != nil {
		return supersetJudgement{}, err
	}
	return parseJudgement(response)
}

// validateSupersets confirms containment for each candidate and returns the
// highest-confidence confirmed one.
func (d *DepthExtender) validateSupersets(ctx context.Context, candidates []task.SupersetInfo, answer string) (*task.SupersetInfo, error) {
	var confirmed []task.SupersetInfo
	for _, info := range candidates {
		system, user := validatePrompt(info, answer)
		response, err := d.complete(ctx, system, user)
		if err != nil {
			continue
		}
		if parseConfirmation(response).Confirmed {
			info.ValidationPassed = true
			confirmed = append(confirmed, info)
		}
	}
	if len(confirmed) == 0 {
		return nil, fmt.Errorf("no superset survived validation")
	}
	sort.Slice(confirmed, func(i, j int) bool { return confirmed[i].Confidence > confirmed[j].Confidence })
	return &confirmed[0], nil
}

// draftIntermediate asks for the hop's question and applies the quality
// check: 5 words longer than the source question, answer containment, at
// least 2 steps and 1 tool.
func (d *DepthExtender) draftIntermediate(ctx context.Context, info task.SupersetInfo, atomic task.AtomicTask, question, answer string) (*intermediateDraft, error) {
	system, user := intermediatePrompt(info, question, answer)
	response, err := d.complete(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("intermediate draft: %w", err)
	}
	draft, err := parseIntermediate(response)
	if err != nil {
		return nil, fmt.Errorf("intermediate draft: %w", err)
	}

	if wordCount(draft.Question) < wordCount(atomic.Question)+5 {
		return nil, fmt.Errorf("intermediate question not longer than source")
	}
	// case-insensitive substring; multi-word answers with punctuation drift
	// can slip past this
	if !strings.Contains(strings.ToLower(draft.Answer), strings.ToLower(atomic.GoldenAnswer)) {
		return nil, fmt.Errorf("intermediate answer lost the source answer")
	}
	if len(draft.Steps) < 2 {
		return nil, fmt.Errorf("intermediate draft lists fewer than 2 steps")
	}
	if len(draft.RequiredTools) < 1 {
		return nil, fmt.Errorf("intermediate draft lists no tools")
	}
	return &draft, nil
}

func (d *DepthExtender) complete(ctx context.Context, system, user string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, d.llmTimeout)
	defer cancel()

	resp, err := d.client.Complete(cctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0.4,
	})
	if err != nil {
		return "", err
	}
	usage := resp.Usage
	if usage.Model == "" {
		usage.Model = d.client.Model()
	}
	d.costs.Observe(cost.PhaseDepthExtension, usage, d.provider, system+"\n"+user, resp.Content)
	return resp.Content, nil
}

// hopComplexity is one hop's contribution, counted from that hop's own
// intermediate draft: 0.3 + 0.1 per step + 0.2 per tool.
func hopComplexity(steps, tools int) float64 {
	return 0.3 + 0.1*float64(steps) + 0.2*float64(tools)
}

// chainComplexity is min((1 + Σ hopComplexity) / 5, 1).
func chainComplexity(hopSum float64) float64 {
	if hopSum == 0 {
		return 0
	}
	score := (1 + hopSum) / 5
	if score > 1 {
		return 1
	}
	return score
}

func difficultyForHops(hops int) task.Difficulty {
	if hops >= 3 {
		return task.DifficultyComplex
	}
	return task.DifficultyMedium
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// resultTexts flattens a deepsearch payload into judgeable text chunks.
func resultTexts(data any) []string {
	switch v := data.(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []any:
		var out []string
		for _, item := range v {
			out = append(out, resultTexts(item)...)
		}
		return out
	case map[string]any:
		var parts []string
		for _, key := range []string{"title", "snippet", "content", "summary"} {
			if s, ok := v[key].(string); ok && s != "" {
				parts = append(parts, s)
			}
		}
		if len(parts) > 0 {
			return []string{strings.Join(parts, " - ")}
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		return []string{string(b)}
	default:
		return nil
	}
}
