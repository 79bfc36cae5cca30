// Package verify rates candidate tasks along seven weighted dimensions,
// including a live execution attempt through the tool layer.
package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"seedforge/internal/config"
	"seedforge/internal/cost"
	"seedforge/internal/llm"
	"seedforge/internal/logging"
	"seedforge/internal/task"
	"seedforge/internal/tools"
)

// Dimension names as persisted in verification results.
const (
	DimExecutability   = "executability"
	DimDifficulty      = "difficulty"
	DimUniqueness      = "answer_uniqueness"
	DimToolRequirement = "tool_requirements"
	DimLanguage        = "language_quality"
	DimCognitive       = "cognitive_complexity"
	DimAtomicity       = "atomicity"
)

// Weights of the seven dimensions; they sum to 1.
var dimensionWeights = map[string]float64{
	DimExecutability:   0.25,
	DimDifficulty:      0.15,
	DimUniqueness:      0.15,
	DimToolRequirement: 0.15,
	DimLanguage:        0.15,
	DimCognitive:       0.10,
	DimAtomicity:       0.05,
}

const maxExecutionSteps = 3

// Engine verifies tasks. Live execution runs the candidate against the real
// tool client; callers own the trust boundary of those tools.
type Engine struct {
	client  llm.Client
	tools   tools.Client
	catalog *tools.Catalog
	costs   *cost.Tracker
	logger  logging.Logger

	qualityThreshold float64
	execTimeout      time.Duration
	llmTimeout       time.Duration
	maxConcurrent    int
	provider         string
}

// NewEngine builds a verification engine. costs may be nil.
func NewEngine(client llm.Client, toolClient tools.Client, cfg config.Config, costs *cost.Tracker, logger logging.Logger) *Engine {
	if costs == nil {
		costs = cost.NewTracker()
	}
	return &Engine{
		client:           client,
		tools:            toolClient,
		catalog:          tools.NewCatalog(toolClient),
		costs:            costs,
		logger:           logging.OrNop(logger),
		qualityThreshold: cfg.QualityThreshold,
		execTimeout:      cfg.VerificationTimeout(),
		llmTimeout:       cfg.LLMTimeout(),
		maxConcurrent:    cfg.MaxConcurrentVerifications,
		provider:         cfg.LLMProvider,
	}
}

// Verify rates one task across all dimensions and derives the recommendation.
func (e *Engine) Verify(ctx context.Context, spec task.Spec) task.VerificationResult {
	dims := map[string]task.DimensionScore{
		DimExecutability:   e.scoreExecutability(ctx, spec),
		DimDifficulty:      scoreDifficulty(spec),
		DimUniqueness:      e.scoreLLM(ctx, spec, DimUniqueness),
		DimToolRequirement: e.scoreToolRequirements(ctx, spec),
		DimLanguage:        scoreLanguage(spec.Question),
		DimCognitive:       e.scoreLLM(ctx, spec, DimCognitive),
		DimAtomicity:       e.scoreAtomicity(ctx, spec),
	}

	overall := 0.0
	for name, d := range dims {
		overall += dimensionWeights[name] * d.Score
	}

	return task.VerificationResult{
		TaskID:         spec.ID,
		Dimensions:     dims,
		Overall:        overall,
		Recommendation: e.recommend(overall),
		VerifiedAt:     time.Now(),
	}
}

// VerifyBatch verifies many tasks with bounded parallelism. A panic-free
// guarantee: every input yields a result, failures score zero and reject.
func (e *Engine) VerifyBatch(ctx context.Context, specs []task.Spec, maxConcurrent int) []task.VerificationResult {
	if maxConcurrent <= 0 {
		maxConcurrent = e.maxConcurrent
	}
	results := make([]task.VerificationResult, len(specs))

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)
	for i, spec := range specs {
		i, spec := i, spec
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = rejectedResult(spec.ID)
				return nil
			}
			results[i] = e.Verify(ctx, spec)
			return nil
		})
	}
	_ = eg.Wait()
	return results
}

func rejectedResult(taskID string) task.VerificationResult {
	return task.VerificationResult{
		TaskID:         taskID,
		Dimensions:     map[string]task.DimensionScore{},
		Overall:        0,
		Recommendation: task.RecommendReject,
		VerifiedAt:     time.Now(),
	}
}

func (e *Engine) recommend(overall float64) task.Recommendation {
	switch {
	case overall >= e.qualityThreshold:
		return task.RecommendAccept
	case overall >= 0.7*e.qualityThreshold:
		return task.RecommendModify
	default:
		return task.RecommendReject
	}
}

// scoreExecutability attempts a live run: 1.0 on a correct answer, 0.7 on a
// clean run with a wrong answer, 0.3 on execution failure.
func (e *Engine) scoreExecutability(ctx context.Context, spec task.Spec) task.DimensionScore {
	ectx, cancel := context.WithTimeout(ctx, e.execTimeout)
	defer cancel()

	answer, err := e.executeTask(ectx, spec)
	switch {
	case err != nil:
		e.logger.Debug("verify: execution of %s failed: %v", spec.ID, err)
		return task.DimensionScore{Score: 0.3, Justification: fmt.Sprintf("execution failed: %v", err)}
	case answersCorrect(spec.Answers, answer):
		return task.DimensionScore{Score: 1.0, Justification: "live run reproduced the golden answer"}
	default:
		return task.DimensionScore{Score: 0.7, Justification: "live run completed but the answer differs"}
	}
}

// executeTask drives a short tool-use loop until the agent answers or the
// step limit runs out.
func (e *Engine) executeTask(ctx context.Context, spec task.Spec) (string, error) {
	var transcript []string
	for step := 0; step < maxExecutionSteps; step++ {
		system, user := executionPrompt(spec, transcript)
		response, err := e.complete(ctx, system, user)
		if err != nil {
			return "", err
		}
		action, err := parseAction(response)
		if err != nil {
			return "", err
		}
		if action.Action == "answer" {
			return action.Answer, nil
		}

		result, err := e.tools.Call(ctx, action.Tool, action.Params)
		if err != nil {
			return "", fmt.Errorf("tool %s: %w", action.Tool, err)
		}
		observation := "no data"
		if result != nil {
			if b, jerr := json.Marshal(result.Data); jerr == nil {
				observation = string(b)
			}
		}
		transcript = append(transcript, fmt.Sprintf("Called %s, observed: %s", action.Tool, observation))
	}
	return "", fmt.Errorf("no answer within %d steps", maxExecutionSteps)
}

// answersCorrect requires every golden answer to appear in the actual output.
func answersCorrect(expected []string, actual string) bool {
	if len(expected) == 0 {
		return false
	}
	for _, want := range expected {
		if !AnswerCorrect(want, actual) {
			return false
		}
	}
	return true
}

// scoreDifficulty is the per-kind heuristic plus a tool-count bonus.
func scoreDifficulty(spec task.Spec) task.DimensionScore {
	var base float64
	switch spec.Kind {
	case task.KindAtomic:
		base = 0.8
	case task.KindDepth:
		base = 0.5 + 0.4*float64(spec.HopLevel)/3
	case task.KindWidth:
		base = 0.6 + 0.3*float64(spec.SourceCount)/3
	default:
		base = 0.5
	}
	bonus := float64(len(spec.Tools)) / 3
	if bonus > 0.2 {
		bonus = 0.2
	}
	return task.DimensionScore{
		Score:         clamp01(base + bonus),
		Justification: fmt.Sprintf("%s task with %d tools", spec.Kind, len(spec.Tools)),
	}
}

// scoreToolRequirements is the fraction of declared tools present in the
// live catalog.
func (e *Engine) scoreToolRequirements(ctx context.Context, spec task.Spec) task.DimensionScore {
	if len(spec.Tools) == 0 {
		return task.DimensionScore{Score: 0, Justification: "no tools declared"}
	}
	live := e.catalog.Names(ctx)
	if live == nil {
		return task.DimensionScore{Score: 0.5, Justification: "tool catalog unreachable"}
	}
	present := 0
	for _, tool := range spec.Tools {
		if _, ok := live[tool]; ok {
			present++
		}
	}
	frac := float64(present) / float64(len(spec.Tools))
	return task.DimensionScore{
		Score:         frac,
		Justification: fmt.Sprintf("%d of %d declared tools in catalog", present, len(spec.Tools)),
	}
}

// scoreLanguage is a pure heuristic: length, interrogative form, repetition.
func scoreLanguage(question string) task.DimensionScore {
	score := 0.0
	if len(question) >= 30 {
		score += 0.4
	}
	if len(question) >= 50 {
		score += 0.1
	}
	if strings.Contains(question, "?") || strings.Contains(question, "？") {
		score += 0.3
	}
	score += 0.2 * (1 - repetitionRatio(question))
	return task.DimensionScore{Score: clamp01(score), Justification: "length and form heuristic"}
}

// repetitionRatio is the fraction of words beyond each word's first use.
func repetitionRatio(s string) float64 {
	counts := map[string]int{}
	words := strings.Fields(strings.ToLower(s))
	for _, w := range words {
		counts[w]++
	}
	if len(words) == 0 {
		return 0
	}
	repeats := 0
	for _, n := range counts {
		repeats += n - 1
	}
	return float64(repeats) / float64(len(words))
}

// scoreLLM runs the single-score prompts for uniqueness and cognitive
// complexity. Failures degrade to the middle score.
func (e *Engine) scoreLLM(ctx context.Context, spec task.Spec, dim string) task.DimensionScore {
	var (
		system, user, key string
	)
	switch dim {
	case DimUniqueness:
		system, user = uniquenessPrompt(spec)
		key = "uniqueness_score"
	case DimCognitive:
		system, user = complexityPrompt(spec)
		key = "complexity_score"
	default:
		return task.DimensionScore{Score: 0.5, Justification: "unknown dimension"}
	}

	response, err := e.complete(ctx, system, user)
	if err != nil {
		e.logger.Debug("verify: %s rating failed for %s: %v", dim, spec.ID, err)
		return task.DimensionScore{Score: 0.5, Justification: "rating unavailable"}
	}
	return task.DimensionScore{Score: parseScore(response, key), Justification: "model rating"}
}

// scoreAtomicity blends structural checks with a model review for atomic
// tasks; non-atomic kinds score 1.0 by definition.
func (e *Engine) scoreAtomicity(ctx context.Context, spec task.Spec) task.DimensionScore {
	if spec.Kind != task.KindAtomic {
		return task.DimensionScore{Score: 1.0, Justification: "atomicity not applicable"}
	}

	structural := 0.0
	if len(spec.Answers) == 1 {
		structural += 0.5
	}
	if strings.Count(spec.Question, "?")+strings.Count(spec.Question, "？") <= 1 {
		structural += 0.5
	}

	modelScore := 0.5
	system, user := atomicityReviewPrompt(spec)
	if response, err := e.complete(ctx, system, user); err == nil {
		modelScore = parseScore(response, "atomicity_score")
	}
	return task.DimensionScore{
		Score:         clamp01(0.5*structural + 0.5*modelScore),
		Justification: "structural checks blended with model review",
	}
}

func (e *Engine) complete(ctx context.Context, system, user string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, e.llmTimeout)
	defer cancel()

	resp, err := e.client.Complete(cctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", err
	}
	usage := resp.Usage
	if usage.Model == "" {
		usage.Model = e.client.Model()
	}
	e.costs.Observe(cost.PhaseQualityValidation, usage, e.provider, system+"\n"+user, resp.Content)
	return resp.Content, nil
}
