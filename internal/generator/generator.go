// Package generator turns quality-gated corpus content into atomic tasks
// through three LLM stages: conclusion extraction, question synthesis, and
// atomicity verification.
package generator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"seedforge/internal/config"
	"seedforge/internal/cost"
	"seedforge/internal/llm"
	"seedforge/internal/logging"
	"seedforge/internal/task"
	"seedforge/internal/tools"
)

const minConfidence = 0.7

// Generator produces atomic tasks from corpus content. The atomicity
// threshold is adjustable at runtime by the adaptive controller.
type Generator struct {
	client  llm.Client
	catalog *tools.Catalog
	costs   *cost.Tracker
	logger  logging.Logger

	maxConclusions  int
	parallelWorkers int
	llmTimeout      time.Duration
	provider        string

	mu                 sync.RWMutex
	atomicityThreshold float64
}

// New builds a generator. costs may be nil; a private tracker is used then.
func New(client llm.Client, catalog *tools.Catalog, cfg config.Config, costs *cost.Tracker, logger logging.Logger) *Generator {
	if costs == nil {
		costs = cost.NewTracker()
	}
	return &Generator{
		client:             client,
		catalog:            catalog,
		costs:              costs,
		logger:             logging.OrNop(logger),
		maxConclusions:     cfg.MaxConclusionsPerCorpus,
		parallelWorkers:    cfg.ParallelWorkers,
		llmTimeout:         cfg.LLMTimeout(),
		provider:           cfg.LLMProvider,
		atomicityThreshold: cfg.AtomicityThreshold,
	}
}

// AtomicityThreshold returns the current gate value.
func (g *Generator) AtomicityThreshold() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.atomicityThreshold
}

// SetAtomicityThreshold replaces the gate value.
func (g *Generator) SetAtomicityThreshold(v float64) {
	g.mu.Lock()
	g.atomicityThreshold = v
	g.mu.Unlock()
}

// PromptVersion identifies the template set behind GenerateBatch.
func (g *Generator) PromptVersion() string {
	return promptVersion
}

// GenerateBatch runs Generate over many corpus entries with bounded
// parallelism. Per-corpus failures are logged and skipped.
func (g *Generator) GenerateBatch(ctx context.Context, contents []task.CorpusContent) []task.AtomicTask {
	var (
		mu  sync.Mutex
		out []task.AtomicTask
	)
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.parallelWorkers)
	for _, content := range contents {
		content := content
		eg.Go(func() error {
			tasks, err := g.Generate(ctx, content)
			if err != nil {
				g.logger.Warn("generator: corpus %s yielded no tasks: %v", content.ID, err)
				return nil
			}
			mu.Lock()
			out = append(out, tasks...)
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()
	return out
}

// Generate runs the three stages for one corpus entry.
func (g *Generator) Generate(ctx context.Context, content task.CorpusContent) ([]task.AtomicTask, error) {
	conclusions, err := g.extractConclusions(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("conclusion extraction: %w", err)
	}
	if len(conclusions) == 0 {
		g.logger.Warn("generator: no usable conclusions in corpus %s", content.ID)
		return nil, nil
	}

	var out []task.AtomicTask
	for _, conclusion := range conclusions {
		candidates, err := g.synthesizeQuestions(ctx, conclusion)
		if err != nil {
			g.logger.Warn("generator: question synthesis failed for %q: %v", conclusion.Statement, err)
			continue
		}
		for _, cand := range candidates {
			atomicTask, ok, err := g.verifyAtomicity(ctx, cand, content, conclusion)
			if err != nil {
				g.logger.Warn("generator: atomicity check failed for %q: %v", cand.Question, err)
				continue
			}
			if ok {
				out = append(out, atomicTask)
			}
		}
	}
	g.logger.Info("generator: corpus %s produced %d atomic tasks", content.ID, len(out))
	return out, nil
}

// extractConclusions keeps confident, locally-verifiable conclusions.
func (g *Generator) extractConclusions(ctx context.Context, content task.CorpusContent) ([]task.Conclusion, error) {
	system, user := conclusionPrompt(content, g.maxConclusions)
	response, err := g.complete(ctx, cost.PhaseSeedExtraction, system, user)
	if err != nil {
		return nil, err
	}
	parsed, err := parseConclusions(response)
	if err != nil {
		return nil, err
	}

	var kept []task.Conclusion
	for _, c := range parsed {
		if len(kept) >= g.maxConclusions {
			break
		}
		if c.Confidence < minConfidence {
			continue
		}
		c.Verifiable = IsVerifiable(c.Statement)
		if !c.Verifiable {
			g.logger.Debug("generator: dropping unverifiable conclusion %q", c.Statement)
			continue
		}
		if c.ContentID == "" {
			c.ContentID = content.ID
		}
		kept = append(kept, c)
	}
	return kept, nil
}

// synthesizeQuestions proposes candidates for one conclusion and applies the
// question quality gate.
func (g *Generator) synthesizeQuestions(ctx context.Context, conclusion task.Conclusion) ([]candidate, error) {
	system, user := questionPrompt(conclusion)
	response, err := g.complete(ctx, cost.PhaseTaskExpansion, system, user)
	if err != nil {
		return nil, err
	}
	parsed, err := parseCandidates(response)
	if err != nil {
		return nil, err
	}

	var kept []candidate
	for _, cand := range parsed {
		if len(kept) >= 2 {
			break
		}
		if reason := g.gateCandidate(ctx, &cand); reason != "" {
			g.logger.Debug("generator: dropping candidate %q: %s", cand.Question, reason)
			continue
		}
		if cand.ExpectedAnswer == "" {
			cand.ExpectedAnswer = conclusion.Statement
		}
		kept = append(kept, cand)
	}
	return kept, nil
}

// gateCandidate returns a rejection reason, or "" when the candidate passes.
// Declared tools are replaced with their catalog-validated form.
func (g *Generator) gateCandidate(ctx context.Context, cand *candidate) string {
	if len(cand.Question) < 30 {
		return "question too short"
	}
	if isSimpleFactLookup(cand.Question) {
		return "simple fact lookup"
	}
	if cand.ComplexityScore < 0.6 {
		return fmt.Sprintf("complexity %.2f below 0.6", cand.ComplexityScore)
	}
	cand.RequiredTools = g.catalog.Validate(ctx, cand.RequiredTools)
	if len(cand.RequiredTools) < 2 {
		return "fewer than 2 realistic tools"
	}
	return ""
}

// verifyAtomicity gates on the numeric score alone; the model's is_atomic
// flag is recorded but never gated on.
func (g *Generator) verifyAtomicity(ctx context.Context, cand candidate, content task.CorpusContent, conclusion task.Conclusion) (task.AtomicTask, bool, error) {
	system, user := atomicityPrompt(cand)
	response, err := g.complete(ctx, cost.PhaseQualityValidation, system, user)
	if err != nil {
		return task.AtomicTask{}, false, err
	}
	judgement := parseAtomicity(response)
	threshold := g.AtomicityThreshold()
	if judgement.Score < threshold {
		g.logger.Debug("generator: atomicity %.2f below %.2f for %q", judgement.Score, threshold, cand.Question)
		return task.AtomicTask{}, false, nil
	}

	return task.AtomicTask{
		ID:                task.NewID(task.KindAtomic),
		Question:          cand.Question,
		GoldenAnswer:      cand.ExpectedAnswer,
		RequiredTools:     cand.RequiredTools,
		Difficulty:        difficultyFor(cand.ComplexityScore),
		SourceCorpus:      content.ID,
		ContentIdentifier: conclusion.ContentID,
		AtomicityScore:    judgement.Score,
		AtomicityVerified: judgement.IsAtomic,
		CreatedAt:         time.Now(),
	}, true, nil
}

func difficultyFor(complexity float64) task.Difficulty {
	switch {
	case complexity >= 0.8:
		return task.DifficultyComplex
	case complexity >= 0.6:
		return task.DifficultyMedium
	default:
		return task.DifficultySimple
	}
}

// complete runs one LLM round trip with the per-call deadline and records its
// cost under phase.
func (g *Generator) complete(ctx context.Context, phase cost.Phase, system, user string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, g.llmTimeout)
	defer cancel()

	resp, err := g.client.Complete(cctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return "", err
	}
	usage := resp.Usage
	if usage.Model == "" {
		usage.Model = g.client.Model()
	}
	g.costs.Observe(phase, usage, g.provider, system+"\n"+user, resp.Content)
	return resp.Content, nil
}
