package extend

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"seedforge/internal/config"
	"seedforge/internal/cost"
	"seedforge/internal/llm"
	"seedforge/internal/logging"
	"seedforge/internal/task"
)

const compositeAcceptFloor = 0.7

// WidthExtender fuses semantically-related atomic tasks into composites. The
// similarity threshold is adjustable at runtime by the adaptive controller.
type WidthExtender struct {
	client llm.Client
	costs  *cost.Tracker
	logger logging.Logger

	minGroup   int
	maxGroup   int
	maxBatches int
	llmTimeout time.Duration
	provider   string

	mu           sync.RWMutex
	simThreshold float64
}

// NewWidthExtender builds a width extender. costs may be nil.
func NewWidthExtender(client llm.Client, cfg config.Config, costs *cost.Tracker, logger logging.Logger) *WidthExtender {
	if costs == nil {
		costs = cost.NewTracker()
	}
	if cfg.MaxConcurrentBatches < 1 {
		cfg.MaxConcurrentBatches = 1
	}
	return &WidthExtender{
		client:       client,
		costs:        costs,
		logger:       logging.OrNop(logger),
		minGroup:     cfg.MinGroupSize,
		maxGroup:     cfg.MaxGroupSize,
		maxBatches:   cfg.MaxConcurrentBatches,
		llmTimeout:   cfg.LLMTimeout(),
		provider:     cfg.LLMProvider,
		simThreshold: cfg.SimilarityThreshold,
	}
}

// SimilarityThreshold returns the current clustering threshold.
func (w *WidthExtender) SimilarityThreshold() float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.simThreshold
}

// SetSimilarityThreshold replaces the clustering threshold.
func (w *WidthExtender) SetSimilarityThreshold(v float64) {
	w.mu.Lock()
	w.simThreshold = v
	w.mu.Unlock()
}

// Extend groups and fuses atomic tasks into composites. Inputs smaller than
// the group-size floor yield nothing.
func (w *WidthExtender) Extend(ctx context.Context, atomics []task.AtomicTask) []task.CompositeTask {
	if len(atomics) < w.minGroup {
		return nil
	}

	matrix := w.similarityMatrix(ctx, atomics)
	clusters := w.cluster(atomics, matrix)

	composites := make([]*task.CompositeTask, len(clusters))
	var eg errgroup.Group
	eg.SetLimit(w.maxBatches)
	for i, cluster := range clusters {
		i, cluster := i, cluster
		eg.Go(func() error {
			composite, err := w.fuse(ctx, cluster)
			if err != nil {
				w.logger.Warn("width: fusion failed for %d-task cluster: %v", len(cluster), err)
				return nil
			}
			if !w.validateComposite(ctx, *composite, cluster) {
				w.logger.Debug("width: composite %q failed decomposition validation", composite.Question)
				return nil
			}
			composites[i] = composite
			return nil
		})
	}
	_ = eg.Wait()

	var out []task.CompositeTask
	for _, c := range composites {
		if c != nil {
			out = append(out, *c)
		}
	}
	return out
}

// similarityMatrix rates every unordered pair via the LLM. Failed ratings
// default to zero similarity.
func (w *WidthExtender) similarityMatrix(ctx context.Context, atomics []task.AtomicTask) [][]float64 {
	n := len(atomics)
	matrix := make([][]float64, n)
	for i := range matrix {
		matrix[i] = make([]float64, n)
		matrix[i][i] = 1
	}
	var eg errgroup.Group
	eg.SetLimit(w.maxBatches)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			i, j := i, j
			eg.Go(func() error {
				system, user := similarityPrompt(atomics[i], atomics[j])
				response, err := w.complete(ctx, system, user)
				if err != nil {
					w.logger.Debug("width: similarity rating failed for (%d,%d): %v", i, j, err)
					return nil
				}
				// each pair writes a distinct cell, no lock needed
				sim := parseSimilarity(response)
				matrix[i][j] = sim
				matrix[j][i] = sim
				return nil
			})
		}
	}
	_ = eg.Wait()
	return matrix
}

// cluster walks tasks in order; a task joins the current cluster when its
// average similarity to the members reaches the threshold. Clusters cap at
// maxGroup; clusters with duplicate questions or duplicate answers are
// rejected.
func (w *WidthExtender) cluster(atomics []task.AtomicTask, matrix [][]float64) [][]task.AtomicTask {
	threshold := w.SimilarityThreshold()
	assigned := make([]bool, len(atomics))

	var clusters [][]task.AtomicTask
	for i := range atomics {
		if assigned[i] {
			continue
		}
		members := []int{i}
		assigned[i] = true
		for j := i + 1; j < len(atomics); j++ {
			if assigned[j] || len(members) >= w.maxGroup {
				continue
			}
			sum := 0.0
			for _, m := range members {
				sum += matrix[m][j]
			}
			if sum/float64(len(members)) >= threshold {
				members = append(members, j)
				assigned[j] = true
			}
		}
		if len(members) < w.minGroup {
			continue
		}
		cluster := make([]task.AtomicTask, 0, len(members))
		for _, m := range members {
			cluster = append(cluster, atomics[m])
		}
		if validCluster(cluster) {
			clusters = append(clusters, cluster)
		}
	}
	return clusters
}

// validCluster rejects duplicate questions and duplicate answers. Composite
// sub-answers must be pairwise distinct or the fused task cannot be scored
// against them.
func validCluster(cluster []task.AtomicTask) bool {
	questions := make(map[string]struct{}, len(cluster))
	answers := make(map[string]struct{}, len(cluster))
	for _, t := range cluster {
		if _, dup := questions[t.Question]; dup {
			return false
		}
		questions[t.Question] = struct{}{}
		key := strings.ToLower(t.GoldenAnswer)
		if _, dup := answers[key]; dup {
			return false
		}
		answers[key] = struct{}{}
	}
	return true
}

// fuse builds one composite from a cluster: common theme, LLM fusion with a
// deterministic template fallback, union of tools, ordered answers.
func (w *WidthExtender) fuse(ctx context.Context, cluster []task.AtomicTask) (*task.CompositeTask, error) {
	theme := w.commonTheme(ctx, cluster)

	question, strategy := w.compositeQuestion(ctx, theme, cluster)

	toolSet := map[string]struct{}{}
	var (
		answers   []string
		sourceIDs []string
		questions []string
	)
	for _, t := range cluster {
		answers = append(answers, t.GoldenAnswer)
		sourceIDs = append(sourceIDs, t.ID)
		questions = append(questions, t.Question)
		for _, tool := range t.RequiredTools {
			toolSet[tool] = struct{}{}
		}
	}

	return &task.CompositeTask{
		ID:                task.NewID(task.KindWidth),
		Question:          question,
		GoldenAnswers:     answers,
		SourceAtomicTasks: sourceIDs,
		OriginalQuestions: questions,
		ExpectedTools:     sortedKeys(toolSet),
		MergeStrategy:     strategy,
		Difficulty:        task.DifficultyComplex,
		CreatedAt:         time.Now(),
	}, nil
}

func (w *WidthExtender) commonTheme(ctx context.Context, cluster []task.AtomicTask) string {
	system, user := themePrompt(cluster)
	response, err := w.complete(ctx, system, user)
	if err != nil {
		return "related research questions"
	}
	if theme := parseTheme(response); theme != "" {
		return theme
	}
	return "related research questions"
}

// compositeQuestion returns the fused question and the strategy used.
func (w *WidthExtender) compositeQuestion(ctx context.Context, theme string, cluster []task.AtomicTask) (string, string) {
	system, user := fusionPrompt(theme, cluster)
	response, err := w.complete(ctx, system, user)
	if err == nil {
		if fused, perr := parseFusion(response); perr == nil {
			return fused.CompositeQuestion, "llm_fusion"
		}
	}
	return templateQuestion(theme, cluster), "template"
}

// templateQuestion is the deterministic fallback when fusion JSON is broken.
func templateQuestion(theme string, cluster []task.AtomicTask) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Regarding %s, answer each of the following: ", theme)
	for i, t := range cluster {
		if i > 0 {
			sb.WriteString(" ")
		}
		fmt.Fprintf(&sb, "(%d) %s", i+1, t.Question)
	}
	return sb.String()
}

// validateComposite applies the weighted acceptance rule: decomposition 0.4,
// complexity 0.3, executability 0.3, accepted at 0.7. Executability is
// rule-computed, the other two are LLM-rated.
func (w *WidthExtender) validateComposite(ctx context.Context, composite task.CompositeTask, cluster []task.AtomicTask) bool {
	scores := decompositionScores{Decomposition: 0.5, Complexity: 0.5}
	system, user := decompositionPrompt(composite.Question, cluster)
	if response, err := w.complete(ctx, system, user); err == nil {
		scores = parseDecomposition(response)
	}

	weighted := 0.4*scores.Decomposition + 0.3*scores.Complexity + 0.3*executabilityRule(composite)
	return weighted >= compositeAcceptFloor
}

// executabilityRule scores structural health: question length, tool count,
// sub-task count, answer/sub-task parity.
func executabilityRule(composite task.CompositeTask) float64 {
	score := 0.0
	if len(composite.Question) >= 50 {
		score += 0.25
	}
	if len(composite.ExpectedTools) >= 2 {
		score += 0.25
	}
	if n := len(composite.SourceAtomicTasks); n >= 2 && n <= 3 {
		score += 0.25
	}
	if len(composite.GoldenAnswers) == len(composite.SourceAtomicTasks) {
		score += 0.25
	}
	return score
}

func (w *WidthExtender) complete(ctx context.Context, system, user string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, w.llmTimeout)
	defer cancel()

	resp, err := w.client.Complete(cctx, llm.CompletionRequest{
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
		usage.Model = w.client.Model()
	}
	w.costs.Observe(cost.PhaseWidthExtension, usage, w.provider, system+"\n"+user, resp.Content)
	return resp.Content, nil
}
