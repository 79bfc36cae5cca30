// Package task holds the data model shared across the synthesis pipeline:
// trajectories, corpus content, conclusions, and the three task variants
// (atomic, depth-extended, width-composite) plus verification results.
//
// The variants are tagged by Kind rather than related by inheritance; code
// that needs a uniform view works from the flattened Spec.
package task

import "time"

// Kind discriminates the task variants.
type Kind string

const (
	KindAtomic Kind = "atomic"
	KindDepth  Kind = "depth"
	KindWidth  Kind = "width"
)

// Difficulty buckets task complexity.
type Difficulty string

const (
	DifficultySimple  Difficulty = "simple"
	DifficultyMedium  Difficulty = "medium"
	DifficultyComplex Difficulty = "complex"
)

// StepUsage is optional per-step token accounting.
type StepUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Step is one tool interaction inside a trajectory. Immutable after emission.
type Step struct {
	Tool        string         `json:"tool"`
	Params      map[string]any `json:"params,omitempty"`
	Observation string         `json:"observation,omitempty"`
	Success     bool           `json:"success"`
	Duration    time.Duration  `json:"duration"`
	Usage       *StepUsage     `json:"usage,omitempty"`
}

// Trajectory is the recorded transcript of one agent run. Consumed once by
// the corpus ingestor.
type Trajectory struct {
	ID              string        `json:"id"`
	Steps           []Step        `json:"steps"`
	FinalResult     string        `json:"final_result"`
	Success         bool          `json:"success"`
	ComplexityScore float64       `json:"complexity_score,omitempty"`
	TotalDuration   time.Duration `json:"total_duration,omitempty"`
	CostUSD         float64       `json:"cost_usd,omitempty"`
}

// ContentKind classifies corpus material by origin.
type ContentKind string

const (
	ContentWeb             ContentKind = "web"
	ContentCodeOutput      ContentKind = "code-output"
	ContentTrajectoryFinal ContentKind = "trajectory-final"
	ContentSearchResult    ContentKind = "search-result"
	ContentGeneric         ContentKind = "generic"
)

// CorpusContent is a normalized, quality-gated body of text derived from a
// trajectory step or external ingestion. Immutable once emitted.
type CorpusContent struct {
	ID          string         `json:"corpus_id"`
	Source      string         `json:"source"`
	Kind        ContentKind    `json:"content_type"`
	Text        string         `json:"text_content"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Status      string         `json:"processing_status"`
	ExtractedAt time.Time      `json:"extracted_at"`
}

// Conclusion is one atomic factual statement extracted from a corpus body.
type Conclusion struct {
	Statement    string  `json:"statement"`
	Relationship string  `json:"relationship"`
	ContentID    string  `json:"content_identifier"`
	Confidence   float64 `json:"confidence"`
	Verifiable   bool    `json:"verifiable"`
}

// AtomicTask asks a single fact answerable with one concrete value.
type AtomicTask struct {
	ID                    string     `json:"task_id"`
	Question              string     `json:"question"`
	GoldenAnswer          string     `json:"golden_answer"`
	RequiredTools         []string   `json:"required_tools"`
	Difficulty            Difficulty `json:"difficulty_level"`
	SourceCorpus          string     `json:"source_corpus"`
	ContentIdentifier     string     `json:"content_identifier"`
	AtomicityScore        float64    `json:"atomicity_score"`
	AtomicityVerified     bool       `json:"atomicity_verified"`
	ExecutabilityVerified bool       `json:"executability_verified"`
	VerificationScore     float64    `json:"verification_score"`
	CreatedAt             time.Time  `json:"created_at"`
}

// SupersetInfo describes one depth-extension hop: a larger set with a known
// relation to the previous answer.
type SupersetInfo struct {
	Identifier       string  `json:"identifier"`
	Relation         string  `json:"relation"`
	Query            string  `json:"search_query"`
	Confidence       float64 `json:"confidence"`
	ValidationPassed bool    `json:"validation_passed"`
}

// ExtendedTask is a depth-extended task. Its answer still resolves to the
// source atomic answer; HopLevel equals len(Chain).
type ExtendedTask struct {
	ID                string         `json:"task_id"`
	Question          string         `json:"question"`
	GoldenAnswer      string         `json:"golden_answer"`
	HopLevel          int            `json:"hop_level"`
	SourceAtomicTask  string         `json:"source_atomic_task"`
	Chain             []SupersetInfo `json:"superset_chain"`
	IntermediateSteps []string       `json:"intermediate_steps,omitempty"`
	ExpectedTools     []string       `json:"expected_tools"`
	ComplexityScore   float64        `json:"complexity_score"`
	Difficulty        Difficulty     `json:"difficulty_level"`
	CreatedAt         time.Time      `json:"created_at"`
}

// CompositeTask fuses 2–3 semantically-related atomic tasks into one question.
// Source tasks are referenced by id, never copied.
type CompositeTask struct {
	ID                string     `json:"task_id"`
	Question          string     `json:"question"`
	GoldenAnswers     []string   `json:"golden_answers"`
	SourceAtomicTasks []string   `json:"source_atomic_tasks"`
	OriginalQuestions []string   `json:"original_questions"`
	ContentIdentifier string     `json:"content_identifier,omitempty"`
	ExpectedTools     []string   `json:"expected_tools"`
	MergeStrategy     string     `json:"merge_strategy"`
	Difficulty        Difficulty `json:"difficulty_level"`
	CreatedAt         time.Time  `json:"created_at"`
}

// Recommendation is the verification verdict.
type Recommendation string

const (
	RecommendAccept Recommendation = "accept"
	RecommendModify Recommendation = "modify"
	RecommendReject Recommendation = "reject"
)

// DimensionScore is one of the seven verification ratings.
type DimensionScore struct {
	Score         float64 `json:"score"`
	Justification string  `json:"justification"`
}

// VerificationResult holds the weighted multi-dimension verdict for one task.
// It references the task by id only.
type VerificationResult struct {
	TaskID                string                    `json:"task_id"`
	Dimensions            map[string]DimensionScore `json:"verification_dimensions"`
	Overall               float64                   `json:"overall_score"`
	Recommendation        Recommendation            `json:"recommendation"`
	SuggestedImprovements []string                  `json:"suggested_improvements,omitempty"`
	Details               map[string]any            `json:"details,omitempty"`
	VerifiedAt            time.Time                 `json:"verified_at"`
}

// Spec is the flattened, kind-agnostic view of a task used by the
// verification engine and ledger sinks.
type Spec struct {
	ID          string
	Kind        Kind
	Question    string
	Answers     []string
	Tools       []string
	Difficulty  Difficulty
	HopLevel    int
	SourceCount int
}

// Spec returns the flattened view of an atomic task.
func (t AtomicTask) Spec() Spec {
	return Spec{
		ID:         t.ID,
		Kind:       KindAtomic,
		Question:   t.Question,
		Answers:    []string{t.GoldenAnswer},
		Tools:      t.RequiredTools,
		Difficulty: t.Difficulty,
	}
}

// Spec returns the flattened view of a depth-extended task.
func (t ExtendedTask) Spec() Spec {
	return Spec{
		ID:         t.ID,
		Kind:       KindDepth,
		Question:   t.Question,
		Answers:    []string{t.GoldenAnswer},
		Tools:      t.ExpectedTools,
		Difficulty: t.Difficulty,
		HopLevel:   t.HopLevel,
	}
}

// Spec returns the flattened view of a composite task.
func (t CompositeTask) Spec() Spec {
	return Spec{
		ID:          t.ID,
		Kind:        KindWidth,
		Question:    t.Question,
		Answers:     t.GoldenAnswers,
		Tools:       t.ExpectedTools,
		Difficulty:  t.Difficulty,
		SourceCount: len(t.SourceAtomicTasks),
	}
}
