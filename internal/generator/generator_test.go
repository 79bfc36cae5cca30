package generator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seedforge/internal/config"
	"seedforge/internal/cost"
	"seedforge/internal/llm"
	"seedforge/internal/task"
	"seedforge/internal/tools"
)

const (
	conclusionResponse = `{"conclusions": [{
		"statement": "Apple's closing price on 2023-12-15 was $198.11",
		"relationship": "Apple -> closing price on 2023-12-15 -> $198.11",
		"content_identifier": "para-1",
		"confidence": 0.9
	}]}`

	questionResponse = `{"candidates": [{
		"question": "On 2023-12-15, what was Apple's closing stock price in USD?",
		"expected_answer": "$198.11",
		"required_tools": ["web_search", "python_executor"],
		"complexity_score": 0.7
	}]}`

	atomicityResponse = `{"atomicity_score": 0.85, "is_atomic": true, "findings": {"single_fact": "yes"}}`
)

func happyMock() *llm.MockClient {
	return llm.NewMockClient("{}").
		Respond("Content identifier", conclusionResponse).
		Respond("Conclusion:", questionResponse).
		Respond("Question:", atomicityResponse)
}

func newGenerator(client llm.Client, costs *cost.Tracker) *Generator {
	catalog := tools.NewCatalog(tools.NewMockClient("web_search", "python_executor", "deepsearch"))
	return New(client, catalog, config.Default(), costs, nil)
}

func webCorpus() task.CorpusContent {
	return task.CorpusContent{
		ID:   "corpus_ab12cd34",
		Kind: task.ContentWeb,
		Text: "Apple Inc. (AAPL) closed at $198.11 on December 15, 2023, with 128M shares traded on Nasdaq.",
	}
}

func TestGenerateHappyPath(t *testing.T) {
	tracker := cost.NewTracker()
	g := newGenerator(happyMock(), tracker)

	tasks, err := g.Generate(context.Background(), webCorpus())
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	got := tasks[0]
	assert.Regexp(t, `^atomic_\d+_[0-9a-f]{8}$`, got.ID)
	assert.Equal(t, "$198.11", got.GoldenAnswer)
	assert.Equal(t, []string{"web_search", "python_executor"}, got.RequiredTools)
	assert.GreaterOrEqual(t, len(got.Question), 30)
	assert.GreaterOrEqual(t, got.AtomicityScore, 0.8)
	assert.True(t, got.AtomicityVerified)
	assert.Equal(t, "corpus_ab12cd34", got.SourceCorpus)
	assert.Equal(t, "para-1", got.ContentIdentifier)
	assert.Equal(t, task.DifficultyMedium, got.Difficulty)

	b := tracker.Breakdown()
	assert.Greater(t, b.PerPhaseUSD[cost.PhaseSeedExtraction], 0.0)
	assert.Greater(t, b.PerPhaseUSD[cost.PhaseTaskExpansion], 0.0)
	assert.Greater(t, b.PerPhaseUSD[cost.PhaseQualityValidation], 0.0)
}

func TestGenerateGatesOnScoreNotBoolean(t *testing.T) {
	mock := llm.NewMockClient("{}").
		Respond("Content identifier", conclusionResponse).
		Respond("Conclusion:", questionResponse).
		Respond("Question:", `{"atomicity_score": 0.85, "is_atomic": false}`)
	g := newGenerator(mock, nil)

	tasks, err := g.Generate(context.Background(), webCorpus())
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.False(t, tasks[0].AtomicityVerified)
}

func TestGenerateRespectsAdjustedThreshold(t *testing.T) {
	mock := llm.NewMockClient("{}").
		Respond("Content identifier", conclusionResponse).
		Respond("Conclusion:", questionResponse).
		Respond("Question:", `{"atomicity_score": 0.75, "is_atomic": true}`)
	g := newGenerator(mock, nil)

	tasks, err := g.Generate(context.Background(), webCorpus())
	require.NoError(t, err)
	assert.Empty(t, tasks)

	g.SetAtomicityThreshold(0.7)
	tasks, err = g.Generate(context.Background(), webCorpus())
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestGenerateDropsLowConfidenceConclusions(t *testing.T) {
	mock := llm.NewMockClient("{}").
		Respond("Content identifier", `{"conclusions": [
			{"statement": "Apple closed at $198.11 on 2023-12-15", "confidence": 0.5},
			{"statement": "something vague about markets", "confidence": 0.9}
		]}`)
	g := newGenerator(mock, nil)

	tasks, err := g.Generate(context.Background(), webCorpus())
	require.NoError(t, err)
	// first fails confidence, second fails local verifiability
	assert.Empty(t, tasks)
	assert.Equal(t, 1, mock.CallCount())
}

func TestGateCandidate(t *testing.T) {
	g := newGenerator(llm.NewMockClient("{}"), nil)
	ctx := context.Background()

	tests := []struct {
		name   string
		cand   candidate
		reject bool
	}{
		{
			name: "passes",
			cand: candidate{
				Question:        "On 2023-12-15, what was Apple's closing stock price in USD?",
				RequiredTools:   []string{"web_search", "python_executor"},
				ComplexityScore: 0.7,
			},
		},
		{
			name: "too short",
			cand: candidate{
				Question:        "Apple close price?",
				RequiredTools:   []string{"web_search", "python_executor"},
				ComplexityScore: 0.7,
			},
			reject: true,
		},
		{
			name: "simple lookup",
			cand: candidate{
				Question:        "What is the name of Apple's chief executive officer today?",
				RequiredTools:   []string{"web_search", "python_executor"},
				ComplexityScore: 0.7,
			},
			reject: true,
		},
		{
			name: "low complexity",
			cand: candidate{
				Question:        "On 2023-12-15, what was Apple's closing stock price in USD?",
				RequiredTools:   []string{"web_search", "python_executor"},
				ComplexityScore: 0.4,
			},
			reject: true,
		},
		{
			name: "single tool after validation",
			cand: candidate{
				Question:        "On 2023-12-15, what was Apple's closing stock price in USD?",
				RequiredTools:   []string{"web_search", "made-up-tool"},
				ComplexityScore: 0.7,
			},
			reject: true,
		},
		{
			name: "fallback substitution keeps two tools",
			cand: candidate{
				Question:        "On 2023-12-15, what was Apple's closing stock price in USD?",
				RequiredTools:   []string{"web_search", "content-analyzer"},
				ComplexityScore: 0.7,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason := g.gateCandidate(ctx, &tt.cand)
			if tt.reject {
				assert.NotEmpty(t, reason)
			} else {
				assert.Empty(t, reason)
			}
		})
	}
}

func TestIsSimpleFactLookup(t *testing.T) {
	assert.True(t, isSimpleFactLookup("The name of X is what?"))
	assert.True(t, isSimpleFactLookup("What is TCP?"))
	assert.True(t, isSimpleFactLookup("这家公司的标识符是多少"))
	assert.False(t, isSimpleFactLookup("On 2023-12-15, what was Apple's closing stock price in USD?"))
}

func TestIsVerifiable(t *testing.T) {
	assert.True(t, IsVerifiable("Apple's closing price on 2023-12-15 was $198.11"))
	assert.True(t, IsVerifiable("Revenue grew 12% to $394.3 billion"))
	assert.False(t, IsVerifiable("the market was generally calm"))
}

func TestParseAtomicityDegradesGracefully(t *testing.T) {
	j := parseAtomicity("total nonsense, no json anywhere")
	assert.InDelta(t, 0.5, j.Score, 1e-9)

	j = parseAtomicity(`broken { "atomicity_score": 0.9, "is_atomic": true`)
	assert.InDelta(t, 0.9, j.Score, 1e-9)
	assert.True(t, j.IsAtomic)
}

func TestGenerateBatchIsolatesFailures(t *testing.T) {
	mock := llm.NewMockClient("{}").
		Respond("corpus_feed0bad", `{"conclusions": []}`).
		Respond("Content identifier", conclusionResponse).
		Respond("Conclusion:", questionResponse).
		Respond("Question:", atomicityResponse)
	g := newGenerator(mock, nil)

	good := webCorpus()
	bad := task.CorpusContent{ID: "corpus_feed0bad", Kind: task.ContentGeneric, Text: "nothing extractable here"}

	tasks := g.GenerateBatch(context.Background(), []task.CorpusContent{good, bad})
	assert.Len(t, tasks, 1)

	mockFailing := llm.NewMockClient("{}")
	mockFailing.Fail(llm.ErrMockFailure)
	gFail := newGenerator(mockFailing, nil)
	assert.Empty(t, gFail.GenerateBatch(context.Background(), []task.CorpusContent{good}))
}
