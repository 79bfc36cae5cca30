package extend

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seedforge/internal/config"
	"seedforge/internal/llm"
	"seedforge/internal/task"
)

func stockAtomics() []task.AtomicTask {
	now := time.Now()
	return []task.AtomicTask{
		{
			ID:            "atomic_1700000000_00000001",
			Question:      "On 2023-12-15, what was Apple's closing stock price in USD?",
			GoldenAnswer:  "$198.11",
			RequiredTools: []string{"web_search", "python_executor"},
			CreatedAt:     now,
		},
		{
			ID:            "atomic_1700000001_00000002",
			Question:      "On 2023-12-15, what was Microsoft's closing stock price in USD?",
			GoldenAnswer:  "$370.95",
			RequiredTools: []string{"web_search"},
			CreatedAt:     now,
		},
		{
			ID:            "atomic_1700000002_00000003",
			Question:      "On 2023-12-15, what was Alphabet's closing stock price in USD?",
			GoldenAnswer:  "$133.13",
			RequiredTools: []string{"web_search", "calculator"},
			CreatedAt:     now,
		},
	}
}

func widthMock() *llm.MockClient {
	return llm.NewMockClient("{}").
		Respond("Composite question:", `{"decomposition_score": 0.9, "complexity_score": 0.8}`).
		Respond("Common theme:", `{"composite_question": "For the 2023-12-15 trading session, report the closing stock prices in USD for Apple, Microsoft, and Alphabet.", "explanation": "asks all three closings at once"}`).
		Respond("Task A:", `{"similarity": 0.7, "facets": {"domain": 0.9, "answer_type": 0.8, "tool_use": 0.6, "background": 0.5}}`).
		Respond("Questions:", `{"theme": "2023-12-15 tech stock closings"}`)
}

func TestWidthFusesRelatedTasks(t *testing.T) {
	w := NewWidthExtender(widthMock(), config.Default(), nil, nil)

	composites := w.Extend(context.Background(), stockAtomics())
	require.Len(t, composites, 1)

	c := composites[0]
	assert.Regexp(t, `^width_\d+_[0-9a-f]{8}$`, c.ID)
	assert.Equal(t, []string{"$198.11", "$370.95", "$133.13"}, c.GoldenAnswers)
	assert.Len(t, c.SourceAtomicTasks, 3)
	assert.Len(t, c.GoldenAnswers, len(c.SourceAtomicTasks))
	assert.ElementsMatch(t, []string{"web_search", "python_executor", "calculator"}, c.ExpectedTools)
	assert.Equal(t, "llm_fusion", c.MergeStrategy)
	assert.Equal(t, task.DifficultyComplex, c.Difficulty)
	assert.Contains(t, c.Question, "Apple")
}

func TestWidthRejectsInputBelowGroupFloor(t *testing.T) {
	w := NewWidthExtender(widthMock(), config.Default(), nil, nil)
	assert.Nil(t, w.Extend(context.Background(), stockAtomics()[:1]))
	assert.Nil(t, w.Extend(context.Background(), nil))
}

func TestWidthRejectsDissimilarTasks(t *testing.T) {
	mock := llm.NewMockClient("{}").
		Respond("Task A:", `{"similarity": 0.2}`)
	w := NewWidthExtender(mock, config.Default(), nil, nil)

	assert.Empty(t, w.Extend(context.Background(), stockAtomics()))
}

func TestWidthThresholdAdjustable(t *testing.T) {
	w := NewWidthExtender(widthMock(), config.Default(), nil, nil)
	w.SetSimilarityThreshold(0.95)
	assert.Empty(t, w.Extend(context.Background(), stockAtomics()))
}

func TestWidthRejectsIdenticalAnswers(t *testing.T) {
	atomics := stockAtomics()[:2]
	atomics[1].GoldenAnswer = atomics[0].GoldenAnswer
	w := NewWidthExtender(widthMock(), config.Default(), nil, nil)

	assert.Empty(t, w.Extend(context.Background(), atomics))
}

func TestWidthRejectsRepeatedAnswerInLargerCluster(t *testing.T) {
	atomics := stockAtomics()
	atomics[1].GoldenAnswer = atomics[0].GoldenAnswer
	assert.False(t, validCluster(atomics))

	w := NewWidthExtender(widthMock(), config.Default(), nil, nil)
	assert.Empty(t, w.Extend(context.Background(), atomics))
}

func TestWidthRejectsDuplicateQuestions(t *testing.T) {
	atomics := stockAtomics()[:2]
	atomics[1].Question = atomics[0].Question
	w := NewWidthExtender(widthMock(), config.Default(), nil, nil)

	assert.Empty(t, w.Extend(context.Background(), atomics))
}

func TestWidthTemplateFallback(t *testing.T) {
	mock := llm.NewMockClient("{}").
		Respond("Composite question:", `{"decomposition_score": 0.9, "complexity_score": 0.8}`).
		Respond("Common theme:", `this is not json at all`).
		Respond("Task A:", `{"similarity": 0.7}`).
		Respond("Questions:", `{"theme": "2023-12-15 tech stock closings"}`)
	w := NewWidthExtender(mock, config.Default(), nil, nil)

	composites := w.Extend(context.Background(), stockAtomics())
	require.Len(t, composites, 1)
	assert.Equal(t, "template", composites[0].MergeStrategy)
	assert.Contains(t, composites[0].Question, "(1)")
	assert.Contains(t, composites[0].Question, "(3)")
}

func TestWidthDecompositionGate(t *testing.T) {
	mock := llm.NewMockClient("{}").
		Respond("Composite question:", `{"decomposition_score": 0.2, "complexity_score": 0.1}`).
		Respond("Common theme:", `{"composite_question": "For the 2023-12-15 trading session, report the closing stock prices in USD for Apple, Microsoft, and Alphabet.", "explanation": "x"}`).
		Respond("Task A:", `{"similarity": 0.7}`).
		Respond("Questions:", `{"theme": "tech closings"}`)
	w := NewWidthExtender(mock, config.Default(), nil, nil)

	assert.Empty(t, w.Extend(context.Background(), stockAtomics()))
}

func TestExecutabilityRule(t *testing.T) {
	full := task.CompositeTask{
		Question:          "For the 2023-12-15 trading session, report the closing prices for Apple and Microsoft.",
		GoldenAnswers:     []string{"$198.11", "$370.95"},
		SourceAtomicTasks: []string{"a", "b"},
		ExpectedTools:     []string{"web_search", "python_executor"},
	}
	assert.InDelta(t, 1.0, executabilityRule(full), 1e-9)

	weak := task.CompositeTask{Question: "short?", GoldenAnswers: []string{"x"}}
	assert.Less(t, executabilityRule(weak), 0.5)
}
