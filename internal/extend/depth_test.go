package extend

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seedforge/internal/config"
	"seedforge/internal/cost"
	"seedforge/internal/llm"
	"seedforge/internal/task"
	"seedforge/internal/tools"
)

const (
	queriesResponse = `{"queries": [
		"Apple December 2023 daily closing prices",
		"AAPL Q4 2023 trading history",
		"Nasdaq December 2023 close data"
	]}`

	judgementResponse = `{
		"contains_answer": true,
		"superset_identifier": "Apple December 2023 daily closing prices",
		"relation": "daily close series containing the 2023-12-15 close",
		"confidence": 0.8
	}`

	confirmResponse = `{"confirmed": true, "reason": "the December series includes Dec 15"}`

	intermediateResponse = `{
		"question": "From the complete list of Apple's daily closing stock prices in December 2023, what was the closing price recorded on December 15 of that month?",
		"answer": "Within Apple's December 2023 daily closes, December 15 closed at $198.11",
		"steps": ["search the December 2023 close series", "filter the series to December 15"],
		"required_tools": ["deepsearch", "python_executor"]
	}`
)

func sourceAtomic() task.AtomicTask {
	return task.AtomicTask{
		ID:            "atomic_1700000000_abcd1234",
		Question:      "On 2023-12-15, what was Apple's closing stock price in USD?",
		GoldenAnswer:  "$198.11",
		RequiredTools: []string{"web_search", "python_executor"},
		Difficulty:    task.DifficultyMedium,
		CreatedAt:     time.Now(),
	}
}

func depthMock() *llm.MockClient {
	return llm.NewMockClient("{}").
		Respond("Source question:", queriesResponse).
		Respond("Search result:", judgementResponse).
		Respond("Proposed superset:", confirmResponse).
		Respond("Superset identifier:", intermediateResponse)
}

func depthTools() *tools.MockClient {
	mock := tools.NewMockClient("deepsearch")
	mock.ResultFor("deepsearch", &tools.Result{
		Success: true,
		Data:    "Apple December 2023 daily closing prices list from Nasdaq",
	})
	return mock
}

func TestExtendFullChain(t *testing.T) {
	tracker := cost.NewTracker()
	d := NewDepthExtender(depthMock(), depthTools(), config.Default(), tracker, nil)

	atomic := sourceAtomic()
	extended := d.Extend(context.Background(), atomic)
	require.Len(t, extended, 3)

	for i, e := range extended {
		assert.Regexp(t, `^depth_\d+_[0-9a-f]{8}$`, e.ID)
		assert.Equal(t, i+1, e.HopLevel)
		assert.Len(t, e.Chain, e.HopLevel)
		assert.Equal(t, atomic.ID, e.SourceAtomicTask)
		assert.Contains(t, strings.ToLower(e.GoldenAnswer), strings.ToLower(atomic.GoldenAnswer))
		assert.True(t, e.Chain[e.HopLevel-1].ValidationPassed)
		assert.GreaterOrEqual(t, len(e.ExpectedTools), 1)
		// each hop drafts 2 steps and 2 tools, contributing 0.9
		assert.InDelta(t, (1+0.9*float64(i+1))/5, e.ComplexityScore, 1e-9)
	}
	assert.Equal(t, task.DifficultyComplex, extended[2].Difficulty)

	b := tracker.Breakdown()
	assert.Greater(t, b.PerPhaseUSD[cost.PhaseDepthExtension], 0.0)
}

func TestExtendStopsWhenAnswerLost(t *testing.T) {
	mock := llm.NewMockClient("{}").
		Respond("Source question:", queriesResponse).
		Respond("Search result:", judgementResponse).
		Respond("Proposed superset:", confirmResponse).
		Respond("Superset identifier:", `{
			"question": "From the complete list of Apple's daily closing stock prices in December 2023, what was recorded on December 15 of that month?",
			"answer": "the answer changed entirely",
			"steps": ["a", "b"],
			"required_tools": ["deepsearch"]
		}`)
	d := NewDepthExtender(mock, depthTools(), config.Default(), nil, nil)

	extended := d.Extend(context.Background(), sourceAtomic())
	assert.Empty(t, extended)
}

func TestExtendTreatsToolFailureAsEmpty(t *testing.T) {
	toolMock := tools.NewMockClient("deepsearch")
	toolMock.FailCalls(errors.New("network down"))
	d := NewDepthExtender(depthMock(), toolMock, config.Default(), nil, nil)

	extended := d.Extend(context.Background(), sourceAtomic())
	assert.Empty(t, extended)
}

func TestExtendRejectsUnconfirmedSupersets(t *testing.T) {
	mock := llm.NewMockClient("{}").
		Respond("Source question:", queriesResponse).
		Respond("Search result:", judgementResponse).
		Respond("Proposed superset:", `{"confirmed": false, "reason": "cannot confirm containment"}`)
	d := NewDepthExtender(mock, depthTools(), config.Default(), nil, nil)

	extended := d.Extend(context.Background(), sourceAtomic())
	assert.Empty(t, extended)
}

func TestExtendSkipsLowConfidenceJudgements(t *testing.T) {
	mock := llm.NewMockClient("{}").
		Respond("Source question:", queriesResponse).
		Respond("Search result:", `{
			"contains_answer": true,
			"superset_identifier": "some vague set",
			"relation": "maybe related",
			"confidence": 0.5
		}`)
	d := NewDepthExtender(mock, depthTools(), config.Default(), nil, nil)

	extended := d.Extend(context.Background(), sourceAtomic())
	assert.Empty(t, extended)
}

func TestChainComplexityPerHop(t *testing.T) {
	assert.InDelta(t, 0.9, hopComplexity(2, 2), 1e-9)

	sum := hopComplexity(2, 2) + hopComplexity(3, 1)
	assert.InDelta(t, (1+0.9+0.8)/5, chainComplexity(sum), 1e-9)

	assert.Equal(t, 1.0, chainComplexity(3*hopComplexity(20, 10)))
	assert.Zero(t, chainComplexity(0))
}

func TestResultTexts(t *testing.T) {
	texts := resultTexts([]any{
		map[string]any{"title": "AAPL series", "snippet": "daily closes for December 2023"},
		"plain text result",
	})
	require.Len(t, texts, 2)
	assert.Contains(t, texts[0], "AAPL series")
	assert.Equal(t, "plain text result", texts[1])
}
