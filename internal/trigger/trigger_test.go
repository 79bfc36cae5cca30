package trigger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seedforge/internal/adaptive"
	"seedforge/internal/config"
	"seedforge/internal/corpus"
	"seedforge/internal/cost"
	"seedforge/internal/extend"
	"seedforge/internal/generator"
	"seedforge/internal/llm"
	"seedforge/internal/queue"
	"seedforge/internal/task"
	"seedforge/internal/tools"
	"seedforge/internal/verify"
)

// pipelineMock routes every phase of the pipeline by its prompt prefix.
// More specific prefixes are registered first; matching is first-wins.
func pipelineMock() *llm.MockClient {
	return llm.NewMockClient("{}").
		// verification
		Respond("Execution run", `{"action": "answer", "answer": "Apple closed at $198.11 on that day"}`).
		Respond("Uniqueness review", `{"uniqueness_score": 0.9}`).
		Respond("Complexity review", `{"complexity_score": 0.8}`).
		Respond("Atomicity review", `{"atomicity_score": 0.9}`).
		// depth extension
		Respond("Source question:", `{"queries": ["Apple December 2023 daily closing prices"]}`).
		Respond("Search result:", `{"contains_answer": true, "superset_identifier": "Apple December 2023 daily closes", "relation": "series containing the Dec 15 close", "confidence": 0.8}`).
		Respond("Proposed superset:", `{"confirmed": true}`).
		Respond("Superset identifier:", `{
			"question": "From the complete list of Apple's daily closing stock prices in December 2023, what was the closing price recorded on December 15 of that month?",
			"answer": "Within Apple's December 2023 daily closes, December 15 closed at $198.11",
			"steps": ["search the December 2023 close series", "filter the series to December 15"],
			"required_tools": ["deepsearch", "python_executor"]
		}`).
		// width extension (unused with a single atomic, registered for completeness)
		Respond("Composite question:", `{"decomposition_score": 0.9, "complexity_score": 0.8}`).
		Respond("Common theme:", `{"composite_question": "For the 2023-12-15 trading session, report every closing price in USD.", "explanation": "x"}`).
		Respond("Task A:", `{"similarity": 0.7}`).
		Respond("Questions:", `{"theme": "2023-12-15 closings"}`).
		// atomic generation
		Respond("Content identifier", `{"conclusions": [{
			"statement": "Apple's closing price on 2023-12-15 was $198.11",
			"relationship": "Apple -> close -> $198.11",
			"content_identifier": "para-1",
			"confidence": 0.9
		}]}`).
		Respond("Conclusion:", `{"candidates": [{
			"question": "On 2023-12-15, what was Apple's closing stock price in USD?",
			"expected_answer": "$198.11",
			"required_tools": ["web_search", "python_executor"],
			"complexity_score": 0.7
		}]}`).
		Respond("Question:", `{"atomicity_score": 0.85, "is_atomic": true}`)
}

func completedTrajectory() task.Trajectory {
	return task.Trajectory{
		ID:          "traj-1",
		FinalResult: "Apple Inc. closing price on 2023-12-15 was $198.11 according to Nasdaq market data published that evening.",
		Success:     true,
		Steps: []task.Step{
			{Tool: "web_search", Observation: "AAPL 198.11", Success: true},
			{Tool: "python_executor", Observation: "198.11", Success: true},
		},
		ComplexityScore: 0.8,
		TotalDuration:   30 * time.Second,
		CostUSD:         0.05,
	}
}

func newTestTrigger(t *testing.T) (*Trigger, *queue.Manager, *cost.Ledger) {
	t.Helper()
	mr := miniredis.RunT(t)
	manager := queue.NewManagerWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = manager.Close() })
	require.NoError(t, manager.EnsureAllGroups(context.Background()))

	client := pipelineMock()
	toolMock := tools.NewMockClient("web_search", "python_executor", "deepsearch")
	toolMock.ResultFor("deepsearch", &tools.Result{Success: true, Data: "Apple December 2023 daily closing prices from Nasdaq"})

	cfg := config.Default()
	tracker := cost.NewTracker()
	ledger, err := cost.NewLedger(t.TempDir())
	require.NoError(t, err)

	deps := Deps{
		Ingestor:  corpus.NewIngestor(toolMock, nil),
		Generator: generator.New(client, tools.NewCatalog(toolMock), cfg, tracker, nil),
		Depth:     extend.NewDepthExtender(client, toolMock, cfg, tracker, nil),
		Width:     extend.NewWidthExtender(client, cfg, tracker, nil),
		Verifier:  verify.NewEngine(client, toolMock, cfg, tracker, nil),
		Queue:     manager,
		Control:   adaptive.NewController(cfg, nil),
		Ledger:    ledger,
		Costs:     tracker,
	}
	return New(deps, cfg, nil), manager, ledger
}

func TestProcessEndToEnd(t *testing.T) {
	trig, manager, ledger := newTestTrigger(t)
	ctx := context.Background()

	var reports []QualityReport
	trig.OnQualityReport(func(r QualityReport) { reports = append(reports, r) })
	var generated [][]task.Spec
	trig.OnTaskGenerated(func(specs []task.Spec) { generated = append(generated, specs) })

	require.NoError(t, trig.Process(ctx, completedTrajectory()))

	// 1 atomic + 3 depth hops, all accepted
	atomicLen, err := manager.Len(ctx, queue.StreamAtomic)
	require.NoError(t, err)
	assert.Equal(t, int64(1), atomicLen)

	extendedLen, err := manager.Len(ctx, queue.StreamExtended)
	require.NoError(t, err)
	assert.Equal(t, int64(3), extendedLen)

	resultsLen, err := manager.Len(ctx, queue.StreamResults)
	require.NoError(t, err)
	assert.Equal(t, int64(4), resultsLen)

	corpusLen, err := manager.Len(ctx, queue.StreamCorpus)
	require.NoError(t, err)
	assert.Greater(t, corpusLen, int64(0))

	// ledger holds one seed record per accepted task
	seeds, err := ledger.Read(time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, seeds, 4)
	byComplexity := map[string]int{}
	for _, s := range seeds {
		byComplexity[s.Complexity]++
		assert.True(t, s.RequiresTool)
		assert.Equal(t, "traj-1", s.Source)
		assert.InDelta(t, s.SynthesisCostAnalysis.TotalSynthesisCostUSD,
			s.SynthesisCostAnalysis.SynthesisBreakdown.Sum(), 1e-6)
		assert.InDelta(t, 0.05, s.SynthesisCostAnalysis.SourceTrajectoryCostUSD, 1e-9)
	}
	assert.Equal(t, 1, byComplexity["atomic"])
	assert.Equal(t, 3, byComplexity["depth_extended"])

	// callbacks fired
	require.Len(t, reports, 1)
	assert.Equal(t, 4, reports[0].Generated)
	assert.Equal(t, 4, reports[0].Accepted)
	assert.InDelta(t, 1.0, reports[0].PassRate, 1e-9)
	require.Len(t, generated, 1)
	assert.Len(t, generated[0], 4)

	// metrics recorded
	session, err := manager.SessionMetrics(ctx, "traj-1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), session["tasks_generated"])
	global, err := manager.GlobalMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), global["tasks_accepted"])

	// a perfect batch puts the active template at the top of the index
	best, err := manager.BestPrompt(ctx, "task_generation")
	require.NoError(t, err)
	assert.Equal(t, "question_synthesis/v1", best)
}

func TestProcessPropagatesThresholdChanges(t *testing.T) {
	trig, _, _ := newTestTrigger(t)

	require.NoError(t, trig.Process(context.Background(), completedTrajectory()))

	// a perfect pass-rate tightens the generator's gate
	assert.InDelta(t, 0.82, trig.generator.AtomicityThreshold(), 1e-9)
	assert.InDelta(t, 0.62, trig.width.SimilarityThreshold(), 1e-9)
}

func TestProcessEmptyTrajectory(t *testing.T) {
	trig, manager, ledger := newTestTrigger(t)
	ctx := context.Background()

	require.NoError(t, trig.Process(ctx, task.Trajectory{ID: "traj-empty"}))

	n, err := manager.Len(ctx, queue.StreamCorpus)
	require.NoError(t, err)
	assert.Zero(t, n)
	seeds, err := ledger.Read(time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, seeds)
}

func TestClampBatch(t *testing.T) {
	assert.Equal(t, 10, clampBatch(20, 10))
	assert.Equal(t, 4, clampBatch(4, 10))
	assert.Equal(t, 1, clampBatch(0, 10))
	assert.Equal(t, 20, clampBatch(20, 0))
}

func TestIsPriority(t *testing.T) {
	tests := []struct {
		name string
		traj task.Trajectory
		want bool
	}{
		{
			name: "fast and fully successful",
			traj: task.Trajectory{
				Steps:         []task.Step{{Success: true}, {Success: true}},
				TotalDuration: 10 * time.Second,
			},
			want: true,
		},
		{
			name: "only one signal",
			traj: task.Trajectory{
				Steps:         []task.Step{{Success: false}},
				TotalDuration: 2 * time.Minute,
			},
			want: false,
		},
		{
			name: "many complex steps",
			traj: task.Trajectory{
				Steps:           []task.Step{{}, {}, {}, {}, {}},
				ComplexityScore: 0.9,
				TotalDuration:   5 * time.Minute,
			},
			want: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPriority(tt.traj))
		})
	}
}

func TestEnqueueRejectsWhenFull(t *testing.T) {
	trig, _, _ := newTestTrigger(t)

	slow := task.Trajectory{TotalDuration: 2 * time.Minute} // not priority
	for i := 0; i < normalQueueCap; i++ {
		slow.ID = fmt.Sprintf("traj-%d", i)
		require.NoError(t, trig.OnTrajectoryCompleted(slow))
	}
	err := trig.OnTrajectoryCompleted(slow)
	assert.Error(t, err)

	p, n := trig.QueueDepths()
	assert.Zero(t, p)
	assert.Equal(t, normalQueueCap, n)
}

func TestRunDrainsPriorityFirst(t *testing.T) {
	trig, _, _ := newTestTrigger(t)

	var order []string
	done := make(chan struct{})
	trig.OnQualityReport(func(r QualityReport) {
		order = append(order, r.TrajectoryID)
		if len(order) == 2 {
			close(done)
		}
	})

	normal := completedTrajectory()
	normal.ID = "traj-normal"
	normal.Steps = nil // drops the all-success signal
	normal.ComplexityScore = 0
	normal.TotalDuration = 2 * time.Minute
	require.NoError(t, trig.OnTrajectoryCompleted(normal))

	prio := completedTrajectory()
	prio.ID = "traj-priority"
	require.NoError(t, trig.OnTrajectoryCompleted(prio))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = trig.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("worker did not process both trajectories")
	}
	assert.Equal(t, []string{"traj-priority", "traj-normal"}, order)
}
