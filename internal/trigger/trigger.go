// Package trigger is the top-level driver: it turns trajectory-completed
// events into fully-verified, persisted seed tasks.
package trigger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"seedforge/internal/adaptive"
	"seedforge/internal/config"
	"seedforge/internal/corpus"
	"seedforge/internal/cost"
	"seedforge/internal/extend"
	"seedforge/internal/generator"
	"seedforge/internal/logging"
	"seedforge/internal/queue"
	"seedforge/internal/task"
	"seedforge/internal/verify"
)

const (
	priorityQueueCap = 100
	normalQueueCap   = 1000
	workerConsumer   = "trigger-worker"
)

// QualityReport summarizes one processed trajectory request.
type QualityReport struct {
	TrajectoryID string              `json:"trajectory_id"`
	CorpusCount  int                 `json:"corpus_count"`
	Generated    int                 `json:"generated"`
	Accepted     int                 `json:"accepted"`
	Modified     int                 `json:"modified"`
	Rejected     int                 `json:"rejected"`
	PassRate     float64             `json:"pass_rate"`
	Thresholds   adaptive.Thresholds `json:"thresholds"`
	Cost         cost.Breakdown      `json:"cost"`
	Duration     time.Duration       `json:"duration"`
}

// Trigger owns the single worker loop and the two in-memory intake queues.
type Trigger struct {
	ingestor  *corpus.Ingestor
	generator *generator.Generator
	depth     *extend.DepthExtender
	width     *extend.WidthExtender
	verifier  *verify.Engine
	queue     *queue.Manager
	control   *adaptive.Controller
	ledger    *cost.Ledger
	costs     *cost.Tracker
	logger    logging.Logger
	cfg       config.Config

	priority chan task.Trajectory
	normal   chan task.Trajectory

	onTasks  func([]task.Spec)
	onReport func(QualityReport)
}

// Deps collects the pipeline components the trigger drives.
type Deps struct {
	Ingestor  *corpus.Ingestor
	Generator *generator.Generator
	Depth     *extend.DepthExtender
	Width     *extend.WidthExtender
	Verifier  *verify.Engine
	Queue     *queue.Manager
	Control   *adaptive.Controller
	Ledger    *cost.Ledger
	Costs     *cost.Tracker
}

// New wires the trigger. Adaptive threshold changes are propagated into the
// generator and width extender.
func New(deps Deps, cfg config.Config, logger logging.Logger) *Trigger {
	t := &Trigger{
		ingestor:  deps.Ingestor,
		generator: deps.Generator,
		depth:     deps.Depth,
		width:     deps.Width,
		verifier:  deps.Verifier,
		queue:     deps.Queue,
		control:   deps.Control,
		ledger:    deps.Ledger,
		costs:     deps.Costs,
		logger:    logging.OrNop(logger),
		cfg:       cfg,
		priority:  make(chan task.Trajectory, priorityQueueCap),
		normal:    make(chan task.Trajectory, normalQueueCap),
	}
	if t.costs == nil {
		t.costs = cost.NewTracker()
	}
	if t.control != nil {
		t.control.OnChange(func(th adaptive.Thresholds) {
			t.generator.SetAtomicityThreshold(th.Atomicity)
			t.width.SetSimilarityThreshold(th.Similarity)
		})
	}
	return t
}

// OnTaskGenerated registers the callback invoked with every accepted batch.
func (t *Trigger) OnTaskGenerated(fn func([]task.Spec)) { t.onTasks = fn }

// OnQualityReport registers the per-request report callback.
func (t *Trigger) OnQualityReport(fn func(QualityReport)) { t.onReport = fn }

// IsPriority applies the priority rule: at least two of step count, recorded
// complexity, full success, and fast runtime.
func IsPriority(traj task.Trajectory) bool {
	signals := 0
	if len(traj.Steps) >= 5 {
		signals++
	}
	if traj.ComplexityScore > 0.7 {
		signals++
	}
	if allStepsSucceeded(traj) {
		signals++
	}
	if traj.TotalDuration < 60*time.Second {
		signals++
	}
	return signals >= 2
}

func allStepsSucceeded(traj task.Trajectory) bool {
	if len(traj.Steps) == 0 {
		return false
	}
	for _, step := range traj.Steps {
		if !step.Success {
			return false
		}
	}
	return true
}

// OnTrajectoryCompleted enqueues a finished trajectory. A full queue is an
// error; callers decide whether to drop or retry.
func (t *Trigger) OnTrajectoryCompleted(traj task.Trajectory) error {
	if IsPriority(traj) {
		select {
		case t.priority <- traj:
			return nil
		default:
			return fmt.Errorf("priority queue full (%d)", priorityQueueCap)
		}
	}
	select {
	case t.normal <- traj:
		return nil
	default:
		return fmt.Errorf("normal queue full (%d)", normalQueueCap)
	}
}

// QueueDepths reports current intake backlog (priority, normal).
func (t *Trigger) QueueDepths() (int, int) {
	return len(t.priority), len(t.normal)
}

// Run is the single worker loop. Priority requests drain first. The loop
// exits when ctx is done.
func (t *Trigger) Run(ctx context.Context) error {
	t.logger.Info("trigger: worker started")
	for {
		traj, ok := t.next(ctx)
		if !ok {
			t.logger.Info("trigger: worker stopped")
			return ctx.Err()
		}
		if err := t.Process(ctx, traj); err != nil {
			t.logger.Error("trigger: trajectory %s failed: %v", traj.ID, err)
		}
	}
}

func (t *Trigger) next(ctx context.Context) (task.Trajectory, bool) {
	// drain priority without blocking first
	select {
	case traj := <-t.priority:
		return traj, true
	default:
	}
	select {
	case traj := <-t.priority:
		return traj, true
	case traj := <-t.normal:
		return traj, true
	case <-ctx.Done():
		return task.Trajectory{}, false
	}
}

// Process runs the full pipeline for one trajectory. Queue publish failures
// propagate; everything else is recovered per candidate.
func (t *Trigger) Process(ctx context.Context, traj task.Trajectory) error {
	started := time.Now()
	costStart := t.costs.Len()

	contents := t.ingestor.IngestTrajectories([]task.Trajectory{traj})
	if err := t.publishCorpus(ctx, contents); err != nil {
		return err
	}
	if len(contents) == 0 {
		t.report(traj, contents, nil, nil, started, costStart)
		return nil
	}

	atomics := t.generator.GenerateBatch(ctx, contents)
	if err := t.publishAtomics(ctx, atomics); err != nil {
		return err
	}

	extendeds, composites := t.extendAll(ctx, atomics)
	if err := t.publishExtended(ctx, extendeds, composites); err != nil {
		return err
	}

	specs := collectSpecs(atomics, extendeds, composites)
	results := t.verifyInBatches(ctx, specs)

	accepted, err := t.sinkResults(ctx, traj, specs, results, costStart)
	if err != nil {
		return err
	}

	if t.control != nil {
		t.control.ObserveBatch(results)
	}
	if t.onTasks != nil && len(accepted) > 0 {
		t.onTasks(accepted)
	}
	t.report(traj, contents, specs, results, started, costStart)
	return nil
}

// extendAll runs depth and width extension concurrently. Depth fans out per
// atomic task under the worker semaphore.
func (t *Trigger) extendAll(ctx context.Context, atomics []task.AtomicTask) ([]task.ExtendedTask, []task.CompositeTask) {
	var (
		extendeds  []task.ExtendedTask
		composites []task.CompositeTask
	)
	var outer errgroup.Group
	outer.Go(func() error {
		var mu sync.Mutex
		var inner errgroup.Group
		inner.SetLimit(t.cfg.ParallelWorkers)
		for _, atomic := range atomics {
			atomic := atomic
			inner.Go(func() error {
				chain := t.depth.Extend(ctx, atomic)
				mu.Lock()
				extendeds = append(extendeds, chain...)
				mu.Unlock()
				return nil
			})
		}
		return inner.Wait()
	})
	outer.Go(func() error {
		composites = t.width.Extend(ctx, atomics)
		return nil
	})
	_ = outer.Wait()
	return extendeds, composites
}

// verifyInBatches splits verification into chunks sized by the extended-task
// backlog, capped at the configured batch size, so a deep queue is drained in
// small slices.
func (t *Trigger) verifyInBatches(ctx context.Context, specs []task.Spec) []task.VerificationResult {
	batch := len(specs)
	if depth, err := t.queue.Len(ctx, queue.StreamExtended); err == nil {
		batch = adaptive.BatchSize(depth)
	}
	batch = clampBatch(batch, t.cfg.BatchSize)

	results := make([]task.VerificationResult, 0, len(specs))
	for start := 0; start < len(specs); start += batch {
		end := min(start+batch, len(specs))
		results = append(results, t.verifier.VerifyBatch(ctx, specs[start:end], t.cfg.MaxConcurrentVerifications)...)
	}
	return results
}

// clampBatch caps a backlog-derived batch size at the configured limit and
// keeps it positive.
func clampBatch(batch, limit int) int {
	if limit > 0 && batch > limit {
		batch = limit
	}
	if batch < 1 {
		batch = 1
	}
	return batch
}

func collectSpecs(atomics []task.AtomicTask, extendeds []task.ExtendedTask, composites []task.CompositeTask) []task.Spec {
	specs := make([]task.Spec, 0, len(atomics)+len(extendeds)+len(composites))
	for _, a := range atomics {
		specs = append(specs, a.Spec())
	}
	for _, e := range extendeds {
		specs = append(specs, e.Spec())
	}
	for _, c := range composites {
		specs = append(specs, c.Spec())
	}
	return specs
}

func (t *Trigger) publishCorpus(ctx context.Context, contents []task.CorpusContent) error {
	if len(contents) == 0 {
		return nil
	}
	records := make([]map[string]string, 0, len(contents))
	for _, c := range contents {
		records = append(records, c.Record())
	}
	if _, err := t.queue.PublishBatch(ctx, queue.StreamCorpus, records); err != nil {
		return fmt.Errorf("publish corpus: %w", err)
	}
	return nil
}

func (t *Trigger) publishAtomics(ctx context.Context, atomics []task.AtomicTask) error {
	if len(atomics) == 0 {
		return nil
	}
	records := make([]map[string]string, 0, len(atomics))
	for _, a := range atomics {
		records = append(records, a.Record())
	}
	if _, err := t.queue.PublishBatch(ctx, queue.StreamAtomic, records); err != nil {
		return fmt.Errorf("publish atomic tasks: %w", err)
	}
	return nil
}

func (t *Trigger) publishExtended(ctx context.Context, extendeds []task.ExtendedTask, composites []task.CompositeTask) error {
	records := make([]map[string]string, 0, len(extendeds)+len(composites))
	for _, e := range extendeds {
		records = append(records, e.Record())
	}
	for _, c := range composites {
		records = append(records, c.Record())
	}
	if len(records) == 0 {
		return nil
	}
	if _, err := t.queue.PublishBatch(ctx, queue.StreamExtended, records); err != nil {
		return fmt.Errorf("publish extended tasks: %w", err)
	}
	return nil
}

// sinkResults publishes verification results, caches them, persists accepted
// tasks to the ledger, and bumps metrics. Returns the accepted specs.
func (t *Trigger) sinkResults(ctx context.Context, traj task.Trajectory, specs []task.Spec, results []task.VerificationResult, costStart int) ([]task.Spec, error) {
	byID := make(map[string]task.Spec, len(specs))
	for _, spec := range specs {
		byID[spec.ID] = spec
	}

	analysis := cost.AnalysisFrom(cost.BreakdownOf(t.costs.Records()[costStart:]), traj.CostUSD)

	var accepted []task.Spec
	for _, result := range results {
		if _, err := t.queue.Publish(ctx, queue.StreamResults, result.Record()); err != nil {
			return nil, fmt.Errorf("publish verification result: %w", err)
		}
		if err := t.queue.StoreVerificationResult(ctx, result.TaskID, result.Record()); err != nil {
			t.logger.Warn("trigger: caching result for %s failed: %v", result.TaskID, err)
		}
		if result.Recommendation != task.RecommendAccept {
			continue
		}
		spec, ok := byID[result.TaskID]
		if !ok {
			continue
		}
		accepted = append(accepted, spec)
		if t.ledger != nil {
			if err := t.ledger.Append(seedRecord(traj, spec, analysis)); err != nil {
				t.logger.Error("trigger: ledger append for %s failed: %v", spec.ID, err)
			}
		}
	}

	if len(results) > 0 {
		rate := float64(len(accepted)) / float64(len(results))
		if err := t.queue.UpdatePromptScore(ctx, "task_generation", t.generator.PromptVersion(), rate); err != nil {
			t.logger.Warn("trigger: prompt index update failed: %v", err)
		}
	}
	if err := t.queue.IncrSessionMetric(ctx, traj.ID, "tasks_generated", int64(len(specs))); err != nil {
		t.logger.Warn("trigger: session metric update failed: %v", err)
	}
	if err := t.queue.IncrGlobalMetric(ctx, "tasks_accepted", int64(len(accepted))); err != nil {
		t.logger.Warn("trigger: global metric update failed: %v", err)
	}
	return accepted, nil
}

func seedRecord(traj task.Trajectory, spec task.Spec, analysis cost.Analysis) cost.SeedRecord {
	answer := ""
	if len(spec.Answers) > 0 {
		answer = spec.Answers[0]
	}
	if len(spec.Answers) > 1 {
		answer = fmt.Sprintf("%v", spec.Answers)
	}
	return cost.SeedRecord{
		TaskID:                spec.ID,
		Question:              spec.Question,
		ExpectedAnswer:        answer,
		TaskType:              "agentic",
		RequiresTool:          len(spec.Tools) > 0,
		ExpectedTools:         spec.Tools,
		Complexity:            cost.ComplexityLabel(spec.Kind),
		Source:                traj.ID,
		CreatedAt:             time.Now(),
		SynthesisCostAnalysis: analysis,
	}
}

func (t *Trigger) report(traj task.Trajectory, contents []task.CorpusContent, specs []task.Spec, results []task.VerificationResult, started time.Time, costStart int) {
	rep := QualityReport{
		TrajectoryID: traj.ID,
		CorpusCount:  len(contents),
		Generated:    len(specs),
		Cost:         cost.BreakdownOf(t.costs.Records()[costStart:]),
		Duration:     time.Since(started),
	}
	for _, r := range results {
		switch r.Recommendation {
		case task.RecommendAccept:
			rep.Accepted++
		case task.RecommendModify:
			rep.Modified++
		default:
			rep.Rejected++
		}
	}
	if len(results) > 0 {
		rep.PassRate = float64(rep.Accepted) / float64(len(results))
	}
	if t.control != nil {
		rep.Thresholds = t.control.Thresholds()
	}
	t.logger.Info("trigger: %s done: %d generated, %d accepted, %d modified, %d rejected ($%.4f)",
		traj.ID, rep.Generated, rep.Accepted, rep.Modified, rep.Rejected, rep.Cost.TotalUSD)
	if t.onReport != nil {
		t.onReport(rep)
	}
}
