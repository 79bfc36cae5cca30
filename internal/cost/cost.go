// Package cost accounts for every LLM call the pipeline makes, per phase and
// per synthesis request, and persists accepted seed tasks to a JSONL ledger.
package cost

import (
	"strings"
	"sync"
	"time"

	"seedforge/internal/llm"
)

// Phase identifies which pipeline stage spent the tokens.
type Phase string

const (
	PhaseSeedExtraction    Phase = "seed_extraction"
	PhaseTaskExpansion     Phase = "task_expansion"
	PhaseQualityValidation Phase = "quality_validation"
	PhaseDepthExtension    Phase = "depth_extension"
	PhaseWidthExtension    Phase = "width_extension"
)

// Pricing holds USD prices per million tokens.
type Pricing struct {
	InputPerM  float64
	OutputPerM float64
}

// modelPricing lists known models. Prices are USD per 1M tokens.
var modelPricing = map[string]Pricing{
	"gemini-2.5-flash":      {InputPerM: 0.30, OutputPerM: 2.50},
	"gemini-2.5-pro":        {InputPerM: 1.25, OutputPerM: 10.00},
	"gemini-2.5-flash-lite": {InputPerM: 0.10, OutputPerM: 0.40},
	"gpt-4o":                {InputPerM: 2.50, OutputPerM: 10.00},
	"gpt-4o-mini":           {InputPerM: 0.15, OutputPerM: 0.60},
}

// ModelPricing returns the price table entry for model. Local and vLLM-served
// models cost effectively nothing; unknown hosted models get a conservative
// default.
func ModelPricing(model string) Pricing {
	if p, ok := modelPricing[model]; ok {
		return p
	}
	lower := strings.ToLower(model)
	if strings.Contains(lower, "local") || strings.Contains(lower, "vllm") ||
		strings.HasPrefix(lower, "qwen") || strings.HasPrefix(lower, "llama") {
		return Pricing{}
	}
	return Pricing{InputPerM: 1.00, OutputPerM: 3.00}
}

// Record is one LLM call's accounting entry.
// Estimated marks token counts derived locally rather than provider-reported.
type Record struct {
	Phase        Phase     `json:"phase"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	USD          float64   `json:"usd"`
	Estimated    bool      `json:"estimated"`
	At           time.Time `json:"at"`
}

// computeUSD applies the price table: usd = (in/1e6)·in_price + (out/1e6)·out_price.
func computeUSD(inputTokens, outputTokens int, model string) float64 {
	p := ModelPricing(model)
	return float64(inputTokens)/1e6*p.InputPerM + float64(outputTokens)/1e6*p.OutputPerM
}

// Tracker accumulates records for one synthesis request plus process-wide
// totals. Safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	records []Record
}

// NewTracker returns an empty tracker, typically one per trajectory request.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Observe converts a completion usage into a Record and adds it. When the
// provider reported no usage, token counts are estimated from the request and
// response text and the record is flagged Estimated.
func (t *Tracker) Observe(phase Phase, usage llm.TokenUsage, provider string, promptText, responseText string) Record {
	rec := Record{
		Phase:        phase,
		InputTokens:  usage.PromptTokens,
		OutputTokens: usage.CompletionTokens,
		Provider:     provider,
		Model:        usage.Model,
		Estimated:    !usage.Reported,
		At:           time.Now(),
	}
	if !usage.Reported {
		rec.InputTokens = EstimateTokens(promptText)
		rec.OutputTokens = EstimateTokens(responseText)
	}
	rec.USD = computeUSD(rec.InputTokens, rec.OutputTokens, rec.Model)
	t.Add(rec)
	return rec
}

// Add appends a record, computing USD from the price table when unset.
func (t *Tracker) Add(rec Record) {
	if rec.USD == 0 && (rec.InputTokens > 0 || rec.OutputTokens > 0) {
		rec.USD = computeUSD(rec.InputTokens, rec.OutputTokens, rec.Model)
	}
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	t.mu.Lock()
	t.records = append(t.records, rec)
	t.mu.Unlock()
}

// Breakdown is the per-phase spend of one synthesis request.
type Breakdown struct {
	TotalTokens  int               `json:"total_synthesis_tokens"`
	TotalUSD     float64           `json:"total_synthesis_cost_usd"`
	PerPhaseUSD  map[Phase]float64 `json:"per_phase_usd"`
	AnyEstimated bool              `json:"any_estimated"`
}

// Breakdown sums all records by phase.
func (t *Tracker) Breakdown() Breakdown {
	t.mu.Lock()
	defer t.mu.Unlock()
	return BreakdownOf(t.records)
}

// BreakdownOf sums an arbitrary record slice by phase. Used for per-request
// accounting against a snapshot of a shared tracker.
func BreakdownOf(records []Record) Breakdown {
	b := Breakdown{PerPhaseUSD: make(map[Phase]float64)}
	for _, rec := range records {
		b.TotalTokens += rec.InputTokens + rec.OutputTokens
		b.TotalUSD += rec.USD
		b.PerPhaseUSD[rec.Phase] += rec.USD
		if rec.Estimated {
			b.AnyEstimated = true
		}
	}
	return b
}

// Len returns the number of accumulated records.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

// Records returns a copy of all accumulated records.
func (t *Tracker) Records() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Record, len(t.records))
	copy(out, t.records)
	return out
}
