package cost

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"seedforge/internal/task"
)

// SynthesisBreakdown is the per-phase USD spend persisted with a seed task.
// The component values sum to the analysis total.
type SynthesisBreakdown struct {
	SeedExtractionCostUSD    float64  `json:"seed_extraction_cost_usd"`
	TaskExpansionCostUSD     float64  `json:"task_expansion_cost_usd"`
	QualityValidationCostUSD float64  `json:"quality_validation_cost_usd"`
	DepthExtensionCostUSD    *float64 `json:"depth_extension_cost_usd,omitempty"`
	WidthExtensionCostUSD    *float64 `json:"width_extension_cost_usd,omitempty"`
}

// Sum returns the total across all breakdown components.
func (b SynthesisBreakdown) Sum() float64 {
	total := b.SeedExtractionCostUSD + b.TaskExpansionCostUSD + b.QualityValidationCostUSD
	if b.DepthExtensionCostUSD != nil {
		total += *b.DepthExtensionCostUSD
	}
	if b.WidthExtensionCostUSD != nil {
		total += *b.WidthExtensionCostUSD
	}
	return total
}

// Analysis is the cost record attached to every persisted seed task.
// Estimated reports whether any contributing token count was locally
// estimated rather than provider-reported.
type Analysis struct {
	TotalSynthesisTokens    int                `json:"total_synthesis_tokens"`
	TotalSynthesisCostUSD   float64            `json:"total_synthesis_cost_usd"`
	SynthesisBreakdown      SynthesisBreakdown `json:"synthesis_breakdown"`
	SourceTrajectoryCostUSD float64            `json:"source_trajectory_cost_usd"`
	Estimated               bool               `json:"estimated"`
}

// AnalysisFrom converts a tracker breakdown into the persisted form. The
// total is recomputed from the breakdown components so the two always agree.
func AnalysisFrom(b Breakdown, sourceTrajectoryCostUSD float64) Analysis {
	sb := SynthesisBreakdown{
		SeedExtractionCostUSD:    b.PerPhaseUSD[PhaseSeedExtraction],
		TaskExpansionCostUSD:     b.PerPhaseUSD[PhaseTaskExpansion],
		QualityValidationCostUSD: b.PerPhaseUSD[PhaseQualityValidation],
	}
	if usd, ok := b.PerPhaseUSD[PhaseDepthExtension]; ok {
		sb.DepthExtensionCostUSD = &usd
	}
	if usd, ok := b.PerPhaseUSD[PhaseWidthExtension]; ok {
		sb.WidthExtensionCostUSD = &usd
	}
	return Analysis{
		TotalSynthesisTokens:    b.TotalTokens,
		TotalSynthesisCostUSD:   sb.Sum(),
		SynthesisBreakdown:      sb,
		SourceTrajectoryCostUSD: sourceTrajectoryCostUSD,
		Estimated:               b.AnyEstimated,
	}
}

// ComplexityLabel maps a task kind to the ledger complexity vocabulary.
func ComplexityLabel(kind task.Kind) string {
	switch kind {
	case task.KindDepth:
		return "depth_extended"
	case task.KindWidth:
		return "width_extended"
	default:
		return "atomic"
	}
}

// SeedRecord is one accepted seed task as persisted to the ledger.
type SeedRecord struct {
	TaskID                string    `json:"task_id"`
	Question              string    `json:"question"`
	ExpectedAnswer        string    `json:"expected_answer"`
	TaskType              string    `json:"task_type"`
	Domain                string    `json:"domain"`
	RequiresTool          bool      `json:"requires_tool"`
	ExpectedTools         []string  `json:"expected_tools"`
	Complexity            string    `json:"complexity"`
	Source                string    `json:"source"`
	CreatedAt             time.Time `json:"created_at"`
	SynthesisCostAnalysis Analysis  `json:"synthesis_cost_analysis"`
}

// FileInfo describes a single ledger JSONL file.
type FileInfo struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
	Bytes int64  `json:"bytes"`
}

// Manifest holds index metadata for the ledger directory.
type Manifest struct {
	UpdatedAt  time.Time  `json:"updated_at"`
	Files      []FileInfo `json:"files"`
	TotalCount int        `json:"total_count"`
	TotalBytes int64      `json:"total_bytes"`
}

// Ledger persists accepted seed tasks as newline-delimited JSON, one file per
// calendar day.
type Ledger struct {
	baseDir string
	mu      sync.Mutex
}

// NewLedger creates the ledger directory when missing.
func NewLedger(baseDir string) (*Ledger, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	return &Ledger{baseDir: baseDir}, nil
}

// Append writes one seed record to the current day's JSONL file.
func (l *Ledger) Append(rec SeedRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	at := rec.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	path := filepath.Join(l.baseDir, at.Format("2006-01-02")+".jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal seed record: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write seed record: %w", err)
	}
	return nil
}

// AppendBatch writes multiple seed records.
func (l *Ledger) AppendBatch(recs []SeedRecord) error {
	for _, rec := range recs {
		if err := l.Append(rec); err != nil {
			return err
		}
	}
	return nil
}

// Read returns all seed records, optionally bounded by file date.
func (l *Ledger) Read(after, before time.Time) ([]SeedRecord, error) {
	entries, err := os.ReadDir(l.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read ledger dir: %w", err)
	}

	var results []SeedRecord
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".jsonl" {
			continue
		}
		dateStr := entry.Name()[:len(entry.Name())-6]
		fileDate, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			continue
		}
		if !after.IsZero() && fileDate.Before(after) {
			continue
		}
		if !before.IsZero() && fileDate.After(before) {
			continue
		}
		recs, err := l.readFile(filepath.Join(l.baseDir, entry.Name()))
		if err != nil {
			return nil, err
		}
		results = append(results, recs...)
	}
	return results, nil
}

// Stats returns aggregate statistics for the ledger directory.
func (l *Ledger) Stats() (*Manifest, error) {
	manifest := &Manifest{UpdatedAt: time.Now()}

	entries, err := os.ReadDir(l.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return manifest, nil
		}
		return nil, fmt.Errorf("read ledger dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".jsonl" {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		count, _ := countLines(filepath.Join(l.baseDir, entry.Name()))
		manifest.Files = append(manifest.Files, FileInfo{
			Name:  entry.Name(),
			Count: count,
			Bytes: fi.Size(),
		})
		manifest.TotalCount += count
		manifest.TotalBytes += fi.Size()
	}
	sort.Slice(manifest.Files, func(i, j int) bool {
		return manifest.Files[i].Name > manifest.Files[j].Name // newest first
	})
	return manifest, nil
}

func (l *Ledger) readFile(path string) ([]SeedRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var results []SeedRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 10*1024*1024)
	for scanner.Scan() {
		var rec SeedRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue // skip malformed lines
		}
		results = append(results, rec)
	}
	return results, scanner.Err()
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if len(scanner.Bytes()) > 0 {
			count++
		}
	}
	return count, scanner.Err()
}
