package task

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Stream records are flat string maps; structured values are JSON-encoded per
// field. Every record carries task_category (wire schema) plus task_kind (the
// variant discriminator used for decode dispatch).

const (
	fieldTaskKind = "task_kind"

	CategoryAtomic   = "atomic"
	CategoryExtended = "extended"
)

func marshalField(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

func unmarshalField[T any](record map[string]string, key string) (T, error) {
	var out T
	raw, ok := record[key]
	if !ok || raw == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return out, fmt.Errorf("field %s: %w", key, err)
	}
	return out, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

// Record encodes the corpus content for stream publication.
func (c CorpusContent) Record() map[string]string {
	return map[string]string{
		"corpus_id":         c.ID,
		"source":            c.Source,
		"content_type":      string(c.Kind),
		"text_content":      c.Text,
		"metadata":          marshalField(c.Metadata),
		"extracted_at":      formatTime(c.ExtractedAt),
		"processing_status": c.Status,
	}
}

// CorpusFromRecord decodes a corpus stream record.
func CorpusFromRecord(record map[string]string) (CorpusContent, error) {
	meta, err := unmarshalField[map[string]any](record, "metadata")
	if err != nil {
		return CorpusContent{}, err
	}
	return CorpusContent{
		ID:          record["corpus_id"],
		Source:      record["source"],
		Kind:        ContentKind(record["content_type"]),
		Text:        record["text_content"],
		Metadata:    meta,
		Status:      record["processing_status"],
		ExtractedAt: parseTime(record["extracted_at"]),
	}, nil
}

// Record encodes the atomic task for stream publication.
func (t AtomicTask) Record() map[string]string {
	return map[string]string{
		"task_id":                t.ID,
		"task_category":          CategoryAtomic,
		fieldTaskKind:            string(KindAtomic),
		"question":               t.Question,
		"golden_answer":          t.GoldenAnswer,
		"content_identifier":     t.ContentIdentifier,
		"source_corpus":          t.SourceCorpus,
		"verification_score":     strconv.FormatFloat(t.VerificationScore, 'f', -1, 64),
		"atomicity_score":        strconv.FormatFloat(t.AtomicityScore, 'f', -1, 64),
		"required_tools":         marshalField(t.RequiredTools),
		"difficulty_level":       string(t.Difficulty),
		"atomicity_verified":     strconv.FormatBool(t.AtomicityVerified),
		"executability_verified": strconv.FormatBool(t.ExecutabilityVerified),
		"created_at":             formatTime(t.CreatedAt),
	}
}

// AtomicFromRecord decodes an atomic-task stream record.
func AtomicFromRecord(record map[string]string) (AtomicTask, error) {
	tools, err := unmarshalField[[]string](record, "required_tools")
	if err != nil {
		return AtomicTask{}, err
	}
	atomicityVerified, _ := strconv.ParseBool(record["atomicity_verified"])
	execVerified, _ := strconv.ParseBool(record["executability_verified"])
	return AtomicTask{
		ID:                    record["task_id"],
		Question:              record["question"],
		GoldenAnswer:          record["golden_answer"],
		ContentIdentifier:     record["content_identifier"],
		SourceCorpus:          record["source_corpus"],
		VerificationScore:     parseFloat(record["verification_score"]),
		AtomicityScore:        parseFloat(record["atomicity_score"]),
		RequiredTools:         tools,
		Difficulty:            Difficulty(record["difficulty_level"]),
		AtomicityVerified:     atomicityVerified,
		ExecutabilityVerified: execVerified,
		CreatedAt:             parseTime(record["created_at"]),
	}, nil
}

// Record encodes the extended task for stream publication.
func (t ExtendedTask) Record() map[string]string {
	return map[string]string{
		"task_id":            t.ID,
		"task_category":      CategoryExtended,
		fieldTaskKind:        string(KindDepth),
		"question":           t.Question,
		"golden_answer":      t.GoldenAnswer,
		"hop_level":          strconv.Itoa(t.HopLevel),
		"source_atomic_task": t.SourceAtomicTask,
		"superset_chain":     marshalField(t.Chain),
		"intermediate_steps": marshalField(t.IntermediateSteps),
		"expected_tools":     marshalField(t.ExpectedTools),
		"complexity_score":   strconv.FormatFloat(t.ComplexityScore, 'f', -1, 64),
		"difficulty_level":   string(t.Difficulty),
		"created_at":         formatTime(t.CreatedAt),
	}
}

// ExtendedFromRecord decodes a depth-extended task stream record.
func ExtendedFromRecord(record map[string]string) (ExtendedTask, error) {
	chain, err := unmarshalField[[]SupersetInfo](record, "superset_chain")
	if err != nil {
		return ExtendedTask{}, err
	}
	steps, err := unmarshalField[[]string](record, "intermediate_steps")
	if err != nil {
		return ExtendedTask{}, err
	}
	toolsList, err := unmarshalField[[]string](record, "expected_tools")
	if err != nil {
		return ExtendedTask{}, err
	}
	hop, _ := strconv.Atoi(record["hop_level"])
	return ExtendedTask{
		ID:                record["task_id"],
		Question:          record["question"],
		GoldenAnswer:      record["golden_answer"],
		HopLevel:          hop,
		SourceAtomicTask:  record["source_atomic_task"],
		Chain:             chain,
		IntermediateSteps: steps,
		ExpectedTools:     toolsList,
		ComplexityScore:   parseFloat(record["complexity_score"]),
		Difficulty:        Difficulty(record["difficulty_level"]),
		CreatedAt:         parseTime(record["created_at"]),
	}, nil
}

// Record encodes the composite task for stream publication.
func (t CompositeTask) Record() map[string]string {
	return map[string]string{
		"task_id":             t.ID,
		"task_category":       CategoryExtended,
		fieldTaskKind:         string(KindWidth),
		"question":            t.Question,
		"golden_answers":      marshalField(t.GoldenAnswers),
		"source_atomic_tasks": marshalField(t.SourceAtomicTasks),
		"original_questions":  marshalField(t.OriginalQuestions),
		"content_identifier":  t.ContentIdentifier,
		"expected_tools":      marshalField(t.ExpectedTools),
		"merge_strategy":      t.MergeStrategy,
		"difficulty_level":    string(t.Difficulty),
		"created_at":          formatTime(t.CreatedAt),
	}
}

// CompositeFromRecord decodes a composite-task stream record.
func CompositeFromRecord(record map[string]string) (CompositeTask, error) {
	answers, err := unmarshalField[[]string](record, "golden_answers")
	if err != nil {
		return CompositeTask{}, err
	}
	sources, err := unmarshalField[[]string](record, "source_atomic_tasks")
	if err != nil {
		return CompositeTask{}, err
	}
	questions, err := unmarshalField[[]string](record, "original_questions")
	if err != nil {
		return CompositeTask{}, err
	}
	toolsList, err := unmarshalField[[]string](record, "expected_tools")
	if err != nil {
		return CompositeTask{}, err
	}
	return CompositeTask{
		ID:                record["task_id"],
		Question:          record["question"],
		GoldenAnswers:     answers,
		SourceAtomicTasks: sources,
		OriginalQuestions: questions,
		ContentIdentifier: record["content_identifier"],
		ExpectedTools:     toolsList,
		MergeStrategy:     record["merge_strategy"],
		Difficulty:        Difficulty(record["difficulty_level"]),
		CreatedAt:         parseTime(record["created_at"]),
	}, nil
}

// KindOfRecord returns the variant discriminator of a task record.
func KindOfRecord(record map[string]string) Kind {
	return Kind(record[fieldTaskKind])
}

// Record encodes the verification result for stream publication.
func (v VerificationResult) Record() map[string]string {
	return map[string]string{
		"task_id":                 v.TaskID,
		"overall_score":           strconv.FormatFloat(v.Overall, 'f', -1, 64),
		"recommendation":          string(v.Recommendation),
		"verification_dimensions": marshalField(v.Dimensions),
		"suggested_improvements":  marshalField(v.SuggestedImprovements),
		"details":                 marshalField(v.Details),
		"verified_at":             formatTime(v.VerifiedAt),
	}
}

// VerificationFromRecord decodes a verification-result stream record.
func VerificationFromRecord(record map[string]string) (VerificationResult, error) {
	dims, err := unmarshalField[map[string]DimensionScore](record, "verification_dimensions")
	if err != nil {
		return VerificationResult{}, err
	}
	improvements, err := unmarshalField[[]string](record, "suggested_improvements")
	if err != nil {
		return VerificationResult{}, err
	}
	details, err := unmarshalField[map[string]any](record, "details")
	if err != nil {
		return VerificationResult{}, err
	}
	return VerificationResult{
		TaskID:                record["task_id"],
		Overall:               parseFloat(record["overall_score"]),
		Recommendation:        Recommendation(record["recommendation"]),
		Dimensions:            dims,
		SuggestedImprovements: improvements,
		Details:               details,
		VerifiedAt:            parseTime(record["verified_at"]),
	}, nil
}
