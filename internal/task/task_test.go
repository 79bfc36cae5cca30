package task

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIDFormat(t *testing.T) {
	re := regexp.MustCompile(`^(atomic|depth|width)_\d{10}_[0-9a-f]{8}$`)
	for _, kind := range []Kind{KindAtomic, KindDepth, KindWidth} {
		id := NewID(kind)
		assert.Regexp(t, re, id)
	}
}

func TestNewIDSortsByCreationTime(t *testing.T) {
	earlier := newIDAt(KindAtomic, time.Unix(1700000000, 0))
	later := newIDAt(KindAtomic, time.Unix(1800000000, 0))
	assert.Less(t, earlier, later)
}

func TestAtomicRecordRoundTrip(t *testing.T) {
	orig := AtomicTask{
		ID:                "atomic_1700000000_abcd1234",
		Question:          "On 2023-12-15, what was Apple's closing stock price in USD?",
		GoldenAnswer:      "$198.11",
		RequiredTools:     []string{"web_search", "python_executor"},
		Difficulty:        DifficultyMedium,
		SourceCorpus:      "corpus-1",
		ContentIdentifier: "Apple",
		AtomicityScore:    0.85,
		AtomicityVerified: true,
		CreatedAt:         time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	record := orig.Record()
	assert.Equal(t, CategoryAtomic, record["task_category"])
	assert.Equal(t, KindAtomic, KindOfRecord(record))

	got, err := AtomicFromRecord(record)
	require.NoError(t, err)
	assert.Equal(t, orig, got)
}

func TestExtendedRecordRoundTrip(t *testing.T) {
	orig := ExtendedTask{
		ID:               "depth_1700000001_00ff00ff",
		Question:         "From Apple's daily closing prices in December 2023, what was the closing on Dec 15?",
		GoldenAnswer:     "$198.11",
		HopLevel:         2,
		SourceAtomicTask: "atomic_1700000000_abcd1234",
		Chain: []SupersetInfo{
			{Identifier: "Apple December 2023 daily closes", Relation: "series-contains-day", Confidence: 0.8, ValidationPassed: true},
			{Identifier: "Apple 2023 quarterly history", Relation: "history-contains-month", Confidence: 0.7, ValidationPassed: true},
		},
		IntermediateSteps: []string{"find the series", "filter to Dec 15"},
		ExpectedTools:     []string{"deepsearch", "web_search"},
		ComplexityScore:   0.74,
		Difficulty:        DifficultyComplex,
		CreatedAt:         time.Date(2024, 1, 2, 3, 4, 6, 0, time.UTC),
	}

	record := orig.Record()
	assert.Equal(t, CategoryExtended, record["task_category"])
	assert.Equal(t, KindDepth, KindOfRecord(record))

	got, err := ExtendedFromRecord(record)
	require.NoError(t, err)
	assert.Equal(t, orig, got)
}

func TestCompositeRecordRoundTrip(t *testing.T) {
	orig := CompositeTask{
		ID:                "width_1700000002_deadbeef",
		Question:          "For 2023-12-15 closings, report Apple, Microsoft and Alphabet.",
		GoldenAnswers:     []string{"$198.11", "$370.95", "$133.13"},
		SourceAtomicTasks: []string{"atomic_1", "atomic_2", "atomic_3"},
		OriginalQuestions: []string{"q1", "q2", "q3"},
		ExpectedTools:     []string{"web_search"},
		MergeStrategy:     "llm_fusion",
		Difficulty:        DifficultyComplex,
		CreatedAt:         time.Date(2024, 1, 2, 3, 4, 7, 0, time.UTC),
	}

	record := orig.Record()
	assert.Equal(t, CategoryExtended, record["task_category"])
	assert.Equal(t, KindWidth, KindOfRecord(record))

	got, err := CompositeFromRecord(record)
	require.NoError(t, err)
	assert.Equal(t, orig, got)
}

func TestVerificationRecordRoundTrip(t *testing.T) {
	orig := VerificationResult{
		TaskID:  "atomic_1700000000_abcd1234",
		Overall: 0.82,
		Dimensions: map[string]DimensionScore{
			"executability": {Score: 1.0, Justification: "answered correctly"},
			"difficulty":    {Score: 0.8, Justification: "atomic baseline"},
		},
		Recommendation:        RecommendAccept,
		SuggestedImprovements: []string{"tighten wording"},
		VerifiedAt:            time.Date(2024, 1, 2, 3, 4, 8, 0, time.UTC),
	}

	got, err := VerificationFromRecord(orig.Record())
	require.NoError(t, err)
	assert.Equal(t, orig.TaskID, got.TaskID)
	assert.InDelta(t, orig.Overall, got.Overall, 1e-9)
	assert.Equal(t, orig.Dimensions, got.Dimensions)
	assert.Equal(t, orig.Recommendation, got.Recommendation)
}

func TestSpecFlattening(t *testing.T) {
	atomic := AtomicTask{ID: "a", Question: "q", GoldenAnswer: "x", RequiredTools: []string{"web_search"}}
	spec := atomic.Spec()
	assert.Equal(t, KindAtomic, spec.Kind)
	assert.Equal(t, []string{"x"}, spec.Answers)

	ext := ExtendedTask{ID: "d", HopLevel: 3, GoldenAnswer: "x"}
	assert.Equal(t, 3, ext.Spec().HopLevel)

	comp := CompositeTask{ID: "w", GoldenAnswers: []string{"x", "y"}, SourceAtomicTasks: []string{"a", "b"}}
	assert.Equal(t, 2, comp.Spec().SourceCount)
	assert.Equal(t, KindWidth, comp.Spec().Kind)
}
