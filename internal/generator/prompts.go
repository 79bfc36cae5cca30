package generator

import (
	"fmt"
	"strings"

	"seedforge/internal/parser"
	"seedforge/internal/task"
)

const corpusPreviewChars = 1000

// promptVersion names the active question-synthesis template set. The trigger
// records each batch's pass rate against it so template revisions can be
// compared in the prompt success index.
const promptVersion = "question_synthesis/v1"

const conclusionSystemPrompt = `You are an information extraction specialist. Given a body of text, extract
factual conclusions that can be verified against external sources.

Return JSON only:
{
  "conclusions": [
    {
      "statement": "one self-contained factual statement",
      "relationship": "what the statement relates (entity -> attribute -> value)",
      "content_identifier": "short identifier of the supporting passage",
      "confidence": 0.0
    }
  ]
}

Rules:
- Each statement must stand alone without the surrounding text.
- Prefer statements with concrete values: numbers, dates, names, amounts.
- confidence is your certainty the statement is supported by the text, in [0,1].
- At most %d conclusions.`

const questionSystemPrompt = `You are a task designer building questions for a tool-using research agent.
Given one factual conclusion, propose 1-2 questions whose answer is exactly the
fact in the conclusion, but which require multi-step tool use to answer. Avoid
trivial lookups; the question should require searching, cross-referencing, or
computing.

Return JSON only:
{
  "candidates": [
    {
      "question": "the question text",
      "expected_answer": "the exact answer string",
      "required_tools": ["web_search", "python_executor"],
      "complexity_score": 0.0
    }
  ]
}

Rules:
- required_tools must name at least two tools the agent genuinely needs.
- complexity_score in [0,1] rates the reasoning and tool effort required.
- The question must be specific enough to have a single correct answer.`

const atomicitySystemPrompt = `You are a task reviewer judging whether a question is atomic: it asks for a
single fact, answerable with one concrete value, verifiable with one decisive
check.

Return JSON only:
{
  "atomicity_score": 0.0,
  "is_atomic": true,
  "findings": {
    "single_fact": "one sentence",
    "single_value": "one sentence",
    "decisive_check": "one sentence"
  }
}

atomicity_score is in [0,1].`

func conclusionPrompt(content task.CorpusContent, maxConclusions int) (system, user string) {
	preview := content.Text
	if len(preview) > corpusPreviewChars {
		preview = preview[:corpusPreviewChars]
	}
	system = fmt.Sprintf(conclusionSystemPrompt, maxConclusions)
	user = fmt.Sprintf("Content identifier: %s\nContent kind: %s\n\nText:\n%s", content.ID, content.Kind, preview)
	return system, user
}

func questionPrompt(c task.Conclusion) (system, user string) {
	return questionSystemPrompt, fmt.Sprintf(
		"Conclusion: %s\nRelationship: %s\nConfidence: %.2f", c.Statement, c.Relationship, c.Confidence)
}

func atomicityPrompt(q candidate) (system, user string) {
	return atomicitySystemPrompt, fmt.Sprintf(
		"Question: %s\nExpected answer: %s\nRequired tools: %s",
		q.Question, q.ExpectedAnswer, strings.Join(q.RequiredTools, ", "))
}

// candidate is one proposed question before atomicity verification.
type candidate struct {
	Question        string   `json:"question"`
	ExpectedAnswer  string   `json:"expected_answer"`
	RequiredTools   []string `json:"required_tools"`
	ComplexityScore float64  `json:"complexity_score"`
}

type atomicityJudgement struct {
	Score    float64           `json:"atomicity_score"`
	IsAtomic bool              `json:"is_atomic"`
	Findings map[string]string `json:"findings"`
}

func parseConclusions(content string) ([]task.Conclusion, error) {
	var wrapper struct {
		Conclusions []task.Conclusion `json:"conclusions"`
	}
	if err := parser.Unmarshal(content, &wrapper); err == nil && len(wrapper.Conclusions) > 0 {
		return wrapper.Conclusions, nil
	}
	var bare []task.Conclusion
	if err := parser.Unmarshal(content, &bare); err != nil {
		return nil, err
	}
	return bare, nil
}

func parseCandidates(content string) ([]candidate, error) {
	var wrapper struct {
		Candidates []candidate `json:"candidates"`
	}
	if err := parser.Unmarshal(content, &wrapper); err == nil && len(wrapper.Candidates) > 0 {
		return wrapper.Candidates, nil
	}
	var bare []candidate
	if err := parser.Unmarshal(content, &bare); err != nil {
		return nil, err
	}
	return bare, nil
}

// parseAtomicity never fails: an undecodable response degrades to the
// conservative middle score.
func parseAtomicity(content string) atomicityJudgement {
	var j atomicityJudgement
	if err := parser.Unmarshal(content, &j); err == nil && j.Score > 0 {
		return j
	}
	if score, ok := parser.NumberField(content, "atomicity_score"); ok {
		j.Score = score
		j.IsAtomic, _ = parser.BoolField(content, "is_atomic")
		return j
	}
	return atomicityJudgement{Score: 0.5}
}

// Patterns marking a question as a simple fact lookup. Matching is
// case-insensitive substring, English and Chinese.
var rejectedQuestionPatterns = []string{
	"the name of",
	"is called",
	"stand for",
	"the identifier for",
	"的名字是",
	"叫什么",
	"代表什么",
	"的标识符",
	"是什么",
}

// isSimpleFactLookup flags trivially answerable questions.
func isSimpleFactLookup(question string) bool {
	lower := strings.ToLower(question)
	for _, pattern := range rejectedQuestionPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	// bare "what is X" with no qualifying context
	if strings.HasPrefix(lower, "what is ") && len(strings.Fields(lower)) <= 5 {
		return true
	}
	return false
}
