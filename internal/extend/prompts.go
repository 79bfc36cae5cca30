package extend

import (
	"fmt"
	"strings"

	"seedforge/internal/parser"
	"seedforge/internal/task"
)

// ---- depth extension ----

const querySystemPrompt = `You are a research planner. Given a question and its known answer, propose
search queries that describe LARGER sets containing that answer. A good query
names a collection, list, or dataset the answer belongs to.

Return JSON only:
{"queries": ["query one", "query two", "query three"]}

Rules:
- Propose 3 to 5 queries.
- Each query must target a superset, never the answer itself.`

const judgeSystemPrompt = `You are a containment judge. Given a search result and a target answer,
decide whether the result describes a set that contains the target.

Return JSON only:
{
  "contains_answer": true,
  "superset_identifier": "short name of the containing set",
  "relation": "how the set relates to the answer",
  "confidence": 0.0
}

confidence is in [0,1].`

const validateSystemPrompt = `You are validating a superset claim. Confirm whether the named set genuinely
contains the target answer, with no speculation.

Return JSON only:
{"confirmed": true, "reason": "one sentence"}`

const intermediateSystemPrompt = `You are a task designer. Build an intermediate question whose answer
identifies the given superset and still includes the original answer verbatim.

Return JSON only:
{
  "question": "the intermediate question",
  "answer": "answer text that contains the original answer as a substring",
  "steps": ["step 1", "step 2"],
  "required_tools": ["deepsearch"]
}

Rules:
- The answer string MUST contain the original answer exactly (case preserved or not).
- List at least 2 execution steps and at least 1 required tool.
- The question must be noticeably longer and more involved than the original.`

func queryPrompt(question, answer string) (string, string) {
	return querySystemPrompt, fmt.Sprintf("Source question: %s\nKnown answer: %s", question, answer)
}

func judgePrompt(result, answer string) (string, string) {
	return judgeSystemPrompt, fmt.Sprintf("Search result: %s\nTarget answer: %s", result, answer)
}

func validatePrompt(info task.SupersetInfo, answer string) (string, string) {
	return validateSystemPrompt, fmt.Sprintf(
		"Proposed superset: %s\nRelation: %s\nTarget answer: %s", info.Identifier, info.Relation, answer)
}

func intermediatePrompt(info task.SupersetInfo, question, answer string) (string, string) {
	return intermediateSystemPrompt, fmt.Sprintf(
		"Superset identifier: %s\nRelation: %s\nOriginal question: %s\nOriginal answer: %s",
		info.Identifier, info.Relation, question, answer)
}

type supersetJudgement struct {
	ContainsAnswer     bool    `json:"contains_answer"`
	SupersetIdentifier string  `json:"superset_identifier"`
	Relation           string  `json:"relation"`
	Confidence         float64 `json:"confidence"`
}

type containmentConfirmation struct {
	Confirmed bool   `json:"confirmed"`
	Reason    string `json:"reason"`
}

type intermediateDraft struct {
	Question      string   `json:"question"`
	Answer        string   `json:"answer"`
	Steps         []string `json:"steps"`
	RequiredTools []string `json:"required_tools"`
}

func parseQueries(content string) []string {
	var wrapper struct {
		Queries []string `json:"queries"`
	}
	if err := parser.Unmarshal(content, &wrapper); err == nil && len(wrapper.Queries) > 0 {
		return wrapper.Queries
	}
	var bare []string
	if err := parser.Unmarshal(content, &bare); err == nil {
		return bare
	}
	return nil
}

func parseJudgement(content string) (supersetJudgement, error) {
	var j supersetJudgement
	if err := parser.Unmarshal(content, &j); err == nil && j.SupersetIdentifier != "" {
		return j, nil
	}
	id, ok := parser.StringField(content, "superset_identifier")
	if !ok {
		return j, fmt.Errorf("no superset identifier in response")
	}
	j.SupersetIdentifier = id
	j.Relation, _ = parser.StringField(content, "relation")
	j.Confidence, _ = parser.NumberField(content, "confidence")
	j.ContainsAnswer, _ = parser.BoolField(content, "contains_answer")
	return j, nil
}

func parseConfirmation(content string) containmentConfirmation {
	var c containmentConfirmation
	if err := parser.Unmarshal(content, &c); err == nil {
		return c
	}
	c.Confirmed, _ = parser.BoolField(content, "confirmed")
	return c
}

func parseIntermediate(content string) (intermediateDraft, error) {
	var d intermediateDraft
	if err := parser.Unmarshal(content, &d); err != nil {
		return d, err
	}
	return d, nil
}

// ---- width extension ----

const similaritySystemPrompt = `You are comparing two research tasks for semantic relatedness across four
facets: domain, answer type, tool use, and background knowledge.

Return JSON only:
{"similarity": 0.0, "facets": {"domain": 0.0, "answer_type": 0.0, "tool_use": 0.0, "background": 0.0}}

similarity is the overall rating in [0,1].`

const themeSystemPrompt = `You are summarizing what a group of questions has in common.

Return JSON only:
{"theme": "one short phrase naming the common theme"}`

const fusionSystemPrompt = `You are merging several related questions into ONE composite question that a
single agent run can answer completely. The composite must require answering
every sub-question.

Return JSON only:
{"composite_question": "the merged question", "explanation": "one sentence"}`

const decompositionSystemPrompt = `You are reviewing a composite question. Rate how cleanly it decomposes back
into its sub-questions and how much reasoning it requires overall.

Return JSON only:
{"decomposition_score": 0.0, "complexity_score": 0.0}

Both scores in [0,1].`

func similarityPrompt(a, b task.AtomicTask) (string, string) {
	return similaritySystemPrompt, fmt.Sprintf(
		"Task A: %s (answer: %s, tools: %s)\nTask B: %s (answer: %s, tools: %s)",
		a.Question, a.GoldenAnswer, strings.Join(a.RequiredTools, ","),
		b.Question, b.GoldenAnswer, strings.Join(b.RequiredTools, ","))
}

func themePrompt(cluster []task.AtomicTask) (string, string) {
	var sb strings.Builder
	sb.WriteString("Questions:\n")
	for i, t := range cluster {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, t.Question)
	}
	return themeSystemPrompt, sb.String()
}

func fusionPrompt(theme string, cluster []task.AtomicTask) (string, string) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Common theme: %s\nSub-questions:\n", theme)
	for i, t := range cluster {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, t.Question)
	}
	return fusionSystemPrompt, sb.String()
}

func decompositionPrompt(composite string, cluster []task.AtomicTask) (string, string) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Composite question: %s\nOriginal sub-questions:\n", composite)
	for i, t := range cluster {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, t.Question)
	}
	return decompositionSystemPrompt, sb.String()
}

func parseSimilarity(content string) float64 {
	var wrapper struct {
		Similarity float64 `json:"similarity"`
	}
	if err := parser.Unmarshal(content, &wrapper); err == nil && wrapper.Similarity > 0 {
		return wrapper.Similarity
	}
	if v, ok := parser.NumberField(content, "similarity"); ok {
		return v
	}
	return 0
}

func parseTheme(content string) string {
	var wrapper struct {
		Theme string `json:"theme"`
	}
	if err := parser.Unmarshal(content, &wrapper); err == nil && wrapper.Theme != "" {
		return wrapper.Theme
	}
	theme, _ := parser.StringField(content, "theme")
	return theme
}

type fusionResult struct {
	CompositeQuestion string `json:"composite_question"`
	Explanation       string `json:"explanation"`
}

func parseFusion(content string) (fusionResult, error) {
	var f fusionResult
	if err := parser.Unmarshal(content, &f); err != nil || f.CompositeQuestion == "" {
		return f, fmt.Errorf("no composite question in response")
	}
	return f, nil
}

type decompositionScores struct {
	Decomposition float64 `json:"decomposition_score"`
	Complexity    float64 `json:"complexity_score"`
}

func parseDecomposition(content string) decompositionScores {
	var d decompositionScores
	if err := parser.Unmarshal(content, &d); err == nil {
		return d
	}
	d.Decomposition, _ = parser.NumberField(content, "decomposition_score")
	d.Complexity, _ = parser.NumberField(content, "complexity_score")
	return d
}
