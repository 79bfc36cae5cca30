package verify

import (
	"fmt"
	"strings"

	"seedforge/internal/parser"
	"seedforge/internal/task"
)

const uniquenessSystemPrompt = `You are judging whether a question has exactly one correct answer.

Return JSON only:
{"uniqueness_score": 0.0, "reason": "one sentence"}

1.0 means a single unambiguous answer; 0.0 means many defensible answers.`

const complexitySystemPrompt = `You are rating the cognitive effort a question demands: reasoning depth,
cross-referencing, and synthesis.

Return JSON only:
{"complexity_score": 0.0, "reason": "one sentence"}

Scores in [0,1].`

const atomicityReviewSystemPrompt = `You are judging whether a question asks for exactly one fact with one
concrete value.

Return JSON only:
{"atomicity_score": 0.0, "reason": "one sentence"}`

const executionSystemPrompt = `You are a research agent answering a question with tools. Respond with JSON
only, one action per turn:

To call a tool:
{"action": "tool", "tool": "web_search", "params": {"query": "..."}}

To give the final answer:
{"action": "answer", "answer": "the answer"}

Available tools: %s. Be decisive; do not repeat identical calls.`

func uniquenessPrompt(spec task.Spec) (string, string) {
	return uniquenessSystemPrompt, fmt.Sprintf(
		"Uniqueness review\nQuestion: %s\nExpected answer: %s", spec.Question, strings.Join(spec.Answers, "; "))
}

func complexityPrompt(spec task.Spec) (string, string) {
	return complexitySystemPrompt, fmt.Sprintf(
		"Complexity review\nQuestion: %s\nDeclared tools: %s", spec.Question, strings.Join(spec.Tools, ", "))
}

func atomicityReviewPrompt(spec task.Spec) (string, string) {
	return atomicityReviewSystemPrompt, fmt.Sprintf("Atomicity review\nQuestion: %s", spec.Question)
}

func executionPrompt(spec task.Spec, transcript []string) (string, string) {
	system := fmt.Sprintf(executionSystemPrompt, strings.Join(spec.Tools, ", "))
	var sb strings.Builder
	fmt.Fprintf(&sb, "Execution run\nQuestion: %s\n", spec.Question)
	for _, line := range transcript {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return system, sb.String()
}

type agentAction struct {
	Action string         `json:"action"`
	Tool   string         `json:"tool"`
	Params map[string]any `json:"params"`
	Answer string         `json:"answer"`
}

func parseAction(content string) (agentAction, error) {
	var a agentAction
	if err := parser.Unmarshal(content, &a); err == nil && a.Action != "" {
		return a, nil
	}
	if answer, ok := parser.StringField(content, "answer"); ok {
		return agentAction{Action: "answer", Answer: answer}, nil
	}
	if tool, ok := parser.StringField(content, "tool"); ok {
		return agentAction{Action: "tool", Tool: tool}, nil
	}
	return a, fmt.Errorf("no recognizable action in response")
}

// parseScore pulls a named numeric field out of an LLM response, degrading to
// the conservative middle score.
func parseScore(content, key string) float64 {
	var generic map[string]any
	if err := parser.Unmarshal(content, &generic); err == nil {
		if v, ok := generic[key].(float64); ok {
			return clamp01(v)
		}
	}
	if v, ok := parser.NumberField(content, key); ok {
		return clamp01(v)
	}
	return 0.5
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
