// Package parser decodes structured payloads out of free-form LLM output.
//
// Models routinely wrap JSON in markdown fences, truncate trailing braces or
// emit single-quoted keys. Decoding therefore runs through escalating tiers:
// strict parse, first balanced object/array, jsonrepair, and finally key-by-key
// regex extraction for callers that can work from a partial result.
package parser

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// Unmarshal decodes LLM output into v, tolerating markdown fences and
// malformed JSON. It returns an error only when every tier fails.
func Unmarshal(content string, v any) error {
	candidate := StripFences(content)

	if err := json.Unmarshal([]byte(candidate), v); err == nil {
		return nil
	}

	if block := FirstJSONBlock(candidate); block != "" {
		if err := json.Unmarshal([]byte(block), v); err == nil {
			return nil
		}
		candidate = block
	}

	repaired, err := jsonrepair.JSONRepair(candidate)
	if err != nil {
		return fmt.Errorf("llm output is not decodable JSON: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return fmt.Errorf("repaired JSON still invalid: %w", err)
	}
	return nil
}

// StripFences removes surrounding markdown code fences, if any.
func StripFences(content string) string {
	s := strings.TrimSpace(content)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// FirstJSONBlock returns the first balanced {...} or [...] block in content,
// or "" when none is found. String literals are honored so braces inside
// quoted values do not terminate the block early.
func FirstJSONBlock(content string) string {
	start := -1
	var open, close byte
	for i := 0; i < len(content); i++ {
		if content[i] == '{' {
			start, open, close = i, '{', '}'
			break
		}
		if content[i] == '[' {
			start, open, close = i, '[', ']'
			break
		}
	}
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		c := content[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}
	return ""
}

// StringField extracts a top-level string field by key via regex. Last-resort
// tier for responses too broken for jsonrepair.
func StringField(content, key string) (string, bool) {
	re := regexp.MustCompile(`"` + regexp.QuoteMeta(key) + `"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	m := re.FindStringSubmatch(content)
	if m == nil {
		return "", false
	}
	var out string
	if err := json.Unmarshal([]byte(`"`+m[1]+`"`), &out); err != nil {
		return m[1], true
	}
	return out, true
}

// NumberField extracts a numeric field by key via regex.
func NumberField(content, key string) (float64, bool) {
	re := regexp.MustCompile(`"` + regexp.QuoteMeta(key) + `"\s*:\s*(-?\d+(?:\.\d+)?)`)
	m := re.FindStringSubmatch(content)
	if m == nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// BoolField extracts a boolean field by key via regex.
func BoolField(content, key string) (bool, bool) {
	re := regexp.MustCompile(`"` + regexp.QuoteMeta(key) + `"\s*:\s*(true|false)`)
	m := re.FindStringSubmatch(content)
	if m == nil {
		return false, false
	}
	return m[1] == "true", true
}
