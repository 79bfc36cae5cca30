package verify

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var numberTokenRe = regexp.MustCompile(`-?\d[\d,]*\.?\d*`)

// AnswerCorrect reports whether actual matches expected: normalized exact
// match, substring containment in either direction, or any pair of numeric
// tokens within absolute tolerance 0.01.
func AnswerCorrect(expected, actual string) bool {
	e := normalizeAnswer(expected)
	a := normalizeAnswer(actual)
	if e == "" || a == "" {
		return false
	}
	if e == a {
		return true
	}
	if strings.Contains(a, e) || strings.Contains(e, a) {
		return true
	}
	return numericMatch(expected, actual)
}

func normalizeAnswer(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, ".。!！?？ ")
	return strings.Join(strings.Fields(s), " ")
}

func numericMatch(expected, actual string) bool {
	for _, e := range numericTokens(expected) {
		for _, a := range numericTokens(actual) {
			if math.Abs(e-a) <= 0.01 {
				return true
			}
		}
	}
	return false
}

func numericTokens(s string) []float64 {
	var out []float64
	for _, tok := range numberTokenRe.FindAllString(s, -1) {
		tok = strings.ReplaceAll(tok, ",", "")
		if f, err := strconv.ParseFloat(tok, 64); err == nil {
			out = append(out, f)
		}
	}
	return out
}
