package corpus

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

const (
	minBodyChars     = 50
	maxBodyChars     = 2000
	minDiversity     = 0.2
	minSignalMatches = 2
)

var (
	whitespaceRe  = regexp.MustCompile(`\s+`)
	numericRe     = regexp.MustCompile(`\b\d[\d,.]*\b`)
	properNounRe  = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*\b`)
	urlRe         = regexp.MustCompile(`https?://[^\s<>"']+`)
	emailRe       = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	tagLikeRe     = regexp.MustCompile(`<[a-zA-Z/][^>]*>`)
	numericCharRe = regexp.MustCompile(`[0-9]`)
)

// fullwidth punctuation and its ASCII equivalents
var punctReplacer = strings.NewReplacer(
	"，", ", ",
	"。", ". ",
	"！", "! ",
	"？", "? ",
	"：", ": ",
	"；", "; ",
	"（", "(",
	"）", ")",
	"【", "[",
	"】", "]",
	"“", `"`,
	"”", `"`,
	"‘", "'",
	"’", "'",
	"、", ", ",
)

// Clean normalizes a raw body: HTML stripped, whitespace collapsed, fullwidth
// punctuation converted, capped at 2000 bytes on a rune boundary.
func Clean(raw string) string {
	text := raw
	if tagLikeRe.MatchString(text) {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(text)); err == nil {
			doc.Find("script, style").Remove()
			text = doc.Text()
		}
	}
	text = punctReplacer.Replace(text)
	text = whitespaceRe.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)
	if len(text) > maxBodyChars {
		cut := maxBodyChars
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return text
}

// lexicalDiversity is unique words over total words, case-insensitive.
func lexicalDiversity(text string) float64 {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return 0
	}
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		seen[w] = struct{}{}
	}
	return float64(len(seen)) / float64(len(words))
}

// signalCategories counts how many of {numeric, proper noun, URL, email}
// appear at least once.
func signalCategories(text string) int {
	count := 0
	for _, re := range []*regexp.Regexp{numericRe, properNounRe, urlRe, emailRe} {
		if re.MatchString(text) {
			count++
		}
	}
	return count
}

// infoDensity is the total count of signal matches across all categories.
func infoDensity(text string) int {
	total := 0
	for _, re := range []*regexp.Regexp{numericRe, properNounRe, urlRe, emailRe} {
		total += len(re.FindAllString(text, -1))
	}
	return total
}

// PassesGate applies the corpus quality gate to a cleaned body.
func PassesGate(text string) (bool, string) {
	if len(text) < minBodyChars {
		return false, "body too short"
	}
	if words := strings.Fields(text); len(words) > 10 && lexicalDiversity(text) < minDiversity {
		return false, "low lexical diversity"
	}
	if signalCategories(text) < minSignalMatches {
		return false, "insufficient information signals"
	}
	return true, ""
}

// QualityScore rates a cleaned body in [0,1]. Informational only, never a gate.
func QualityScore(text string) float64 {
	lengthPart := float64(len(text)) / 1000
	if lengthPart > 1 {
		lengthPart = 1
	}
	densityPart := float64(infoDensity(text)) / 10
	if densityPart > 1 {
		densityPart = 1
	}
	return 0.3*lengthPart + 0.3*lexicalDiversity(text) + 0.4*densityPart
}

// extractCodeOutput keeps the numeric-dense and tabular lines of a code
// execution observation.
func extractCodeOutput(raw string) string {
	var kept []string
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		tabular := strings.Contains(trimmed, "|") || strings.Contains(trimmed, "\t")
		numericChars := len(numericCharRe.FindAllString(trimmed, -1))
		if tabular || float64(numericChars)/float64(len(trimmed)) >= 0.15 {
			kept = append(kept, trimmed)
		}
	}
	return strings.Join(kept, "\n")
}
