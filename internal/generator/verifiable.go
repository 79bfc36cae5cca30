package generator

import "regexp"

// Token classes that make a statement checkable against an external source.
var verifiableTokenRes = []*regexp.Regexp{
	regexp.MustCompile(`\b\d[\d,.]*\b`),                               // numeric
	regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b|\b\d{1,2}/\d{1,2}/\d{2,4}\b`), // date
	regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*\b`),          // proper noun
	regexp.MustCompile(`https?://\S+`),                                // url
	regexp.MustCompile(`\d+(?:\.\d+)?%`),                              // percentage
	regexp.MustCompile(`[$€£¥]\s?\d[\d,.]*`),                          // currency
}

// IsVerifiable reports whether statement carries at least two verifiable
// tokens. Computed locally; the LLM's own judgement is not trusted here.
func IsVerifiable(statement string) bool {
	count := 0
	for _, re := range verifiableTokenRes {
		count += len(re.FindAllString(statement, -1))
		if count >= 2 {
			return true
		}
	}
	return false
}
