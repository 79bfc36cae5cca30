package cost

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// EstimateTokens approximates the token count of text. The cl100k_base
// encoding is loaded once; when unavailable (offline environments) a
// chars/4 heuristic stands in.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})
	if encoding != nil {
		return len(encoding.Encode(text, nil, nil))
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}
