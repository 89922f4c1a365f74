package compaction

import (
	"strconv"
	"unicode/utf8"

	"github.com/youssefsiam38/contextpg/storage"
)

// charsPerToken is the heuristic ratio used when no exact count is known.
const charsPerToken = 4

// EstimateTokens approximates the token count of text as ceil(chars/4).
// Characters are counted as runes so multi-byte text is not overcharged.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + charsPerToken - 1) / charsPerToken
}

// TokenCount is a token figure tagged with its provenance. Exact counts
// come from a model call; estimated counts from EstimateTokens.
type TokenCount struct {
	N     int  `json:"n"`
	Exact bool `json:"exact"`
}

// ExactCount returns a count reported by a model call.
func ExactCount(n int) TokenCount {
	return TokenCount{N: n, Exact: true}
}

// EstimatedCount returns a heuristic count.
func EstimatedCount(n int) TokenCount {
	return TokenCount{N: n}
}

// Add sums two counts. The result is exact only if both are.
func (c TokenCount) Add(o TokenCount) TokenCount {
	return TokenCount{N: c.N + o.N, Exact: c.Exact && o.Exact}
}

// String renders the count, prefixing estimates with "~".
func (c TokenCount) String() string {
	if c.Exact {
		return strconv.Itoa(c.N)
	}
	return "~" + strconv.Itoa(c.N)
}

// MessageTokens returns the persisted exact count of m when present,
// otherwise an estimate of its content.
func MessageTokens(m *storage.Message) TokenCount {
	if m.TokenCount != nil {
		return ExactCount(*m.TokenCount)
	}
	return EstimatedCount(EstimateTokens(m.Content))
}

// SumTokens totals the token counts of messages. An empty slice is an
// exact zero.
func SumTokens(messages []*storage.Message) TokenCount {
	total := ExactCount(0)
	for _, m := range messages {
		total = total.Add(MessageTokens(m))
	}
	return total
}
