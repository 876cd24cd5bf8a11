package tokens

import (
	"unicode/utf8"
)

// charsPerToken approximates the BPE ratio for English prose.
const charsPerToken = 4

// Estimator approximates how many model tokens a text occupies.
type Estimator interface {
	Estimate(text string) int
}

// CharEstimator is the deterministic default: ceil(runes/4), at least 1 for non-empty text.
type CharEstimator struct{}

func (CharEstimator) Estimate(text string) int {
	return EstimateChars(text)
}

// EstimateChars is the function form of CharEstimator.
func EstimateChars(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + charsPerToken - 1) / charsPerToken
}

// WordsForTokens converts a token budget to an approximate word count.
func WordsForTokens(tokens int) int {
	if tokens <= 0 {
		return 0
	}
	return tokens * charsPerToken
}
