package eval

import (
	"strings"
	"unicode"
)

// Scoring weights and pass threshold. Keyword coverage rewards required facts
// being present; token F1 rewards overall closeness to the reference answer.
const (
	keywordWeight = 0.4
	f1Weight      = 0.6
	passThreshold = 0.6
)

// KeywordScore is the fraction of expected keywords present in the response,
// case-insensitive substring match.
func KeywordScore(response string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	lower := strings.ToLower(response)
	matched := 0
	for _, kw := range keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" && strings.Contains(lower, kw) {
			matched++
		}
	}
	return float64(matched) / float64(len(keywords))
}

// TokenF1 computes the bag-of-tokens F1 between the response and the
// reference answer.
func TokenF1(response, reference string) float64 {
	respTokens := tokenize(response)
	refTokens := tokenize(reference)
	if len(respTokens) == 0 || len(refTokens) == 0 {
		return 0
	}

	refCounts := make(map[string]int, len(refTokens))
	for _, t := range refTokens {
		refCounts[t]++
	}
	overlap := 0
	for _, t := range respTokens {
		if refCounts[t] > 0 {
			refCounts[t]--
			overlap++
		}
	}
	if overlap == 0 {
		return 0
	}

	precision := float64(overlap) / float64(len(respTokens))
	recall := float64(overlap) / float64(len(refTokens))
	return 2 * precision * recall / (precision + recall)
}

// CombinedScore blends keyword coverage and token F1. When the case carries
// no reference answer the keyword score carries the full weight, and vice
// versa, so sparse cases are not penalized for what they don't specify.
func CombinedScore(response string, keywords []string, reference string) float64 {
	hasKeywords := len(keywords) > 0
	hasReference := strings.TrimSpace(reference) != ""

	switch {
	case hasKeywords && hasReference:
		return keywordWeight*KeywordScore(response, keywords) + f1Weight*TokenF1(response, reference)
	case hasKeywords:
		return KeywordScore(response, keywords)
	case hasReference:
		return TokenF1(response, reference)
	default:
		return 0
	}
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
