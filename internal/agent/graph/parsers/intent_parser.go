package parsers

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/freshcart/support-agent/internal/agent/model"
	logx "github.com/freshcart/support-agent/pkg/logger"
)

// basic safety limits to avoid pathological model output
const (
	maxContentLen   = 64 * 1024 // 64KB
	maxCandidates   = 8
	maxReasoningLen = 512
)

// tieBand is how close a transactional candidate's confidence must be to the
// faq winner before the transactional reading takes precedence.
const tieBand = 0.1

type rawClassification struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Candidates []struct {
		Intent     string  `json:"intent"`
		Confidence float64 `json:"confidence"`
	} `json:"candidates"`
	Reasoning string `json:"reasoning"`
}

// ParseIntentResponse turns the classifier model's raw text into a validated
// IntentResult. Any malformed output degrades to unsupported rather than
// failing the turn.
func ParseIntentResponse(content string) (result *model.IntentResult) {
	// panic safety
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "intent_parser").Msgf("panic recovered: %v", r)
			result = fallbackResult("parser panic")
		}
	}()

	if len(content) > maxContentLen {
		logx.Warn().
			Str("component", "intent_parser").
			Int("max_len", maxContentLen).
			Int("orig_len", len(content)).
			Msg("content truncated due to size limit")
		content = content[:maxContentLen]
	}

	payload, ok := extractJSONObject(content)
	if !ok {
		logx.Warn().Str("component", "intent_parser").Msg("no json object in classifier output")
		return fallbackResult("no json object in output")
	}

	var raw rawClassification
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		logx.Warn().Str("component", "intent_parser").Err(err).Msg("classifier output not valid json")
		return fallbackResult("invalid json")
	}

	result = &model.IntentResult{
		Reasoning: truncate(strings.TrimSpace(raw.Reasoning), maxReasoningLen),
	}

	for i, c := range raw.Candidates {
		if i >= maxCandidates {
			break
		}
		intent, ok := knownIntent(c.Intent)
		if !ok {
			continue
		}
		if !validConfidence(c.Confidence) {
			continue
		}
		result.Candidates = append(result.Candidates, model.IntentScore{Intent: intent, Confidence: c.Confidence})
	}

	primary, ok := knownIntent(raw.Intent)
	if ok && validConfidence(raw.Confidence) {
		result.Intent = primary
		result.Confidence = raw.Confidence
	} else if len(result.Candidates) > 0 {
		result.Intent = result.Candidates[0].Intent
		result.Confidence = result.Candidates[0].Confidence
	} else {
		return fallbackResult(fmt.Sprintf("unknown intent %q", raw.Intent))
	}

	applyTransactionalTieBreak(result)
	return result
}

// applyTransactionalTieBreak promotes a transactional candidate when the faq
// reading won by less than the tie band. Acting on "refund order ORD001, also
// what's your policy?" as a refund beats answering only the policy half.
func applyTransactionalTieBreak(result *model.IntentResult) {
	if result.Intent != model.IntentFAQ {
		return
	}
	for _, c := range result.Candidates {
		if !c.Intent.Transactional() {
			continue
		}
		if result.Confidence-c.Confidence <= tieBand {
			logx.Debug().
				Str("component", "intent_parser").
				Str("from", string(result.Intent)).
				Str("to", string(c.Intent)).
				Float64("faq_confidence", result.Confidence).
				Float64("candidate_confidence", c.Confidence).
				Msg("transactional tie break")
			result.Intent = c.Intent
			result.Confidence = c.Confidence
			return
		}
	}
}

// extractJSONObject strips optional markdown fences and returns the first
// top-level {...} block.
func extractJSONObject(content string) (string, bool) {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
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
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// knownIntent maps a classifier label onto the closed intent set. Unlike
// model.ParseIntent it rejects unknown labels instead of collapsing them, so
// a hallucinated intent never masquerades as a deliberate "unsupported".
func knownIntent(s string) (model.Intent, bool) {
	switch in := model.Intent(strings.ToLower(strings.TrimSpace(s))); in {
	case model.IntentFAQ, model.IntentProductSearch, model.IntentBudgetCheck,
		model.IntentRefundRequest, model.IntentStockCheck, model.IntentUnsupported:
		return in, true
	default:
		return "", false
	}
}

func validConfidence(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0 && v <= 1
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func fallbackResult(reason string) *model.IntentResult {
	return &model.IntentResult{
		Intent:     model.IntentUnsupported,
		Confidence: 0,
		Reasoning:  reason,
	}
}
