package guardrail

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	logx "github.com/freshcart/support-agent/pkg/logger"
)

// Reason codes carried by block verdicts.
const (
	ReasonRestrictedTopic = "restricted_topic"
	ReasonPIIDetected     = "pii_detected"
	ReasonInjection       = "injection_detected"
)

// Verdict is the outcome of one guardrail evaluation.
type Verdict struct {
	Allowed bool
	Reason  string
}

// Allow is the verdict for content that passed every check.
var Allow = Verdict{Allowed: true}

func Block(reason string) Verdict {
	return Verdict{Allowed: false, Reason: reason}
}

// Config holds the guardrail policy knobs.
type Config struct {
	// RestrictedTopics is a comma-separated list of topics the assistant
	// must refuse to discuss.
	RestrictedTopics string `envconfig:"GUARDRAIL_RESTRICTED_TOPICS" default:"politics,religion,personal attacks"`
}

// Patterns the filter always screens for, independent of topic policy.
// A pattern that fails to compile is skipped with a warning rather than
// disabling the filter: the policy here is fail-open, a detector outage must
// degrade to allow instead of denying all service. Override deliberately if
// your threat model differs.
var piiPatternSources = map[string]string{
	"card_number": `\b(?:\d[ -]?){13,16}\b`,
	"national_id": `\b\d{3}-\d{2}-\d{4}\b`,
	"email":       `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`,
}

var injectionPatternSources = map[string]string{
	"script_tag":     `<script`,
	"javascript_uri": `javascript:`,
	"eval_call":      `eval\(`,
	"import_dunder":  `__import__`,
}

type namedPattern struct {
	name string
	re   *regexp.Regexp
}

// Filter performs the pre- and post-generation content checks.
type Filter struct {
	topics    []string
	pii       []namedPattern
	injection []namedPattern
	audit     zerolog.Logger
}

func NewFilter(cfg Config) *Filter {
	f := &Filter{
		audit: logx.With("guardrail"),
	}
	for _, t := range strings.Split(cfg.RestrictedTopics, ",") {
		if t = strings.TrimSpace(strings.ToLower(t)); t != "" {
			f.topics = append(f.topics, t)
		}
	}
	f.pii = compilePatterns(piiPatternSources)
	f.injection = compilePatterns(injectionPatternSources)
	return f
}

func compilePatterns(sources map[string]string) []namedPattern {
	out := make([]namedPattern, 0, len(sources))
	for name, src := range sources {
		re, err := regexp.Compile(`(?i)` + src)
		if err != nil {
			// fail-open: skip the broken detector, keep serving
			logx.Warn().Err(err).Str("pattern", name).Msg("guardrail pattern failed to compile; skipping")
			continue
		}
		out = append(out, namedPattern{name: name, re: re})
	}
	return out
}

// Precheck screens an incoming user message before any model call.
func (f *Filter) Precheck(message string) Verdict {
	v := f.check(message, true)
	f.record("precheck", message, v)
	return v
}

// Postcheck re-screens a drafted response before it reaches the user. It is
// intentionally lighter than the precheck: the draft came from our own
// prompt, so only leaked PII is screened, not topics.
func (f *Filter) Postcheck(draft string) Verdict {
	v := f.checkPII(draft)
	f.record("postcheck", draft, v)
	return v
}

func (f *Filter) check(message string, includeTopics bool) Verdict {
	lower := strings.ToLower(message)

	if includeTopics {
		for _, topic := range f.topics {
			if strings.Contains(lower, topic) {
				return Block(ReasonRestrictedTopic)
			}
		}
	}
	for _, p := range f.injection {
		if p.re.MatchString(message) {
			return Block(ReasonInjection)
		}
	}
	return f.checkPII(message)
}

func (f *Filter) checkPII(text string) Verdict {
	for _, p := range f.pii {
		if p.re.MatchString(text) {
			return Block(ReasonPIIDetected)
		}
	}
	return Allow
}

// record emits one structured audit event per evaluation. The raw input is
// never logged, only a hash prefix sufficient to correlate repeated content.
func (f *Filter) record(stage, input string, v Verdict) {
	sum := sha256.Sum256([]byte(input))
	ev := f.audit.Info()
	if !v.Allowed {
		ev = f.audit.Warn()
	}
	ev.
		Str("audit_id", uuid.NewString()).
		Str("stage", stage).
		Str("input_hash", hex.EncodeToString(sum[:])[:12]).
		Bool("allowed", v.Allowed).
		Str("reason", v.Reason).
		Msg("guardrail check")
}

// RefusalMessage maps a block verdict to the user-facing refusal text.
func RefusalMessage(v Verdict) string {
	switch v.Reason {
	case ReasonRestrictedTopic:
		return "Sorry, I can't discuss that topic. I'm here to help with grocery shopping, orders, and refunds."
	case ReasonPIIDetected:
		return "For your safety, please don't share personal or payment details in chat. How else can I help with your groceries?"
	case ReasonInjection:
		return "Invalid input detected. Please rephrase your request."
	default:
		return fmt.Sprintf("I can't help with that request (%s).", v.Reason)
	}
}
