package model

import (
	"github.com/cloudwego/eino/schema"
)

// AppState stores per-invocation state for the Eino graph.
// Concurrency model:
//   - This struct is registered as Graph Local State via compose.WithGenLocalState.
//   - All reads/writes happen only inside Eino state handlers:
//     WithStatePreHandler, WithStatePostHandler, or compose.ProcessState.
//   - Eino serializes access to state within these handlers, so no additional
//     mutex/atomic is required as long as you never touch it outside handlers.
type AppState struct {
	SessionID string
	Query     string

	// Routing outcome, set by the intent parser post-handler.
	IntentAnalysis *IntentResult

	// Guardrail outcome of the precheck stage.
	Blocked     bool
	BlockReason string

	// FAQ path: non-empty when retrieval produced nothing usable and the
	// model call must be skipped in favour of a canned reply.
	FAQFallback string

	// Which path produced the draft: "faq", "action", "default", "guardrail".
	Agent string

	History              []*schema.Message // mutated only inside Eino state handlers
	ToolCallCount        int
	ToolCallLimitReached bool
	ToolCallIDSeq        int // synthesizes tool_call_id when the provider omits it

	// Accumulated total LLM cost (USD) across model invocations for this query
	TotalCostUSD float64
}

// QueryInput represents the input for processing one user message.
type QueryInput struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
}

// Extra keys stamped on the final graph message so the caller can observe
// routing without reaching into graph state.
const (
	ExtraIntent      = "intent"
	ExtraAgent       = "agent"
	ExtraBlocked     = "blocked"
	ExtraBlockReason = "block_reason"
)

// Reply is what the orchestrator returns per turn.
type Reply struct {
	Text        string `json:"response"`
	Intent      Intent `json:"intent"`
	Agent       string `json:"agent"`
	Blocked     bool   `json:"blocked"`
	BlockReason string `json:"block_reason,omitempty"`
}
