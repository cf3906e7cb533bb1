package nodes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/freshcart/support-agent/internal/agent/graph/parsers"
	"github.com/freshcart/support-agent/internal/agent/graph/prompts"
	"github.com/freshcart/support-agent/internal/agent/model"
	"github.com/freshcart/support-agent/internal/agent/sessions"
	"github.com/freshcart/support-agent/internal/guardrail"
	"github.com/freshcart/support-agent/internal/retrieval"
	logx "github.com/freshcart/support-agent/pkg/logger"
)

// Graph node names.
const (
	NodeGuardrailPre    = "GuardrailPre"
	NodeRefusal         = "Refusal"
	NodeIntentAssembler = "IntentAssembler"
	NodeIntentChatModel = "IntentChatModel"
	NodeIntentParser    = "IntentParser"
	NodeFAQAssembler    = "FAQAssembler"
	NodeFAQFallback     = "FAQFallback"
	NodeFAQChatModel    = "FAQChatModel"
	NodeActionAssembler = "ActionAssembler"
	NodeActionChatModel = "ActionChatModel"
	NodeToolExecutor    = "ToolExecutor"
	NodeDefaultReply    = "DefaultReply"
	NodeGuardrailPost   = "GuardrailPost"
)

// Labels for which path produced the draft, reported to callers.
const (
	AgentFAQ       = "faq"
	AgentAction    = "action"
	AgentDefault   = "default"
	AgentGuardrail = "guardrail"
)

const faqFallbackMessage = "I'm not sure about that based on our current store information. " +
	"You can reach our support team through the help page, or try rephrasing your question."

const defaultReplyMessage = "I can help with grocery questions: store policies, product availability, " +
	"budget checks, and refunds. What would you like to do?"

// PrecheckOutcome carries the original input together with the precheck
// verdict so the refusal branch can respond without re-reading state.
type PrecheckOutcome struct {
	Input   model.QueryInput
	Verdict guardrail.Verdict
}

// NewGuardrailPrePreHandler resets per-query state before the first node runs.
func NewGuardrailPrePreHandler() func(context.Context, model.QueryInput, *model.AppState) (model.QueryInput, error) {
	return func(ctx context.Context, in model.QueryInput, s *model.AppState) (model.QueryInput, error) {
		s.SessionID = in.SessionID
		s.Query = in.Query
		s.IntentAnalysis = nil
		s.Blocked = false
		s.BlockReason = ""
		s.FAQFallback = ""
		s.Agent = ""
		s.History = nil
		s.ToolCallCount = 0
		s.ToolCallLimitReached = false
		s.ToolCallIDSeq = 0
		s.TotalCostUSD = 0
		return in, nil
	}
}

// NewGuardrailPreNode screens the incoming message before any model call.
func NewGuardrailPreNode(filter *guardrail.Filter) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, input model.QueryInput) (PrecheckOutcome, error) {
		verdict := filter.Precheck(input.Query)
		if !verdict.Allowed {
			err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
				state.Blocked = true
				state.BlockReason = verdict.Reason
				state.Agent = AgentGuardrail
				return nil
			})
			if err != nil {
				return PrecheckOutcome{}, fmt.Errorf("failed to access state: %w", err)
			}
		}
		return PrecheckOutcome{Input: input, Verdict: verdict}, nil
	})
}

// NewGuardrailPreCondition routes blocked input to the refusal node.
func NewGuardrailPreCondition() func(context.Context, PrecheckOutcome) (string, error) {
	return func(ctx context.Context, out PrecheckOutcome) (string, error) {
		if !out.Verdict.Allowed {
			logx.Debug().Str("reason", out.Verdict.Reason).Msg("Routing to refusal")
			return NodeRefusal, nil
		}
		return NodeIntentAssembler, nil
	}
}

// NewRefusalNode produces the refusal reply for a blocked message.
func NewRefusalNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, out PrecheckOutcome) (*schema.Message, error) {
		return schema.AssistantMessage(guardrail.RefusalMessage(out.Verdict), nil), nil
	})
}

// NewIntentAssemblerNode builds the classifier messages: system prompt plus
// the tagged conversation context.
func NewIntentAssemblerNode(sm *sessions.Manager, promptCfg model.PromptConfig) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, out PrecheckOutcome) ([]*schema.Message, error) {
		conversationCtx, err := sm.BuildClassifierContext(ctx, out.Input.SessionID, out.Input.Query)
		if err != nil {
			return nil, fmt.Errorf("error getting conversation context: %w", err)
		}

		systemPrompt, err := prompts.RenderClassifierSystem(ctx, promptCfg)
		if err != nil {
			return nil, fmt.Errorf("render classifier system prompt: %w", err)
		}

		return []*schema.Message{
			schema.SystemMessage(systemPrompt),
			schema.UserMessage(conversationCtx),
		}, nil
	})
}

// NewIntentChatModelPostHandler computes and logs usage cost for the
// classifier model call.
func NewIntentChatModelPostHandler(modelName string) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return newUsageCostPostHandler(NodeIntentChatModel, modelName)
}

// NewIntentParserNode parses the classifier output. Parsing never fails the
// turn; malformed output degrades to the unsupported intent.
func NewIntentParserNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, resp *schema.Message) (model.IntentResult, error) {
		result := parsers.ParseIntentResponse(resp.Content)
		return *result, nil
	})
}

// NewIntentParserPostHandler saves the routing outcome into state.
func NewIntentParserPostHandler() func(context.Context, model.IntentResult, *model.AppState) (model.IntentResult, error) {
	return func(ctx context.Context, out model.IntentResult, state *model.AppState) (model.IntentResult, error) {
		state.IntentAnalysis = &out
		logx.Debug().
			Str("session_id", state.SessionID).
			Str("intent", string(out.Intent)).
			Float64("confidence", out.Confidence).
			Str("reasoning", out.Reasoning).
			Msg("Intent classified")
		return out, nil
	}
}

// NewIntentRouteCondition picks the specialist for the classified intent.
func NewIntentRouteCondition() func(context.Context, model.IntentResult) (string, error) {
	return func(ctx context.Context, result model.IntentResult) (string, error) {
		switch {
		case result.Intent == model.IntentFAQ:
			return NodeFAQAssembler, nil
		case result.Intent.Transactional():
			return NodeActionAssembler, nil
		default:
			return NodeDefaultReply, nil
		}
	}
}

// NewFAQAssemblerNode retrieves grounding documents and builds the FAQ
// responder messages. When retrieval is unavailable or returns nothing, the
// fallback reply is staged in state and the model call is skipped.
func NewFAQAssemblerNode(sm *sessions.Manager, retriever *retrieval.Retriever, promptCfg model.PromptConfig) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, result model.IntentResult) ([]*schema.Message, error) {
		var sessionID, query string
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			sessionID = state.SessionID
			query = state.Query
			state.Agent = AgentFAQ
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		hits, err := retriever.Retrieve(ctx, query)
		if err != nil && !errors.Is(err, retrieval.ErrUnavailable) {
			return nil, fmt.Errorf("retrieve grounding: %w", err)
		}
		if err != nil || len(hits) == 0 {
			if err != nil {
				logx.Warn().Err(err).Str("session_id", sessionID).Msg("retrieval unavailable, using fallback")
			}
			ferr := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
				state.FAQFallback = faqFallbackMessage
				return nil
			})
			if ferr != nil {
				return nil, fmt.Errorf("failed to access state: %w", ferr)
			}
			return []*schema.Message{schema.UserMessage(query)}, nil
		}

		systemPrompt, err := prompts.RenderFAQSystem(ctx, promptCfg)
		if err != nil {
			return nil, fmt.Errorf("render faq system prompt: %w", err)
		}

		messages, err := sm.ResponseMessages(ctx, sessionID, systemPrompt)
		if err != nil {
			return nil, fmt.Errorf("build faq context: %w", err)
		}

		grounded := groundedQuestion(query, hits)
		if n := len(messages); n > 0 && messages[n-1].Role == schema.User && messages[n-1].Content == query {
			messages[n-1] = schema.UserMessage(grounded)
		} else {
			messages = append(messages, schema.UserMessage(grounded))
		}
		return messages, nil
	})
}

func groundedQuestion(query string, hits []retrieval.Scored) string {
	var b strings.Builder
	b.WriteString("Reference material:\n")
	for _, h := range hits {
		b.WriteString("- ")
		b.WriteString(h.Document.Content)
		b.WriteString("\n")
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(query)
	return b.String()
}

// NewFAQRouteCondition skips the model call when a fallback reply is staged.
func NewFAQRouteCondition() func(context.Context, []*schema.Message) (string, error) {
	return func(ctx context.Context, msgs []*schema.Message) (string, error) {
		var fallback string
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			fallback = state.FAQFallback
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("failed to access state: %w", err)
		}
		if fallback != "" {
			return NodeFAQFallback, nil
		}
		return NodeFAQChatModel, nil
	}
}

// NewFAQFallbackNode emits the canned reply staged by the FAQ assembler.
func NewFAQFallbackNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, msgs []*schema.Message) (*schema.Message, error) {
		var fallback string
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			fallback = state.FAQFallback
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}
		if fallback == "" {
			fallback = faqFallbackMessage
		}
		return schema.AssistantMessage(fallback, nil), nil
	})
}

// NewFAQChatModelPostHandler computes and logs usage cost for the FAQ model.
func NewFAQChatModelPostHandler(modelName string) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return newUsageCostPostHandler(NodeFAQChatModel, modelName)
}

// NewActionAssemblerNode builds the tool-using responder messages from the
// action system prompt and conversation history.
func NewActionAssemblerNode(sm *sessions.Manager, promptCfg model.PromptConfig) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, result model.IntentResult) ([]*schema.Message, error) {
		var sessionID string
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			sessionID = state.SessionID
			state.Agent = AgentAction
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		systemPrompt, err := prompts.RenderActionSystem(ctx, promptCfg)
		if err != nil {
			return nil, fmt.Errorf("render action system prompt: %w", err)
		}

		messages, err := sm.ResponseMessages(ctx, sessionID, systemPrompt)
		if err != nil {
			return nil, fmt.Errorf("build action context: %w", err)
		}
		return messages, nil
	})
}

// NewActionChatModelPreHandler accumulates the working message history and
// injects the wrap-up notice once the tool budget is exhausted.
func NewActionChatModelPreHandler(maxToolCalls int) func(context.Context, []*schema.Message, *model.AppState) ([]*schema.Message, error) {
	return func(ctx context.Context, in []*schema.Message, state *model.AppState) ([]*schema.Message, error) {
		// Gemini can omit tool_call_id on tool results; backfill it from the
		// most recent assistant tool call.
		if len(in) > 0 {
			last := in[len(in)-1]
			if last != nil && last.Role == schema.Tool && strings.TrimSpace(last.ToolCallID) == "" {
				for i := len(state.History) - 1; i >= 0; i-- {
					msg := state.History[i]
					if msg == nil || msg.Role != schema.Assistant || len(msg.ToolCalls) == 0 {
						continue
					}
					if id := msg.ToolCalls[0].ID; strings.TrimSpace(id) != "" {
						last.ToolCallID = id
					}
					break
				}
			}
		}

		state.History = append(state.History, in...)

		if checkAndMarkToolLimit(state, maxToolCalls) {
			maxToolCalls = normalizeMaxToolCalls(maxToolCalls)
			wrapUp := &schema.Message{
				Role: schema.System,
				Content: fmt.Sprintf(
					"SYSTEM NOTICE: You have reached the maximum tool call limit (%d). "+
						"Please synthesize a helpful response using the information you've already gathered. "+
						"Acknowledge any limitations in your response if you couldn't complete all necessary tool calls.",
					maxToolCalls,
				),
			}
			state.History = append(state.History, wrapUp)
		}

		return state.History, nil
	}
}

// NewActionChatModelPostHandler accounts usage cost, normalizes tool call IDs
// and appends the model output to the working history.
func NewActionChatModelPostHandler(modelName string) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	costHandler := newUsageCostPostHandler(NodeActionChatModel, modelName)
	return func(ctx context.Context, out *schema.Message, state *model.AppState) (*schema.Message, error) {
		out, err := costHandler(ctx, out, state)
		if err != nil {
			return nil, err
		}

		// Normalize tool calls: the provider may omit tool_call IDs.
		if out != nil && len(out.ToolCalls) > 0 {
			for i := range out.ToolCalls {
				if strings.TrimSpace(out.ToolCalls[i].ID) == "" {
					state.ToolCallIDSeq++
					out.ToolCalls[i].ID = fmt.Sprintf("call_%d", state.ToolCallIDSeq)
				}
			}
		}

		state.History = append(state.History, out)

		if len(out.ToolCalls) > 0 {
			logx.Debug().Int("tool_count", len(out.ToolCalls)).Msg("Calling tools")
		} else {
			logx.Debug().Msg("AI response ready")
		}
		return out, nil
	}
}

// NewToolExecutorCondition routes to the tool executor while the model keeps
// requesting tools and the budget allows.
func NewToolExecutorCondition() func(context.Context, *schema.Message) (string, error) {
	return func(ctx context.Context, input *schema.Message) (string, error) {
		var limitReached bool
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			limitReached = state.ToolCallLimitReached
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("failed to access state: %w", err)
		}

		if limitReached {
			logx.Debug().Msg("Tool limit reached previously - routing to postcheck")
			return NodeGuardrailPost, nil
		}
		if len(input.ToolCalls) > 0 {
			logx.Debug().Int("tool_count", len(input.ToolCalls)).Msg("Routing to ToolExecutor")
			return NodeToolExecutor, nil
		}
		return NodeGuardrailPost, nil
	}
}

// NewToolExecutorPreHandler counts tool batches against the per-turn budget.
func NewToolExecutorPreHandler(maxToolCalls int) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, in *schema.Message, state *model.AppState) (*schema.Message, error) {
		exceeded := incrementToolCallAndCheck(state, maxToolCalls)

		logx.Debug().
			Int("tool_call_count", state.ToolCallCount).
			Str("session_id", state.SessionID).
			Msg("Tool execution attempt")

		if exceeded {
			logx.Warn().
				Int("tool_call_count", state.ToolCallCount).
				Int("max_tool_calls", normalizeMaxToolCalls(maxToolCalls)).
				Str("session_id", state.SessionID).
				Msg("Tool call limit exceeded - flagging and continuing")
		}
		return in, nil
	}
}

// NewDefaultReplyNode answers greetings and out-of-scope requests with the
// capability summary.
func NewDefaultReplyNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, result model.IntentResult) (*schema.Message, error) {
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			state.Agent = AgentDefault
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}
		return schema.AssistantMessage(defaultReplyMessage, nil), nil
	})
}

// NewGuardrailPostNode re-screens the draft and stamps routing metadata onto
// the final message. A blocked draft is replaced with the refusal text.
func NewGuardrailPostNode(filter *guardrail.Filter) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, draft *schema.Message) (*schema.Message, error) {
		if draft == nil {
			draft = schema.AssistantMessage("", nil)
		}

		verdict := filter.Postcheck(draft.Content)
		if !verdict.Allowed {
			redacted := schema.AssistantMessage(guardrail.RefusalMessage(verdict), nil)
			redacted.Extra = draft.Extra
			draft = redacted
		}

		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			if !verdict.Allowed {
				state.Blocked = true
				state.BlockReason = verdict.Reason
			}
			if draft.Extra == nil {
				draft.Extra = map[string]any{}
			}
			if state.IntentAnalysis != nil {
				draft.Extra[model.ExtraIntent] = string(state.IntentAnalysis.Intent)
			}
			draft.Extra[model.ExtraAgent] = state.Agent
			draft.Extra[model.ExtraBlocked] = state.Blocked
			if state.BlockReason != "" {
				draft.Extra[model.ExtraBlockReason] = state.BlockReason
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}
		return draft, nil
	})
}

// newUsageCostPostHandler builds the shared usage-cost accounting handler for
// a chat model node.
func newUsageCostPostHandler(nodeName, modelName string) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.AppState) (*schema.Message, error) {
		if out == nil || out.ResponseMeta == nil || out.ResponseMeta.Usage == nil {
			return out, nil
		}
		pricing := model.ResolvePricing(modelName)
		inC, outC, totalC := model.ComputeCost(out.ResponseMeta.Usage, pricing)
		if out.Extra == nil {
			out.Extra = map[string]any{}
		}
		out.Extra["usage_cost"] = map[string]any{
			"currency":          "USD",
			"model":             modelName,
			"prompt_tokens":     out.ResponseMeta.Usage.PromptTokens,
			"completion_tokens": out.ResponseMeta.Usage.CompletionTokens,
			"total_tokens":      out.ResponseMeta.Usage.TotalTokens,
			"input_cost":        inC,
			"output_cost":       outC,
			"total_cost":        totalC,
		}
		logx.Debug().
			Str("session_id", state.SessionID).
			Str("node", nodeName).
			Str("model", modelName).
			Int("prompt_tokens", out.ResponseMeta.Usage.PromptTokens).
			Int("completion_tokens", out.ResponseMeta.Usage.CompletionTokens).
			Int("total_tokens", out.ResponseMeta.Usage.TotalTokens).
			Float64("input_cost_usd", inC).
			Float64("output_cost_usd", outC).
			Float64("total_cost_usd", totalC).
			Msg("LLM usage")

		state.TotalCostUSD += totalC
		out.Extra["usage_cost_total_usd"] = state.TotalCostUSD
		return out, nil
	}
}
