package agent_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freshcart/support-agent/internal/agent"
	"github.com/freshcart/support-agent/internal/agent/graph"
	"github.com/freshcart/support-agent/internal/agent/graph/nodes"
	"github.com/freshcart/support-agent/internal/agent/graph/tools"
	"github.com/freshcart/support-agent/internal/agent/model"
	"github.com/freshcart/support-agent/internal/agent/repo"
	"github.com/freshcart/support-agent/internal/agent/sessions"
	"github.com/freshcart/support-agent/internal/guardrail"
	"github.com/freshcart/support-agent/internal/inventory"
	"github.com/freshcart/support-agent/internal/retrieval"
)

// stubChatModel scripts responses from the incoming messages.
type stubChatModel struct {
	respond func(msgs []*schema.Message) *schema.Message
}

func (s *stubChatModel) Generate(_ context.Context, msgs []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	return s.respond(msgs), nil
}

func (s *stubChatModel) Stream(_ context.Context, msgs []*schema.Message, _ ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return schema.StreamReaderFromArray([]*schema.Message{s.respond(msgs)}), nil
}

func (s *stubChatModel) BindTools(_ []*schema.ToolInfo) error { return nil }

// stubClassifier keys off the current message text.
func stubClassifier() *stubChatModel {
	return &stubChatModel{respond: func(msgs []*schema.Message) *schema.Message {
		text := strings.ToLower(msgs[len(msgs)-1].Content)
		intent := "unsupported"
		switch {
		case strings.Contains(text, "refund"):
			intent = "refund_request"
		case strings.Contains(text, "stock"):
			intent = "stock_check"
		case strings.Contains(text, "budget") || strings.Contains(text, "afford"):
			intent = "budget_check"
		case strings.Contains(text, "policy") || strings.Contains(text, "deliver"):
			intent = "faq"
		}
		return schema.AssistantMessage(
			fmt.Sprintf(`{"intent": %q, "confidence": 0.9, "reasoning": "scripted"}`, intent), nil)
	}}
}

// stubActionModel requests one refund tool call for the order ID found in the
// conversation, then summarizes the tool result verbatim.
func stubActionModel() *stubChatModel {
	return &stubChatModel{respond: func(msgs []*schema.Message) *schema.Message {
		for i := len(msgs) - 1; i >= 0; i-- {
			if msgs[i].Role == schema.Tool {
				return schema.AssistantMessage("Tool result: "+msgs[i].Content, nil)
			}
		}
		orderID := "ORD000"
		for _, m := range msgs {
			if m.Role != schema.User {
				continue
			}
			for _, word := range strings.Fields(m.Content) {
				if strings.HasPrefix(word, "ORD") {
					orderID = strings.Trim(word, ".,!?")
				}
			}
		}
		args, _ := json.Marshal(map[string]any{"order_id": orderID, "reason": "customer request"})
		return schema.AssistantMessage("", []schema.ToolCall{{
			ID:       "call_1",
			Function: schema.FunctionCall{Name: tools.ToolCreateRefund, Arguments: string(args)},
		}})
	}}
}

func stubFAQModel() *stubChatModel {
	return &stubChatModel{respond: func(msgs []*schema.Message) *schema.Message {
		last := msgs[len(msgs)-1].Content
		if strings.Contains(last, "Reference material:") {
			return schema.AssistantMessage("Per our policy: free delivery over $50.", nil)
		}
		return schema.AssistantMessage("I don't know.", nil)
	}}
}

type keywordEmbedder struct {
	axes map[string]int
	dim  int
	fail bool
}

func (e *keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.fail {
		return nil, retrieval.ErrUnavailable
	}
	vec := make([]float32, e.dim)
	lower := strings.ToLower(text)
	for kw, axis := range e.axes {
		if strings.Contains(lower, kw) {
			vec[axis] = 1
		}
	}
	return vec, nil
}

type noStock struct{}

func (noStock) Stock(_ context.Context, productID string) (*inventory.StockInfo, error) {
	return &inventory.StockInfo{ProductID: productID, Found: false}, nil
}

func newTestOrchestrator(t *testing.T, embedder retrieval.Embedder) *agent.Orchestrator {
	t.Helper()
	ctx := context.Background()

	sessionRepo := repo.NewMemorySessionRepository(0)
	sm := sessions.NewManager(sessionRepo, model.SessionConfig{MaxTurns: 10})

	store := retrieval.NewStore()
	if kw, ok := embedder.(*keywordEmbedder); ok && !kw.fail {
		doc := retrieval.Document{ID: "faq-1", Content: "Q: Delivery policy?\nA: Free delivery over $50."}
		vec, err := embedder.Embed(ctx, doc.Content)
		require.NoError(t, err)
		store.Add(doc, vec)
	}
	retriever := retrieval.NewRetriever(embedder, store, retrieval.Config{TopK: 3, MinScore: 0.3})

	registry := tools.NewRegistry(
		tools.NewCatalog([]model.Product{{ID: "P001", Name: "Organic Milk", Price: 2.50, InStock: true}}),
		tools.NewOrdersStore([]model.Order{{OrderID: "ORD001", Total: 45.50, Status: "delivered"}}),
		tools.NewMemoryRefundLedger(),
		noStock{},
		tools.Config{MaxRefundAmount: 1000},
	)

	runner, err := graph.BuildGraph(ctx, &graph.GraphConfig{
		ChatModels: &nodes.ChatModels{
			Classifier:          stubClassifier(),
			FAQ:                 stubFAQModel(),
			Action:              stubActionModel(),
			ClassifierModelName: "stub-classifier",
			ResponderModelName:  "stub-responder",
		},
		Sessions:     sm,
		Guardrail:    guardrail.NewFilter(guardrail.Config{RestrictedTopics: "politics,religion"}),
		Retriever:    retriever,
		Tools:        registry,
		PromptConfig: model.PromptConfig{StoreName: "FreshCart", StoreType: "online grocery store"},
		ToolMaxCalls: 4,
	})
	require.NoError(t, err)

	return agent.NewOrchestrator(sm, runner)
}

func faqEmbedder() *keywordEmbedder {
	return &keywordEmbedder{dim: 2, axes: map[string]int{"delivery": 0, "policy": 1}}
}

func TestHandleMessage_RestrictedTopicRefused(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t, faqEmbedder())
	reply, err := o.HandleMessage(context.Background(), "s1", "What do you think about politics?")
	require.NoError(t, err)

	assert.True(t, reply.Blocked)
	assert.Equal(t, guardrail.ReasonRestrictedTopic, reply.BlockReason)
	assert.Equal(t, nodes.AgentGuardrail, reply.Agent)
	assert.Contains(t, reply.Text, "can't discuss")

	history, err := o.History(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, history.Turns, 2, "refused turns still persist user and assistant")
	assert.Equal(t, model.RoleAssistant, history.Turns[1].Role)
}

func TestHandleMessage_RefundUnknownOrderDenied(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t, faqEmbedder())
	reply, err := o.HandleMessage(context.Background(), "s2", "Please refund my order ORD999")
	require.NoError(t, err)

	assert.Equal(t, nodes.AgentAction, reply.Agent)
	assert.Equal(t, model.IntentRefundRequest, reply.Intent)
	assert.Contains(t, reply.Text, model.RefundReasonOrderNotFound)
	assert.False(t, reply.Blocked)
}

func TestHandleMessage_RefundKnownOrderApproved(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t, faqEmbedder())
	reply, err := o.HandleMessage(context.Background(), "s3", "I want a refund for ORD001")
	require.NoError(t, err)

	assert.Equal(t, nodes.AgentAction, reply.Agent)
	assert.Contains(t, reply.Text, `"approved":true`)
	assert.Contains(t, reply.Text, "REFORD001")
}

func TestHandleMessage_FAQGrounded(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t, faqEmbedder())
	reply, err := o.HandleMessage(context.Background(), "s4", "What is your delivery policy?")
	require.NoError(t, err)

	assert.Equal(t, nodes.AgentFAQ, reply.Agent)
	assert.Equal(t, model.IntentFAQ, reply.Intent)
	assert.Contains(t, reply.Text, "free delivery over $50")
}

func TestHandleMessage_FAQRetrievalUnavailableFallsBack(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t, &keywordEmbedder{fail: true})
	reply, err := o.HandleMessage(context.Background(), "s5", "What is your delivery policy?")
	require.NoError(t, err)

	assert.Equal(t, nodes.AgentFAQ, reply.Agent)
	assert.Contains(t, reply.Text, "support team")
}

func TestHandleMessage_UnsupportedGetsCapabilitySummary(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t, faqEmbedder())
	reply, err := o.HandleMessage(context.Background(), "s6", "Hello there!")
	require.NoError(t, err)

	assert.Equal(t, nodes.AgentDefault, reply.Agent)
	assert.Equal(t, model.IntentUnsupported, reply.Intent)
	assert.Contains(t, reply.Text, "grocery")
}

// failingRunner simulates a model backend outage on every invocation.
type failingRunner struct{}

func (failingRunner) Invoke(_ context.Context, _ model.QueryInput) (*schema.Message, error) {
	return nil, errors.New("model backend down")
}

func TestHandleMessage_ModelFailureDegradesGracefully(t *testing.T) {
	t.Parallel()

	sm := sessions.NewManager(repo.NewMemorySessionRepository(0), model.SessionConfig{MaxTurns: 10})
	o := agent.NewOrchestrator(sm, failingRunner{})
	ctx := context.Background()

	reply, err := o.HandleMessage(ctx, "s-outage", "What is your delivery policy?")
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "temporarily unavailable")
	assert.Equal(t, model.IntentUnsupported, reply.Intent)

	history, err := o.History(ctx, "s-outage")
	require.NoError(t, err)
	require.Len(t, history.Turns, 2, "the failed turn still pairs user and assistant")
	assert.Equal(t, model.RoleUser, history.Turns[0].Role)
	assert.Equal(t, model.RoleAssistant, history.Turns[1].Role)
	assert.Equal(t, reply.Text, history.Turns[1].Content)
}

func TestHandleMessage_EmptyInputsRejected(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t, faqEmbedder())

	_, err := o.HandleMessage(context.Background(), "", "hi")
	require.Error(t, err)
	_, err = o.HandleMessage(context.Background(), "s7", "   ")
	require.Error(t, err)
}

func TestHandleMessage_OneAssistantTurnPerUserTurn(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t, faqEmbedder())
	ctx := context.Background()

	_, err := o.HandleMessage(ctx, "s8", "Hello!")
	require.NoError(t, err)
	_, err = o.HandleMessage(ctx, "s8", "What is your delivery policy?")
	require.NoError(t, err)

	history, err := o.History(ctx, "s8")
	require.NoError(t, err)
	require.Len(t, history.Turns, 4)
	for i, turn := range history.Turns {
		want := model.RoleUser
		if i%2 == 1 {
			want = model.RoleAssistant
		}
		assert.Equal(t, want, turn.Role, "turn %d", i)
	}
	for i := 1; i < len(history.Turns); i++ {
		assert.True(t, history.Turns[i].Timestamp.After(history.Turns[i-1].Timestamp))
	}
}
