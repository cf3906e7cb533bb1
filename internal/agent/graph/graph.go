package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/freshcart/support-agent/internal/agent/graph/nodes"
	"github.com/freshcart/support-agent/internal/agent/graph/observers"
	"github.com/freshcart/support-agent/internal/agent/graph/tools"
	"github.com/freshcart/support-agent/internal/agent/model"
	"github.com/freshcart/support-agent/internal/agent/sessions"
	"github.com/freshcart/support-agent/internal/guardrail"
	"github.com/freshcart/support-agent/internal/retrieval"
	logx "github.com/freshcart/support-agent/pkg/logger"
)

// Runner executes the compiled graph for one user message and returns the
// final assistant message with routing metadata in Extra.
type Runner interface {
	Invoke(ctx context.Context, in model.QueryInput) (*schema.Message, error)
}

// GraphConfig holds all dependencies needed to build the graph.
type GraphConfig struct {
	ChatModels   *nodes.ChatModels
	Sessions     *sessions.Manager
	Guardrail    *guardrail.Filter
	Retriever    *retrieval.Retriever
	Tools        *tools.Registry
	PromptConfig model.PromptConfig
	ToolMaxCalls int
}

// GraphBuilder handles the construction of the support conversation graph.
type GraphBuilder struct {
	config *GraphConfig
	graph  *compose.Graph[model.QueryInput, *schema.Message]
}

type graphRunner struct {
	runnable compose.Runnable[model.QueryInput, *schema.Message]
}

func (r *graphRunner) Invoke(ctx context.Context, in model.QueryInput) (*schema.Message, error) {
	return r.runnable.Invoke(ctx, in, compose.WithCallbacks(observers.NewAllCallbacks()))
}

// BuildGraph constructs and compiles the support graph, returning a Runner.
func BuildGraph(ctx context.Context, config *GraphConfig) (Runner, error) {
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	if config.ChatModels == nil || config.ChatModels.Classifier == nil ||
		config.ChatModels.FAQ == nil || config.ChatModels.Action == nil {
		return nil, fmt.Errorf("chat models are not properly initialized")
	}
	if config.Sessions == nil {
		return nil, fmt.Errorf("sessions manager is nil")
	}
	if config.Guardrail == nil {
		return nil, fmt.Errorf("guardrail filter is nil")
	}
	if config.Retriever == nil {
		return nil, fmt.Errorf("retriever is nil")
	}
	if config.Tools == nil {
		return nil, fmt.Errorf("tool registry is nil")
	}

	builder := &GraphBuilder{
		config: config,
		graph: compose.NewGraph[model.QueryInput, *schema.Message](
			compose.WithGenLocalState(func(ctx context.Context) *model.AppState {
				return &model.AppState{}
			}),
		),
	}

	if err := builder.setupTools(ctx); err != nil {
		return nil, err
	}

	builder.addNodes()
	builder.addEdges()

	if err := builder.addBranches(); err != nil {
		return nil, err
	}

	runnable, err := builder.compile(ctx)
	if err != nil {
		return nil, err
	}
	return &graphRunner{runnable: runnable}, nil
}

// setupTools configures the action tools and binds them to the action model.
func (b *GraphBuilder) setupTools(ctx context.Context) error {
	actionTools := b.config.Tools.QueryTools()
	toolInfos, err := tools.GetToolInfos(ctx, actionTools)
	if err != nil {
		logx.Error().Err(err).Msg("Failed to get tool infos")
		return fmt.Errorf("failed to get tool infos: %w", err)
	}

	if err := b.config.ChatModels.BindToolsToActionModel(ctx, toolInfos); err != nil {
		logx.Error().Err(err).Msg("Failed to bind tools to action model")
		return fmt.Errorf("failed to bind tools to action model: %w", err)
	}

	toolsNode, err := compose.NewToolNode(ctx, &compose.ToolsNodeConfig{
		Tools:               actionTools,
		ExecuteSequentially: true,
		UnknownToolsHandler: func(ctx context.Context, name, input string) (string, error) {
			// Gracefully handle hallucinated or malformed tool calls
			logx.Warn().
				Str("tool_name", name).
				Str("arguments", input).
				Msg("Unknown or invalid tool call; returning fallback result")
			return fmt.Sprintf("{\"error\":\"unknown_tool\",\"name\":%q,\"note\":\"ignored\"}", name), nil
		},
		ToolArgumentsHandler: sanitizeToolArguments,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Failed to create tools node")
		return fmt.Errorf("failed to create tools node: %w", err)
	}

	b.graph.AddToolsNode(nodes.NodeToolExecutor, toolsNode,
		compose.WithStatePreHandler(nodes.NewToolExecutorPreHandler(b.config.ToolMaxCalls)),
	)
	return nil
}

// sanitizeToolArguments normalizes model-produced arguments best-effort;
// it never fails hard.
func sanitizeToolArguments(ctx context.Context, name, arguments string) (string, error) {
	var m map[string]any
	if err := json.Unmarshal([]byte(arguments), &m); err != nil {
		// keep original if not JSON
		return arguments, nil
	}

	trimString := func(key string) {
		if v, ok := m[key]; ok {
			switch vv := v.(type) {
			case string:
				m[key] = strings.TrimSpace(vv)
			default:
				m[key] = strings.TrimSpace(fmt.Sprint(v))
			}
		}
	}

	switch name {
	case tools.ToolCalculateBudget:
		// items: array of strings (required); a bare string becomes a
		// one-item list
		if v, ok := m["items"]; ok {
			switch vv := v.(type) {
			case []any:
				items := make([]string, 0, len(vv))
				for _, it := range vv {
					if s := strings.TrimSpace(fmt.Sprint(it)); s != "" {
						items = append(items, s)
					}
				}
				m["items"] = items
			case string:
				m["items"] = []string{strings.TrimSpace(vv)}
			default:
				delete(m, "items")
			}
		}
		// budget: number (required)
		if v, ok := m["budget"]; ok {
			switch vv := v.(type) {
			case float64:
				// already a number
			case string:
				if f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(vv, "$")), 64); err == nil {
					m["budget"] = f
				} else {
					delete(m, "budget")
				}
			default:
				delete(m, "budget")
			}
		}
	case tools.ToolCheckStock:
		trimString("product_id")
	case tools.ToolCreateRefund:
		trimString("order_id")
		trimString("reason")
	}

	b, err := json.Marshal(m)
	if err != nil {
		return arguments, nil
	}
	return string(b), nil
}

// addNodes adds all processing nodes to the graph.
func (b *GraphBuilder) addNodes() {
	b.graph.AddLambdaNode(nodes.NodeGuardrailPre,
		nodes.NewGuardrailPreNode(b.config.Guardrail),
		compose.WithStatePreHandler(nodes.NewGuardrailPrePreHandler()),
	)

	b.graph.AddLambdaNode(nodes.NodeRefusal, nodes.NewRefusalNode())

	b.graph.AddLambdaNode(nodes.NodeIntentAssembler,
		nodes.NewIntentAssemblerNode(b.config.Sessions, b.config.PromptConfig),
	)

	b.graph.AddChatModelNode(nodes.NodeIntentChatModel,
		b.config.ChatModels.Classifier,
		compose.WithStatePostHandler(nodes.NewIntentChatModelPostHandler(b.config.ChatModels.ClassifierModelName)),
	)

	b.graph.AddLambdaNode(nodes.NodeIntentParser,
		nodes.NewIntentParserNode(),
		compose.WithStatePostHandler(nodes.NewIntentParserPostHandler()),
	)

	b.graph.AddLambdaNode(nodes.NodeFAQAssembler,
		nodes.NewFAQAssemblerNode(b.config.Sessions, b.config.Retriever, b.config.PromptConfig),
	)

	b.graph.AddLambdaNode(nodes.NodeFAQFallback, nodes.NewFAQFallbackNode())

	b.graph.AddChatModelNode(nodes.NodeFAQChatModel,
		b.config.ChatModels.FAQ,
		compose.WithStatePostHandler(nodes.NewFAQChatModelPostHandler(b.config.ChatModels.ResponderModelName)),
	)

	b.graph.AddLambdaNode(nodes.NodeActionAssembler,
		nodes.NewActionAssemblerNode(b.config.Sessions, b.config.PromptConfig),
	)

	b.graph.AddChatModelNode(nodes.NodeActionChatModel,
		b.config.ChatModels.Action,
		compose.WithStatePreHandler(nodes.NewActionChatModelPreHandler(b.config.ToolMaxCalls)),
		compose.WithStatePostHandler(nodes.NewActionChatModelPostHandler(b.config.ChatModels.ResponderModelName)),
	)

	b.graph.AddLambdaNode(nodes.NodeDefaultReply, nodes.NewDefaultReplyNode())

	b.graph.AddLambdaNode(nodes.NodeGuardrailPost,
		nodes.NewGuardrailPostNode(b.config.Guardrail),
	)
}

// addEdges creates the unconditional flow connections between nodes.
func (b *GraphBuilder) addEdges() {
	edges := [][2]string{
		{compose.START, nodes.NodeGuardrailPre},
		{nodes.NodeRefusal, nodes.NodeGuardrailPost},
		{nodes.NodeIntentAssembler, nodes.NodeIntentChatModel},
		{nodes.NodeIntentChatModel, nodes.NodeIntentParser},
		{nodes.NodeFAQFallback, nodes.NodeGuardrailPost},
		{nodes.NodeFAQChatModel, nodes.NodeGuardrailPost},
		{nodes.NodeActionAssembler, nodes.NodeActionChatModel},
		{nodes.NodeToolExecutor, nodes.NodeActionChatModel},
		{nodes.NodeDefaultReply, nodes.NodeGuardrailPost},
		{nodes.NodeGuardrailPost, compose.END},
	}

	for _, edge := range edges {
		b.graph.AddEdge(edge[0], edge[1])
	}
}

// addBranches creates the conditional routing branches.
func (b *GraphBuilder) addBranches() error {
	precheckBranch := compose.NewGraphBranch(
		nodes.NewGuardrailPreCondition(),
		map[string]bool{
			nodes.NodeRefusal:         true,
			nodes.NodeIntentAssembler: true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeGuardrailPre, precheckBranch); err != nil {
		return fmt.Errorf("error adding precheck branch: %w", err)
	}

	routeBranch := compose.NewGraphBranch(
		nodes.NewIntentRouteCondition(),
		map[string]bool{
			nodes.NodeFAQAssembler:    true,
			nodes.NodeActionAssembler: true,
			nodes.NodeDefaultReply:    true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeIntentParser, routeBranch); err != nil {
		return fmt.Errorf("error adding intent route branch: %w", err)
	}

	faqBranch := compose.NewGraphBranch(
		nodes.NewFAQRouteCondition(),
		map[string]bool{
			nodes.NodeFAQFallback:  true,
			nodes.NodeFAQChatModel: true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeFAQAssembler, faqBranch); err != nil {
		return fmt.Errorf("error adding faq branch: %w", err)
	}

	toolBranch := compose.NewGraphBranch(
		nodes.NewToolExecutorCondition(),
		map[string]bool{
			nodes.NodeToolExecutor:  true,
			nodes.NodeGuardrailPost: true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeActionChatModel, toolBranch); err != nil {
		return fmt.Errorf("error adding tool branch: %w", err)
	}

	return nil
}

// compile finalizes and compiles the graph.
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.QueryInput, *schema.Message], error) {
	// Limit total run steps to avoid infinite loops in branching or tool retries
	maxSteps := 10 + b.config.ToolMaxCalls*2
	if maxSteps < 20 {
		maxSteps = 20
	}

	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(maxSteps))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Msg("Graph compiled successfully")
	return runnable, nil
}
