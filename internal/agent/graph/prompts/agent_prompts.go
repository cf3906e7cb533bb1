package prompts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/freshcart/support-agent/internal/agent/graph/tools"
	"github.com/freshcart/support-agent/internal/agent/model"
)

//go:embed template/faq_prompt.txt
var faqSystemPrompt string

//go:embed template/action_prompt.txt
var actionSystemPrompt string

// RenderFAQSystem renders the grounded-answer system prompt and triggers
// prompt callbacks.
func RenderFAQSystem(ctx context.Context, cfg model.PromptConfig) (string, error) {
	return renderGoTemplate(ctx, faqSystemPrompt, map[string]any{
		"StoreName": cfg.StoreName,
		"StoreType": cfg.StoreType,
	})
}

// RenderActionSystem renders the tool-using system prompt and triggers
// prompt callbacks.
func RenderActionSystem(ctx context.Context, cfg model.PromptConfig) (string, error) {
	return renderGoTemplate(ctx, actionSystemPrompt, map[string]any{
		"StoreName":  cfg.StoreName,
		"StoreType":  cfg.StoreType,
		"BudgetTool": tools.ToolCalculateBudget,
		"StockTool":  tools.ToolCheckStock,
		"RefundTool": tools.ToolCreateRefund,
	})
}

func renderGoTemplate(ctx context.Context, tmpl string, vars map[string]any) (string, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(tmpl),
	)
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("system prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("system prompt render: empty result")
	}
	return msgs[0].Content, nil
}
