package prompts

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/freshcart/support-agent/internal/agent/model"
)

//go:embed template/classifier_prompt.txt
var classifierSystemPrompt string

// RenderClassifierSystem renders the intent-classifier system prompt through
// the Eino prompt component so prompt callbacks fire.
func RenderClassifierSystem(ctx context.Context, cfg model.PromptConfig) (string, error) {
	// Known tokens only; the template body contains JSON braces that must
	// survive rendering untouched.
	content := strings.NewReplacer(
		"{store_name}", cfg.StoreName,
		"{store_type}", cfg.StoreType,
	).Replace(classifierSystemPrompt)

	tpl := prompt.FromMessages(
		schema.FString,
		schema.MessagesPlaceholder("system_messages", false),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"system_messages": []*schema.Message{schema.SystemMessage(content)},
	})
	if err != nil {
		return "", fmt.Errorf("classifier prompt callbacks: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("classifier prompt callbacks: empty result")
	}
	return msgs[0].Content, nil
}
