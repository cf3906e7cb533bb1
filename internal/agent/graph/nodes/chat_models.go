package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/freshcart/support-agent/internal/agent/model"
	logx "github.com/freshcart/support-agent/pkg/logger"
)

// ChatModel is the surface the graph needs from a chat model. Satisfied by
// the Gemini implementation and by test stubs.
type ChatModel interface {
	einomodel.BaseChatModel
	BindTools(tools []*schema.ToolInfo) error
}

// ChatModelConfig holds the configuration for chat model creation.
type ChatModelConfig struct {
	Client     *genai.Client
	Classifier *model.ClassifierModelConfig
	Responder  *model.ResponderModelConfig
}

// ChatModels holds the classifier and the two responder chat models. FAQ and
// Action share responder settings but are separate instances because tools
// are bound only to the action model.
type ChatModels struct {
	Classifier ChatModel
	FAQ        ChatModel
	Action     ChatModel

	ClassifierModelName string
	ResponderModelName  string
}

// NewChatModels creates the classifier and responder chat models over one
// shared Gemini client.
func NewChatModels(ctx context.Context, config ChatModelConfig) (*ChatModels, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("gemini client is nil")
	}
	if config.Classifier == nil || config.Responder == nil {
		return nil, fmt.Errorf("model config is nil")
	}

	classifier, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      config.Client,
		Model:       config.Classifier.Model,
		Temperature: &config.Classifier.Temperature,
		MaxTokens:   &config.Classifier.MaxTokens,
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  genai.Ptr(int32(0)),
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating classifier model")
		return nil, fmt.Errorf("error creating classifier model: %w", err)
	}

	newResponder := func() (*gemini.ChatModel, error) {
		return gemini.NewChatModel(ctx, &gemini.Config{
			Client:      config.Client,
			Model:       config.Responder.Model,
			Temperature: &config.Responder.Temperature,
			MaxTokens:   &config.Responder.MaxTokens,
			ThinkingConfig: &genai.ThinkingConfig{
				IncludeThoughts: true,
				ThinkingBudget:  genai.Ptr(int32(2000)),
			},
		})
	}

	faqModel, err := newResponder()
	if err != nil {
		logx.Error().Err(err).Msg("Error creating FAQ responder model")
		return nil, fmt.Errorf("error creating faq responder model: %w", err)
	}
	actionModel, err := newResponder()
	if err != nil {
		logx.Error().Err(err).Msg("Error creating action responder model")
		return nil, fmt.Errorf("error creating action responder model: %w", err)
	}

	return &ChatModels{
		Classifier:          classifier,
		FAQ:                 faqModel,
		Action:              actionModel,
		ClassifierModelName: config.Classifier.Model,
		ResponderModelName:  config.Responder.Model,
	}, nil
}

// BindToolsToActionModel binds the action tool schemas to the action model.
func (cm *ChatModels) BindToolsToActionModel(ctx context.Context, tools []*schema.ToolInfo) error {
	if err := cm.Action.BindTools(tools); err != nil {
		logx.Error().Err(err).Msg("Failed to bind tools")
		return fmt.Errorf("failed to bind tools: %w", err)
	}
	logx.Debug().Msg("Successfully bound tools to action model")
	return nil
}
