package observers

import (
	"context"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/tool"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	logx "github.com/freshcart/support-agent/pkg/logger"
)

const maxLoggedToolOutput = 512

// newToolHandler logs each tool invocation with its arguments and result.
func newToolHandler() *callbackHelper.ToolCallbackHandler {
	log := logx.With("tool")
	return &callbackHelper.ToolCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *tool.CallbackInput) context.Context {
			ev := log.Info().Str("tool", info.Name)
			if input != nil {
				ev = ev.Str("arguments", input.ArgumentsInJSON)
			}
			ev.Msg("tool call start")
			return ctx
		},
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *tool.CallbackOutput) context.Context {
			ev := log.Info().Str("tool", info.Name)
			if output != nil {
				result := output.Response
				if len(result) > maxLoggedToolOutput {
					result = result[:maxLoggedToolOutput]
				}
				ev = ev.Str("result", result)
			}
			ev.Msg("tool call end")
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			log.Error().Str("tool", info.Name).Err(err).Msg("tool call error")
			return ctx
		},
	}
}
