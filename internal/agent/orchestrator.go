package agent

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/freshcart/support-agent/internal/agent/graph"
	"github.com/freshcart/support-agent/internal/agent/model"
	"github.com/freshcart/support-agent/internal/agent/sessions"
	errx "github.com/freshcart/support-agent/internal/core/error"
	logx "github.com/freshcart/support-agent/pkg/logger"
)

const serviceUnavailableReply = "Sorry, the service is temporarily unavailable. Please try again in a moment."

// Orchestrator drives one conversation turn end to end: it serializes access
// to the session, records the user turn, runs the graph, and records exactly
// one assistant turn regardless of how the graph fared.
type Orchestrator struct {
	sessions *sessions.Manager
	runner   graph.Runner
}

func NewOrchestrator(sm *sessions.Manager, runner graph.Runner) *Orchestrator {
	return &Orchestrator{sessions: sm, runner: runner}
}

// HandleMessage processes one user message in a session and returns the
// reply. Concurrent calls for the same session are serialized; each user turn
// is paired with exactly one assistant turn in stored history.
func (o *Orchestrator) HandleMessage(ctx context.Context, sessionID, message string) (*model.Reply, error) {
	sessionID = strings.TrimSpace(sessionID)
	message = strings.TrimSpace(message)
	if sessionID == "" {
		return nil, errx.New(fmt.Errorf("session_id is empty"), http.StatusBadRequest, "session_id is required")
	}
	if message == "" {
		return nil, errx.New(fmt.Errorf("message is empty"), http.StatusBadRequest, "message is required")
	}

	release := o.sessions.Acquire(sessionID)
	defer release()

	if err := o.sessions.AppendUserTurn(ctx, sessionID, message); err != nil {
		return nil, fmt.Errorf("append user turn: %w", err)
	}

	out, err := o.runner.Invoke(ctx, model.QueryInput{SessionID: sessionID, Query: message})
	if err != nil {
		logx.Error().Err(err).Str("session_id", sessionID).Msg("graph invocation failed")
		// Contain the failure: pair the user turn with a degraded reply so
		// history never ends on a dangling user turn, and hand the caller
		// that same reply instead of an error.
		if aerr := o.sessions.AppendAssistantTurn(ctx, sessionID, serviceUnavailableReply); aerr != nil {
			logx.Error().Err(aerr).Str("session_id", sessionID).Msg("failed to append degraded assistant turn")
		}
		return &model.Reply{Text: serviceUnavailableReply, Intent: model.IntentUnsupported}, nil
	}

	reply := replyFromMessage(out)
	if reply.Text == "" {
		reply.Text = serviceUnavailableReply
	}

	if err := o.sessions.AppendAssistantTurn(ctx, sessionID, reply.Text); err != nil {
		logx.Error().Err(err).Str("session_id", sessionID).Msg("failed to append assistant turn")
	}

	return reply, nil
}

// History exposes stored turns for the session history endpoint.
func (o *Orchestrator) History(ctx context.Context, sessionID string) (*model.SessionHistory, error) {
	return o.sessions.History(ctx, sessionID)
}

// replyFromMessage lifts routing metadata out of the final message Extra.
func replyFromMessage(out *schema.Message) *model.Reply {
	reply := &model.Reply{}
	if out == nil {
		return reply
	}
	reply.Text = strings.TrimSpace(out.Content)

	if v, ok := out.Extra[model.ExtraIntent].(string); ok {
		reply.Intent = model.ParseIntent(v)
	} else {
		reply.Intent = model.IntentUnsupported
	}
	if v, ok := out.Extra[model.ExtraAgent].(string); ok {
		reply.Agent = v
	}
	if v, ok := out.Extra[model.ExtraBlocked].(bool); ok {
		reply.Blocked = v
	}
	if v, ok := out.Extra[model.ExtraBlockReason].(string); ok {
		reply.BlockReason = v
	}
	return reply
}
