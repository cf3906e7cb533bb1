package model

import (
	"context"
	"time"

	"github.com/cloudwego/eino/schema"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Turn is a single immutable conversation entry. Turns are append-only and
// timestamps within one session never decrease.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Message converts the turn into an Eino schema message for model context.
func (t Turn) Message() *schema.Message {
	switch t.Role {
	case RoleAssistant:
		return schema.AssistantMessage(t.Content, nil)
	case RoleSystem:
		return schema.SystemMessage(t.Content)
	default:
		return schema.UserMessage(t.Content)
	}
}

// SessionHistory represents loaded session data with metadata.
type SessionHistory struct {
	SessionID string
	Turns     []Turn
}

// SessionRepository persists per-session conversation turns.
type SessionRepository interface {
	// AppendTurn appends a turn to the session history.
	AppendTurn(ctx context.Context, sessionID string, turn Turn) error

	// LoadHistory retrieves the full turn sequence for a session.
	LoadHistory(ctx context.Context, sessionID string) (*SessionHistory, error)

	// ClearHistory removes all history for a session.
	ClearHistory(ctx context.Context, sessionID string) error

	// TurnCount returns the number of turns stored for a session.
	TurnCount(ctx context.Context, sessionID string) (int, error)
}
