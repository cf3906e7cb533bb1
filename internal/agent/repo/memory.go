package repo

import (
	"container/list"
	"context"
	"sync"

	"github.com/freshcart/support-agent/internal/agent/model"
	logx "github.com/freshcart/support-agent/pkg/logger"
)

// DefaultMaxSessions caps the in-memory repository. Least-recently-used
// sessions are evicted beyond this bound so the store cannot grow without
// limit (evaluation runs create one ephemeral session per test case).
const DefaultMaxSessions = 1024

type memorySession struct {
	id    string
	turns []model.Turn
}

// MemorySessionRepository is an LRU-bounded in-process SessionRepository used
// by tests, the chat REPL, and evaluation runs.
type MemorySessionRepository struct {
	mu          sync.Mutex
	maxSessions int
	order       *list.List               // front = most recently used
	sessions    map[string]*list.Element // value: *memorySession
}

func NewMemorySessionRepository(maxSessions int) *MemorySessionRepository {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	return &MemorySessionRepository{
		maxSessions: maxSessions,
		order:       list.New(),
		sessions:    make(map[string]*list.Element),
	}
}

// touch moves or inserts the session at the front, evicting the LRU tail.
// Callers must hold mu.
func (m *MemorySessionRepository) touch(sessionID string) *memorySession {
	if el, ok := m.sessions[sessionID]; ok {
		m.order.MoveToFront(el)
		return el.Value.(*memorySession)
	}
	s := &memorySession{id: sessionID}
	m.sessions[sessionID] = m.order.PushFront(s)

	for m.order.Len() > m.maxSessions {
		tail := m.order.Back()
		evicted := tail.Value.(*memorySession)
		m.order.Remove(tail)
		delete(m.sessions, evicted.id)
		logx.Debug().Str("session_id", evicted.id).Msg("evicted LRU session")
	}
	return s
}

func (m *MemorySessionRepository) AppendTurn(_ context.Context, sessionID string, turn model.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.touch(sessionID)
	s.turns = append(s.turns, turn)
	return nil
}

func (m *MemorySessionRepository) LoadHistory(_ context.Context, sessionID string) (*model.SessionHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.sessions[sessionID]
	if !ok {
		return &model.SessionHistory{SessionID: sessionID, Turns: []model.Turn{}}, nil
	}
	m.order.MoveToFront(el)
	s := el.Value.(*memorySession)

	turns := make([]model.Turn, len(s.turns))
	copy(turns, s.turns)
	return &model.SessionHistory{SessionID: sessionID, Turns: turns}, nil
}

func (m *MemorySessionRepository) ClearHistory(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.sessions[sessionID]; ok {
		m.order.Remove(el)
		delete(m.sessions, sessionID)
	}
	return nil
}

func (m *MemorySessionRepository) TurnCount(_ context.Context, sessionID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.sessions[sessionID]; ok {
		return len(el.Value.(*memorySession).turns), nil
	}
	return 0, nil
}

var _ model.SessionRepository = (*MemorySessionRepository)(nil)
