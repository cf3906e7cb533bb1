package sessions

import (
	"context"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/freshcart/support-agent/internal/agent/model"
)

const lockStripes = 64

// Bounds on the timestamp guard map. Entries only matter between
// near-simultaneous appends to the same session, so idle sessions can be
// forgotten: beyond maxTrackedSessions, entries idle past tsRetention are
// swept, oldest first until the map fits.
const (
	maxTrackedSessions = 4096
	tsRetention        = time.Hour
)

// Manager mediates all session access. Requests for the same session are
// serialized through striped locks so turn appends stay a total order even
// under concurrent submissions; independent sessions proceed in parallel.
type Manager struct {
	repo     model.SessionRepository
	maxTurns int

	locks [lockStripes]sync.Mutex

	tsMu   sync.Mutex
	lastTS map[string]time.Time
}

func NewManager(repo model.SessionRepository, cfg model.SessionConfig) *Manager {
	return &Manager{
		repo:     repo,
		maxTurns: cfg.MaxTurns,
		lastTS:   make(map[string]time.Time),
	}
}

func stripe(sessionID string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	return h.Sum32() % lockStripes
}

// Acquire locks the session's stripe for the duration of one turn and
// returns the release function.
func (m *Manager) Acquire(sessionID string) func() {
	s := stripe(sessionID)
	m.locks[s].Lock()
	return m.locks[s].Unlock
}

// nextTimestamp returns a timestamp strictly after any previously issued one
// for the session, guarding the monotonic-turn invariant against clock skew.
func (m *Manager) nextTimestamp(sessionID string) time.Time {
	m.tsMu.Lock()
	defer m.tsMu.Unlock()

	ts := time.Now().UTC()
	if last, ok := m.lastTS[sessionID]; ok && !ts.After(last) {
		ts = last.Add(time.Nanosecond)
	}
	m.lastTS[sessionID] = ts

	if len(m.lastTS) > maxTrackedSessions {
		m.evictStaleTimestamps(ts)
	}
	return ts
}

// evictStaleTimestamps drops guard entries for idle sessions. Callers hold
// tsMu.
func (m *Manager) evictStaleTimestamps(now time.Time) {
	cutoff := now.Add(-tsRetention)
	for id, last := range m.lastTS {
		if last.Before(cutoff) {
			delete(m.lastTS, id)
		}
	}
	if len(m.lastTS) <= maxTrackedSessions {
		return
	}

	// Still over the bound: every tracked session was active within the
	// window, evict the least recently active.
	ids := make([]string, 0, len(m.lastTS))
	for id := range m.lastTS {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return m.lastTS[ids[i]].Before(m.lastTS[ids[j]])
	})
	for _, id := range ids[:len(ids)-maxTrackedSessions] {
		delete(m.lastTS, id)
	}
}

// AppendUserTurn records the incoming user message. Callers hold the session
// lock via Acquire for the whole turn.
func (m *Manager) AppendUserTurn(ctx context.Context, sessionID, content string) error {
	return m.repo.AppendTurn(ctx, sessionID, model.Turn{
		Role:      model.RoleUser,
		Content:   content,
		Timestamp: m.nextTimestamp(sessionID),
	})
}

// AppendAssistantTurn records the response delivered for the current turn.
func (m *Manager) AppendAssistantTurn(ctx context.Context, sessionID, content string) error {
	return m.repo.AppendTurn(ctx, sessionID, model.Turn{
		Role:      model.RoleAssistant,
		Content:   content,
		Timestamp: m.nextTimestamp(sessionID),
	})
}

// History exposes the stored turn sequence, for the API history endpoint.
func (m *Manager) History(ctx context.Context, sessionID string) (*model.SessionHistory, error) {
	return m.repo.LoadHistory(ctx, sessionID)
}

// BuildClassifierContext renders recent history plus the current message in
// the tagged format the classifier prompt expects. The current user turn has
// already been appended, so it is excluded from the history block.
func (m *Manager) BuildClassifierContext(ctx context.Context, sessionID, query string) (string, error) {
	history, err := m.repo.LoadHistory(ctx, sessionID)
	if err != nil {
		return "", err
	}

	turns := history.Turns
	if n := len(turns); n > 0 && turns[n-1].Role == model.RoleUser && turns[n-1].Content == query {
		turns = turns[:n-1]
	}
	turns = trimTail(turns, m.maxTurns)

	var b strings.Builder
	b.WriteString("<conversation_context>\n")
	for _, t := range turns {
		if t.Content == "" {
			continue
		}
		switch t.Role {
		case model.RoleUser:
			b.WriteString("UserMessage(" + t.Content + ")\n")
		case model.RoleAssistant:
			b.WriteString("AssistantMessage(" + t.Content + ")\n")
		}
	}
	b.WriteString("</conversation_context>\n")
	b.WriteString("<current_message_to_classify>\n")
	b.WriteString("UserMessage(" + query + ")\n")
	b.WriteString("</current_message_to_classify>")

	return b.String(), nil
}

// ResponseMessages assembles the system prompt plus recent history as model
// messages for a responder.
func (m *Manager) ResponseMessages(ctx context.Context, sessionID, systemPrompt string) ([]*schema.Message, error) {
	history, err := m.repo.LoadHistory(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	messages := []*schema.Message{
		schema.SystemMessage(systemPrompt),
	}
	for _, t := range trimTail(history.Turns, m.maxTurns) {
		if t.Content == "" {
			continue
		}
		messages = append(messages, t.Message())
	}
	return messages, nil
}

// ====================== Helper function ======================
func trimTail(turns []model.Turn, maxTurns int) []model.Turn {
	if maxTurns <= 0 || len(turns) <= maxTurns {
		return turns
	}
	return turns[len(turns)-maxTurns:]
}
