package repo_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freshcart/support-agent/internal/agent/model"
	"github.com/freshcart/support-agent/internal/agent/repo"
)

func newRedisRepo(t *testing.T, ttl time.Duration) (*repo.RedisSessionRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return repo.NewRedisSessionRepository(client, ttl), mr
}

func TestRedisSessionRepository_AppendAndLoad(t *testing.T) {
	r, _ := newRedisRepo(t, time.Hour)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, r.AppendTurn(ctx, "s1", model.Turn{Role: model.RoleUser, Content: "hello", Timestamp: now}))
	require.NoError(t, r.AppendTurn(ctx, "s1", model.Turn{Role: model.RoleAssistant, Content: "hi there", Timestamp: now.Add(time.Millisecond)}))

	h, err := r.LoadHistory(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, h.Turns, 2)
	assert.Equal(t, model.RoleUser, h.Turns[0].Role)
	assert.Equal(t, "hello", h.Turns[0].Content)
	assert.Equal(t, model.RoleAssistant, h.Turns[1].Role)

	n, err := r.TurnCount(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRedisSessionRepository_EmptySession(t *testing.T) {
	r, _ := newRedisRepo(t, time.Hour)

	h, err := r.LoadHistory(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, h.Turns)

	n, err := r.TurnCount(context.Background(), "missing")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedisSessionRepository_TTLExpiry(t *testing.T) {
	r, mr := newRedisRepo(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, r.AppendTurn(ctx, "s1", model.Turn{Role: model.RoleUser, Content: "hello", Timestamp: time.Now()}))
	mr.FastForward(2 * time.Minute)

	h, err := r.LoadHistory(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, h.Turns, "session should expire after TTL")
}

func TestRedisSessionRepository_Clear(t *testing.T) {
	r, _ := newRedisRepo(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, r.AppendTurn(ctx, "s1", model.Turn{Role: model.RoleUser, Content: "hello", Timestamp: time.Now()}))
	require.NoError(t, r.ClearHistory(ctx, "s1"))

	n, err := r.TurnCount(ctx, "s1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemorySessionRepository_AppendAndLoad(t *testing.T) {
	t.Parallel()

	m := repo.NewMemorySessionRepository(8)
	ctx := context.Background()

	require.NoError(t, m.AppendTurn(ctx, "s1", model.Turn{Role: model.RoleUser, Content: "q", Timestamp: time.Now()}))
	require.NoError(t, m.AppendTurn(ctx, "s1", model.Turn{Role: model.RoleAssistant, Content: "a", Timestamp: time.Now()}))

	h, err := m.LoadHistory(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, h.Turns, 2)

	// returned slice is a copy; mutating it must not affect the store
	h.Turns[0].Content = "mutated"
	h2, err := m.LoadHistory(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "q", h2.Turns[0].Content)
}

func TestMemorySessionRepository_LRUEviction(t *testing.T) {
	t.Parallel()

	m := repo.NewMemorySessionRepository(2)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, m.AppendTurn(ctx, id, model.Turn{Role: model.RoleUser, Content: "x", Timestamp: time.Now()}))
	}

	// "a" was least recently used and must be gone
	n, err := m.TurnCount(ctx, "a")
	require.NoError(t, err)
	assert.Zero(t, n)

	for _, id := range []string{"b", "c"} {
		n, err := m.TurnCount(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 1, n, "session %s should survive", id)
	}
}

func TestMemorySessionRepository_ConcurrentSessions(t *testing.T) {
	t.Parallel()

	m := repo.NewMemorySessionRepository(64)
	ctx := context.Background()

	done := make(chan error, 32)
	for i := 0; i < 32; i++ {
		go func(i int) {
			id := fmt.Sprintf("s%d", i%8)
			done <- m.AppendTurn(ctx, id, model.Turn{Role: model.RoleUser, Content: "x", Timestamp: time.Now()})
		}(i)
	}
	for i := 0; i < 32; i++ {
		require.NoError(t, <-done)
	}

	total := 0
	for i := 0; i < 8; i++ {
		n, err := m.TurnCount(ctx, fmt.Sprintf("s%d", i))
		require.NoError(t, err)
		total += n
	}
	assert.Equal(t, 32, total)
}
