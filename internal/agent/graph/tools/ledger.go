package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/freshcart/support-agent/internal/agent/model"
	errx "github.com/freshcart/support-agent/internal/core/error"
	logx "github.com/freshcart/support-agent/pkg/logger"
)

// RefundLedger records approved refund decisions keyed by order id, making
// approval at-most-once: the first recorder wins, later attempts observe the
// existing decision. Writes happen on a cancellation-detached context so a
// client disconnect mid-turn cannot lose an audit record.
type RefundLedger interface {
	// Approved returns the recorded decision for an order, if any.
	Approved(ctx context.Context, orderID string) (*model.RefundDecision, error)

	// RecordApproval stores the decision unless one already exists.
	// Returns false when another decision was recorded first.
	RecordApproval(ctx context.Context, decision model.RefundDecision) (bool, error)
}

// ================ Redis ledger ================

type RedisRefundLedger struct {
	rdb redis.Cmdable
}

func NewRedisRefundLedger(rdb redis.Cmdable) *RedisRefundLedger {
	return &RedisRefundLedger{rdb: rdb}
}

func (l *RedisRefundLedger) key(orderID string) string {
	return fmt.Sprintf("refund:%s:decision", orderID)
}

func (l *RedisRefundLedger) Approved(ctx context.Context, orderID string) (*model.RefundDecision, error) {
	raw, err := l.rdb.Get(ctx, l.key(orderID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, errx.WrapRedis(err)
	}
	var d model.RefundDecision
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, fmt.Errorf("unmarshal refund decision: %w", err)
	}
	return &d, nil
}

func (l *RedisRefundLedger) RecordApproval(ctx context.Context, decision model.RefundDecision) (bool, error) {
	b, err := json.Marshal(decision)
	if err != nil {
		return false, fmt.Errorf("marshal refund decision: %w", err)
	}
	// detached from request cancellation: the record must survive disconnects
	ctx = context.WithoutCancel(ctx)
	ok, err := l.rdb.SetNX(ctx, l.key(decision.OrderID), b, 0).Result()
	if err != nil {
		return false, errx.WrapRedis(err)
	}
	if ok {
		lg := logx.With("refund_ledger")
		lg.Info().
			Str("order_id", decision.OrderID).
			Float64("amount", decision.Amount).
			Time("recorded_at", time.Now().UTC()).
			Msg("refund approval recorded")
	}
	return ok, nil
}

var _ RefundLedger = (*RedisRefundLedger)(nil)

// ================ In-memory ledger ================

// MemoryRefundLedger backs tests, the REPL and evaluation runs.
type MemoryRefundLedger struct {
	mu        sync.Mutex
	decisions map[string]model.RefundDecision
}

func NewMemoryRefundLedger() *MemoryRefundLedger {
	return &MemoryRefundLedger{decisions: make(map[string]model.RefundDecision)}
}

func (l *MemoryRefundLedger) Approved(_ context.Context, orderID string) (*model.RefundDecision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if d, ok := l.decisions[orderID]; ok {
		return &d, nil
	}
	return nil, nil
}

func (l *MemoryRefundLedger) RecordApproval(_ context.Context, decision model.RefundDecision) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.decisions[decision.OrderID]; ok {
		return false, nil
	}
	l.decisions[decision.OrderID] = decision
	return true, nil
}

var _ RefundLedger = (*MemoryRefundLedger)(nil)
