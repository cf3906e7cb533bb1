package tools

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/freshcart/support-agent/internal/agent/model"
	logx "github.com/freshcart/support-agent/pkg/logger"
)

type CreateRefundInput struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason,omitempty"`
}

func (r *Registry) createRefundTool() tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolCreateRefund,
			Desc: "Create a refund for an order by order ID (e.g. ORD001). Returns whether the refund was approved and, when denied, the reason code. Use when the customer asks for a refund.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"order_id": {
					Type:     "string",
					Desc:     "Order ID to refund, e.g. ORD001.",
					Required: true,
				},
				"reason": {
					Type: "string",
					Desc: "Why the customer wants the refund. Defaults to 'customer request'.",
				},
			}),
		},
		func(ctx context.Context, in *CreateRefundInput) (*model.RefundDecision, error) {
			if in.OrderID == "" {
				return nil, fmt.Errorf("order_id is required")
			}
			if in.Reason == "" {
				in.Reason = "customer request"
			}
			return r.CreateRefund(ctx, in.OrderID, in.Reason)
		},
	)
}

// CreateRefund validates a refund request and records the decision.
// Validation short-circuits: the first failing check determines the denial
// reason. Approval is at-most-once per order id via the ledger; a repeated
// request after approval observes already_refunded.
func (r *Registry) CreateRefund(ctx context.Context, orderID, reason string) (*model.RefundDecision, error) {
	audit := logx.With("refund")

	deny := func(code string) *model.RefundDecision {
		audit.Info().Str("order_id", orderID).Str("reason", code).Msg("refund denied")
		return &model.RefundDecision{OrderID: orderID, Approved: false, Reason: code}
	}

	order, ok := r.orders.Get(orderID)
	if !ok {
		return deny(model.RefundReasonOrderNotFound), nil
	}

	if order.Status == model.OrderStatusRefunded {
		return deny(model.RefundReasonAlreadyRefunded), nil
	}
	prior, err := r.ledger.Approved(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("refund ledger lookup: %w", err)
	}
	if prior != nil {
		return deny(model.RefundReasonAlreadyRefunded), nil
	}

	if order.Total > r.maxRefund {
		return deny(model.RefundReasonExceedsLimit), nil
	}

	decision := model.RefundDecision{
		OrderID:  orderID,
		Approved: true,
		Amount:   order.Total,
		RefundID: "REF" + orderID,
	}
	recorded, err := r.ledger.RecordApproval(ctx, decision)
	if err != nil {
		return nil, fmt.Errorf("refund ledger record: %w", err)
	}
	if !recorded {
		// lost the race against a concurrent approval for the same order
		return deny(model.RefundReasonAlreadyRefunded), nil
	}

	audit.Info().
		Str("order_id", orderID).
		Float64("amount", order.Total).
		Str("refund_reason", reason).
		Msg("refund approved")
	return &decision, nil
}
