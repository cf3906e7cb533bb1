package tools

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/freshcart/support-agent/internal/inventory"
)

// The closed set of action tools. The model picks tools by name at runtime;
// anything outside this set is rejected by the tools-node unknown handler.
const (
	ToolCalculateBudget = "calculate_budget"
	ToolCheckStock      = "check_stock"
	ToolCreateRefund    = "create_refund"
)

// Config holds the business-rule knobs enforced by the tools.
type Config struct {
	MaxRefundAmount float64 `envconfig:"MAX_REFUND_AMOUNT" default:"1000.0"`
}

// StockChecker is the remote inventory capability the stock tool delegates to.
type StockChecker interface {
	Stock(ctx context.Context, productID string) (*inventory.StockInfo, error)
}

// Registry owns the tool dependencies and produces the bound tool set.
type Registry struct {
	catalog   *Catalog
	orders    *OrdersStore
	ledger    RefundLedger
	stock     StockChecker
	maxRefund float64
}

func NewRegistry(catalog *Catalog, orders *OrdersStore, ledger RefundLedger, stock StockChecker, cfg Config) *Registry {
	maxRefund := cfg.MaxRefundAmount
	if maxRefund <= 0 {
		maxRefund = 1000.0
	}
	return &Registry{
		catalog:   catalog,
		orders:    orders,
		ledger:    ledger,
		stock:     stock,
		maxRefund: maxRefund,
	}
}

// QueryTools returns the tools bound to the action response model.
func (r *Registry) QueryTools() []tool.BaseTool {
	return []tool.BaseTool{
		r.calculateBudgetTool(),
		r.checkStockTool(),
		r.createRefundTool(),
	}
}

// GetToolInfos collects the declared tool schemas for model binding.
func GetToolInfos(ctx context.Context, ts []tool.BaseTool) ([]*schema.ToolInfo, error) {
	infos := make([]*schema.ToolInfo, 0, len(ts))
	for _, t := range ts {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("get tool info: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}
