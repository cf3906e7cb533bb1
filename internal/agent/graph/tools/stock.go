package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/freshcart/support-agent/internal/inventory"
	logx "github.com/freshcart/support-agent/pkg/logger"
)

type CheckStockInput struct {
	ProductID string `json:"product_id"`
}

// CheckStockOutput reports availability. When the inventory service cannot be
// reached, Error carries "stock_service_unavailable" and no quantity is
// fabricated; the model phrases the degraded answer from that signal.
type CheckStockOutput struct {
	ProductID string  `json:"product_id"`
	Found     bool    `json:"found"`
	Name      string  `json:"name,omitempty"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
	Error     string  `json:"error,omitempty"`
}

const stockUnavailableCode = "stock_service_unavailable"

func (r *Registry) checkStockTool() tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolCheckStock,
			Desc: "Check real-time stock quantity and price for a product by its product ID (e.g. P001). Quantity zero means known but out of stock. Use when the customer asks about availability.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"product_id": {
					Type:     "string",
					Desc:     "Product ID to look up, e.g. P001.",
					Required: true,
				},
			}),
		},
		func(ctx context.Context, in *CheckStockInput) (*CheckStockOutput, error) {
			if in.ProductID == "" {
				return nil, fmt.Errorf("product_id is required")
			}
			return r.CheckStock(ctx, in.ProductID)
		},
	)
}

// CheckStock delegates to the remote inventory interface.
func (r *Registry) CheckStock(ctx context.Context, productID string) (*CheckStockOutput, error) {
	info, err := r.stock.Stock(ctx, productID)
	if err != nil {
		if errors.Is(err, inventory.ErrUnavailable) {
			logx.Warn().Err(err).Str("product_id", productID).Msg("stock check degraded")
			return &CheckStockOutput{ProductID: productID, Error: stockUnavailableCode}, nil
		}
		return nil, err
	}

	return &CheckStockOutput{
		ProductID: info.ProductID,
		Found:     info.Found,
		Name:      info.Name,
		Quantity:  info.Quantity,
		Price:     info.Price,
	}, nil
}
