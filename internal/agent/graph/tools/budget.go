package tools

import (
	"context"
	"math"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	logx "github.com/freshcart/support-agent/pkg/logger"
)

// Exclusion reasons reported by calculate_budget.
const (
	ExcludeNotFound   = "not_found"
	ExcludeOutOfStock = "out_of_stock"
	ExcludeOverBudget = "over_budget"
)

type CalculateBudgetInput struct {
	Items  []string `json:"items"`
	Budget float64  `json:"budget"`
}

type ExcludedItem struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

type CalculateBudgetOutput struct {
	Affordable    bool           `json:"affordable"`
	TotalCost     float64        `json:"total_cost"`
	Remaining     float64        `json:"remaining"`
	ItemsIncluded []IncludedItem `json:"items_included"`
	ItemsExcluded []ExcludedItem `json:"items_excluded"`
}

type IncludedItem struct {
	Name    string  `json:"name"`
	Matched string  `json:"matched"`
	Price   float64 `json:"price"`
}

func (r *Registry) calculateBudgetTool() tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolCalculateBudget,
			Desc: "Check whether a list of grocery items fits within a budget. Returns the total cost, which items were included, and which were excluded with a reason. Use whenever the customer mentions a spending limit, e.g. 'can I buy milk and bread for $10?'.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"items": {
					Type:     "array",
					Desc:     "Item names as the customer said them, e.g. [\"milk\", \"bread\"].",
					ElemInfo: &schema.ParameterInfo{Type: "string"},
					Required: true,
				},
				"budget": {
					Type:     "number",
					Desc:     "The customer's budget in dollars.",
					Required: true,
				},
			}),
		},
		func(ctx context.Context, in *CalculateBudgetInput) (*CalculateBudgetOutput, error) {
			out := r.CalculateBudget(in.Items, in.Budget)
			logx.Debug().
				Strs("items", in.Items).
				Float64("budget", in.Budget).
				Float64("total_cost", out.TotalCost).
				Bool("affordable", out.Affordable).
				Msg("calculate_budget")
			return out, nil
		},
	)
}

// CalculateBudget greedily includes items in request order while the running
// total stays within budget. Items with no catalog match are reported as
// excluded rather than silently dropped.
func (r *Registry) CalculateBudget(items []string, budget float64) *CalculateBudgetOutput {
	out := &CalculateBudgetOutput{
		ItemsIncluded: []IncludedItem{},
		ItemsExcluded: []ExcludedItem{},
	}

	total := 0.0
	for _, item := range items {
		product, ok := r.catalog.Match(item)
		if !ok {
			out.ItemsExcluded = append(out.ItemsExcluded, ExcludedItem{Name: item, Reason: ExcludeNotFound})
			continue
		}
		if !product.InStock {
			out.ItemsExcluded = append(out.ItemsExcluded, ExcludedItem{Name: item, Reason: ExcludeOutOfStock})
			continue
		}
		if total+product.Price > budget {
			out.ItemsExcluded = append(out.ItemsExcluded, ExcludedItem{Name: item, Reason: ExcludeOverBudget})
			continue
		}
		total += product.Price
		out.ItemsIncluded = append(out.ItemsIncluded, IncludedItem{
			Name:    item,
			Matched: product.Name,
			Price:   product.Price,
		})
	}

	out.TotalCost = round2(total)
	out.Remaining = round2(budget - total)
	out.Affordable = len(out.ItemsExcluded) == 0
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
