package tools_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freshcart/support-agent/internal/agent/graph/tools"
	"github.com/freshcart/support-agent/internal/agent/model"
	"github.com/freshcart/support-agent/internal/inventory"
)

var testProducts = []model.Product{
	{ID: "P001", Name: "Organic Milk", Category: "dairy", Price: 2.50, InStock: true},
	{ID: "P002", Name: "Whole Wheat Bread", Category: "bakery", Price: 3.00, InStock: true},
	{ID: "P003", Name: "Rice", Category: "pantry", Price: 12.99, InStock: true},
	{ID: "P004", Name: "Chicken Breast", Category: "meat", Price: 11.50, InStock: true},
	{ID: "P005", Name: "Free Range Eggs", Category: "dairy", Price: 6.25, InStock: true},
	{ID: "P006", Name: "Pasta", Category: "pantry", Price: 2.49, InStock: false},
}

var testOrders = []model.Order{
	{OrderID: "ORD001", Total: 45.50, Status: "delivered"},
	{OrderID: "ORD003", Total: 22.00, Status: "refunded"},
	{OrderID: "ORD006", Total: 1250.00, Status: "delivered"},
}

type stubStock struct {
	infos map[string]*inventory.StockInfo
	err   error
}

func (s *stubStock) Stock(_ context.Context, productID string) (*inventory.StockInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	if info, ok := s.infos[productID]; ok {
		return info, nil
	}
	return &inventory.StockInfo{ProductID: productID, Found: false}, nil
}

func newRegistry(stock tools.StockChecker) *tools.Registry {
	if stock == nil {
		stock = &stubStock{}
	}
	return tools.NewRegistry(
		tools.NewCatalog(testProducts),
		tools.NewOrdersStore(testOrders),
		tools.NewMemoryRefundLedger(),
		stock,
		tools.Config{MaxRefundAmount: 1000.0},
	)
}

// ================ calculate_budget ================

func TestCalculateBudget_WithinBudget(t *testing.T) {
	t.Parallel()

	r := newRegistry(nil)
	out := r.CalculateBudget([]string{"milk", "bread"}, 10)

	assert.True(t, out.Affordable)
	assert.InDelta(t, 5.50, out.TotalCost, 0.001)
	require.Len(t, out.ItemsIncluded, 2)
	assert.Equal(t, "Organic Milk", out.ItemsIncluded[0].Matched)
	assert.Equal(t, "Whole Wheat Bread", out.ItemsIncluded[1].Matched)
	assert.Empty(t, out.ItemsExcluded)
}

func TestCalculateBudget_OverBudget(t *testing.T) {
	t.Parallel()

	r := newRegistry(nil)
	// 12.99 + 11.50 + 6.25 = 30.74 > 30
	out := r.CalculateBudget([]string{"rice", "chicken", "eggs"}, 30)

	assert.False(t, out.Affordable)
	assert.NotEmpty(t, out.ItemsExcluded)
	assert.LessOrEqual(t, out.TotalCost, 30.0)
	// greedy in request order: rice and chicken fit, eggs do not
	require.Len(t, out.ItemsIncluded, 2)
	assert.Equal(t, tools.ExcludeOverBudget, out.ItemsExcluded[0].Reason)
}

func TestCalculateBudget_UnknownItemReportedNotFound(t *testing.T) {
	t.Parallel()

	r := newRegistry(nil)
	out := r.CalculateBudget([]string{"milk", "dragonfruit jam"}, 50)

	require.Len(t, out.ItemsExcluded, 1)
	assert.Equal(t, "dragonfruit jam", out.ItemsExcluded[0].Name)
	assert.Equal(t, tools.ExcludeNotFound, out.ItemsExcluded[0].Reason)
	assert.False(t, out.Affordable, "an unmatched item means the request was not fully satisfied")
}

func TestCalculateBudget_OutOfStockExcluded(t *testing.T) {
	t.Parallel()

	r := newRegistry(nil)
	out := r.CalculateBudget([]string{"pasta"}, 50)

	require.Len(t, out.ItemsExcluded, 1)
	assert.Equal(t, tools.ExcludeOutOfStock, out.ItemsExcluded[0].Reason)
	assert.Zero(t, out.TotalCost)
}

func TestCalculateBudget_CaseInsensitiveFuzzyMatch(t *testing.T) {
	t.Parallel()

	r := newRegistry(nil)
	out := r.CalculateBudget([]string{"ORGANIC MILK", "eggs"}, 20)

	assert.True(t, out.Affordable)
	require.Len(t, out.ItemsIncluded, 2)
	assert.Equal(t, "Free Range Eggs", out.ItemsIncluded[1].Matched)
}

// ================ check_stock ================

func TestCheckStock_ZeroQuantityStillFound(t *testing.T) {
	t.Parallel()

	r := newRegistry(&stubStock{infos: map[string]*inventory.StockInfo{
		"P007": {ProductID: "P007", Name: "Pasta", Found: true, Quantity: 0, Price: 2.49},
	}})

	out, err := r.CheckStock(context.Background(), "P007")
	require.NoError(t, err)
	assert.True(t, out.Found)
	assert.Zero(t, out.Quantity)
}

func TestCheckStock_UnknownProduct(t *testing.T) {
	t.Parallel()

	r := newRegistry(nil)
	out, err := r.CheckStock(context.Background(), "P999")
	require.NoError(t, err)
	assert.False(t, out.Found)
}

func TestCheckStock_ServiceUnavailableDegrades(t *testing.T) {
	t.Parallel()

	r := newRegistry(&stubStock{err: inventory.ErrUnavailable})

	out, err := r.CheckStock(context.Background(), "P001")
	require.NoError(t, err, "unavailability is a degraded result, not a turn failure")
	assert.False(t, out.Found)
	assert.Equal(t, "stock_service_unavailable", out.Error)
	assert.Zero(t, out.Quantity, "no fabricated quantity")
}

// ================ create_refund ================

func TestCreateRefund_OrderNotFound(t *testing.T) {
	t.Parallel()

	r := newRegistry(nil)
	d, err := r.CreateRefund(context.Background(), "ORD999", "damaged items")
	require.NoError(t, err)
	assert.False(t, d.Approved)
	assert.Equal(t, model.RefundReasonOrderNotFound, d.Reason)
}

func TestCreateRefund_AlreadyRefundedStatus(t *testing.T) {
	t.Parallel()

	r := newRegistry(nil)
	d, err := r.CreateRefund(context.Background(), "ORD003", "late delivery")
	require.NoError(t, err)
	assert.False(t, d.Approved)
	assert.Equal(t, model.RefundReasonAlreadyRefunded, d.Reason)
}

func TestCreateRefund_ExceedsLimit(t *testing.T) {
	t.Parallel()

	r := newRegistry(nil)
	d, err := r.CreateRefund(context.Background(), "ORD006", "wrong order")
	require.NoError(t, err)
	assert.False(t, d.Approved)
	assert.Equal(t, model.RefundReasonExceedsLimit, d.Reason)
}

func TestCreateRefund_ApprovedRecordsAmount(t *testing.T) {
	t.Parallel()

	r := newRegistry(nil)
	d, err := r.CreateRefund(context.Background(), "ORD001", "damaged items")
	require.NoError(t, err)
	assert.True(t, d.Approved)
	assert.InDelta(t, 45.50, d.Amount, 0.001)
	assert.Equal(t, "REFORD001", d.RefundID)
}

func TestCreateRefund_IdempotentPerOrder(t *testing.T) {
	t.Parallel()

	r := newRegistry(nil)
	ctx := context.Background()

	first, err := r.CreateRefund(ctx, "ORD001", "damaged items")
	require.NoError(t, err)
	require.True(t, first.Approved)

	second, err := r.CreateRefund(ctx, "ORD001", "damaged items")
	require.NoError(t, err)
	assert.False(t, second.Approved)
	assert.Equal(t, model.RefundReasonAlreadyRefunded, second.Reason)

	// denials are stable too
	third, err := r.CreateRefund(ctx, "ORD006", "wrong order")
	require.NoError(t, err)
	fourth, err := r.CreateRefund(ctx, "ORD006", "wrong order")
	require.NoError(t, err)
	assert.Equal(t, third.Reason, fourth.Reason)
}

func TestCreateRefund_ConcurrentApprovalAtMostOnce(t *testing.T) {
	t.Parallel()

	r := newRegistry(nil)
	ctx := context.Background()

	const n = 16
	decisions := make([]*model.RefundDecision, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := r.CreateRefund(ctx, "ORD001", "concurrent")
			require.NoError(t, err)
			decisions[i] = d
		}(i)
	}
	wg.Wait()

	approved := 0
	for _, d := range decisions {
		if d.Approved {
			approved++
		} else {
			assert.Equal(t, model.RefundReasonAlreadyRefunded, d.Reason)
		}
	}
	assert.Equal(t, 1, approved, "exactly one approval per order id")
}

func TestGetToolInfos(t *testing.T) {
	t.Parallel()

	r := newRegistry(nil)
	infos, err := tools.GetToolInfos(context.Background(), r.QueryTools())
	require.NoError(t, err)
	require.Len(t, infos, 3)

	names := []string{infos[0].Name, infos[1].Name, infos[2].Name}
	assert.ElementsMatch(t, names, []string{
		tools.ToolCalculateBudget, tools.ToolCheckStock, tools.ToolCreateRefund,
	})
}
