package tools

import (
	"encoding/json"
	"os"

	"github.com/freshcart/support-agent/internal/agent/model"
	logx "github.com/freshcart/support-agent/pkg/logger"
)

// OrdersStore is a read-only view of the orders database keyed by order id.
type OrdersStore struct {
	orders map[string]model.Order
}

func NewOrdersStore(orders []model.Order) *OrdersStore {
	m := make(map[string]model.Order, len(orders))
	for _, o := range orders {
		m[o.OrderID] = o
	}
	return &OrdersStore{orders: m}
}

// LoadOrders reads the orders database from a JSON file.
func LoadOrders(path string) (*OrdersStore, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var orders []model.Order
	if err := json.Unmarshal(raw, &orders); err != nil {
		return nil, err
	}
	logx.Info().Int("orders", len(orders)).Str("file", path).Msg("loaded orders database")
	return NewOrdersStore(orders), nil
}

// Get looks up an order by id.
func (s *OrdersStore) Get(orderID string) (model.Order, bool) {
	o, ok := s.orders[orderID]
	return o, ok
}
