package inventory_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freshcart/support-agent/internal/inventory"
)

const stockFixture = `[
  {"product_id": "P001", "name": "Organic Milk", "quantity": 45, "price": 4.99, "warehouse": "Warehouse A"},
  {"product_id": "P007", "name": "Pasta", "quantity": 0, "price": 2.49, "warehouse": "Warehouse A"}
]`

func startInventory(t *testing.T) *httptest.Server {
	t.Helper()

	path := filepath.Join(t.TempDir(), "stock.json")
	require.NoError(t, os.WriteFile(path, []byte(stockFixture), 0o644))

	h, err := inventory.NewHandlerFromFile(path)
	require.NoError(t, err)

	r := chi.NewRouter()
	h.Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_StockFound(t *testing.T) {
	t.Parallel()

	srv := startInventory(t)
	c := inventory.NewClient(inventory.Config{URL: srv.URL, RequestTimeout: 2})

	info, err := c.Stock(context.Background(), "P001")
	require.NoError(t, err)
	assert.True(t, info.Found)
	assert.Equal(t, 45, info.Quantity)
	assert.InDelta(t, 4.99, info.Price, 0.001)
	assert.Equal(t, "Organic Milk", info.Name)
}

func TestClient_ZeroQuantityIsStillFound(t *testing.T) {
	t.Parallel()

	srv := startInventory(t)
	c := inventory.NewClient(inventory.Config{URL: srv.URL, RequestTimeout: 2})

	info, err := c.Stock(context.Background(), "P007")
	require.NoError(t, err)
	assert.True(t, info.Found, "out-of-stock item must not be reported as not found")
	assert.Zero(t, info.Quantity)
}

func TestClient_UnknownProduct(t *testing.T) {
	t.Parallel()

	srv := startInventory(t)
	c := inventory.NewClient(inventory.Config{URL: srv.URL, RequestTimeout: 2})

	info, err := c.Stock(context.Background(), "P999")
	require.NoError(t, err)
	assert.False(t, info.Found)
}

func TestClient_ServiceUnreachable(t *testing.T) {
	t.Parallel()

	c := inventory.NewClient(inventory.Config{URL: "http://127.0.0.1:1", RequestTimeout: 1})

	_, err := c.Stock(context.Background(), "P001")
	require.Error(t, err)
	assert.ErrorIs(t, err, inventory.ErrUnavailable)
}

func TestClient_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	c := inventory.NewClient(inventory.Config{URL: srv.URL, RequestTimeout: 2})
	_, err := c.Stock(context.Background(), "P001")
	require.Error(t, err)
	assert.ErrorIs(t, err, inventory.ErrUnavailable)
}
