package inventory

import (
	"encoding/json"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	logx "github.com/freshcart/support-agent/pkg/logger"
)

// stockRecord is one row of the warehouse stock database.
type stockRecord struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
	Warehouse string  `json:"warehouse"`
}

// Handler serves the inventory lookup API backed by a static stock file.
// It is the reference implementation run by cmd/inventoryd; production
// deployments point INVENTORY_URL at the real warehouse service instead.
type Handler struct {
	stock map[string]stockRecord
}

// NewHandlerFromFile loads the stock database from a JSON file.
func NewHandlerFromFile(path string) (*Handler, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []stockRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, err
	}

	stock := make(map[string]stockRecord, len(records))
	for _, r := range records {
		stock[r.ProductID] = r
	}
	logx.Info().Int("products", len(stock)).Str("file", path).Msg("loaded stock database")
	return &Handler{stock: stock}, nil
}

// Routes mounts the inventory API.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/v1/stock/{productID}", h.getStock)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func (h *Handler) getStock(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")

	rec, ok := h.stock[productID]
	if !ok {
		logx.Debug().Str("product_id", productID).Msg("stock lookup miss")
		writeJSON(w, http.StatusNotFound, StockInfo{ProductID: productID, Found: false})
		return
	}

	logx.Debug().Str("product_id", productID).Int("quantity", rec.Quantity).Msg("stock lookup")
	writeJSON(w, http.StatusOK, StockInfo{
		ProductID: rec.ProductID,
		Name:      rec.Name,
		Found:     true,
		Quantity:  rec.Quantity,
		Price:     rec.Price,
		Warehouse: rec.Warehouse,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logx.Error().Err(err).Msg("failed to encode response")
	}
}
