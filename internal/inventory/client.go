package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	logx "github.com/freshcart/support-agent/pkg/logger"
)

// ErrUnavailable signals that the inventory service could not be reached or
// answered abnormally. Callers must degrade rather than fabricate quantities.
var ErrUnavailable = errors.New("stock service unavailable")

// Config holds the inventory client settings.
type Config struct {
	URL            string `envconfig:"INVENTORY_URL" default:"http://localhost:8001"`
	RequestTimeout int    `envconfig:"INVENTORY_REQUEST_TIMEOUT" default:"5"`
}

// StockInfo is the remote lookup result. A known product with zero units is
// still Found; Found=false means the product id does not exist.
type StockInfo struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name,omitempty"`
	Found     bool    `json:"found"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
	Warehouse string  `json:"warehouse,omitempty"`
}

// Client queries the remote inventory service over HTTP JSON.
type Client struct {
	base string
	http *http.Client
}

func NewClient(cfg Config) *Client {
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		base: cfg.URL,
		http: &http.Client{Timeout: timeout},
	}
}

// Stock looks up availability and price for a product id.
func (c *Client) Stock(ctx context.Context, productID string) (*StockInfo, error) {
	endpoint := fmt.Sprintf("%s/v1/stock/%s", c.base, url.PathEscape(productID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build stock request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		logx.Warn().Err(err).Str("product_id", productID).Msg("inventory service unreachable")
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var info StockInfo
		if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
			return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
		}
		info.ProductID = productID
		return &info, nil
	case http.StatusNotFound:
		return &StockInfo{ProductID: productID, Found: false}, nil
	default:
		logx.Warn().Int("status", resp.StatusCode).Str("product_id", productID).Msg("inventory service error")
		return nil, fmt.Errorf("%w: unexpected status %d", ErrUnavailable, resp.StatusCode)
	}
}
