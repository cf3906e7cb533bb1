package tools

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/freshcart/support-agent/internal/agent/model"
	logx "github.com/freshcart/support-agent/pkg/logger"
)

// Catalog is the in-memory product catalog used for budget calculations and
// product matching.
type Catalog struct {
	products []model.Product
}

func NewCatalog(products []model.Product) *Catalog {
	return &Catalog{products: products}
}

// LoadCatalog reads the product catalog from a JSON file.
func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var products []model.Product
	if err := json.Unmarshal(raw, &products); err != nil {
		return nil, err
	}
	logx.Info().Int("products", len(products)).Str("file", path).Msg("loaded product catalog")
	return &Catalog{products: products}, nil
}

// Match resolves a free-form item name to a catalog product. Matching is
// case-insensitive: exact name first, then substring containment in either
// direction ("milk" matches "Organic Milk", "organic milk 1L" matches
// "Organic Milk"). First catalog hit wins.
func (c *Catalog) Match(name string) (model.Product, bool) {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return model.Product{}, false
	}

	for _, p := range c.products {
		if strings.ToLower(p.Name) == needle {
			return p, true
		}
	}
	for _, p := range c.products {
		pn := strings.ToLower(p.Name)
		if strings.Contains(pn, needle) || strings.Contains(needle, pn) {
			return p, true
		}
	}
	return model.Product{}, false
}
